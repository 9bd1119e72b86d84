package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/tcarchive/pkg/telecommand"
)

// recordFlags describes records on the command line: either one record
// through the field flags or a JSON array through --file.
type recordFlags struct {
	file        string
	at          string
	apid        uint16
	seq         uint16
	packetID    uint8
	payload     string
	unscheduled bool

	now func() time.Time
}

func (f *recordFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.file, "file", "", `JSON array of records to read ("-" for stdin)`)
	fs.StringVar(&f.at, "at", "", "execution time (RFC 3339)")
	fs.Uint16Var(&f.apid, "apid", 0, "application process id")
	fs.Uint16Var(&f.seq, "seq", 0, "packet sequence count")
	fs.Uint8Var(&f.packetID, "packet-id", 0, "packet identifier")
	fs.StringVar(&f.payload, "payload", "", "application data, hex encoded")
	fs.BoolVar(&f.unscheduled, "unscheduled", false, "store the record without scheduling it")
}

func (f *recordFlags) records(stdin io.Reader) ([]telecommand.Record, error) {
	if f.file != "" {
		if f.at != "" {
			return nil, errors.New("--file and --at are mutually exclusive")
		}
		return readRecords(f.file, stdin)
	}
	if f.at == "" {
		return nil, errors.New("one of --file or --at is required")
	}

	at, err := time.Parse(time.RFC3339, f.at)
	if err != nil {
		return nil, fmt.Errorf("parse --at: %w", err)
	}
	payload, err := hex.DecodeString(f.payload)
	if err != nil {
		return nil, fmt.Errorf("parse --payload: %w", err)
	}
	now := time.Now
	if f.now != nil {
		now = f.now
	}

	rec := telecommand.Record{
		Primary: telecommand.PrimaryHeader{APID: f.apid, SequenceCount: f.seq},
		Secondary: telecommand.SecondaryHeader{
			MajorVersion:     1,
			PacketIdentifier: f.packetID,
			Generated:        telecommand.Truncate(now()),
		},
		Scheduled: !f.unscheduled,
		Timestamp: telecommand.Truncate(at),
	}
	if len(payload) > 0 {
		rec.Payload = payload
	}
	return []telecommand.Record{rec}, nil
}

func readRecords(path string, stdin io.Reader) ([]telecommand.Record, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var recs []telecommand.Record
	if err := json.NewDecoder(r).Decode(&recs); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	if len(recs) == 0 {
		return nil, errors.New("no records given")
	}
	return recs, nil
}

// printJSON writes v as indented JSON followed by a newline.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
