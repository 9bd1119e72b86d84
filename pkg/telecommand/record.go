package telecommand

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Field sizes of the wire format.
const (
	PrimaryHeaderLen   = 6
	SecondaryHeaderLen = 11
	TimestampLen       = 7

	// MinLen is the length of a record with an empty payload.
	MinLen = PrimaryHeaderLen + SecondaryHeaderLen + 1 + TimestampLen

	// MaxLen is the longest record the 16-bit packet data length allows.
	MaxLen = PrimaryHeaderLen + 1<<16

	// MaxAPID and MaxSequenceCount are the widths of the header bit fields.
	MaxAPID          = 1<<11 - 1
	MaxSequenceCount = 1<<14 - 1
)

var (
	// ErrMalformed is returned when bytes do not hold a valid record.
	ErrMalformed = errors.New("telecommand: malformed record")

	// ErrOutOfRange is returned when a record field cannot be encoded.
	ErrOutOfRange = errors.New("telecommand: field out of range")
)

// PrimaryHeader carries the packet identification fields. The version,
// type, secondary header flag and sequence flags are fixed for archived
// telecommands.
type PrimaryHeader struct {
	APID          uint16 `json:"apid"`
	SequenceCount uint16 `json:"sequence_count"`
}

// SecondaryHeader identifies the command and when it was generated.
type SecondaryHeader struct {
	MajorVersion     uint8     `json:"major_version"`
	MinorVersion     uint8     `json:"minor_version"`
	PatchVersion     uint8     `json:"patch_version"`
	PacketIdentifier uint8     `json:"packet_identifier"`
	Generated        time.Time `json:"generated"`
}

// Record is one archived telecommand.
//
// Timestamp is the execution time for scheduled records and is also the
// record's identity: two records are the same command iff their timestamps
// are equal.
type Record struct {
	Primary   PrimaryHeader   `json:"primary"`
	Secondary SecondaryHeader `json:"secondary"`
	Scheduled bool            `json:"scheduled"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   []byte          `json:"payload,omitempty"`
}

// Due reports whether the record is scheduled and its timestamp is
// strictly before now.
func (r Record) Due(now time.Time) bool {
	return r.Scheduled && r.Timestamp.Before(now)
}

// SameCommand reports whether r and o identify the same scheduled command.
func (r Record) SameCommand(o Record) bool {
	return r.Timestamp.Equal(o.Timestamp)
}

// Equal reports whether r and o hold the same fields.
func (r Record) Equal(o Record) bool {
	return r.Primary == o.Primary &&
		r.Secondary.MajorVersion == o.Secondary.MajorVersion &&
		r.Secondary.MinorVersion == o.Secondary.MinorVersion &&
		r.Secondary.PatchVersion == o.Secondary.PatchVersion &&
		r.Secondary.PacketIdentifier == o.Secondary.PacketIdentifier &&
		r.Secondary.Generated.Equal(o.Secondary.Generated) &&
		r.Scheduled == o.Scheduled &&
		r.Timestamp.Equal(o.Timestamp) &&
		bytes.Equal(r.Payload, o.Payload)
}

// Len returns the encoded length of the record.
func (r Record) Len() int {
	return MinLen + len(r.Payload)
}

// MarshalBinary encodes the record in wire format.
func (r Record) MarshalBinary() ([]byte, error) {
	return r.AppendBinary(make([]byte, 0, r.Len()))
}

// AppendBinary appends the wire encoding of the record to dst.
func (r Record) AppendBinary(dst []byte) ([]byte, error) {
	if r.Primary.APID > MaxAPID {
		return dst, fmt.Errorf("%w: apid %d", ErrOutOfRange, r.Primary.APID)
	}
	if r.Primary.SequenceCount > MaxSequenceCount {
		return dst, fmt.Errorf("%w: sequence count %d", ErrOutOfRange, r.Primary.SequenceCount)
	}
	if r.Len() > MaxLen {
		return dst, fmt.Errorf("%w: payload of %d bytes", ErrOutOfRange, len(r.Payload))
	}

	// version 0, type 1 (telecommand), secondary header present
	id := uint16(1)<<12 | uint16(1)<<11 | r.Primary.APID
	// sequence flags 0b11: unsegmented
	seq := uint16(3)<<14 | r.Primary.SequenceCount
	dataLen := uint16(r.Len() - PrimaryHeaderLen - 1)

	dst = binary.BigEndian.AppendUint16(dst, id)
	dst = binary.BigEndian.AppendUint16(dst, seq)
	dst = binary.BigEndian.AppendUint16(dst, dataLen)

	s := r.Secondary
	dst = append(dst, s.MajorVersion, s.MinorVersion, s.PatchVersion, s.PacketIdentifier)
	var err error
	if dst, err = appendTimestamp(dst, s.Generated); err != nil {
		return dst, err
	}

	if r.Scheduled {
		dst = append(dst, 1)
	} else {
		dst = append(dst, 0)
	}
	if dst, err = appendTimestamp(dst, r.Timestamp); err != nil {
		return dst, err
	}
	return append(dst, r.Payload...), nil
}

// UnmarshalBinary decodes a record from wire format. The payload is copied,
// so b may be reused by the caller.
func (r *Record) UnmarshalBinary(b []byte) error {
	if len(b) < MinLen {
		return fmt.Errorf("%w: %d bytes is shorter than a header", ErrMalformed, len(b))
	}
	id := binary.BigEndian.Uint16(b[0:2])
	seq := binary.BigEndian.Uint16(b[2:4])
	dataLen := int(binary.BigEndian.Uint16(b[4:6])) + 1
	if id>>13 != 0 || id>>12&1 != 1 || id>>11&1 != 1 {
		return fmt.Errorf("%w: not a telecommand header (0x%04x)", ErrMalformed, id)
	}
	if dataLen != len(b)-PrimaryHeaderLen {
		return fmt.Errorf("%w: packet data length %d, have %d", ErrMalformed, dataLen, len(b)-PrimaryHeaderLen)
	}

	var out Record
	out.Primary.APID = id & MaxAPID
	out.Primary.SequenceCount = seq & MaxSequenceCount

	p := b[PrimaryHeaderLen:]
	out.Secondary.MajorVersion = p[0]
	out.Secondary.MinorVersion = p[1]
	out.Secondary.PatchVersion = p[2]
	out.Secondary.PacketIdentifier = p[3]
	var err error
	if out.Secondary.Generated, err = parseTimestamp(p[4 : 4+TimestampLen]); err != nil {
		return err
	}
	p = p[SecondaryHeaderLen:]

	switch p[0] {
	case 0:
	case 1:
		out.Scheduled = true
	default:
		return fmt.Errorf("%w: scheduled flag 0x%02x", ErrMalformed, p[0])
	}
	if out.Timestamp, err = parseTimestamp(p[1 : 1+TimestampLen]); err != nil {
		return err
	}
	if payload := p[1+TimestampLen:]; len(payload) > 0 {
		out.Payload = append([]byte(nil), payload...)
	}

	*r = out
	return nil
}

// Timestamps are stored in UTC with second resolution.
func appendTimestamp(dst []byte, t time.Time) ([]byte, error) {
	t = t.UTC()
	if t.Year() < 0 || t.Year() > 0xFFFF {
		return dst, fmt.Errorf("%w: year %d", ErrOutOfRange, t.Year())
	}
	dst = binary.BigEndian.AppendUint16(dst, uint16(t.Year()))
	return append(dst, byte(t.Month()), byte(t.Day()), byte(t.Hour()), byte(t.Minute()), byte(t.Second())), nil
}

func parseTimestamp(b []byte) (time.Time, error) {
	year := int(binary.BigEndian.Uint16(b[0:2]))
	month, day, hour, minute, second := int(b[2]), int(b[3]), int(b[4]), int(b[5]), int(b[6])
	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	// time.Date normalises out-of-range fields; reject anything it had to fix.
	if t.Year() != year || int(t.Month()) != month || t.Day() != day ||
		t.Hour() != hour || t.Minute() != minute || t.Second() != second {
		return time.Time{}, fmt.Errorf("%w: invalid timestamp %04d-%02d-%02dT%02d:%02d:%02d",
			ErrMalformed, year, month, day, hour, minute, second)
	}
	return t, nil
}

// Truncate returns t as it will read back after a round trip through the
// wire format.
func Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
