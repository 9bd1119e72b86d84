package telecommand

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
	"time"
)

func sampleRecord() Record {
	return Record{
		Primary: PrimaryHeader{APID: 0x123, SequenceCount: 42},
		Secondary: SecondaryHeader{
			MajorVersion:     2,
			MinorVersion:     1,
			PatchVersion:     0,
			PacketIdentifier: 0x07,
			Generated:        time.Date(2019, 3, 14, 15, 9, 26, 0, time.UTC),
		},
		Scheduled: true,
		Timestamp: time.Date(2019, 3, 15, 0, 0, 30, 0, time.UTC),
		Payload:   []byte{0xC0, 0xDB, 0x01},
	}
}

func TestRecord_BinaryRoundTrip(t *testing.T) {
	want := sampleRecord()

	b, err := want.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if len(b) != want.Len() {
		t.Fatalf("encoded %d bytes, Len() = %d", len(b), want.Len())
	}

	var got Record
	if err := got.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestRecord_PrimaryHeaderLayout(t *testing.T) {
	r := sampleRecord()
	b, err := r.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	// type=1, secondary header=1, apid=0x123
	if !bytes.Equal(b[0:2], []byte{0x19, 0x23}) {
		t.Errorf("packet id = % x, want 19 23", b[0:2])
	}
	// sequence flags 0b11, count 42
	if !bytes.Equal(b[2:4], []byte{0xC0, 0x2A}) {
		t.Errorf("sequence = % x, want c0 2a", b[2:4])
	}
	dataLen := int(b[4])<<8 | int(b[5])
	if dataLen != len(b)-PrimaryHeaderLen-1 {
		t.Errorf("packet data length = %d, want %d", dataLen, len(b)-PrimaryHeaderLen-1)
	}
}

func TestRecord_UnmarshalRejectsDamage(t *testing.T) {
	good, err := sampleRecord().MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"truncated", func(b []byte) []byte { return b[:len(b)-1] }},
		{"too short", func(b []byte) []byte { return b[:MinLen-1] }},
		{"extra byte", func(b []byte) []byte { return append(b, 0) }},
		{"telemetry type", func(b []byte) []byte { b[0] &^= 0x10; return b }},
		{"bad scheduled flag", func(b []byte) []byte {
			b[PrimaryHeaderLen+SecondaryHeaderLen] = 2
			return b
		}},
		{"bad month", func(b []byte) []byte {
			b[PrimaryHeaderLen+SecondaryHeaderLen+1+2] = 13
			return b
		}},
		{"february 30", func(b []byte) []byte {
			off := PrimaryHeaderLen + SecondaryHeaderLen + 1
			b[off+2], b[off+3] = 2, 30
			return b
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.mutate(append([]byte(nil), good...))
			var r Record
			err := r.UnmarshalBinary(b)
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("UnmarshalBinary error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestRecord_MarshalRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Record)
	}{
		{"apid", func(r *Record) { r.Primary.APID = MaxAPID + 1 }},
		{"sequence", func(r *Record) { r.Primary.SequenceCount = MaxSequenceCount + 1 }},
		{"year", func(r *Record) { r.Timestamp = time.Date(70000, 1, 1, 0, 0, 0, 0, time.UTC) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := sampleRecord()
			tt.edit(&r)
			if _, err := r.MarshalBinary(); !errors.Is(err, ErrOutOfRange) {
				t.Fatalf("MarshalBinary error = %v, want ErrOutOfRange", err)
			}
		})
	}
}

func TestRecord_Due(t *testing.T) {
	at := time.Date(2020, 1, 1, 0, 0, 25, 0, time.UTC)
	tests := []struct {
		name      string
		scheduled bool
		ts        time.Time
		want      bool
	}{
		{"scheduled in the past", true, at.Add(-time.Second), true},
		{"scheduled exactly now", true, at, false},
		{"scheduled in the future", true, at.Add(time.Second), false},
		{"unscheduled in the past", false, at.Add(-time.Hour), false},
	}
	for _, tt := range tests {
		r := Record{Scheduled: tt.scheduled, Timestamp: tt.ts}
		if got := r.Due(at); got != tt.want {
			t.Errorf("%s: Due() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	loc := time.FixedZone("CEST", 2*60*60)
	in := time.Date(2021, 6, 1, 12, 0, 0, 999_000_000, loc)
	got := Truncate(in)
	want := time.Date(2021, 6, 1, 10, 0, 0, 0, time.UTC)
	if got != want {
		t.Fatalf("Truncate = %v, want %v", got, want)
	}
}

func TestRecord_Equal(t *testing.T) {
	a := sampleRecord()
	b := sampleRecord()
	b.Timestamp = b.Timestamp.In(time.FixedZone("X", 3600))
	if !a.Equal(b) {
		t.Fatal("records differing only in location are not equal")
	}
	b.Payload = append([]byte(nil), a.Payload...)
	b.Payload[0]++
	if a.Equal(b) {
		t.Fatal("records with different payloads are equal")
	}
	c := sampleRecord()
	c.Primary.SequenceCount++
	if a.Equal(c) || !a.SameCommand(c) {
		t.Fatal("sequence count should affect Equal but not SameCommand")
	}
}
