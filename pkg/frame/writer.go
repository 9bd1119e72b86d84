package frame

import (
	"encoding/binary"
	"hash/crc32"
	"io"
)

// KISS special bytes.
const (
	FEND  = 0xC0
	FESC  = 0xDB
	TFEND = 0xDC
	TFESC = 0xDD

	// commandData marks a data frame on port 0.
	commandData = 0x00

	// CRCLen is the length of the checksum trailer inside each frame.
	CRCLen = 4
)

// BufferLen returns the decode buffer capacity needed for payloads of up to
// maxPayload bytes.
func BufferLen(maxPayload int) int {
	return maxPayload + CRCLen
}

// MaxEncodedLen returns the worst-case frame length of a payload of n bytes,
// when every byte needs escaping.
func MaxEncodedLen(n int) int {
	return 3 + 2*(n+CRCLen)
}

// Append appends the frame encoding of payload to dst.
func Append(dst, payload []byte) []byte {
	var sum [CRCLen]byte
	binary.BigEndian.PutUint32(sum[:], crc32.ChecksumIEEE(payload))

	dst = append(dst, FEND, commandData)
	dst = appendEscaped(dst, payload)
	dst = appendEscaped(dst, sum[:])
	return append(dst, FEND)
}

// EncodedLen returns the exact frame length of payload.
func EncodedLen(payload []byte) int {
	var sum [CRCLen]byte
	binary.BigEndian.PutUint32(sum[:], crc32.ChecksumIEEE(payload))
	return 3 + escapedLen(payload) + escapedLen(sum[:])
}

func appendEscaped(dst, b []byte) []byte {
	for _, c := range b {
		switch c {
		case FEND:
			dst = append(dst, FESC, TFEND)
		case FESC:
			dst = append(dst, FESC, TFESC)
		default:
			dst = append(dst, c)
		}
	}
	return dst
}

func escapedLen(b []byte) int {
	n := len(b)
	for _, c := range b {
		if c == FEND || c == FESC {
			n++
		}
	}
	return n
}

// Writer writes one frame per call to an underlying writer.
type Writer struct {
	w   io.Writer
	buf []byte
}

// NewWriter creates a Writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteFrame encodes payload and hands the whole frame to the underlying
// writer in a single Write, returning the number of frame bytes written.
func (w *Writer) WriteFrame(payload []byte) (int, error) {
	w.buf = Append(w.buf[:0], payload)
	n, err := w.w.Write(w.buf)
	if err == nil && n < len(w.buf) {
		err = io.ErrShortWrite
	}
	return n, err
}
