package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

var (
	// ErrCorrupt is returned for a frame that is damaged: a bad escape
	// sequence, an unknown command byte, a checksum mismatch or a frame
	// cut off by the end of the stream.
	ErrCorrupt = errors.New("frame: corrupt frame")

	// ErrTooLong is returned for a frame whose content does not fit the
	// decode buffer. The frame is skipped.
	ErrTooLong = errors.New("frame: frame exceeds decode buffer")
)

// Reader decodes frames one at a time from a byte stream.
//
// The decode buffer is supplied by the caller and never grows. Payloads
// returned by Next alias it and are only valid until the next call.
type Reader struct {
	r   io.ByteReader
	buf []byte
}

// NewReader creates a Reader over r that decodes into buf. The capacity of
// buf bounds the longest frame content accepted; see [BufferLen].
func NewReader(r io.ByteReader, buf []byte) *Reader {
	return &Reader{r: r, buf: buf[:0]}
}

// Next returns the payload of the next frame.
//
// It returns io.EOF when the stream ends between frames. A damaged frame
// yields an error wrapping [ErrCorrupt] or [ErrTooLong]; the reader is then
// positioned after that frame's closing delimiter and Next may be called
// again to continue with the following frame. Other errors come from the
// underlying reader.
func (r *Reader) Next() ([]byte, error) {
	for {
		payload, empty, err := r.scan()
		if err != nil {
			return nil, err
		}
		if !empty {
			return payload, nil
		}
	}
}

// scan consumes bytes up to and including the next FEND. A delimiter with
// nothing before it reports empty so back-to-back FENDs are skipped.
func (r *Reader) scan() (payload []byte, empty bool, err error) {
	buf := r.buf[:0]
	var (
		n        int // content bytes seen, including the command byte
		escaped  bool
		damage   error
		overflow bool
	)

	for {
		c, err := r.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if n == 0 {
					return nil, false, io.EOF
				}
				return nil, false, fmt.Errorf("%w: truncated after %d bytes", ErrCorrupt, n)
			}
			return nil, false, err
		}

		if c == FEND {
			break
		}
		n++

		if n == 1 {
			if c != commandData && damage == nil {
				damage = fmt.Errorf("%w: command byte 0x%02x", ErrCorrupt, c)
			}
			continue
		}

		if escaped {
			escaped = false
			switch c {
			case TFEND:
				c = FEND
			case TFESC:
				c = FESC
			default:
				if damage == nil {
					damage = fmt.Errorf("%w: invalid escape 0x%02x", ErrCorrupt, c)
				}
				continue
			}
		} else if c == FESC {
			escaped = true
			continue
		}

		if len(buf) == cap(buf) {
			overflow = true
			continue
		}
		buf = append(buf, c)
	}

	switch {
	case n == 0:
		return nil, true, nil
	case overflow:
		return nil, false, fmt.Errorf("%w: limit %d bytes", ErrTooLong, cap(r.buf))
	case damage != nil:
		return nil, false, damage
	case escaped:
		return nil, false, fmt.Errorf("%w: dangling escape", ErrCorrupt)
	case len(buf) < CRCLen:
		return nil, false, fmt.Errorf("%w: %d content bytes", ErrCorrupt, len(buf))
	}

	body, trailer := buf[:len(buf)-CRCLen], buf[len(buf)-CRCLen:]
	if want, got := binary.BigEndian.Uint32(trailer), crc32.ChecksumIEEE(body); want != got {
		return nil, false, fmt.Errorf("%w: checksum %08x, want %08x", ErrCorrupt, got, want)
	}
	return body, false, nil
}
