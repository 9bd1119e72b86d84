// Package frame provides the self-delimiting framing used to store records
// in append-only files.
//
// Each payload is wrapped in a KISS frame:
//
//	FEND 0x00 escape(payload || crc32(payload)) FEND
//
// FEND (0xC0) bytes only ever appear as delimiters; payload bytes equal to
// FEND or FESC are escaped. A reader that hits a damaged frame reports it as
// [ErrCorrupt] and carries on from the next delimiter, so one bad frame
// never costs the frames around it. A torn frame at the end of a file is
// closed off by the opening delimiter of the next frame appended after it.
//
// # Usage
//
//	w := frame.NewWriter(f)
//	if _, err := w.WriteFrame(payload); err != nil {
//	    return err
//	}
//
//	r := frame.NewReader(f, make([]byte, frame.BufferLen(maxPayload)))
//	for {
//	    p, err := r.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
package frame
