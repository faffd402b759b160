package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// frameHeaderSize is the length prefix size in bytes.
const frameHeaderSize = 4

// ReadLengthPrefixed reads one length-prefixed frame from r. The
// payload length is a 4-byte big-endian unsigned integer. Frames larger
// than max fail with ErrFrameTooLarge; the payload is left unread.
func ReadLengthPrefixed(r io.Reader, max int64) ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(header[:])
	if int64(n) > max {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteLengthPrefixed writes one length-prefixed frame to w.
func WriteLengthPrefixed(w io.Writer, p []byte) error {
	var header [frameHeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(p)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(p)
	return err
}
