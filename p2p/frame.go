package p2p

import (
	"encoding/binary"
	"io"
)

// writeFrame writes a length-prefixed message frame (4-byte big-endian
// length followed by the encoded body), matching the teacher's
// networks/p2p/rlpx.go framing discipline of an explicit size header
// ahead of every payload.
func writeFrame(w io.Writer, body []byte) error {
	if len(body) > MaxMessageSize {
		return ErrMessageTooLarge
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// readFrame reads one length-prefixed frame, rejecting anything over
// MaxMessageSize before allocating the buffer.
func readFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(hdr[:])
	if size > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}
