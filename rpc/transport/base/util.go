package base

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

// frameHeaderSize is the size of the big endian length prefix of every frame
const frameHeaderSize = 4

// ErrFrameTooLarge is returned when a frame header declares more bytes than allowed.
// The stream cannot be resynchronised after that.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// EncodeFrame returns the frame for a payload:
// - 4 bytes: payload length (uint32, big endian)
// - N bytes: payload
func EncodeFrame(payload []byte) []byte {
	frame := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame[:frameHeaderSize], uint32(len(payload)))
	copy(frame[frameHeaderSize:], payload)
	return frame
}

// TryExtractFrame extracts the first complete frame from buf.
// If buf holds less than a full frame ok is false and buf is returned untouched as rest.
// The returned frame aliases buf.
func TryExtractFrame(buf []byte, maxSize int) (frame []byte, rest []byte, ok bool, err error) {
	if len(buf) < frameHeaderSize {
		return nil, buf, false, nil
	}

	length := binary.BigEndian.Uint32(buf[:frameHeaderSize])
	if maxSize > 0 && uint64(length) > uint64(maxSize) {
		return nil, buf, false, fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, length, maxSize)
	}

	end := frameHeaderSize + int(length)
	if len(buf) < end {
		return nil, buf, false, nil
	}
	return buf[frameHeaderSize:end], buf[end:], true, nil
}

// writeFrame writes header and payload with a single vectored write
func writeFrame(w io.Writer, payload []byte) error {
	header := make([]byte, frameHeaderSize)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))

	b := net.Buffers{header, payload}
	_, err := b.WriteTo(w)
	return err
}

// ReadFrame reads exactly one frame. The client only uses it during the handshake, before the
// pump owns the read half.
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(header)
	if maxSize > 0 && uint64(length) > uint64(maxSize) {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, length, maxSize)
	}

	// If no data, return empty slice
	if length == 0 {
		return []byte{}, nil
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
