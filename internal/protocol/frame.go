package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrFrameTooLarge is returned when a frame exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")

	// ErrInvalidFrame is returned when a frame is malformed.
	ErrInvalidFrame = errors.New("invalid frame")

	// ErrZeroLengthFrame is returned when the declared frame length is zero;
	// every frame carries at least the type byte.
	ErrZeroLengthFrame = errors.New("frame length is zero")

	// ErrUnknownFrameType is returned for a frame type outside the defined set.
	ErrUnknownFrameType = errors.New("unknown frame type")
)

// Frame is a single wire-protocol unit: { type: u8, payload: bytes }.
//
// Wire format:
//
//	[ length : u32 big-endian ] [ type : u8 ] [ payload : length-1 bytes ]
//
// length covers the type byte plus the payload.
type Frame struct {
	Type    uint8
	Payload []byte
}

// Encode serializes the frame to bytes.
func (f *Frame) Encode() ([]byte, error) {
	if len(f.Payload) > MaxFrameSize-1 {
		return nil, ErrFrameTooLarge
	}

	length := 1 + len(f.Payload)
	buf := make([]byte, HeaderSize+length)
	binary.BigEndian.PutUint32(buf[0:4], uint32(length))
	buf[4] = f.Type
	copy(buf[5:], f.Payload)
	return buf, nil
}

// String returns a debug representation of the frame.
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{Type=%s, PayloadLen=%d}", FrameTypeName(f.Type), len(f.Payload))
}

// FrameReader reads frames from an io.Reader. It is not safe for concurrent use.
type FrameReader struct {
	r      io.Reader
	header [HeaderSize]byte
}

// NewFrameReader creates a new FrameReader.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// Read reads the next complete frame, or fails without returning a partial
// one. Rejects length == 0 and oversize frames as protocol errors.
func (fr *FrameReader) Read() (*Frame, error) {
	if _, err := io.ReadFull(fr.r, fr.header[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(fr.header[:])
	if length == 0 {
		return nil, ErrZeroLengthFrame
	}
	if length > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(fr.r, body); err != nil {
		return nil, err
	}

	return &Frame{
		Type:    body[0],
		Payload: body[1:],
	}, nil
}

// FrameWriter writes frames to an io.Writer. It is not safe for concurrent
// use; callers serialize writes externally (spec.md §5).
type FrameWriter struct {
	w io.Writer
}

// NewFrameWriter creates a new FrameWriter.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// Write writes a frame, returning once all bytes are written or on the
// first write failure. A frame is never partially observable by the peer
// through this call: the buffer is built in full before any Write to w.
func (fw *FrameWriter) Write(f *Frame) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}
	_, err = fw.w.Write(data)
	return err
}

// WriteFrame is a convenience method to write a frame with the given type
// and payload.
func (fw *FrameWriter) WriteFrame(frameType uint8, payload []byte) error {
	return fw.Write(&Frame{Type: frameType, Payload: payload})
}
