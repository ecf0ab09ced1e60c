package proto

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Frame types
const (
	FrameTypeRequest   = 1 // peer -> reply endpoint
	FrameTypeReply     = 2 // reply endpoint -> peer
	FrameTypeSubscribe = 3 // subscriber -> broadcast endpoint
	FrameTypeMessage   = 4 // broadcast endpoint -> subscriber
	FrameTypeAck       = 5 // subscription accepted
	FrameTypeError     = 6
)

// MaxFrameSize caps the encoded size of a single frame.
const MaxFrameSize = 1024 * 1024

// MaxPayloadSize is the largest payload that fits in a frame. Payloads are
// base64 encoded inside the JSON body, which costs 4 bytes per 3.
const MaxPayloadSize = (MaxFrameSize - 64) / 4 * 3

// ErrorFrame
type ErrorFrame struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Frame is the top-level wire message of the QUIC transport. Payload is
// opaque and carried byte for byte.
type Frame struct {
	Type    int         `json:"t"`
	Payload []byte      `json:"p,omitempty"`
	Error   *ErrorFrame `json:"e,omitempty"`
}

// ErrFrameTooLarge is returned for frames over MaxFrameSize.
var ErrFrameTooLarge = fmt.Errorf("proto: frame exceeds %d bytes", MaxFrameSize)

// Marshal returns the frame with its 4-byte big-endian length prefix.
func (f *Frame) Marshal() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	if len(data) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[4:], data)
	return buf, nil
}

// Encode writes a length-prefixed JSON frame to w in a single call.
func (f *Frame) Encode(w io.Writer) error {
	buf, err := f.Marshal()
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// Decode reads a length-prefixed JSON frame from r, replacing the contents of f.
func (f *Frame) Decode(r io.Reader) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length > MaxFrameSize {
		return ErrFrameTooLarge
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return err
	}
	*f = Frame{}
	return json.Unmarshal(data, f)
}
