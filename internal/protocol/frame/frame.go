package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderLen is the fixed wire header size. The offset field must carry it.
	HeaderLen uint16 = 4

	// MaxFrameSize bounds one duplex exchange in both directions.
	MaxFrameSize = 1600

	// MaxPayloadLen is the largest payload whose padded frame still fits.
	// MaxFrameSize is word aligned, so every size up to here pads into it.
	MaxPayloadLen = MaxFrameSize - int(HeaderLen) - 1
)

var (
	ErrEmptyPayload   = errors.New("frame: empty payload")
	ErrOversizedFrame = errors.New("frame: oversized frame")
	ErrMalformed      = errors.New("frame: malformed frame")
)

// Header is the fixed wire header.
type Header struct {
	Offset uint16
	Length uint16
}

// Frame is one header-plus-payload unit. Payload is the unpadded view; wire
// covers the header and any transaction padding.
type Frame struct {
	Header  Header
	Payload []byte
	wire    []byte
}

// Bytes returns the wire bytes of the frame including header and padding.
func (f Frame) Bytes() []byte {
	return f.wire
}

// WireLen is the number of bytes the frame occupies on the wire.
func (f Frame) WireLen() int {
	return len(f.wire)
}

// PaddedLen returns the payload length rounded per the peer's alignment rule.
// An already aligned size still gains a full word.
func PaddedLen(size int) int {
	return size + (4 - (size % 4))
}

// Encode builds a wire frame around payload.
func Encode(payload []byte) (Frame, error) {
	size := len(payload)
	if size == 0 {
		return Frame{}, ErrEmptyPayload
	}
	padded := PaddedLen(size)
	if int(HeaderLen)+padded > MaxFrameSize {
		return Frame{}, fmt.Errorf("%w: %d bytes padded to %d", ErrOversizedFrame, size, int(HeaderLen)+padded)
	}

	h := Header{Offset: HeaderLen, Length: uint16(size)}
	wire := make([]byte, int(HeaderLen)+padded)
	PutHeader(wire, h)
	copy(wire[HeaderLen:], payload)

	return Frame{
		Header:  h,
		Payload: wire[HeaderLen : int(HeaderLen)+size],
		wire:    wire,
	}, nil
}

// Decode validates raw as an inbound frame and trims it to the declared
// length. The returned frame aliases raw.
func Decode(raw []byte) (Frame, error) {
	h, err := DecodeHeader(raw)
	if err != nil {
		return Frame{}, err
	}
	if h.Offset != HeaderLen {
		return Frame{}, fmt.Errorf("%w: offset %d", ErrMalformed, h.Offset)
	}
	if h.Length == 0 {
		return Frame{}, fmt.Errorf("%w: zero length", ErrMalformed)
	}
	total := int(HeaderLen) + int(h.Length)
	if total > MaxFrameSize {
		return Frame{}, fmt.Errorf("%w: length %d exceeds buffer", ErrMalformed, h.Length)
	}
	if total > len(raw) {
		return Frame{}, fmt.Errorf("%w: length %d truncated at %d", ErrMalformed, h.Length, len(raw))
	}

	wire := raw[:total:total]
	return Frame{
		Header:  h,
		Payload: wire[HeaderLen:],
		wire:    wire,
	}, nil
}

// PutHeader writes h into the first HeaderLen bytes of b.
func PutHeader(b []byte, h Header) {
	binary.LittleEndian.PutUint16(b[0:2], h.Offset)
	binary.LittleEndian.PutUint16(b[2:4], h.Length)
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	PutHeader(buf, h)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) < int(HeaderLen) {
		return Header{}, fmt.Errorf("%w: short header (%d bytes)", ErrMalformed, len(b))
	}
	return Header{
		Offset: binary.LittleEndian.Uint16(b[0:2]),
		Length: binary.LittleEndian.Uint16(b[2:4]),
	}, nil
}
