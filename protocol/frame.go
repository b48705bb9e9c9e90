// File: protocol/frame.go
// Package protocol implements the RFC 6455 WebSocket frame codec.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The parser is incremental: it consumes a byte slice that may hold any
// prefix of a frame and reports how much more it needs. The serializer
// always produces one contiguous buffer so a frame reaches the transport
// atomically.

package protocol

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrReservedBits is returned when any RSV bit is set. No extension is
	// negotiated, so the bits must always be zero.
	ErrReservedBits = errors.New("reserved bits set")
	// ErrUnknownOpcode is returned for opcodes outside the RFC 6455 set.
	ErrUnknownOpcode = errors.New("unknown opcode")
)

// Header is a parsed frame header.
type Header struct {
	Fin     bool
	Opcode  Opcode
	Masked  bool
	Length  int64
	MaskKey [4]byte

	// PayloadOffset is the number of header bytes preceding the payload:
	// 2 + (0|2|8) length bytes + (0|4) mask bytes.
	PayloadOffset int
}

// Frame is a fully buffered frame: header plus unmasked payload.
type Frame struct {
	Header
	Payload []byte
}

// ParseHeader parses a frame header from raw. It returns (nil, nil) when
// raw does not yet hold a complete header; prefixes of well-formed frames
// are never errors. Validation here covers the bits the codec alone can
// judge: reserved bits and the opcode set. Masking policy and payload
// rules are role- and state-dependent and are enforced by the connection
// (masking), the assembler and the control handler.
func ParseHeader(raw []byte) (*Header, error) {
	if len(raw) < 2 {
		return nil, nil
	}
	if raw[0]&rsvBits != 0 {
		return nil, ErrReservedBits
	}
	h := &Header{
		Fin:    raw[0]&finBit != 0,
		Opcode: Opcode(raw[0] & 0x0F),
		Masked: raw[1]&maskBit != 0,
	}
	if !h.Opcode.Known() {
		return nil, fmt.Errorf("%w: 0x%X", ErrUnknownOpcode, byte(h.Opcode))
	}

	offset := 2
	switch l := raw[1] & 0x7F; l {
	case extended16:
		if len(raw) < offset+2 {
			return nil, nil
		}
		h.Length = int64(binary.BigEndian.Uint16(raw[offset:]))
		offset += 2
	case extended64:
		if len(raw) < offset+8 {
			return nil, nil
		}
		v := binary.BigEndian.Uint64(raw[offset:])
		if v > 1<<63-1 {
			// RFC 6455: the most significant bit of the 64-bit length must
			// be zero.
			return nil, fmt.Errorf("frame length out of range: %d", v)
		}
		h.Length = int64(v)
		offset += 8
	default:
		h.Length = int64(l)
	}

	if h.Masked {
		if len(raw) < offset+4 {
			return nil, nil
		}
		copy(h.MaskKey[:], raw[offset:offset+4])
		offset += 4
	}

	h.PayloadOffset = offset
	return h, nil
}

// ParseFrame parses one fully buffered frame from raw and returns the
// frame and the number of bytes consumed. It returns (nil, 0, nil) while
// either the header or the payload is incomplete. Masked payloads are
// unmasked into a fresh buffer; raw is left untouched.
func ParseFrame(raw []byte) (*Frame, int, error) {
	h, err := ParseHeader(raw)
	if err != nil {
		return nil, 0, err
	}
	if h == nil {
		return nil, 0, nil
	}

	need := int64(h.PayloadOffset) + h.Length
	if int64(len(raw)) < need {
		return nil, 0, nil
	}
	total := int(need)

	payload := make([]byte, h.Length)
	copy(payload, raw[h.PayloadOffset:total])
	if h.Masked {
		maskBytes(payload, h.MaskKey)
	}
	return &Frame{Header: *h, Payload: payload}, total, nil
}

// EncodeFrame serializes a frame into a single contiguous buffer using the
// shortest valid length encoding. When masked is true a fresh random key
// is generated and the payload copy is XOR-masked; the input payload is
// not modified.
func EncodeFrame(opcode Opcode, fin bool, masked bool, payload []byte) []byte {
	var b0 byte
	if fin {
		b0 = finBit
	}
	b0 |= byte(opcode) & 0x0F

	var mb byte
	if masked {
		mb = maskBit
	}

	length := len(payload)
	buf := make([]byte, 0, maxHeaderLen+length)
	switch {
	case length <= maxControlPayload:
		buf = append(buf, b0, byte(length)|mb)
	case length <= 0xFFFF:
		buf = append(buf, b0, extended16|mb, 0, 0)
		binary.BigEndian.PutUint16(buf[2:], uint16(length))
	default:
		buf = append(buf, b0, extended64|mb, 0, 0, 0, 0, 0, 0, 0, 0)
		binary.BigEndian.PutUint64(buf[2:], uint64(length))
	}

	if masked {
		var key [4]byte
		rand.Read(key[:])
		buf = append(buf, key[:]...)
		start := len(buf)
		buf = append(buf, payload...)
		maskBytes(buf[start:], key)
		return buf
	}
	return append(buf, payload...)
}

// maxHeaderLen is the largest possible frame header: 2 base bytes, 8
// extended length bytes, 4 mask bytes.
const maxHeaderLen = 14

// maskBytes applies the RFC 6455 ring XOR in place.
func maskBytes(p []byte, key [4]byte) {
	for i := range p {
		p[i] ^= key[i%4]
	}
}
