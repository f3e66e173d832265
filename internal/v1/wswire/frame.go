// Package wswire implements the subset of RFC 6455 this server speaks:
// the opening handshake, masked client-to-server text frames, and unmasked
// server-to-client text frames, plus the control frames (ping/pong/close)
// needed to keep browsers happy.
package wswire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Frame opcodes (RFC 6455 §5.2).
const (
	OpcodeContinuation = 0x0
	OpcodeText         = 0x1
	OpcodeBinary       = 0x2
	OpcodeClose        = 0x8
	OpcodePing         = 0x9
	OpcodePong         = 0xA
)

// MaxPayloadSize bounds a single frame payload. Whiteboard envelopes are
// small JSON objects; anything near this limit is a misbehaving client.
const MaxPayloadSize = 1 << 20 // 1 MiB

var (
	// ErrUnmaskedClientFrame is returned when a client sends an unmasked frame.
	// RFC 6455 §5.1: client-to-server frames MUST be masked.
	ErrUnmaskedClientFrame = errors.New("wswire: client frame is not masked")

	// ErrPayloadTooLarge is returned when a frame declares a payload above MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("wswire: frame payload exceeds limit")

	// ErrReservedBits is returned when a frame sets RSV1-3 (no extensions are negotiated).
	ErrReservedBits = errors.New("wswire: reserved bits set")

	// ErrFragmentedControl is returned for a control frame with FIN=0 or payload > 125.
	ErrFragmentedControl = errors.New("wswire: malformed control frame")
)

// Frame is one decoded WebSocket frame. Payload is unmasked.
type Frame struct {
	FIN     bool
	Opcode  byte
	Payload []byte
}

// IsControl reports whether the frame is a control frame.
func (f Frame) IsControl() bool {
	return f.Opcode >= OpcodeClose
}

// ReadFrame reads and unmasks one complete frame from r. Payloads that span
// TCP segments are handled by the buffered reader; ReadFrame blocks until a
// full frame is available.
func ReadFrame(r *bufio.Reader) (Frame, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}

	fin := hdr[0]&0x80 != 0
	if hdr[0]&0x70 != 0 {
		return Frame{}, ErrReservedBits
	}
	opcode := hdr[0] & 0x0F

	masked := hdr[1]&0x80 != 0
	length := uint64(hdr[1] & 0x7F)

	if opcode >= OpcodeClose {
		// Control frames may not be fragmented and carry at most 125 bytes.
		if !fin || length > 125 {
			return Frame{}, ErrFragmentedControl
		}
	}

	switch length {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return Frame{}, err
		}
		length = uint64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return Frame{}, err
		}
		length = binary.BigEndian.Uint64(ext[:])
		if length&(1<<63) != 0 {
			return Frame{}, fmt.Errorf("wswire: invalid 64-bit length")
		}
	}

	if length > MaxPayloadSize {
		return Frame{}, ErrPayloadTooLarge
	}

	if !masked {
		return Frame{}, ErrUnmaskedClientFrame
	}

	var key [4]byte
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return Frame{}, err
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, err
	}
	maskBytes(key, payload)

	return Frame{FIN: fin, Opcode: opcode, Payload: payload}, nil
}

// maskBytes XORs b in place with the 4-byte masking key.
func maskBytes(key [4]byte, b []byte) {
	for i := range b {
		b[i] ^= key[i%4]
	}
}

// EncodeText wraps payload in a single unmasked text frame with the shortest
// length encoding that fits. Server-to-client frames MUST NOT be masked.
func EncodeText(payload []byte) []byte {
	return encodeFrame(OpcodeText, payload)
}

// EncodeClose builds an unmasked close frame with an empty body.
func EncodeClose() []byte {
	return encodeFrame(OpcodeClose, nil)
}

// EncodePong builds an unmasked pong frame echoing the ping payload.
func EncodePong(payload []byte) []byte {
	return encodeFrame(OpcodePong, payload)
}

func encodeFrame(opcode byte, payload []byte) []byte {
	n := len(payload)

	var header []byte
	switch {
	case n <= 125:
		header = []byte{0x80 | opcode, byte(n)}
	case n <= 0xFFFF:
		header = []byte{0x80 | opcode, 126, 0, 0}
		binary.BigEndian.PutUint16(header[2:], uint16(n))
	default:
		header = make([]byte, 10)
		header[0] = 0x80 | opcode
		header[1] = 127
		binary.BigEndian.PutUint64(header[2:], uint64(n))
	}

	out := make([]byte, 0, len(header)+n)
	out = append(out, header...)
	out = append(out, payload...)
	return out
}
