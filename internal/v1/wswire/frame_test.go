package wswire

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeMaskedText builds a client-to-server text frame the way a browser would.
func encodeMaskedText(payload []byte, key [4]byte) []byte {
	n := len(payload)
	var buf bytes.Buffer

	buf.WriteByte(0x80 | OpcodeText)
	switch {
	case n <= 125:
		buf.WriteByte(0x80 | byte(n))
	case n <= 0xFFFF:
		buf.WriteByte(0x80 | 126)
		var ext [2]byte
		binary.BigEndian.PutUint16(ext[:], uint16(n))
		buf.Write(ext[:])
	default:
		buf.WriteByte(0x80 | 127)
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], uint64(n))
		buf.Write(ext[:])
	}

	buf.Write(key[:])
	masked := make([]byte, n)
	copy(masked, payload)
	maskBytes(key, masked)
	buf.Write(masked)
	return buf.Bytes()
}

func TestReadFrame_MaskedText(t *testing.T) {
	key := [4]byte{0x12, 0x34, 0x56, 0x78}
	raw := encodeMaskedText([]byte(`{"type":"getRooms"}`), key)

	frame, err := ReadFrame(bufio.NewReader(bytes.NewReader(raw)))
	require.NoError(t, err)
	assert.True(t, frame.FIN)
	assert.Equal(t, byte(OpcodeText), frame.Opcode)
	assert.Equal(t, `{"type":"getRooms"}`, string(frame.Payload))
}

func TestReadFrame_LengthVariants(t *testing.T) {
	key := [4]byte{0xAA, 0xBB, 0xCC, 0xDD}

	tests := []struct {
		name string
		size int
	}{
		{"short 125", 125},
		{"extended16 lower bound", 126},
		{"extended16 upper bound", 65535},
		{"extended64 lower bound", 65536},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := bytes.Repeat([]byte("a"), tt.size)
			raw := encodeMaskedText(payload, key)

			frame, err := ReadFrame(bufio.NewReader(bytes.NewReader(raw)))
			require.NoError(t, err)
			assert.Equal(t, payload, frame.Payload)
		})
	}
}

func TestReadFrame_RejectsUnmasked(t *testing.T) {
	// FIN + text, MASK bit clear
	raw := []byte{0x81, 0x05, 'h', 'e', 'l', 'l', 'o'}

	_, err := ReadFrame(bufio.NewReader(bytes.NewReader(raw)))
	assert.ErrorIs(t, err, ErrUnmaskedClientFrame)
}

func TestReadFrame_RejectsReservedBits(t *testing.T) {
	raw := []byte{0xC1, 0x80, 0, 0, 0, 0}

	_, err := ReadFrame(bufio.NewReader(bytes.NewReader(raw)))
	assert.ErrorIs(t, err, ErrReservedBits)
}

func TestReadFrame_RejectsOversizedDeclaredLength(t *testing.T) {
	var raw bytes.Buffer
	raw.WriteByte(0x81)
	raw.WriteByte(0x80 | 127)
	var ext [8]byte
	binary.BigEndian.PutUint64(ext[:], MaxPayloadSize+1)
	raw.Write(ext[:])

	_, err := ReadFrame(bufio.NewReader(&raw))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestReadFrame_RejectsFragmentedControl(t *testing.T) {
	// Close frame with FIN=0
	raw := []byte{0x08, 0x80, 0, 0, 0, 0}

	_, err := ReadFrame(bufio.NewReader(bytes.NewReader(raw)))
	assert.ErrorIs(t, err, ErrFragmentedControl)
}

func TestEncodeText_ShortestLengthEncoding(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		headerSize int
	}{
		{"7-bit length", 125, 2},
		{"16-bit length lower", 126, 4},
		{"16-bit length upper", 65535, 4},
		{"64-bit length", 65536, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := bytes.Repeat([]byte("x"), tt.size)
			frame := EncodeText(payload)

			require.Len(t, frame, tt.headerSize+tt.size)
			assert.Equal(t, byte(0x80|OpcodeText), frame[0])
			// Server frames are never masked
			assert.Zero(t, frame[1]&0x80)
			assert.Equal(t, payload, frame[tt.headerSize:])
		})
	}
}

func TestEncodeDecode_RoundTrip16Bit(t *testing.T) {
	// A server-encoded frame re-masked as a client frame must round-trip.
	payload := []byte(strings.Repeat(`{"type":"draw"}`, 100)) // 1500 bytes: 16-bit length
	key := [4]byte{1, 2, 3, 4}

	raw := encodeMaskedText(payload, key)
	frame, err := ReadFrame(bufio.NewReader(bytes.NewReader(raw)))
	require.NoError(t, err)
	assert.Equal(t, payload, frame.Payload)
}

func TestAcceptKey_RFCVector(t *testing.T) {
	// Known vector from RFC 6455 §1.3
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", AcceptKey("dGhlIHNhbXBsZSBub25jZQ=="))
}

func TestFrame_IsControl(t *testing.T) {
	assert.False(t, Frame{Opcode: OpcodeText}.IsControl())
	assert.False(t, Frame{Opcode: OpcodeBinary}.IsControl())
	assert.True(t, Frame{Opcode: OpcodeClose}.IsControl())
	assert.True(t, Frame{Opcode: OpcodePing}.IsControl())
	assert.True(t, Frame{Opcode: OpcodePong}.IsControl())
}
