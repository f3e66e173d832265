package wswire

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"time"
)

// ErrClosed is returned by ReadMessage after the peer sends a close frame.
var ErrClosed = errors.New("wswire: connection closed by peer")

// Conn is an established server-side WebSocket connection. Reads must come
// from a single goroutine; writes are serialized internally so the read loop
// can answer pings while a writer goroutine drains outbound messages.
type Conn struct {
	raw       net.Conn
	br        *bufio.Reader
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps an accepted TCP connection whose handshake has completed.
// br must be the same buffered reader used to parse the upgrade request, so
// no bytes are lost between handshake and first frame.
func NewConn(raw net.Conn, br *bufio.Reader) *Conn {
	if br == nil {
		br = bufio.NewReader(raw)
	}
	return &Conn{raw: raw, br: br}
}

// ReadMessage blocks until one complete text message is available and returns
// its payload. Control frames are handled transparently: pings are answered,
// pongs ignored, and a close frame is echoed before ErrClosed is returned.
// Binary and other unexpected data frames are skipped.
func (c *Conn) ReadMessage() ([]byte, error) {
	var assembled []byte
	inText := false

	for {
		frame, err := ReadFrame(c.br)
		if err != nil {
			return nil, err
		}

		switch frame.Opcode {
		case OpcodeText:
			if frame.FIN {
				return frame.Payload, nil
			}
			assembled = frame.Payload
			inText = true
		case OpcodeContinuation:
			if !inText {
				continue
			}
			if len(assembled)+len(frame.Payload) > MaxPayloadSize {
				return nil, ErrPayloadTooLarge
			}
			assembled = append(assembled, frame.Payload...)
			if frame.FIN {
				return assembled, nil
			}
		case OpcodePing:
			if err := c.writeRaw(EncodePong(frame.Payload)); err != nil {
				return nil, err
			}
		case OpcodePong:
			// Unsolicited pongs are legal and ignored.
		case OpcodeClose:
			_ = c.writeRaw(EncodeClose())
			return nil, ErrClosed
		default:
			// Binary and reserved data opcodes are not part of this protocol.
		}
	}
}

// WriteMessage sends payload as a single unmasked text frame.
func (c *Conn) WriteMessage(payload []byte) error {
	return c.writeRaw(EncodeText(payload))
}

// WriteClose sends a close frame without closing the underlying socket.
func (c *Conn) WriteClose() error {
	return c.writeRaw(EncodeClose())
}

func (c *Conn) writeRaw(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.raw.Write(frame)
	return err
}

// SetWriteDeadline sets the write deadline on the underlying socket.
func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.raw.SetWriteDeadline(t)
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

// Close closes the underlying socket. Safe to call from multiple goroutines.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.raw.Close()
	})
	return c.closeErr
}
