package wswire

import (
	"bufio"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConn(t *testing.T) (server *Conn, client net.Conn) {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	t.Cleanup(func() {
		clientSide.Close()
		serverSide.Close()
	})
	return NewConn(serverSide, bufio.NewReader(serverSide)), clientSide
}

func TestConn_ReadMessage_Text(t *testing.T) {
	server, client := newTestConn(t)

	go func() {
		client.Write(encodeMaskedText([]byte(`{"type":"clear"}`), [4]byte{9, 8, 7, 6}))
	}()

	msg, err := server.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"clear"}`, string(msg))
}

func TestConn_ReadMessage_AnswersPing(t *testing.T) {
	server, client := newTestConn(t)

	go func() {
		// Masked ping with payload "hi"
		ping := []byte{0x80 | OpcodePing, 0x82, 0, 0, 0, 0, 'h', 'i'}
		client.Write(ping)
		client.Write(encodeMaskedText([]byte("after"), [4]byte{}))
	}()

	// Drain the pong the server writes back so the pipe doesn't block.
	pongDone := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 16)
		n, _ := client.Read(buf)
		pongDone <- buf[:n]
	}()

	msg, err := server.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "after", string(msg))

	pong := <-pongDone
	require.GreaterOrEqual(t, len(pong), 2)
	assert.Equal(t, byte(0x80|OpcodePong), pong[0])
	assert.Equal(t, "hi", string(pong[2:]))
}

func TestConn_ReadMessage_CloseFrame(t *testing.T) {
	server, client := newTestConn(t)

	go func() {
		closeFrame := []byte{0x80 | OpcodeClose, 0x80, 0, 0, 0, 0}
		client.Write(closeFrame)
		// Drain the close echo
		buf := make([]byte, 8)
		client.Read(buf)
	}()

	_, err := server.ReadMessage()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConn_ReadMessage_FragmentedText(t *testing.T) {
	server, client := newTestConn(t)

	go func() {
		// text "hel" with FIN=0, then continuation "lo" with FIN=1
		first := []byte{OpcodeText, 0x83, 0, 0, 0, 0, 'h', 'e', 'l'}
		second := []byte{0x80 | OpcodeContinuation, 0x82, 0, 0, 0, 0, 'l', 'o'}
		client.Write(first)
		client.Write(second)
	}()

	msg, err := server.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(msg))
}

func TestConn_WriteMessage_Unmasked(t *testing.T) {
	server, client := newTestConn(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		err := server.WriteMessage([]byte(`{"type":"roomList"}`))
		assert.NoError(t, err)
	}()

	buf := make([]byte, 64)
	n, err := client.Read(buf)
	require.NoError(t, err)
	<-done

	require.GreaterOrEqual(t, n, 2)
	assert.Equal(t, byte(0x80|OpcodeText), buf[0])
	assert.Zero(t, buf[1]&0x80, "server frames must not be masked")
	assert.Equal(t, `{"type":"roomList"}`, string(buf[2:n]))
}

func TestCompleteHandshake(t *testing.T) {
	req, err := http.ReadRequest(bufio.NewReader(strings.NewReader(
		"GET /ws HTTP/1.1\r\n" +
			"Host: localhost\r\n" +
			"Upgrade: websocket\r\n" +
			"Connection: Upgrade\r\n" +
			"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
			"Sec-WebSocket-Version: 13\r\n\r\n")))
	require.NoError(t, err)
	require.True(t, IsUpgrade(req))

	var resp strings.Builder
	require.NoError(t, CompleteHandshake(&resp, req))

	out := resp.String()
	assert.Contains(t, out, "HTTP/1.1 101 Switching Protocols")
	assert.Contains(t, out, "Upgrade: websocket")
	assert.Contains(t, out, "Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=")
}

func TestCompleteHandshake_MissingKey(t *testing.T) {
	req, err := http.ReadRequest(bufio.NewReader(strings.NewReader(
		"GET /ws HTTP/1.1\r\nHost: localhost\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n\r\n")))
	require.NoError(t, err)

	var resp strings.Builder
	assert.Error(t, CompleteHandshake(&resp, req))
}

func TestIsUpgrade_PlainGet(t *testing.T) {
	req, err := http.ReadRequest(bufio.NewReader(strings.NewReader(
		"GET /images/x.png HTTP/1.1\r\nHost: localhost\r\n\r\n")))
	require.NoError(t, err)
	assert.False(t, IsUpgrade(req))
}
