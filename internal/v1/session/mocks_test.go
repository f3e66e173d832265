package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// MockBusService implements BusService.
type MockBusService struct {
	mu           sync.Mutex
	publishCalls int
	failPublish  bool
}

func (m *MockBusService) Publish(_ context.Context, _ string, _ string, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishCalls++
	if m.failPublish {
		return context.DeadlineExceeded
	}
	return nil
}

func (m *MockBusService) PublishCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.publishCalls
}

// MockConnection implements wsConnection. Written frames are recorded;
// ReadMessage feeds from the inbound channel.
type MockConnection struct {
	mu      sync.Mutex
	written [][]byte
	closed  bool

	inbound chan []byte
}

func newMockConnection() *MockConnection {
	return &MockConnection{inbound: make(chan []byte, 16)}
}

func (m *MockConnection) ReadMessage() ([]byte, error) {
	data, ok := <-m.inbound
	if !ok {
		return nil, errors.New("connection closed")
	}
	return data, nil
}

func (m *MockConnection) WriteMessage(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = append(m.written, data)
	return nil
}

func (m *MockConnection) WriteClose() error { return nil }

func (m *MockConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.inbound)
	}
	return nil
}

func (m *MockConnection) SetWriteDeadline(_ time.Time) error { return nil }

func (m *MockConnection) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// --- Test helpers ---

func newTestHub() *Hub {
	return NewHub(Options{
		CleanupGrace:  30 * time.Millisecond,
		ReplaySoftCap: 1000,
	})
}

// newTestClient registers a client on the hub without running its pumps.
// Tests read enqueued envelopes straight off the send channel.
func newTestClient(h *Hub, username string) *Client {
	c := &Client{
		conn: newMockConnection(),
		hub:  h,
		send: make(chan []byte, sendQueueSize),
		id:   uuid.NewString(),
	}
	if username != "" {
		c.setUsername(username)
	}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	return c
}

// drainSend empties the client's queue and returns the decoded envelopes.
func drainSend(t *testing.T, c *Client) []map[string]any {
	t.Helper()
	var out []map[string]any
	for {
		select {
		case data := <-c.send:
			var m map[string]any
			require.NoError(t, json.Unmarshal(data, &m))
			out = append(out, m)
		default:
			return out
		}
	}
}

// envelopeTypes maps drained envelopes to their type tags, in order.
func envelopeTypes(envelopes []map[string]any) []string {
	types := make([]string, len(envelopes))
	for i, env := range envelopes {
		types[i], _ = env["type"].(string)
	}
	return types
}

func testContext(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// findEnvelope returns the first envelope with the given type.
func findEnvelope(envelopes []map[string]any, typ string) (map[string]any, bool) {
	for _, env := range envelopes {
		if env["type"] == typ {
			return env, true
		}
	}
	return nil, false
}
