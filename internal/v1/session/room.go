// Package session - room.go
//
// Room owns the state of one whiteboard: membership, access policy, the
// replay log that brings late joiners up to date, the shape index, and the
// bounded chat history. All mutations and the fan-out they trigger happen
// under the room mutex, which is what gives every member the same total order
// of broadcasts.
package session

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/set"

	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/logging"
	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/metrics"
)

const (
	// DefaultMaxParticipants is the room capacity unless overridden.
	DefaultMaxParticipants = 50

	maxChatHistoryLength = 100
)

// Join failure modes, surfaced to the sender as error envelopes.
var (
	ErrRoomNotFound      = errors.New("Room not found")
	ErrNotInvited        = errors.New("You are not invited to this room")
	ErrIncorrectPassword = errors.New("Incorrect password")
	ErrRoomFull          = errors.New("Room is full")
)

// BusService mirrors room broadcasts onto an external pub/sub channel.
// Nil disables mirroring.
type BusService interface {
	Publish(ctx context.Context, roomID string, event string, payload []byte) error
}

// Room is one collaborative whiteboard.
type Room struct {
	ID        RoomIDType
	Name      string
	Creator   string
	CreatedAt time.Time
	IsPublic  bool

	password        string
	invitees        set.Set[string]
	maxParticipants int

	mu           sync.RWMutex
	clients      map[*Client]bool
	participants set.Set[string]
	replayLog    [][]byte
	shapeIndex   map[string]json.RawMessage
	chatHistory  *list.List

	replaySoftCap int
	onEmpty       func(RoomIDType)
	bus           BusService

	publishChan chan struct{} // semaphore bounding concurrent bus publishes
	wg          sync.WaitGroup
}

func newRoom(id RoomIDType, name, creator string, isPublic bool, password string, invited []string, softCap int, bus BusService, onEmpty func(RoomIDType)) *Room {
	invitees := set.New[string]()
	for _, u := range invited {
		if u != "" {
			invitees.Insert(u)
		}
	}

	return &Room{
		ID:              id,
		Name:            name,
		Creator:         creator,
		CreatedAt:       time.Now(),
		IsPublic:        isPublic,
		password:        password,
		invitees:        invitees,
		maxParticipants: DefaultMaxParticipants,
		clients:         make(map[*Client]bool),
		participants:    set.New[string](),
		shapeIndex:      make(map[string]json.RawMessage),
		chatHistory:     list.New(),
		replaySoftCap:   softCap,
		onEmpty:         onEmpty,
		bus:             bus,
		publishChan:     make(chan struct{}, 100),
	}
}

// visibleTo reports whether the room may appear in a roomList sent to u.
// Private rooms are only visible to invitees and the creator.
func (r *Room) visibleTo(u string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.IsPublic || u == r.Creator || r.invitees.Has(u)
}

// HasPassword reports whether entry requires a password.
func (r *Room) HasPassword() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.password != ""
}

// Invitees returns the invited usernames.
func (r *Room) Invitees() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.invitees.UnsortedList()
}

// Info snapshots the room for a roomList entry.
func (r *Room) Info() RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RoomInfo{
		RoomID:          string(r.ID),
		RoomName:        r.Name,
		Creator:         r.Creator,
		Participants:    r.participants.Len(),
		MaxParticipants: r.maxParticipants,
		IsPublic:        r.IsPublic,
		HasPassword:     r.password != "",
	}
}

// IsEmpty reports whether the room has no participants.
func (r *Room) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.participants.Len() == 0
}

// join validates entry and, on success, runs the join sequence atomically:
// roomJoined ack to the joiner, the replay log prefix as it exists right now,
// then a userJoined broadcast to everyone else. Holding the lock across the
// whole sequence is what guarantees the joiner never sees a live event ahead
// of its replay prefix.
func (r *Room) join(c *Client, password string) error {
	username := c.Username()

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.IsPublic && username != r.Creator && !r.invitees.Has(username) {
		return ErrNotInvited
	}
	if r.password != "" && r.password != password {
		return ErrIncorrectPassword
	}
	if r.participants.Len() >= r.maxParticipants {
		return ErrRoomFull
	}

	r.clients[c] = true
	r.participants.Insert(username)
	c.setRoom(r.ID)

	c.enqueue(mustMarshal(map[string]any{
		"type":     EventRoomJoined,
		"roomId":   string(r.ID),
		"roomName": r.Name,
	}))
	for _, entry := range r.replayLog {
		c.enqueue(entry)
	}
	r.broadcastLocked(mustMarshal(map[string]any{
		"type":     EventUserJoined,
		"username": username,
	}), c)
	r.addChatLocked(ChatMessage{
		RoomID:    string(r.ID),
		Username:  username,
		Message:   username + " joined the room",
		Timestamp: time.Now().UnixMilli(),
		Kind:      ChatKindUserJoined,
	})

	metrics.RoomParticipants.WithLabelValues(string(r.ID)).Set(float64(r.participants.Len()))
	logging.Info(context.Background(), "Client joined room",
		zap.String("room", string(r.ID)), zap.String("username", username))
	return nil
}

// addCreator registers the room creator without entry validation or replay;
// the room is brand new and empty.
func (r *Room) addCreator(c *Client) {
	username := c.Username()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[c] = true
	r.participants.Insert(username)
	c.setRoom(r.ID)

	metrics.RoomParticipants.WithLabelValues(string(r.ID)).Set(float64(r.participants.Len()))
}

// leave removes the client, notifies remaining members, and triggers the
// empty-room callback when the last participant is gone.
func (r *Room) leave(c *Client) {
	username := c.Username()

	r.mu.Lock()

	if !r.clients[c] {
		r.mu.Unlock()
		return
	}
	delete(r.clients, c)
	r.participants.Delete(username)
	// When the client already joined another room, leave is trailing a
	// successful switch and must not clobber the new membership.
	if c.RoomID() == r.ID {
		c.setRoom("")
	}

	remaining := r.participants.Len()
	r.broadcastLocked(mustMarshal(map[string]any{
		"type":         EventUserLeft,
		"username":     username,
		"participants": remaining,
	}), nil)
	r.addChatLocked(ChatMessage{
		RoomID:    string(r.ID),
		Username:  username,
		Message:   username + " left the room",
		Timestamp: time.Now().UnixMilli(),
		Kind:      ChatKindUserLeft,
	})

	if remaining > 0 {
		metrics.RoomParticipants.WithLabelValues(string(r.ID)).Set(float64(remaining))
	} else {
		metrics.RoomParticipants.DeleteLabelValues(string(r.ID))
	}
	r.mu.Unlock()

	logging.Info(context.Background(), "Client left room",
		zap.String("room", string(r.ID)), zap.String("username", username))

	if remaining == 0 && r.onEmpty != nil {
		r.onEmpty(r.ID)
	}
}

// --- Fan-out ---

// broadcastLocked enqueues data on every member except exclude.
// Caller must hold r.mu.
func (r *Room) broadcastLocked(data []byte, exclude *Client) {
	for client := range r.clients {
		if client != exclude {
			client.enqueue(data)
		}
	}
	r.publishToBus(data)
}

// Broadcast sends data to every member except exclude.
func (r *Room) Broadcast(data []byte, exclude *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastLocked(data, exclude)
}

// publishToBus mirrors a broadcast onto Redis without blocking the room lock
// holder. Publishes past the semaphore are dropped.
func (r *Room) publishToBus(data []byte) {
	if r.bus == nil {
		return
	}
	select {
	case r.publishChan <- struct{}{}:
		r.wg.Add(1)
		go func() {
			defer func() {
				<-r.publishChan
				r.wg.Done()
			}()
			if err := r.bus.Publish(context.Background(), string(r.ID), "broadcast", data); err != nil {
				logging.Warn(context.Background(), "Bus publish failed",
					zap.String("room", string(r.ID)), zap.Error(err))
			}
		}()
	default:
		logging.Warn(context.Background(), "Dropping bus publish - queue full",
			zap.String("room", string(r.ID)))
	}
}

// --- Board mutations ---

// appendReplayLocked appends an envelope to the replay log, evicting the
// oldest entries past the soft cap. Replay past the cap is lossy.
func (r *Room) appendReplayLocked(data []byte) {
	r.replayLog = append(r.replayLog, data)
	if r.replaySoftCap > 0 && len(r.replayLog) > r.replaySoftCap {
		over := len(r.replayLog) - r.replaySoftCap
		r.replayLog = append([][]byte(nil), r.replayLog[over:]...)
	}
	metrics.ReplayLogSize.WithLabelValues(string(r.ID)).Set(float64(len(r.replayLog)))
}

// ApplyDraw logs a stroke delta and broadcasts it to everyone but the sender.
func (r *Room) ApplyDraw(raw []byte, sender *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendReplayLocked(raw)
	r.broadcastLocked(raw, sender)
}

// ApplyAddShape logs the envelope, upserts the shape index, and broadcasts.
func (r *Room) ApplyAddShape(raw []byte, shapeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendReplayLocked(raw)
	if shapeID != "" {
		r.shapeIndex[shapeID] = raw
	}
	r.broadcastLocked(raw, nil)
}

// ApplyUpdateShape upserts the index and appends the update to the log. The
// log keeps the stale version too; late joiners replay both in order.
func (r *Room) ApplyUpdateShape(raw []byte, shapeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendReplayLocked(raw)
	if shapeID != "" {
		r.shapeIndex[shapeID] = raw
	}
	r.broadcastLocked(raw, nil)
}

// ApplyDeleteShape drops the shape from the index and logs the deletion.
func (r *Room) ApplyDeleteShape(raw []byte, shapeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendReplayLocked(raw)
	delete(r.shapeIndex, shapeID)
	r.broadcastLocked(raw, nil)
}

// ApplyClear truncates the replay log and shape index atomically and tells
// every member who cleared.
func (r *Room) ApplyClear(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replayLog = nil
	r.shapeIndex = make(map[string]json.RawMessage)
	metrics.ReplayLogSize.WithLabelValues(string(r.ID)).Set(0)
	r.broadcastLocked(mustMarshal(map[string]any{
		"type":     EventClear,
		"username": username,
	}), nil)
}

// ApplyCursor broadcasts a cursor position. Cursor events are ephemeral and
// never logged.
func (r *Room) ApplyCursor(raw []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastLocked(raw, nil)
}

// --- Chat ---

// addChatLocked appends to the bounded chat history. Caller must hold r.mu.
func (r *Room) addChatLocked(msg ChatMessage) {
	r.chatHistory.PushBack(msg)
	for r.chatHistory.Len() > maxChatHistoryLength {
		r.chatHistory.Remove(r.chatHistory.Front())
	}
}

// ApplyChat records a user chat message and broadcasts it to the room.
func (r *Room) ApplyChat(username, message string) {
	now := time.Now().UnixMilli()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.addChatLocked(ChatMessage{
		RoomID:    string(r.ID),
		Username:  username,
		Message:   message,
		Timestamp: now,
		Kind:      ChatKindChat,
	})
	r.broadcastLocked(mustMarshal(map[string]any{
		"type":      EventChatMessage,
		"username":  username,
		"message":   message,
		"timestamp": now,
	}), nil)
}

// ChatHistorySnapshot returns the chat history oldest-first.
func (r *Room) ChatHistorySnapshot() []ChatMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msgs := make([]ChatMessage, 0, r.chatHistory.Len())
	for e := r.chatHistory.Front(); e != nil; e = e.Next() {
		msgs = append(msgs, e.Value.(ChatMessage))
	}
	return msgs
}

// --- Snapshots for the persistence port ---

// Snapshot extracts the drawable state for a board save: the latest shape
// envelopes and every stroke delta still in the replay log.
func (r *Room) Snapshot() (shapes []json.RawMessage, strokes []json.RawMessage) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool, len(r.shapeIndex))
	for _, entry := range r.replayLog {
		var env Envelope
		if err := json.Unmarshal(entry, &env); err != nil {
			continue
		}
		switch env.Type {
		case EventDraw:
			strokes = append(strokes, json.RawMessage(entry))
		case EventAddShape, EventUpdateShape, EventShapeAdded:
			var ref ShapeRef
			_ = json.Unmarshal(entry, &ref)
			if ref.ID != "" && seen[ref.ID] {
				continue
			}
			if latest, ok := r.shapeIndex[ref.ID]; ok {
				shapes = append(shapes, latest)
				seen[ref.ID] = true
			}
		}
	}
	return shapes, strokes
}

// ReplayLogLen returns the current replay log length.
func (r *Room) ReplayLogLen() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.replayLog)
}

// InjectImageShape appends a synthetic shapeAdded envelope (from the upload
// port) to the replay log and shape index, then broadcasts it.
func (r *Room) InjectImageShape(shapeID string, shape ImageShape) []byte {
	envelope := mustMarshal(map[string]any{
		"type":    EventShapeAdded,
		"id":      shapeID,
		"payload": shape,
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendReplayLocked(envelope)
	r.shapeIndex[shapeID] = envelope
	r.broadcastLocked(envelope, nil)
	return envelope
}

// detach removes a client without the leave broadcast. Used when tearing the
// hub down.
func (r *Room) detach(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, c)
	r.participants.Delete(c.Username())
}

// WaitForPublishes blocks until in-flight bus publishes complete.
func (r *Room) WaitForPublishes() {
	r.wg.Wait()
}
