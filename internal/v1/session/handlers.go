// Package session - handlers.go
//
// The event router. Every inbound text frame lands here: decode the type tag,
// dispatch to the handler, surface precondition failures to the sender as
// error envelopes. Malformed or unknown messages are logged and dropped, never
// fatal to the connection.
package session

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/logging"
	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/metrics"
)

// router dispatches one inbound message.
func (h *Hub) router(ctx context.Context, c *Client, raw []byte) {
	start := time.Now()

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
		metrics.WebsocketEvents.WithLabelValues("malformed", "error").Inc()
		logging.Warn(ctx, "Dropping malformed message",
			zap.String("clientId", c.id), zap.Error(err))
		return
	}

	ctx = logging.WithUsername(ctx, c.Username())

	status := "success"
	switch env.Type {
	case EventSetUsername:
		status = h.handleSetUsername(ctx, c, raw)
	case EventGetRooms:
		status = h.handleGetRooms(ctx, c)
	case EventGetActiveUsers:
		status = h.handleGetActiveUsers(ctx, c)
	case EventCreateRoom:
		status = h.handleCreateRoom(ctx, c, raw)
	case EventJoinRoom:
		status = h.handleJoinRoom(ctx, c, raw)
	case EventLeaveRoom:
		status = h.handleLeaveRoom(ctx, c)
	case EventDraw:
		status = h.handleDraw(ctx, c, raw)
	case EventAddShape, EventUpdateShape:
		status = h.handleShapeUpsert(ctx, c, env.Type, raw)
	case EventDeleteShape:
		status = h.handleDeleteShape(ctx, c, raw)
	case EventClear:
		status = h.handleClear(ctx, c)
	case EventCursor:
		status = h.handleCursor(ctx, c, raw)
	case EventChatMessage:
		status = h.handleChatMessage(ctx, c, raw)
	case EventGetChatHistory:
		status = h.handleGetChatHistory(ctx, c)
	default:
		status = "unknown"
		logging.Warn(ctx, "Unknown event type",
			zap.String("clientId", c.id), zap.String("eventType", env.Type))
	}

	metrics.WebsocketEvents.WithLabelValues(env.Type, status).Inc()
	metrics.MessageProcessingDuration.WithLabelValues(env.Type).Observe(time.Since(start).Seconds())
}

// currentRoom resolves the sender's room, or sends an error envelope.
func (h *Hub) currentRoom(c *Client) (*Room, bool) {
	roomID := c.RoomID()
	if roomID == "" {
		c.enqueue(errorEnvelope("You are not in a room"))
		return nil, false
	}
	room, ok := h.GetRoom(roomID)
	if !ok {
		c.enqueue(errorEnvelope(ErrRoomNotFound.Error()))
		return nil, false
	}
	return room, true
}

// requireUsername checks the sender has identified itself.
func (h *Hub) requireUsername(c *Client) (string, bool) {
	username := c.Username()
	if username == "" {
		c.enqueue(errorEnvelope("Username not set"))
		return "", false
	}
	return username, true
}

func (h *Hub) handleSetUsername(ctx context.Context, c *Client, raw []byte) string {
	var p SetUsernamePayload
	if err := json.Unmarshal(raw, &p); err != nil || p.Username == "" {
		c.enqueue(errorEnvelope("Invalid username"))
		return "error"
	}

	c.setUsername(p.Username)
	logging.Info(ctx, "Username set",
		zap.String("clientId", c.id), zap.String("username", p.Username))

	c.enqueue(roomListEnvelope(h.roomListFor(p.Username)))
	return "success"
}

func (h *Hub) handleGetRooms(_ context.Context, c *Client) string {
	if username := c.Username(); username != "" {
		c.enqueue(roomListEnvelope(h.roomListFor(username)))
	} else {
		c.enqueue(roomListEnvelope(h.publicRoomList()))
	}
	return "success"
}

func (h *Hub) handleGetActiveUsers(_ context.Context, c *Client) string {
	c.enqueue(mustMarshal(map[string]any{
		"type":  EventActiveUsers,
		"users": h.ActiveUsers(),
	}))
	return "success"
}

func (h *Hub) handleCreateRoom(ctx context.Context, c *Client, raw []byte) string {
	username, ok := h.requireUsername(c)
	if !ok {
		return "error"
	}

	var p CreateRoomPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomName == "" {
		c.enqueue(errorEnvelope("Invalid room name"))
		return "error"
	}

	isPublic := true
	if p.IsPublic != nil {
		isPublic = *p.IsPublic
	}

	if prev := c.RoomID(); prev != "" {
		if room, found := h.GetRoom(prev); found {
			room.leave(c)
		}
	}

	room := h.CreateRoom(p.RoomName, username, isPublic, p.Password, p.InvitedUsers)
	room.addCreator(c)

	c.enqueue(mustMarshal(map[string]any{
		"type":     EventRoomCreated,
		"roomId":   string(room.ID),
		"roomName": room.Name,
		"isPublic": isPublic,
	}))

	if isPublic {
		h.Global(mustMarshal(map[string]any{
			"type":     EventNewPublicRoom,
			"roomId":   string(room.ID),
			"roomName": room.Name,
			"creator":  username,
		}))
		h.broadcastRoomLists()
	} else {
		h.MulticastToUsernames(room.Invitees(), mustMarshal(map[string]any{
			"type":        EventNewPrivateRoomInvite,
			"roomId":      string(room.ID),
			"roomName":    room.Name,
			"creator":     username,
			"hasPassword": room.HasPassword(),
		}))
		for _, invitee := range room.Invitees() {
			h.MulticastToUsernames([]string{invitee}, roomListEnvelope(h.roomListFor(invitee)))
		}
		logging.Info(ctx, "Private room invites sent",
			zap.String("room", string(room.ID)),
			zap.Int("invitees", len(room.Invitees())))
	}
	return "success"
}

func (h *Hub) handleJoinRoom(ctx context.Context, c *Client, raw []byte) string {
	if _, ok := h.requireUsername(c); !ok {
		return "error"
	}

	var p JoinRoomPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomID == "" {
		c.enqueue(errorEnvelope(ErrRoomNotFound.Error()))
		return "error"
	}

	room, ok := h.GetRoom(RoomIDType(p.RoomID))
	if !ok {
		c.enqueue(errorEnvelope(ErrRoomNotFound.Error()))
		return "error"
	}

	// Validate the target first: a rejected join must leave the sender's
	// current membership untouched.
	prev := c.RoomID()
	if err := room.join(c, p.Password); err != nil {
		c.enqueue(errorEnvelope(err.Error()))
		logging.Warn(ctx, "Join rejected",
			zap.String("room", p.RoomID), zap.Error(err))
		return "error"
	}

	if prev != "" && prev != room.ID {
		if prevRoom, found := h.GetRoom(prev); found {
			prevRoom.leave(c)
		}
	}

	h.cancelRoomCleanup(room.ID)
	h.broadcastRoomLists()
	return "success"
}

func (h *Hub) handleLeaveRoom(_ context.Context, c *Client) string {
	room, ok := h.currentRoom(c)
	if !ok {
		return "error"
	}
	room.leave(c)
	h.broadcastRoomLists()
	return "success"
}

func (h *Hub) handleDraw(_ context.Context, c *Client, raw []byte) string {
	room, ok := h.currentRoom(c)
	if !ok {
		return "error"
	}
	room.ApplyDraw(raw, c)
	return "success"
}

func (h *Hub) handleShapeUpsert(_ context.Context, c *Client, eventType string, raw []byte) string {
	room, ok := h.currentRoom(c)
	if !ok {
		return "error"
	}

	var ref ShapeRef
	_ = json.Unmarshal(raw, &ref)

	if eventType == EventAddShape {
		room.ApplyAddShape(raw, ref.ID)
	} else {
		room.ApplyUpdateShape(raw, ref.ID)
	}
	return "success"
}

func (h *Hub) handleDeleteShape(_ context.Context, c *Client, raw []byte) string {
	room, ok := h.currentRoom(c)
	if !ok {
		return "error"
	}

	var p DeleteShapePayload
	if err := json.Unmarshal(raw, &p); err != nil || p.ID == "" {
		c.enqueue(errorEnvelope("Invalid shape id"))
		return "error"
	}
	room.ApplyDeleteShape(raw, p.ID)
	return "success"
}

func (h *Hub) handleClear(_ context.Context, c *Client) string {
	room, ok := h.currentRoom(c)
	if !ok {
		return "error"
	}
	room.ApplyClear(c.Username())
	return "success"
}

func (h *Hub) handleCursor(_ context.Context, c *Client, raw []byte) string {
	room, ok := h.currentRoom(c)
	if !ok {
		return "error"
	}
	room.ApplyCursor(raw)
	return "success"
}

func (h *Hub) handleChatMessage(_ context.Context, c *Client, raw []byte) string {
	username, ok := h.requireUsername(c)
	if !ok {
		return "error"
	}
	room, ok := h.currentRoom(c)
	if !ok {
		return "error"
	}

	var p ChatPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.Message == "" {
		c.enqueue(errorEnvelope("Empty chat message"))
		return "error"
	}
	room.ApplyChat(username, p.Message)
	return "success"
}

func (h *Hub) handleGetChatHistory(_ context.Context, c *Client) string {
	room, ok := h.currentRoom(c)
	if !ok {
		return "error"
	}
	c.enqueue(mustMarshal(map[string]any{
		"type":     EventChatHistory,
		"messages": room.ChatHistorySnapshot(),
	}))
	return "success"
}
