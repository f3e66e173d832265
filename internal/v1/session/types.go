// Package session - types.go
//
// Shared types for the real-time session layer: event names, inbound payload
// shapes, and outbound envelope builders. Every message on the wire is a
// minified JSON object with a mandatory "type" field.
package session

import "encoding/json"

// RoomIDType uniquely identifies a room. Server-assigned, never reused.
type RoomIDType string

// Inbound event types.
const (
	EventSetUsername    = "setUsername"
	EventGetRooms       = "getRooms"
	EventGetActiveUsers = "getActiveUsers"
	EventCreateRoom     = "createRoom"
	EventJoinRoom       = "joinRoom"
	EventLeaveRoom      = "leaveRoom"
	EventDraw           = "draw"
	EventAddShape       = "addShape"
	EventUpdateShape    = "updateShape"
	EventDeleteShape    = "deleteShape"
	EventClear          = "clear"
	EventCursor         = "cursor"
	EventChatMessage    = "chatMessage"
	EventGetChatHistory = "getChatHistory"
)

// Outbound event types.
const (
	EventRoomList             = "roomList"
	EventActiveUsers          = "activeUsers"
	EventRoomCreated          = "roomCreated"
	EventRoomJoined           = "roomJoined"
	EventNewPublicRoom        = "newPublicRoom"
	EventNewPrivateRoomInvite = "newPrivateRoomInvite"
	EventUserJoined           = "userJoined"
	EventUserLeft             = "userLeft"
	EventShapeAdded           = "shapeAdded"
	EventChatHistory          = "chatHistory"
	EventError                = "error"
)

// Envelope is the minimal decode of any inbound message: just the type tag.
// Handlers re-decode the raw bytes into their specific payload struct.
type Envelope struct {
	Type string `json:"type"`
}

// SetUsernamePayload is the inbound setUsername event.
type SetUsernamePayload struct {
	Username string `json:"username"`
}

// CreateRoomPayload is the inbound createRoom event. IsPublic defaults to
// true when absent.
type CreateRoomPayload struct {
	RoomName     string   `json:"roomName"`
	IsPublic     *bool    `json:"isPublic"`
	Password     string   `json:"password"`
	InvitedUsers []string `json:"invitedUsers"`
}

// JoinRoomPayload is the inbound joinRoom event.
type JoinRoomPayload struct {
	RoomID   string `json:"roomId"`
	Password string `json:"password"`
}

// DeleteShapePayload carries the id of the shape to remove.
type DeleteShapePayload struct {
	ID string `json:"id"`
}

// ChatPayload is the inbound chatMessage event.
type ChatPayload struct {
	Message string `json:"message"`
}

// ShapeRef is the minimal decode of addShape/updateShape events: the shape id
// used as the shapeIndex key. The full envelope is stored and broadcast
// verbatim so clients round-trip every kind-specific field untouched.
type ShapeRef struct {
	ID string `json:"id"`
}

// RoomInfo is one entry of a roomList payload.
type RoomInfo struct {
	RoomID          string `json:"roomId"`
	RoomName        string `json:"roomName"`
	Creator         string `json:"creator"`
	Participants    int    `json:"participants"`
	MaxParticipants int    `json:"maxParticipants"`
	IsPublic        bool   `json:"isPublic"`
	HasPassword     bool   `json:"hasPassword"`
}

// Chat message kinds.
const (
	ChatKindChat       = "chat"
	ChatKindUserJoined = "userJoined"
	ChatKindUserLeft   = "userLeft"
	ChatKindSystem     = "system"
)

// ChatMessage is one chat history entry. Kind distinguishes user messages
// from join/leave/system notifications.
type ChatMessage struct {
	RoomID    string `json:"roomId"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	Kind      string `json:"kind"`
}

// ImageShape is the payload body of the synthetic shapeAdded envelope emitted
// by the image upload port.
type ImageShape struct {
	ShapeType string `json:"shapeType"`
	URL       string `json:"url"`
	Room      string `json:"room"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// mustMarshal marshals outbound envelopes. Payloads are server-built structs
// and maps; marshaling cannot fail for these types.
func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func errorEnvelope(message string) []byte {
	return mustMarshal(map[string]any{"type": EventError, "message": message})
}

func roomListEnvelope(rooms []RoomInfo) []byte {
	if rooms == nil {
		rooms = []RoomInfo{}
	}
	return mustMarshal(map[string]any{"type": EventRoomList, "rooms": rooms})
}
