package session

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoin_PrivateRoomRequiresInvite(t *testing.T) {
	h := newTestHub()
	room := h.CreateRoom("secret", "alice", false, "", []string{"bob"})

	outsider := newTestClient(h, "mallory")
	assert.ErrorIs(t, room.join(outsider, ""), ErrNotInvited)

	invitee := newTestClient(h, "bob")
	assert.NoError(t, room.join(invitee, ""))

	creator := newTestClient(h, "alice")
	assert.NoError(t, room.join(creator, ""), "creator is always allowed in")
}

func TestJoin_PasswordCheckedAfterInvite(t *testing.T) {
	h := newTestHub()
	room := h.CreateRoom("locked", "alice", false, "hunter2", []string{"bob"})

	// Not invited loses before the password is even considered.
	outsider := newTestClient(h, "mallory")
	assert.ErrorIs(t, room.join(outsider, "hunter2"), ErrNotInvited)

	invitee := newTestClient(h, "bob")
	assert.ErrorIs(t, room.join(invitee, "wrong"), ErrIncorrectPassword)
	assert.NoError(t, room.join(invitee, "hunter2"))
}

func TestJoin_RoomFull(t *testing.T) {
	h := newTestHub()
	room := h.CreateRoom("crowded", "alice", true, "", nil)
	room.maxParticipants = 2

	require.NoError(t, room.join(newTestClient(h, "u1"), ""))
	require.NoError(t, room.join(newTestClient(h, "u2"), ""))
	assert.ErrorIs(t, room.join(newTestClient(h, "u3"), ""), ErrRoomFull)
}

func TestJoin_ReplayPrecedesLiveEvents(t *testing.T) {
	h := newTestHub()
	room := h.CreateRoom("art", "alice", true, "", nil)

	creator := newTestClient(h, "alice")
	room.addCreator(creator)

	stroke1 := []byte(`{"type":"draw","x1":0,"y1":0,"x2":5,"y2":5,"color":"#ff0000","size":2}`)
	stroke2 := []byte(`{"type":"draw","x1":5,"y1":5,"x2":9,"y2":9,"color":"#ff0000","size":2}`)
	room.ApplyDraw(stroke1, creator)
	room.ApplyDraw(stroke2, creator)

	joiner := newTestClient(h, "bob")
	require.NoError(t, room.join(joiner, ""))

	types := envelopeTypes(drainSend(t, joiner))
	require.GreaterOrEqual(t, len(types), 3)
	assert.Equal(t, EventRoomJoined, types[0], "ack comes first")
	assert.Equal(t, EventDraw, types[1])
	assert.Equal(t, EventDraw, types[2])

	// The existing member sees the join, not the replay.
	creatorEnvelopes := drainSend(t, creator)
	joined, ok := findEnvelope(creatorEnvelopes, EventUserJoined)
	require.True(t, ok)
	assert.Equal(t, "bob", joined["username"])
}

func TestApplyDraw_ExcludesSender(t *testing.T) {
	h := newTestHub()
	room := h.CreateRoom("art", "alice", true, "", nil)

	sender := newTestClient(h, "alice")
	room.addCreator(sender)
	receiver := newTestClient(h, "bob")
	require.NoError(t, room.join(receiver, ""))
	drainSend(t, sender)
	drainSend(t, receiver)

	stroke := []byte(`{"type":"draw","x1":1,"y1":1,"x2":2,"y2":2,"color":"#000000","size":1}`)
	room.ApplyDraw(stroke, sender)

	_, senderGotDraw := findEnvelope(drainSend(t, sender), EventDraw)
	assert.False(t, senderGotDraw, "sender already rendered its own stroke")

	_, receiverGotDraw := findEnvelope(drainSend(t, receiver), EventDraw)
	assert.True(t, receiverGotDraw)
	assert.Equal(t, 1, room.ReplayLogLen())
}

func TestApplyShapeLifecycle(t *testing.T) {
	h := newTestHub()
	room := h.CreateRoom("shapes", "alice", true, "", nil)
	member := newTestClient(h, "alice")
	room.addCreator(member)

	add := []byte(`{"type":"addShape","id":"s1","shapeType":"RECT","x":0,"y":0}`)
	update := []byte(`{"type":"updateShape","id":"s1","shapeType":"RECT","x":50,"y":50}`)
	room.ApplyAddShape(add, "s1")
	room.ApplyUpdateShape(update, "s1")

	// Sender included on shape events.
	types := envelopeTypes(drainSend(t, member))
	assert.Contains(t, types, EventAddShape)
	assert.Contains(t, types, EventUpdateShape)

	// Both versions stay in the log; the index holds the latest.
	assert.Equal(t, 2, room.ReplayLogLen())
	shapes, _ := room.Snapshot()
	require.Len(t, shapes, 1)
	assert.JSONEq(t, string(update), string(shapes[0]))

	room.ApplyDeleteShape([]byte(`{"type":"deleteShape","id":"s1"}`), "s1")
	shapes, _ = room.Snapshot()
	assert.Empty(t, shapes)
	assert.Equal(t, 3, room.ReplayLogLen(), "deletions are logged for replay")
}

func TestApplyClear_TruncatesState(t *testing.T) {
	h := newTestHub()
	room := h.CreateRoom("art", "alice", true, "", nil)
	member := newTestClient(h, "alice")
	room.addCreator(member)

	room.ApplyAddShape([]byte(`{"type":"addShape","id":"s1"}`), "s1")
	room.ApplyDraw([]byte(`{"type":"draw","x1":0,"y1":0,"x2":1,"y2":1}`), nil)
	require.Equal(t, 2, room.ReplayLogLen())

	room.ApplyClear("alice")

	assert.Equal(t, 0, room.ReplayLogLen())
	shapes, strokes := room.Snapshot()
	assert.Empty(t, shapes)
	assert.Empty(t, strokes)

	cleared, ok := findEnvelope(drainSend(t, member), EventClear)
	require.True(t, ok)
	assert.Equal(t, "alice", cleared["username"])
}

func TestApplyCursor_NeverLogged(t *testing.T) {
	h := newTestHub()
	room := h.CreateRoom("art", "alice", true, "", nil)
	room.addCreator(newTestClient(h, "alice"))

	room.ApplyCursor([]byte(`{"type":"cursor","x":10,"y":20,"username":"alice"}`))
	assert.Equal(t, 0, room.ReplayLogLen())
}

func TestReplayLog_SoftCapEvictsOldest(t *testing.T) {
	h := newTestHub()
	room := h.CreateRoom("busy", "alice", true, "", nil)
	room.replaySoftCap = 5

	for i := 0; i < 8; i++ {
		room.ApplyDraw([]byte(fmt.Sprintf(`{"type":"draw","x1":%d}`, i)), nil)
	}

	assert.Equal(t, 5, room.ReplayLogLen())

	joiner := newTestClient(h, "bob")
	require.NoError(t, room.join(joiner, ""))
	envelopes := drainSend(t, joiner)

	// First replayed entry is the oldest survivor, x1=3.
	var first map[string]any
	for _, env := range envelopes {
		if env["type"] == EventDraw {
			first = env
			break
		}
	}
	require.NotNil(t, first)
	assert.Equal(t, float64(3), first["x1"])
}

func TestChatHistory_BoundedAndOrdered(t *testing.T) {
	h := newTestHub()
	room := h.CreateRoom("chatty", "alice", true, "", nil)

	for i := 0; i < maxChatHistoryLength+10; i++ {
		room.ApplyChat("alice", fmt.Sprintf("msg %d", i))
	}

	history := room.ChatHistorySnapshot()
	require.Len(t, history, maxChatHistoryLength)
	assert.Equal(t, "msg 10", history[0].Message, "oldest entries evicted")
	assert.Equal(t, fmt.Sprintf("msg %d", maxChatHistoryLength+9), history[len(history)-1].Message)
}

func TestChatHistory_RecordsJoinAndLeave(t *testing.T) {
	h := newTestHub()
	room := h.CreateRoom("social", "alice", true, "", nil)

	member := newTestClient(h, "bob")
	require.NoError(t, room.join(member, ""))
	room.leave(member)

	history := room.ChatHistorySnapshot()
	require.Len(t, history, 2)
	assert.Equal(t, ChatKindUserJoined, history[0].Kind)
	assert.Equal(t, ChatKindUserLeft, history[1].Kind)
}

func TestLeave_BroadcastsUserLeftWithCount(t *testing.T) {
	h := newTestHub()
	room := h.CreateRoom("art", "alice", true, "", nil)

	first := newTestClient(h, "alice")
	room.addCreator(first)
	second := newTestClient(h, "bob")
	require.NoError(t, room.join(second, ""))
	drainSend(t, first)

	room.leave(second)

	left, ok := findEnvelope(drainSend(t, first), EventUserLeft)
	require.True(t, ok)
	assert.Equal(t, "bob", left["username"])
	assert.Equal(t, float64(1), left["participants"])
}

func TestBroadcast_MirroredToBus(t *testing.T) {
	bus := &MockBusService{}
	h := NewHub(Options{Bus: bus, CleanupGrace: 0, ReplaySoftCap: 100})
	room := h.CreateRoom("observed", "alice", true, "", nil)
	room.addCreator(newTestClient(h, "alice"))

	room.ApplyDraw([]byte(`{"type":"draw","x1":0}`), nil)
	room.WaitForPublishes()

	assert.Equal(t, 1, bus.PublishCalls())
}

func TestBroadcast_NoBusConfigured(t *testing.T) {
	h := NewHub(Options{CleanupGrace: 0, ReplaySoftCap: 100})
	room := h.CreateRoom("quiet", "alice", true, "", nil)
	room.addCreator(newTestClient(h, "alice"))

	room.ApplyDraw([]byte(`{"type":"draw","x1":0}`), nil)
	room.WaitForPublishes()

	assert.Zero(t, len(room.publishChan), "no publish goroutine without a bus")
}

func TestSnapshot_ImageShapesIncluded(t *testing.T) {
	h := newTestHub()
	room := h.CreateRoom("pics", "alice", true, "", nil)
	member := newTestClient(h, "alice")
	room.addCreator(member)

	envelope := room.InjectImageShape("img-1", ImageShape{
		ShapeType: "IMAGE", URL: "/images/a.png", Room: "pics",
		X: 100, Y: 100, Width: 320, Height: 200,
	})

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(envelope, &decoded))
	assert.Equal(t, EventShapeAdded, decoded["type"])

	added, ok := findEnvelope(drainSend(t, member), EventShapeAdded)
	require.True(t, ok)
	payload := added["payload"].(map[string]any)
	assert.Equal(t, "IMAGE", payload["shapeType"])
	assert.Equal(t, float64(100), payload["x"])

	shapes, _ := room.Snapshot()
	require.Len(t, shapes, 1)
}
