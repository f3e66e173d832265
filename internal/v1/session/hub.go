// Package session - hub.go
//
// The Hub is the central coordinator: it owns the room registry and the
// connection set, accepts raw TCP connections, performs the WebSocket
// upgrade, and executes the cross-room fan-out actions (global announcements,
// invite multicasts, per-user room lists).
//
// Room cleanup uses a grace period: when a room empties, deletion is
// scheduled rather than immediate, so a client refresh does not destroy the
// board. The registry also keeps at least one room alive.
package session

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/board"
	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/logging"
	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/metrics"
	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/wswire"
)

// Hub coordinates all rooms and connections.
type Hub struct {
	mu                  sync.Mutex
	rooms               map[RoomIDType]*Room
	clients             map[*Client]bool
	pendingRoomCleanups map[RoomIDType]*time.Timer

	bus                BusService
	cleanupGracePeriod time.Duration
	replaySoftCap      int
	imagesDir          string
	allowIP            func(ctx context.Context, ip string) bool
}

// Options configures a Hub.
type Options struct {
	Bus           BusService    // optional broadcast mirror
	CleanupGrace  time.Duration // grace period before empty rooms are removed
	ReplaySoftCap int           // per-room replay log soft cap
	ImagesDir     string        // directory served at GET /images/<name>

	// AllowIP gates WebSocket upgrades by remote IP. Nil admits everyone.
	AllowIP func(ctx context.Context, ip string) bool
}

// NewHub creates a Hub with its dependencies.
func NewHub(opts Options) *Hub {
	if opts.CleanupGrace <= 0 {
		opts.CleanupGrace = 5 * time.Second
	}
	return &Hub{
		rooms:               make(map[RoomIDType]*Room),
		clients:             make(map[*Client]bool),
		pendingRoomCleanups: make(map[RoomIDType]*time.Timer),
		bus:                 opts.Bus,
		cleanupGracePeriod:  opts.CleanupGrace,
		replaySoftCap:       opts.ReplaySoftCap,
		imagesDir:           opts.ImagesDir,
		allowIP:             opts.AllowIP,
	}
}

// --- Network surface ---

// AcceptLoop accepts connections until the listener is closed.
func (h *Hub) AcceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logging.Warn(context.Background(), "Accept failed", zap.Error(err))
			continue
		}
		go h.ServeConn(conn)
	}
}

// ServeConn handles one accepted TCP connection. It parses the HTTP request
// and routes it: WebSocket upgrade, static image GET, or 400.
func (h *Hub) ServeConn(conn net.Conn) {
	br := bufio.NewReader(conn)
	req, err := http.ReadRequest(br)
	if err != nil {
		conn.Close()
		return
	}

	switch {
	case wswire.IsUpgrade(req):
		if h.allowIP != nil && !h.allowIP(context.Background(), remoteIP(conn)) {
			writeHTTPError(conn, http.StatusTooManyRequests, "Too Many Requests")
			conn.Close()
			return
		}
		if err := wswire.CompleteHandshake(conn, req); err != nil {
			logging.Warn(context.Background(), "WebSocket handshake failed", zap.Error(err))
			conn.Close()
			return
		}
		h.startClient(wswire.NewConn(conn, br))
	case req.Method == http.MethodGet && strings.HasPrefix(req.URL.Path, "/images/"):
		h.serveImage(conn, strings.TrimPrefix(req.URL.Path, "/images/"))
		conn.Close()
	default:
		writeHTTPError(conn, http.StatusBadRequest, "Bad Request")
		conn.Close()
	}
}

// startClient registers a new client and starts its pump goroutines.
func (h *Hub) startClient(conn wsConnection) {
	client := &Client{
		conn: conn,
		hub:  h,
		send: make(chan []byte, sendQueueSize),
		id:   uuid.NewString(),
	}

	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	metrics.IncConnection()
	logging.Info(context.Background(), "Client connected", zap.String("clientId", client.id))

	go client.writePump()
	go client.readPump()
}

// serveImage answers GET /images/<name> on the WebSocket port. Filenames
// containing traversal characters are rejected with 403.
func (h *Hub) serveImage(conn net.Conn, name string) {
	if !board.ValidImageName(name) {
		writeHTTPError(conn, http.StatusForbidden, "Forbidden")
		return
	}
	data, err := board.ReadImage(h.imagesDir, name)
	if err != nil {
		writeHTTPError(conn, http.StatusNotFound, "Not Found")
		return
	}

	var sb strings.Builder
	sb.WriteString("HTTP/1.1 200 OK\r\n")
	sb.WriteString("Content-Type: " + board.ContentTypeByExt(name) + "\r\n")
	sb.WriteString("Access-Control-Allow-Origin: *\r\n")
	sb.WriteString("Content-Length: ")
	sb.WriteString(strconv.Itoa(len(data)))
	sb.WriteString("\r\nConnection: close\r\n\r\n")
	conn.Write([]byte(sb.String()))
	conn.Write(data)
}

// remoteIP strips the port from the peer address for rate-limit keying.
func remoteIP(conn net.Conn) string {
	addr := conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func writeHTTPError(conn net.Conn, code int, text string) {
	body := text + "\n"
	resp := "HTTP/1.1 " + strconv.Itoa(code) + " " + text + "\r\n" +
		"Content-Type: text/plain\r\n" +
		"Content-Length: " + strconv.Itoa(len(body)) + "\r\n" +
		"Connection: close\r\n\r\n" + body
	conn.Write([]byte(resp))
}

// --- Room registry ---

// CreateRoom creates and registers a new room. The roomId is a fresh UUID
// and is never reused.
func (h *Hub) CreateRoom(name, creator string, isPublic bool, password string, invited []string) *Room {
	id := RoomIDType(uuid.NewString())
	room := newRoom(id, name, creator, isPublic, password, invited, h.replaySoftCap, h.bus, h.scheduleRoomCleanup)

	h.mu.Lock()
	h.rooms[id] = room
	h.mu.Unlock()

	metrics.ActiveRooms.Inc()
	logging.Info(context.Background(), "Room created",
		zap.String("room", string(id)), zap.String("name", name),
		zap.String("creator", creator), zap.Bool("public", isPublic))
	return room
}

// GetRoom looks a room up by id.
func (h *Hub) GetRoom(id RoomIDType) (*Room, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[id]
	return room, ok
}

// FindRoomByName returns the first room with the given name. Room names are
// not unique; the upload port addresses rooms by name to match client URLs.
func (h *Hub) FindRoomByName(name string) (*Room, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range h.rooms {
		if room.Name == name {
			return room, true
		}
	}
	return nil, false
}

// RoomCount returns the number of registered rooms.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// scheduleRoomCleanup arms a grace-period timer for an empty room. A rejoin
// before it fires cancels the deletion; the registry always keeps at least
// one room alive.
func (h *Hub) scheduleRoomCleanup(roomID RoomIDType) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.pendingRoomCleanups[roomID]; ok {
		existing.Stop()
		delete(h.pendingRoomCleanups, roomID)
	}

	timer := time.AfterFunc(h.cleanupGracePeriod, func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		delete(h.pendingRoomCleanups, roomID)
		room, ok := h.rooms[roomID]
		if !ok || !room.IsEmpty() || len(h.rooms) <= 1 {
			return
		}
		delete(h.rooms, roomID)
		metrics.ActiveRooms.Dec()
		metrics.RoomParticipants.DeleteLabelValues(string(roomID))
		metrics.ReplayLogSize.DeleteLabelValues(string(roomID))
		logging.Info(context.Background(), "Removed empty room after grace period",
			zap.String("room", string(roomID)))
	})
	h.pendingRoomCleanups[roomID] = timer
}

// cancelRoomCleanup stops a pending deletion, if any. Called on join.
func (h *Hub) cancelRoomCleanup(roomID RoomIDType) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if timer, ok := h.pendingRoomCleanups[roomID]; ok {
		timer.Stop()
		delete(h.pendingRoomCleanups, roomID)
		logging.Info(context.Background(), "Cancelled room cleanup due to rejoin",
			zap.String("room", string(roomID)))
	}
}

// --- Cross-room fan-out ---

// roomListFor builds the room list visible to username.
func (h *Hub) roomListFor(username string) []RoomInfo {
	h.mu.Lock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, room := range h.rooms {
		rooms = append(rooms, room)
	}
	h.mu.Unlock()

	var infos []RoomInfo
	for _, room := range rooms {
		if room.visibleTo(username) {
			infos = append(infos, room.Info())
		}
	}
	return infos
}

// publicRoomList builds the room list with only public rooms, for
// connections that have not identified themselves yet.
func (h *Hub) publicRoomList() []RoomInfo {
	h.mu.Lock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, room := range h.rooms {
		rooms = append(rooms, room)
	}
	h.mu.Unlock()

	var infos []RoomInfo
	for _, room := range rooms {
		if room.IsPublic {
			infos = append(infos, room.Info())
		}
	}
	return infos
}

// broadcastRoomLists pushes a personalized roomList to every connection.
// Each recipient gets its own filtered view; private rooms never leak.
func (h *Hub) broadcastRoomLists() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		client.enqueue(roomListEnvelope(h.roomListFor(client.Username())))
	}
}

// Global enqueues data on every connection.
func (h *Hub) Global(data []byte) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		client.enqueue(data)
	}
}

// MulticastToUsernames unicasts data to each currently connected client whose
// username is in the list.
func (h *Hub) MulticastToUsernames(usernames []string, data []byte) {
	wanted := make(map[string]bool, len(usernames))
	for _, u := range usernames {
		wanted[u] = true
	}

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		if wanted[client.Username()] {
			client.enqueue(data)
		}
	}
}

// ActiveUsers lists the usernames of all identified connections.
func (h *Hub) ActiveUsers() []string {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	users := []string{}
	for _, client := range clients {
		if u := client.Username(); u != "" {
			users = append(users, u)
		}
	}
	return users
}

// --- Image upload port ---

// BroadcastImageShape injects a synthetic shapeAdded envelope into the room
// with the given name: append to replay log, upsert shape index, broadcast.
func (h *Hub) BroadcastImageShape(roomName, url string, width, height int) error {
	room, ok := h.FindRoomByName(roomName)
	if !ok {
		return ErrRoomNotFound
	}

	shapeID := "img-" + uuid.NewString()
	room.InjectImageShape(shapeID, ImageShape{
		ShapeType: "IMAGE",
		URL:       url,
		Room:      roomName,
		X:         100,
		Y:         100,
		Width:     width,
		Height:    height,
	})
	return nil
}

// SnapshotRoom extracts a room's drawable state for the persistence port.
func (h *Hub) SnapshotRoom(roomID RoomIDType) (shapes, strokes []json.RawMessage, err error) {
	room, ok := h.GetRoom(roomID)
	if !ok {
		return nil, nil, ErrRoomNotFound
	}
	shapes, strokes = room.Snapshot()
	return shapes, strokes, nil
}

// --- Lifecycle ---

// handleClientDisconnect runs the full cleanup for a dying connection:
// leave its room (with userLeft broadcast), unregister, close the send queue,
// refresh room lists.
func (h *Hub) handleClientDisconnect(c *Client) {
	if roomID := c.RoomID(); roomID != "" {
		if room, ok := h.GetRoom(roomID); ok {
			room.leave(c)
		}
	}

	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	h.mu.Unlock()

	c.closeSend()
	logging.Info(context.Background(), "Client disconnected",
		zap.String("clientId", c.id), zap.String("username", c.Username()))

	h.broadcastRoomLists()
}

// Shutdown closes every connection and stops pending cleanup timers.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]bool)
	for id, timer := range h.pendingRoomCleanups {
		timer.Stop()
		delete(h.pendingRoomCleanups, id)
	}
	rooms := make([]*Room, 0, len(h.rooms))
	for _, room := range h.rooms {
		rooms = append(rooms, room)
	}
	h.mu.Unlock()

	for _, client := range clients {
		for _, room := range rooms {
			room.detach(client)
		}
		client.closeSend()
		client.conn.Close()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, room := range rooms {
			room.WaitForPublishes()
		}
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
