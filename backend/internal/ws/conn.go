package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"syncServer/backend/internal/auth"
	"syncServer/backend/internal/cache"
	"syncServer/backend/internal/engine"
	"syncServer/backend/internal/errs"
	"syncServer/backend/internal/presence"
)

const sendQueueSize = 32

// Conn is one authenticated websocket session. Identity is fixed at
// handshake. All inbound handling runs on the read goroutine, so the room
// bookkeeping fields below need no lock; only send/ws are touched from
// outside (broadcasts, shutdown).
type Conn struct {
	ws  *websocket.Conn
	hub *Hub

	engine   engine.Engine
	tracker  *presence.Tracker
	liveness cache.LivenessCache
	sem      *engine.Semaphore

	identity auth.Identity
	color    string

	heartbeatWindow time.Duration
	livenessTTL     time.Duration

	// sendMu orders Enqueue against closeSend so nothing can send on a
	// closed queue; writeDone closes when the write loop has drained it.
	sendMu     sync.Mutex
	sendClosed bool
	send       chan OutboundMessage
	writeDone  chan struct{}
	closeOnce  sync.Once

	// Active file room; switching documents leaves the previous one.
	fileRoom string
	fileRef  engine.DocumentRef

	// Project roster rooms this connection has joined, keyed by room key.
	rosterRooms map[string]string // roomKey -> roomID
}

func NewConn(ws *websocket.Conn, hub *Hub, id auth.Identity, eng engine.Engine,
	tracker *presence.Tracker, liveness cache.LivenessCache, sem *engine.Semaphore,
	heartbeatWindow, livenessTTL time.Duration) *Conn {
	return &Conn{
		ws:              ws,
		hub:             hub,
		engine:          eng,
		tracker:         tracker,
		liveness:        liveness,
		sem:             sem,
		identity:        id,
		color:           presence.ColorFor(id.UserID),
		heartbeatWindow: heartbeatWindow,
		livenessTTL:     livenessTTL,
		send:            make(chan OutboundMessage, sendQueueSize),
		writeDone:       make(chan struct{}),
		rosterRooms:     make(map[string]string),
	}
}

// Enqueue queues msg for delivery. A full queue drops the message rather
// than blocking the broadcaster, and a torn-down queue drops it silently: a
// broadcaster may hold a member reference captured before that member's read
// loop finished tearing down.
func (c *Conn) Enqueue(msg OutboundMessage) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// closeSend stops accepting messages and lets the write loop drain out.
// Idempotent; both the read loop and hub shutdown may call it.
func (c *Conn) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.send)
}

// Close tears down the underlying socket; the read loop then exits and runs
// the disconnect sweep.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		if c.ws != nil {
			_ = c.ws.Close()
		}
	})
}

func (c *Conn) writeLoop() {
	defer close(c.writeDone)
	for msg := range c.send {
		if c.ws == nil {
			continue
		}
		if err := c.ws.WriteJSON(msg); err != nil {
			// Keep draining so enqueuers never block; the read loop will
			// observe the dead socket and clean up.
			continue
		}
	}
}

func (c *Conn) readLoop(ctx context.Context) {
	defer c.closeSend()
	defer c.cleanup(ctx)
	for {
		if c.heartbeatWindow > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(c.heartbeatWindow))
		}
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			// Transport error or missed heartbeats; either way the session
			// is over.
			log.Printf("read error (user=%d): %v", c.identity.UserID, err)
			return
		}
		c.handleRaw(ctx, data)
	}
}

// handleRaw decodes one inbound frame. A payload that does not fit the
// envelope (wrong field types included) is a soft validation failure.
func (c *Conn) handleRaw(ctx context.Context, data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.Enqueue(validationError("malformed message"))
		return
	}
	c.handleMessage(ctx, msg)
}

// handleMessage dispatches one inbound message. Every branch converts its
// own failures into an error event; nothing here may close the connection.
func (c *Conn) handleMessage(ctx context.Context, msg ClientMessage) {
	switch msg.Type {
	case "heartbeat":
		c.handleHeartbeat(ctx)
	case "join-file":
		c.handleJoinFile(ctx, msg)
	case "edit":
		c.handleEdit(ctx, msg)
	case "leave-file":
		c.handleLeaveFile(ctx, msg)
	case "join-room":
		c.handleJoinRoom(ctx, msg)
	case "leave-room":
		c.handleLeaveRoom(ctx, msg)
	case "cursor":
		c.handleCursor(ctx, msg)
	case "status":
		c.handleStatus(msg)
	case "typing":
		c.handleTyping(msg)
	default:
		c.Enqueue(validationError("unknown message type"))
	}
}

func (c *Conn) handleHeartbeat(ctx context.Context) {
	for roomKey := range c.rosterRooms {
		c.touchLiveness(ctx, roomKey)
	}
	if c.fileRoom != "" {
		c.touchLiveness(ctx, c.fileRoom)
	}
	c.Enqueue(FeedbackMessage{Type: "feedback", Message: "heartbeat received"})
}

func (c *Conn) touchLiveness(ctx context.Context, roomKey string) {
	if c.liveness == nil {
		return
	}
	if err := c.liveness.Touch(ctx, roomKey, c.identity.UserID, c.identity.DisplayName, c.livenessTTL); err != nil {
		log.Printf("liveness touch failed (user=%d room=%s): %v", c.identity.UserID, roomKey, err)
	}
}

func (c *Conn) removeLiveness(ctx context.Context, roomKey string) {
	if c.liveness == nil {
		return
	}
	if err := c.liveness.Remove(ctx, roomKey, c.identity.UserID); err != nil {
		log.Printf("liveness remove failed (user=%d room=%s): %v", c.identity.UserID, roomKey, err)
	}
}

func (c *Conn) handleJoinFile(ctx context.Context, msg ClientMessage) {
	if msg.ProjectID == "" || msg.FileID == "" {
		c.Enqueue(validationError("projectId and fileId are required"))
		return
	}
	ref := engine.DocumentRef{ProjectID: msg.ProjectID, FileID: msg.FileID}
	roomKey := FileRoomKey(msg.ProjectID, msg.FileID)

	// One active file room per connection: switching documents leaves the
	// previous room first.
	if c.fileRoom != "" && c.fileRoom != roomKey {
		c.leaveFileRoom(ctx, c.fileRef)
	}

	if err := c.engine.Hydrate(ctx, ref); err != nil {
		c.Enqueue(errorEvent(err))
		return
	}
	snap, err := c.engine.GetSnapshot(ctx, ref)
	if err != nil {
		c.Enqueue(errorEvent(err))
		return
	}

	added := c.hub.Join(roomKey, c)
	c.fileRoom = roomKey
	c.fileRef = ref
	c.tracker.Join(roomKey, c.identity.UserID, c.identity.DisplayName)
	c.touchLiveness(ctx, roomKey)

	// Snapshot goes to the joiner only; the room just learns who arrived.
	c.Enqueue(JoinedMessage{
		Type:      "joined",
		ProjectID: msg.ProjectID,
		FileID:    msg.FileID,
		Content:   snap.Content,
		Version:   snap.Version,
	})
	if added {
		c.hub.BroadcastExcept(roomKey, c, UserJoinedMessage{
			Type:        "user-joined",
			ProjectID:   msg.ProjectID,
			FileID:      msg.FileID,
			UserID:      c.identity.UserID,
			DisplayName: c.identity.DisplayName,
			Color:       c.color,
		})
	}
}

func (c *Conn) handleEdit(ctx context.Context, msg ClientMessage) {
	if msg.ProjectID == "" || msg.FileID == "" {
		c.Enqueue(validationError("projectId and fileId are required"))
		return
	}
	if msg.Version == 0 {
		c.Enqueue(validationError("version is required"))
		return
	}
	ref := engine.DocumentRef{ProjectID: msg.ProjectID, FileID: msg.FileID}
	roomKey := FileRoomKey(msg.ProjectID, msg.FileID)

	if c.sem != nil {
		acquireCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		defer cancel()
		if err := c.sem.Acquire(acquireCtx); err != nil {
			c.Enqueue(ErrorMessage{Type: "error", Code: errs.CodeInternal, Message: "server busy, resubmit"})
			return
		}
		defer func() { _ = c.sem.Release() }()
	}

	if err := c.engine.Hydrate(ctx, ref); err != nil {
		c.Enqueue(errorEvent(err))
		return
	}
	applied, err := c.engine.Apply(ctx, ref, engine.ClientOp{
		Version:  msg.Version,
		AuthorID: c.identity.UserID,
		Content:  msg.Payload,
		Ops:      msg.Ops,
	})
	if err != nil {
		// Failure stays between the engine and the origin: no broadcast, no
		// state change visible to anyone else.
		c.Enqueue(errorEvent(err))
		return
	}

	c.Enqueue(AckMessage{
		Type:      "ack",
		ProjectID: msg.ProjectID,
		FileID:    msg.FileID,
		Version:   applied.Version,
	})
	c.hub.Broadcast(roomKey, RemoteEditMessage{
		Type:      "remote-edit",
		ProjectID: msg.ProjectID,
		FileID:    msg.FileID,
		Version:   applied.Version,
		Content:   applied.Content,
		AuthorID:  applied.AuthorID,
	})
}

func (c *Conn) handleLeaveFile(ctx context.Context, msg ClientMessage) {
	if msg.ProjectID == "" || msg.FileID == "" {
		c.Enqueue(validationError("projectId and fileId are required"))
		return
	}
	c.leaveFileRoom(ctx, engine.DocumentRef{ProjectID: msg.ProjectID, FileID: msg.FileID})
}

func (c *Conn) leaveFileRoom(ctx context.Context, ref engine.DocumentRef) {
	roomKey := FileRoomKey(ref.ProjectID, ref.FileID)
	// Leaving a room this connection never joined must not mark anyone
	// offline or fabricate a departure notice.
	if !c.hub.Leave(roomKey, c) {
		return
	}
	c.tracker.Leave(roomKey, c.identity.UserID)
	c.removeLiveness(ctx, roomKey)
	if c.fileRoom == roomKey {
		c.fileRoom = ""
		c.fileRef = engine.DocumentRef{}
	}
	c.hub.Broadcast(roomKey, UserLeftMessage{
		Type:      "user-left",
		ProjectID: ref.ProjectID,
		FileID:    ref.FileID,
		UserID:    c.identity.UserID,
	})
	// Last one out turns off the light: the document cache entry can go.
	if c.hub.Members(roomKey) == 0 {
		c.engine.Dispose(ref)
	}
}

func (c *Conn) handleJoinRoom(ctx context.Context, msg ClientMessage) {
	if msg.RoomID == "" {
		c.Enqueue(validationError("roomId is required"))
		return
	}
	roomKey := ProjectRoomKey(msg.RoomID)
	c.hub.Join(roomKey, c)
	c.rosterRooms[roomKey] = msg.RoomID
	roster := c.tracker.Join(roomKey, c.identity.UserID, c.identity.DisplayName)
	c.touchLiveness(ctx, roomKey)
	c.hub.Broadcast(roomKey, RoomUsersMessage{Type: "room-users", RoomID: msg.RoomID, Users: roster})
}

func (c *Conn) handleLeaveRoom(ctx context.Context, msg ClientMessage) {
	if msg.RoomID == "" {
		c.Enqueue(validationError("roomId is required"))
		return
	}
	roomKey := ProjectRoomKey(msg.RoomID)
	if !c.hub.Leave(roomKey, c) {
		return
	}
	delete(c.rosterRooms, roomKey)
	roster := c.tracker.Leave(roomKey, c.identity.UserID)
	c.removeLiveness(ctx, roomKey)
	c.hub.Broadcast(roomKey, RoomUsersMessage{Type: "room-users", RoomID: msg.RoomID, Users: roster})
}

func (c *Conn) handleCursor(ctx context.Context, msg ClientMessage) {
	if msg.ProjectID == "" || msg.FileID == "" {
		c.Enqueue(validationError("projectId and fileId are required"))
		return
	}
	if len(msg.Cursor) == 0 {
		c.Enqueue(validationError("cursor is required"))
		return
	}
	roomKey := FileRoomKey(msg.ProjectID, msg.FileID)
	c.tracker.SetCursor(roomKey, c.identity.UserID, msg.Cursor)
	if c.liveness != nil {
		if err := c.liveness.SetCursor(ctx, roomKey, c.identity.UserID, msg.Cursor, c.livenessTTL); err != nil {
			log.Printf("cursor cache failed (user=%d room=%s): %v", c.identity.UserID, roomKey, err)
		}
	}
	c.hub.BroadcastExcept(roomKey, c, PresenceUpdateMessage{
		Type:      "presence-update",
		ProjectID: msg.ProjectID,
		FileID:    msg.FileID,
		UserID:    c.identity.UserID,
		Cursor:    msg.Cursor,
	})
}

func (c *Conn) handleStatus(msg ClientMessage) {
	if msg.RoomID == "" {
		c.Enqueue(validationError("roomId is required"))
		return
	}
	status := presence.Status(msg.Status)
	if status != presence.StatusOnline && status != presence.StatusAway {
		c.Enqueue(validationError("status must be online or away"))
		return
	}
	roomKey := ProjectRoomKey(msg.RoomID)
	roster := c.tracker.SetStatus(roomKey, c.identity.UserID, status)
	c.hub.Broadcast(roomKey, RoomUsersMessage{Type: "room-users", RoomID: msg.RoomID, Users: roster})
}

// handleTyping updates the roster entry but fans the event out only to the
// connection's active file room: typing is a document-scoped signal, never
// project-wide.
func (c *Conn) handleTyping(msg ClientMessage) {
	if msg.RoomID == "" {
		c.Enqueue(validationError("roomId is required"))
		return
	}
	c.tracker.SetTyping(ProjectRoomKey(msg.RoomID), c.identity.UserID, msg.IsTyping)
	if c.fileRoom == "" {
		return
	}
	c.hub.BroadcastExcept(c.fileRoom, c, TypingMessage{
		Type:     "typing",
		RoomID:   msg.RoomID,
		UserID:   c.identity.UserID,
		IsTyping: msg.IsTyping,
	})
}

// cleanup is the disconnect sweep: drop the connection from every room,
// notify each one, mark presence offline, and release empty documents. The
// sweep touches only rooms this connection or user was actually in.
func (c *Conn) cleanup(ctx context.Context) {
	dropped := c.hub.DropConn(c)
	for _, roomKey := range dropped {
		if roomKey == c.fileRoom {
			c.hub.Broadcast(roomKey, UserLeftMessage{
				Type:      "user-left",
				ProjectID: c.fileRef.ProjectID,
				FileID:    c.fileRef.FileID,
				UserID:    c.identity.UserID,
			})
			if c.hub.Members(roomKey) == 0 {
				c.engine.Dispose(c.fileRef)
			}
		}
		c.removeLiveness(ctx, roomKey)
	}

	for _, roomKey := range c.tracker.Disconnect(c.identity.UserID) {
		if roomID, ok := c.rosterRooms[roomKey]; ok {
			c.hub.Broadcast(roomKey, RoomUsersMessage{
				Type:   "room-users",
				RoomID: roomID,
				Users:  c.tracker.Roster(roomKey),
			})
		}
	}
}
