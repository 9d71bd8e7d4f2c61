package ws

import (
	"sync"
	"time"
)

// Room keys live in two disjoint keyspaces: narrow per-document file rooms
// and broad per-project roster rooms.
func FileRoomKey(projectID, fileID string) string { return "file:" + projectID + ":" + fileID }

func ProjectRoomKey(projectID string) string { return "project:" + projectID }

// Hub maps room keys to connection sets and fans messages out to them. Rooms
// hold connections rather than user ids: one user may have several tabs open
// and each needs its own delivery.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Conn]struct{}
	conns map[*Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[*Conn]struct{}),
		conns: make(map[*Conn]struct{}),
	}
}

// Register tracks a live connection so shutdown can reach connections that
// joined no room.
func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
}

// Join adds the connection to the room. Idempotent: a repeated join for the
// same connection and room reports false and changes nothing.
func (h *Hub) Join(roomKey string, c *Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[roomKey]
	if room == nil {
		room = make(map[*Conn]struct{})
		h.rooms[roomKey] = room
	}
	if _, ok := room[c]; ok {
		return false
	}
	room[c] = struct{}{}
	return true
}

// Leave removes the connection from the room and reports whether it was a
// member, mirroring Join. Callers must not announce departures the hub never
// saw.
func (h *Hub) Leave(roomKey string, c *Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.leaveLocked(roomKey, c)
}

func (h *Hub) leaveLocked(roomKey string, c *Conn) bool {
	room, ok := h.rooms[roomKey]
	if !ok {
		return false
	}
	if _, ok := room[c]; !ok {
		return false
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, roomKey)
	}
	return true
}

// Members reports the room's current size.
func (h *Hub) Members(roomKey string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomKey])
}

// DropConn removes the connection from every room it is in and from the live
// set, returning the affected room keys for the caller's departure
// notifications.
func (h *Hub) DropConn(c *Conn) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var affected []string
	for roomKey, room := range h.rooms {
		if _, ok := room[c]; ok {
			affected = append(affected, roomKey)
			h.leaveLocked(roomKey, c)
		}
	}
	delete(h.conns, c)
	return affected
}

// Broadcast enqueues msg to every member of the room, sender included.
func (h *Hub) Broadcast(roomKey string, msg OutboundMessage) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.rooms[roomKey]))
	for c := range h.rooms[roomKey] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.Enqueue(msg)
	}
}

// BroadcastExcept enqueues msg to every member of the room except origin.
func (h *Hub) BroadcastExcept(roomKey string, origin *Conn, msg OutboundMessage) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.rooms[roomKey]))
	for c := range h.rooms[roomKey] {
		if c != origin {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.Enqueue(msg)
	}
}

// Shutdown sends a shutdown notice to every live connection, waits for each
// write loop to drain its queue, then closes the sockets.
func (h *Hub) Shutdown(message string) {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	msg := ShutdownMessage{Type: "shutdown", Message: message}
	for _, c := range conns {
		c.Enqueue(msg)
		c.closeSend()
	}
	for _, c := range conns {
		// A write loop stuck on a dead peer must not stall shutdown forever.
		select {
		case <-c.writeDone:
		case <-time.After(time.Second):
		}
		c.Close()
	}
}
