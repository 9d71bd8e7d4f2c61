package presence

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusOffline Status = "offline"
)

// Entry is one user's presence in one room. Entries are unique per
// (roomKey, userID): join upserts, leave marks offline but keeps the entry
// visible until the sweep purges it after the grace window.
type Entry struct {
	UserID      uint64
	DisplayName string
	Color       string
	Status      Status
	LastSeen    time.Time
	Cursor      json.RawMessage
	Typing      bool
}

// Member is the shape broadcast in roster events. Color, status and cursor
// are withheld: color is recomputable from the id on either side, the rest is
// file-room-scoped.
type Member struct {
	ID          uint64 `json:"id"`
	DisplayName string `json:"displayName"`
}

// RosterFunc receives the updated roster whenever the sweep changes a room.
type RosterFunc func(roomKey string, roster []Member)

// Tracker owns every presence entry in the process. Rooms are plain string
// keys, so file rooms and project roster rooms live in the same map without
// knowing about each other. A reverse index keeps disconnect cleanup
// proportional to the rooms the user is actually in.
type Tracker struct {
	mu     sync.Mutex
	rooms  map[string]map[uint64]*Entry
	byUser map[uint64]map[string]struct{}

	grace  time.Duration
	notify RosterFunc
}

func NewTracker(grace time.Duration, notify RosterFunc) *Tracker {
	return &Tracker{
		rooms:  make(map[string]map[uint64]*Entry),
		byUser: make(map[uint64]map[string]struct{}),
		grace:  grace,
		notify: notify,
	}
}

// Join upserts an online entry and returns the room's roster. A rejoin during
// the grace window revives the existing entry.
func (t *Tracker) Join(roomKey string, userID uint64, displayName string) []Member {
	t.mu.Lock()
	defer t.mu.Unlock()

	room := t.rooms[roomKey]
	if room == nil {
		room = make(map[uint64]*Entry)
		t.rooms[roomKey] = room
	}
	e := room[userID]
	if e == nil {
		e = &Entry{UserID: userID, Color: ColorFor(userID)}
		room[userID] = e
	}
	e.DisplayName = displayName
	e.Status = StatusOnline
	e.LastSeen = time.Now()

	if t.byUser[userID] == nil {
		t.byUser[userID] = make(map[string]struct{})
	}
	t.byUser[userID][roomKey] = struct{}{}

	return rosterLocked(room)
}

// Leave marks the entry offline. The entry stays in the roster (policy:
// remove from the active count, do not erase history) until the sweep runs.
func (t *Tracker) Leave(roomKey string, userID uint64) []Member {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.markOfflineLocked(roomKey, userID)
	return rosterLocked(t.rooms[roomKey])
}

func (t *Tracker) markOfflineLocked(roomKey string, userID uint64) {
	room := t.rooms[roomKey]
	if room == nil {
		return
	}
	if e := room[userID]; e != nil {
		e.Status = StatusOffline
		e.LastSeen = time.Now()
		e.Cursor = nil
		e.Typing = false
	}
}

// SetStatus flips an entry between online and away. Anything else is ignored;
// offline is owned by Leave/Disconnect.
func (t *Tracker) SetStatus(roomKey string, userID uint64, status Status) []Member {
	t.mu.Lock()
	defer t.mu.Unlock()
	room := t.rooms[roomKey]
	if room != nil {
		if e := room[userID]; e != nil && (status == StatusOnline || status == StatusAway) {
			e.Status = status
			e.LastSeen = time.Now()
		}
	}
	return rosterLocked(room)
}

func (t *Tracker) SetCursor(roomKey string, userID uint64, cursor json.RawMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if room := t.rooms[roomKey]; room != nil {
		if e := room[userID]; e != nil {
			e.Cursor = cursor
			e.LastSeen = time.Now()
		}
	}
}

func (t *Tracker) SetTyping(roomKey string, userID uint64, typing bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if room := t.rooms[roomKey]; room != nil {
		if e := room[userID]; e != nil {
			e.Typing = typing
			e.LastSeen = time.Now()
		}
	}
}

// Disconnect marks the user offline in every room they belong to and returns
// those room keys so the caller can rebroadcast each affected roster. Only
// the reverse index is walked, never the whole room map.
func (t *Tracker) Disconnect(userID uint64) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var affected []string
	for roomKey := range t.byUser[userID] {
		t.markOfflineLocked(roomKey, userID)
		affected = append(affected, roomKey)
	}
	return affected
}

// Roster returns the room's visible members, offline entries included.
func (t *Tracker) Roster(roomKey string) []Member {
	t.mu.Lock()
	defer t.mu.Unlock()
	return rosterLocked(t.rooms[roomKey])
}

// Get returns a copy of one entry, mainly for tests and diagnostics.
func (t *Tracker) Get(roomKey string, userID uint64) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if room := t.rooms[roomKey]; room != nil {
		if e := room[userID]; e != nil {
			return *e, true
		}
	}
	return Entry{}, false
}

func rosterLocked(room map[uint64]*Entry) []Member {
	members := make([]Member, 0, len(room))
	for _, e := range room {
		members = append(members, Member{ID: e.UserID, DisplayName: e.DisplayName})
	}
	return members
}

// Run sweeps on the given interval until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.sweepOnce(now)
		}
	}
}

// sweepOnce purges offline entries whose grace window has elapsed and
// notifies each changed room with its new roster. Empty rooms are dropped.
func (t *Tracker) sweepOnce(now time.Time) {
	t.mu.Lock()
	changed := make(map[string][]Member)
	for roomKey, room := range t.rooms {
		dirty := false
		for userID, e := range room {
			if e.Status == StatusOffline && now.Sub(e.LastSeen) >= t.grace {
				delete(room, userID)
				t.dropUserRoomLocked(userID, roomKey)
				dirty = true
			}
		}
		if len(room) == 0 {
			delete(t.rooms, roomKey)
		}
		if dirty {
			changed[roomKey] = rosterLocked(t.rooms[roomKey])
		}
	}
	t.mu.Unlock()

	if t.notify != nil {
		for roomKey, roster := range changed {
			t.notify(roomKey, roster)
		}
	}
}

func (t *Tracker) dropUserRoomLocked(userID uint64, roomKey string) {
	if set := t.byUser[userID]; set != nil {
		delete(set, roomKey)
		if len(set) == 0 {
			delete(t.byUser, userID)
		}
	}
}
