package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func memberIDs(members []Member) []uint64 {
	ids := make([]uint64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestJoinUpsertsUniqueEntry(t *testing.T) {
	tr := NewTracker(time.Minute, nil)
	tr.Join("project:p1", 1, "alice")
	tr.Join("project:p1", 2, "bob")
	// Rejoin must not duplicate the entry.
	roster := tr.Join("project:p1", 1, "alice")

	require.Len(t, roster, 2)
	require.ElementsMatch(t, []uint64{1, 2}, memberIDs(roster))

	e, ok := tr.Get("project:p1", 1)
	require.True(t, ok)
	require.Equal(t, StatusOnline, e.Status)
	require.Equal(t, "alice", e.DisplayName)
	require.NotEmpty(t, e.Color)
}

func TestLeaveKeepsOfflineEntryVisible(t *testing.T) {
	tr := NewTracker(time.Minute, nil)
	tr.Join("project:p1", 1, "alice")
	tr.SetCursor("project:p1", 1, []byte(`{"line":3}`))

	roster := tr.Leave("project:p1", 1)
	// Offline entries stay on the roster until the sweep purges them.
	require.Len(t, roster, 1)

	e, ok := tr.Get("project:p1", 1)
	require.True(t, ok)
	require.Equal(t, StatusOffline, e.Status)
	require.Nil(t, e.Cursor)
	require.False(t, e.Typing)
}

func TestStatusTransitions(t *testing.T) {
	tr := NewTracker(time.Minute, nil)
	tr.Join("project:p1", 1, "alice")

	tr.SetStatus("project:p1", 1, StatusAway)
	e, _ := tr.Get("project:p1", 1)
	require.Equal(t, StatusAway, e.Status)

	tr.SetStatus("project:p1", 1, StatusOnline)
	e, _ = tr.Get("project:p1", 1)
	require.Equal(t, StatusOnline, e.Status)

	// Offline cannot be set via SetStatus; it belongs to Leave/Disconnect.
	tr.SetStatus("project:p1", 1, StatusOffline)
	e, _ = tr.Get("project:p1", 1)
	require.Equal(t, StatusOnline, e.Status)
}

func TestRejoinDuringGraceRevives(t *testing.T) {
	tr := NewTracker(time.Minute, nil)
	tr.Join("project:p1", 1, "alice")
	tr.Leave("project:p1", 1)

	tr.Join("project:p1", 1, "alice")
	e, _ := tr.Get("project:p1", 1)
	require.Equal(t, StatusOnline, e.Status)

	// The revived entry survives a sweep far in the future.
	tr.sweepOnce(time.Now().Add(time.Hour))
	_, ok := tr.Get("project:p1", 1)
	require.True(t, ok)
}

func TestDisconnectMarksOnlyUsersRooms(t *testing.T) {
	tr := NewTracker(time.Minute, nil)
	tr.Join("project:p1", 1, "alice")
	tr.Join("file:p1:f1", 1, "alice")
	tr.Join("project:p2", 2, "bob")

	affected := tr.Disconnect(1)
	require.ElementsMatch(t, []string{"project:p1", "file:p1:f1"}, affected)

	for _, room := range affected {
		e, ok := tr.Get(room, 1)
		require.True(t, ok)
		require.Equal(t, StatusOffline, e.Status)
	}

	e, _ := tr.Get("project:p2", 2)
	require.Equal(t, StatusOnline, e.Status)
}

func TestSweepPurgesAfterGraceWindow(t *testing.T) {
	var notified []string
	tr := NewTracker(time.Minute, func(roomKey string, roster []Member) {
		notified = append(notified, roomKey)
	})
	tr.Join("project:p1", 1, "alice")
	tr.Join("project:p1", 2, "bob")
	tr.Leave("project:p1", 1)

	// Before the window elapses nothing is purged.
	tr.sweepOnce(time.Now().Add(30 * time.Second))
	require.Len(t, tr.Roster("project:p1"), 2)
	require.Empty(t, notified)

	tr.sweepOnce(time.Now().Add(2 * time.Minute))
	roster := tr.Roster("project:p1")
	require.Len(t, roster, 1)
	require.Equal(t, []uint64{2}, memberIDs(roster))
	require.Equal(t, []string{"project:p1"}, notified)

	// The reverse index forgot the purged user.
	require.Empty(t, tr.Disconnect(1))
}

func TestSweepDropsEmptyRooms(t *testing.T) {
	tr := NewTracker(time.Minute, nil)
	tr.Join("project:p1", 1, "alice")
	tr.Leave("project:p1", 1)

	tr.sweepOnce(time.Now().Add(2 * time.Minute))
	require.Empty(t, tr.Roster("project:p1"))
}
