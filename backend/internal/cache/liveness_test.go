package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLiveness(t *testing.T) LivenessCache {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLiveness(rdb)
}

func TestTouchAndAliveMembers(t *testing.T) {
	ctx := context.Background()
	l := newTestLiveness(t)

	require.NoError(t, l.Touch(ctx, "project:p1", 1, "alice", time.Minute))
	require.NoError(t, l.Touch(ctx, "project:p1", 2, "bob", time.Minute))

	members, err := l.AliveMembers(ctx, "project:p1")
	require.NoError(t, err)
	require.Len(t, members, 2)

	byID := make(map[uint64]string)
	for _, m := range members {
		byID[m.UserID] = m.DisplayName
	}
	require.Equal(t, "alice", byID[1])
	require.Equal(t, "bob", byID[2])
}

func TestTouchRefreshesExistingMember(t *testing.T) {
	ctx := context.Background()
	l := newTestLiveness(t)

	require.NoError(t, l.Touch(ctx, "project:p1", 1, "alice", time.Minute))
	// Same call path refreshes the TTL and may rename.
	require.NoError(t, l.Touch(ctx, "project:p1", 1, "alice2", time.Hour))

	members, err := l.AliveMembers(ctx, "project:p1")
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, "alice2", members[0].DisplayName)
}

func TestExpiredMembersArePurged(t *testing.T) {
	ctx := context.Background()
	l := newTestLiveness(t)

	// A logical TTL in the past marks the member expired immediately.
	require.NoError(t, l.Touch(ctx, "project:p1", 1, "alice", -time.Second))
	require.NoError(t, l.Touch(ctx, "project:p1", 2, "bob", time.Minute))

	members, err := l.AliveMembers(ctx, "project:p1")
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, uint64(2), members[0].UserID)
}

func TestRemoveMember(t *testing.T) {
	ctx := context.Background()
	l := newTestLiveness(t)

	require.NoError(t, l.Touch(ctx, "project:p1", 1, "alice", time.Minute))
	require.NoError(t, l.Remove(ctx, "project:p1", 1))

	members, err := l.AliveMembers(ctx, "project:p1")
	require.NoError(t, err)
	require.Empty(t, members)
}

func TestAliveMembersEmptyRoom(t *testing.T) {
	ctx := context.Background()
	l := newTestLiveness(t)

	members, err := l.AliveMembers(ctx, "project:ghost")
	require.NoError(t, err)
	require.Empty(t, members)
}

func TestCursorRoundtrip(t *testing.T) {
	ctx := context.Background()
	l := newTestLiveness(t)

	payload := []byte(`{"line":3,"ch":14}`)
	require.NoError(t, l.SetCursor(ctx, "file:p1:f1", 1, payload, time.Minute))

	got, err := l.GetCursor(ctx, "file:p1:f1", 1)
	require.NoError(t, err)
	require.JSONEq(t, string(payload), string(got))

	// Cursors are keyed per room, not per user globally.
	_, err = l.GetCursor(ctx, "file:p1:f2", 1)
	require.ErrorIs(t, err, redis.Nil)
}
