package cache

import (
	"context"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// LivenessCache shares heartbeat liveness and cursors across server
// instances. The in-process presence tracker stays authoritative for roster
// broadcasts; this cache lets another instance (or an ops probe) see who is
// alive and where their cursor is.
type LivenessCache interface {
	Touch(ctx context.Context, room string, userID uint64, displayName string, ttl time.Duration) error
	AliveMembers(ctx context.Context, room string) ([]AliveMember, error)
	Remove(ctx context.Context, room string, userID uint64) error
	SetCursor(ctx context.Context, room string, userID uint64, jsonData []byte, ttl time.Duration) error
	GetCursor(ctx context.Context, room string, userID uint64) ([]byte, error)
}

type AliveMember struct {
	UserID      uint64
	DisplayName string
}

type redisLiveness struct {
	rdb redis.UniversalClient
}

func NewRedisLiveness(rdb redis.UniversalClient) LivenessCache {
	return &redisLiveness{rdb: rdb}
}

// Touch upserts the member with a refreshed logical TTL. Refreshing on every
// heartbeat is the same call as the initial add.
func (l *redisLiveness) Touch(ctx context.Context, room string, userID uint64, displayName string, ttl time.Duration) error {
	tx := l.rdb.TxPipeline()
	// ZSET score is expireAt (unix seconds), a logical TTL per member.
	expireAt := time.Now().Add(ttl).Unix()
	tx.ZAdd(ctx, roomKey(room), redis.Z{Score: float64(expireAt), Member: userID})
	tx.HSet(ctx, namesKey(room), userID, displayName)
	_, err := tx.Exec(ctx)
	return err
}

func (l *redisLiveness) Remove(ctx context.Context, room string, userID uint64) error {
	tx := l.rdb.TxPipeline()
	tx.ZRem(ctx, roomKey(room), userID)
	tx.HDel(ctx, namesKey(room), strconv.FormatUint(userID, 10))
	_, err := tx.Exec(ctx)
	return err
}

func (l *redisLiveness) SetCursor(ctx context.Context, room string, userID uint64, jsonData []byte, ttl time.Duration) error {
	return l.rdb.Set(ctx, cursorKey(room, userID), jsonData, ttl).Err()
}

func (l *redisLiveness) GetCursor(ctx context.Context, room string, userID uint64) ([]byte, error) {
	return l.rdb.Get(ctx, cursorKey(room, userID)).Bytes()
}

// expireScript drops members whose logical TTL has passed, atomically across
// the ZSET and the name hash.
const expireScript = `
local expired = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
if #expired > 0 then
	redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
	redis.call("HDEL", KEYS[2], unpack(expired))
end
return #expired
`

var expireMembers = redis.NewScript(expireScript)

func (l *redisLiveness) AliveMembers(ctx context.Context, room string) ([]AliveMember, error) {
	// step1: purge expired members, then read the survivors.
	now := time.Now().Unix()
	_, err := expireMembers.Run(ctx, l.rdb, []string{roomKey(room), namesKey(room)}, now).Int()
	if err != nil && err != redis.Nil {
		return nil, err
	}

	aliveIDs, err := l.rdb.ZRangeByScore(ctx, roomKey(room), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now, 10),
		Max: "+inf",
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	if len(aliveIDs) == 0 {
		return nil, nil
	}

	ids := make([]uint64, 0, len(aliveIDs))
	for _, raw := range aliveIDs {
		uid, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, uid)
	}

	// step2: batch-resolve display names.
	names, err := l.rdb.HMGet(ctx, namesKey(room), aliveIDs...).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	members := make([]AliveMember, 0, len(ids))
	for i, v := range names {
		name := ""
		if v != nil {
			name, _ = v.(string)
		}
		members = append(members, AliveMember{UserID: ids[i], DisplayName: name})
	}
	return members, nil
}
