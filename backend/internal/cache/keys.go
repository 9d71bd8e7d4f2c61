package cache

import "fmt"

// Key semantics:
// - roomKey(room):  alive members of a room (ZSet<userId, expireAtUnix>, score = expireAt)
// - namesKey(room): userId -> displayName map for the room (Hash)
// - cursorKey:      one user's last cursor in a room (String holding JSON, real TTL)

const (
	keyRoomFmt   = "liveness:room:{room:%s}"
	keyNamesFmt  = "liveness:room:names:{room:%s}"
	keyCursorFmt = "liveness:cursor:{room:%s}:%d"
)

func roomKey(room string) string { return fmt.Sprintf(keyRoomFmt, room) }

func namesKey(room string) string { return fmt.Sprintf(keyNamesFmt, room) }

func cursorKey(room string, userID uint64) string {
	return fmt.Sprintf(keyCursorFmt, room, userID)
}
