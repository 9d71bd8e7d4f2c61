package presence

import (
	"hash/fnv"
	"strconv"
)

// palette holds the display colors cursors and avatars are drawn in. Both
// server and clients derive the same color from the user id, so it never has
// to travel on the wire.
var palette = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8",
	"#f58231", "#911eb4", "#46f0f0", "#f032e6",
	"#bcf60c", "#fabebe", "#008080", "#e6beff",
	"#9a6324", "#800000", "#aaffc3", "#808000",
}

// ColorFor maps a user id to a stable palette color. Pure and stateless.
func ColorFor(userID uint64) string {
	h := fnv.New32a()
	h.Write([]byte(strconv.FormatUint(userID, 10)))
	return palette[h.Sum32()%uint32(len(palette))]
}
