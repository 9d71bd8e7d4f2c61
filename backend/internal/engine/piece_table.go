package engine

import (
	"errors"
	"strings"

	"syncServer/backend/internal/ot/delta"
)

type bufferKind int

const (
	bufOriginal bufferKind = iota
	bufAdd
)

// piece points at a run of runes in either the original or the add buffer.
type piece struct {
	buf    bufferKind
	offset int
	length int
}

// PieceTable holds document content as an immutable original buffer, an
// append-only add buffer, and an ordered list of pieces over both. Edits only
// rewrite the piece list, never the text already stored.
type PieceTable struct {
	original []rune
	add      []rune
	pieces   []piece
}

func NewPieceTable(initial string) *PieceTable {
	r := []rune(initial)
	return &PieceTable{
		original: r,
		pieces:   []piece{{buf: bufOriginal, offset: 0, length: len(r)}},
	}
}

func (pt *PieceTable) Len() int {
	n := 0
	for _, p := range pt.pieces {
		n += p.length
	}
	return n
}

func (pt *PieceTable) String() string {
	var sb strings.Builder
	for _, p := range pt.pieces {
		switch p.buf {
		case bufOriginal:
			sb.WriteString(string(pt.original[p.offset : p.offset+p.length]))
		case bufAdd:
			sb.WriteString(string(pt.add[p.offset : p.offset+p.length]))
		}
	}
	return sb.String()
}

// Apply walks the delta over the table: retain advances the position, insert
// splits the piece at the position, delete trims or drops pieces.
func (pt *PieceTable) Apply(d delta.Delta) error {
	if d.Len() > pt.Len() {
		return errors.New("delta walks past end of content")
	}
	pos := 0
	for _, op := range d {
		switch op.Kind {
		case delta.KindRetain:
			pos += op.Count

		case delta.KindInsert:
			text := []rune(op.Text)
			start := len(pt.add)
			pt.add = append(pt.add, text...)
			ins := piece{buf: bufAdd, offset: start, length: len(text)}

			idx, offset := pt.locate(pos)
			if idx < len(pt.pieces) {
				cur := pt.pieces[idx]
				left := piece{buf: cur.buf, offset: cur.offset, length: offset}
				right := piece{buf: cur.buf, offset: cur.offset + offset, length: cur.length - offset}

				newPieces := make([]piece, 0, len(pt.pieces)+2)
				newPieces = append(newPieces, pt.pieces[:idx]...)
				if left.length > 0 {
					newPieces = append(newPieces, left)
				}
				newPieces = append(newPieces, ins)
				if right.length > 0 {
					newPieces = append(newPieces, right)
				}
				newPieces = append(newPieces, pt.pieces[idx+1:]...)
				pt.pieces = newPieces
			} else {
				pt.pieces = append(pt.pieces, ins)
			}
			pos += len(text)

		case delta.KindDelete:
			remain := op.Count
			idx, offset := pt.locate(pos)

			for remain > 0 && idx < len(pt.pieces) {
				cur := &pt.pieces[idx]
				can := cur.length - offset
				if can <= 0 {
					idx++
					offset = 0
					continue
				}

				take := remain
				if take > can {
					take = can
				}

				if offset == 0 && take == cur.length {
					// The whole piece goes; idx now names the next piece.
					pt.pieces = append(pt.pieces[:idx], pt.pieces[idx+1:]...)
					offset = 0
				} else {
					leftLen := offset
					rightLen := cur.length - offset - take

					newPieces := make([]piece, 0, len(pt.pieces)+1)
					newPieces = append(newPieces, pt.pieces[:idx]...)
					if leftLen > 0 {
						newPieces = append(newPieces, piece{
							buf:    cur.buf,
							offset: cur.offset,
							length: leftLen,
						})
					}
					if rightLen > 0 {
						newPieces = append(newPieces, piece{
							buf:    cur.buf,
							offset: cur.offset + offset + take,
							length: rightLen,
						})
					}
					newPieces = append(newPieces, pt.pieces[idx+1:]...)
					pt.pieces = newPieces

					if leftLen > 0 {
						idx++
					}
					offset = 0
				}

				remain -= take
			}
		}
	}
	return nil
}

// locate maps a logical rune position to a piece index and an offset inside
// that piece.
func (pt *PieceTable) locate(pos int) (idx int, offset int) {
	cur := 0
	for i, p := range pt.pieces {
		if pos < cur+p.length {
			return i, pos - cur
		}
		cur += p.length
	}
	return len(pt.pieces), 0
}
