package engine

import "syncServer/backend/internal/ot/delta"

// Buffer is the document content abstraction the engine mutates. The piece
// table below is the only implementation today; it exists so a rope or a
// CRDT-backed buffer can slot in without touching the engine.
type Buffer interface {
	Len() int
	Apply(d delta.Delta) error
	String() string
}
