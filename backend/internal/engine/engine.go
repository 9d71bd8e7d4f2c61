package engine

import (
	"context"
	"time"

	"syncServer/backend/internal/ot/delta"
)

// DocumentRef names one collaboratively edited document.
type DocumentRef struct {
	ProjectID string
	FileID    string
}

func (r DocumentRef) String() string { return r.ProjectID + "/" + r.FileID }

// ClientOp is one submitted edit. Content carries a full replacement of the
// document; when Ops is non-empty it takes precedence and is applied as a
// structured delta against the current content. Version is the version the
// client believes it is producing.
type ClientOp struct {
	Version  uint64
	AuthorID uint64
	Content  string
	Ops      delta.Delta
}

// Applied is the engine's result for a committed operation.
type Applied struct {
	OperationID string
	Version     uint64
	Content     string
	AuthorID    uint64
	AppliedAt   time.Time
}

// Snapshot is the full document content at a committed version.
type Snapshot struct {
	Version uint64
	Content string
}

// Store is the narrow durable-store contract the engine consumes.
// Implementations must return an errs NOT_FOUND error for unknown documents.
type Store interface {
	GetContent(ctx context.Context, projectID, fileID string) (string, error)
	ReplaceContent(ctx context.Context, projectID, fileID, content string) error
}

// Engine is the swappable synchronization contract. The current
// implementation is permissive last-write-wins; a stricter OT/CRDT engine
// must fit behind these same four operations.
type Engine interface {
	// Hydrate loads persisted content into memory at version 0. Idempotent:
	// an already-cached ref is left untouched.
	Hydrate(ctx context.Context, ref DocumentRef) error

	// GetSnapshot returns the current content and version for a hydrated ref.
	GetSnapshot(ctx context.Context, ref DocumentRef) (Snapshot, error)

	// Apply commits op against ref: the new content is written to durable
	// storage first, then the in-memory state advances. If persistence fails
	// nothing changes and the error propagates.
	Apply(ctx context.Context, ref DocumentRef, op ClientOp) (Applied, error)

	// Dispose drops the in-memory entry; no-op if absent.
	Dispose(ref DocumentRef)
}
