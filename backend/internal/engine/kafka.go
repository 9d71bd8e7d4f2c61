package engine

import (
	"time"

	"syncServer/backend/internal/ot/delta"
)

// OpEvent is published to Kafka after every committed operation so external
// consumers (indexing, audit, activity feeds) can follow the edit stream.
type OpEvent struct {
	EventType   string      `json:"eventType"` // always "OP_APPLIED"
	ProjectID   string      `json:"projectId"`
	FileID      string      `json:"fileId"`
	OperationID string      `json:"operationId"`
	Version     uint64      `json:"version"`
	AuthorID    uint64      `json:"authorId"`
	BaseVersion uint64      `json:"baseVersion"`
	Ops         delta.Delta `json:"ops,omitempty"`
	AppliedAt   time.Time   `json:"appliedAt"`
}

func (e OpEvent) key() string { return e.ProjectID + "/" + e.FileID }
