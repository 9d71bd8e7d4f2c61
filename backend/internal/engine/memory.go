package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"syncServer/backend/internal/errs"
)

type docState struct {
	mu      sync.Mutex
	version uint64
	buf     Buffer
}

// MemoryEngine keeps the authoritative version and content of every hydrated
// document in memory and writes through to the durable store on every apply.
type MemoryEngine struct {
	mu   sync.RWMutex
	docs map[DocumentRef]*docState

	store      Store
	dispatcher *KafkaDispatcher // optional op-event fanout
}

func NewMemoryEngine(store Store, dispatcher *KafkaDispatcher) *MemoryEngine {
	return &MemoryEngine{
		docs:       make(map[DocumentRef]*docState),
		store:      store,
		dispatcher: dispatcher,
	}
}

func (e *MemoryEngine) lookup(ref DocumentRef) *docState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.docs[ref]
}

func (e *MemoryEngine) Hydrate(ctx context.Context, ref DocumentRef) error {
	if e.lookup(ref) != nil {
		return nil
	}
	content, err := e.store.GetContent(ctx, ref.ProjectID, ref.FileID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	// Another hydrate may have raced us here; keep the existing state.
	if e.docs[ref] == nil {
		e.docs[ref] = &docState{buf: NewPieceTable(content)}
	}
	return nil
}

func (e *MemoryEngine) GetSnapshot(ctx context.Context, ref DocumentRef) (Snapshot, error) {
	ds := e.lookup(ref)
	if ds == nil {
		return Snapshot{}, errs.Newf(errs.CodeNotFound, "document %s not hydrated", ref)
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return Snapshot{Version: ds.version, Content: ds.buf.String()}, nil
}

// Apply serializes commits per ref under the doc lock. Version skew is
// permissive: a mismatched op is logged and accepted, and the next version is
// max(current+1, op.Version) so the sequence never goes backwards.
func (e *MemoryEngine) Apply(ctx context.Context, ref DocumentRef, op ClientOp) (Applied, error) {
	ds := e.lookup(ref)
	if ds == nil {
		return Applied{}, errs.Newf(errs.CodeNotFound, "document %s not hydrated", ref)
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if op.Version != ds.version+1 {
		log.Printf("version skew on %s: have %d, op claims %d (accepted)", ref, ds.version, op.Version)
	}
	next := ds.version + 1
	if op.Version > next {
		next = op.Version
	}

	// Build the candidate content without touching current state so a failed
	// persist leaves everything as it was.
	var nb Buffer
	if len(op.Ops) > 0 {
		pt := NewPieceTable(ds.buf.String())
		if err := pt.Apply(op.Ops); err != nil {
			return Applied{}, errs.Wrap(errs.CodeValidation, "delta out of bounds", err)
		}
		nb = pt
	} else {
		nb = NewPieceTable(op.Content)
	}
	content := nb.String()

	if err := e.store.ReplaceContent(ctx, ref.ProjectID, ref.FileID, content); err != nil {
		if errs.IsCode(err, errs.CodeNotFound) {
			return Applied{}, err
		}
		return Applied{}, errs.Wrap(errs.CodePersistence, "write failed", err)
	}

	ds.version = next
	ds.buf = nb

	applied := Applied{
		OperationID: uuid.NewString(),
		Version:     next,
		Content:     content,
		AuthorID:    op.AuthorID,
		AppliedAt:   time.Now(),
	}

	if e.dispatcher != nil {
		evt := OpEvent{
			EventType:   "OP_APPLIED",
			ProjectID:   ref.ProjectID,
			FileID:      ref.FileID,
			OperationID: applied.OperationID,
			Version:     applied.Version,
			AuthorID:    applied.AuthorID,
			BaseVersion: op.Version,
			Ops:         op.Ops,
			AppliedAt:   applied.AppliedAt,
		}
		if err := e.dispatcher.Enqueue(ctx, evt); err != nil {
			// Fanout is best effort; the commit stands.
			log.Printf("op event dropped for %s rev=%d: %v", ref, applied.Version, err)
		}
	}

	return applied, nil
}

func (e *MemoryEngine) Dispose(ref DocumentRef) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.docs, ref)
}
