package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"syncServer/backend/internal/errs"
	"syncServer/backend/internal/ot/delta"
)

// fakeStore is an in-memory Store with a switchable failure mode.
type fakeStore struct {
	mu       sync.Mutex
	docs     map[string]string
	failNext error
	writes   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]string)}
}

func (s *fakeStore) key(projectID, fileID string) string { return projectID + "/" + fileID }

func (s *fakeStore) GetContent(_ context.Context, projectID, fileID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.docs[s.key(projectID, fileID)]
	if !ok {
		return "", errs.Newf(errs.CodeNotFound, "document %s/%s not found", projectID, fileID)
	}
	return content, nil
}

func (s *fakeStore) ReplaceContent(_ context.Context, projectID, fileID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	if _, ok := s.docs[s.key(projectID, fileID)]; !ok {
		return errs.Newf(errs.CodeNotFound, "document %s/%s not found", projectID, fileID)
	}
	s.docs[s.key(projectID, fileID)] = content
	s.writes++
	return nil
}

func TestHydrateIdempotent(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	st.docs["p1/f1"] = "persisted"
	e := NewMemoryEngine(st, nil)
	ref := DocumentRef{ProjectID: "p1", FileID: "f1"}

	require.NoError(t, e.Hydrate(ctx, ref))
	snap, err := e.GetSnapshot(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, uint64(0), snap.Version)
	require.Equal(t, "persisted", snap.Content)

	// A second hydrate must not reset in-memory state.
	_, err = e.Apply(ctx, ref, ClientOp{Version: 1, AuthorID: 7, Content: "edited"})
	require.NoError(t, err)
	require.NoError(t, e.Hydrate(ctx, ref))
	snap, err = e.GetSnapshot(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, uint64(1), snap.Version)
	require.Equal(t, "edited", snap.Content)
}

func TestHydrateUnknownDocument(t *testing.T) {
	e := NewMemoryEngine(newFakeStore(), nil)
	err := e.Hydrate(context.Background(), DocumentRef{ProjectID: "p1", FileID: "missing"})
	require.Error(t, err)
	require.True(t, errs.IsCode(err, errs.CodeNotFound))
}

func TestSnapshotUnhydrated(t *testing.T) {
	e := NewMemoryEngine(newFakeStore(), nil)
	_, err := e.GetSnapshot(context.Background(), DocumentRef{ProjectID: "p1", FileID: "f1"})
	require.True(t, errs.IsCode(err, errs.CodeNotFound))
}

func TestApplyVersionMonotonic(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	st.docs["p1/f1"] = ""
	e := NewMemoryEngine(st, nil)
	ref := DocumentRef{ProjectID: "p1", FileID: "f1"}
	require.NoError(t, e.Hydrate(ctx, ref))

	// In-order ops advance one at a time.
	a1, err := e.Apply(ctx, ref, ClientOp{Version: 1, AuthorID: 1, Content: "a"})
	require.NoError(t, err)
	require.Equal(t, uint64(1), a1.Version)

	a2, err := e.Apply(ctx, ref, ClientOp{Version: 2, AuthorID: 1, Content: "ab"})
	require.NoError(t, err)
	require.Equal(t, uint64(2), a2.Version)

	// A stale version is accepted (permissive) but never moves backwards.
	a3, err := e.Apply(ctx, ref, ClientOp{Version: 1, AuthorID: 2, Content: "stale"})
	require.NoError(t, err)
	require.Equal(t, uint64(3), a3.Version)

	// A version far ahead jumps the sequence forward.
	a4, err := e.Apply(ctx, ref, ClientOp{Version: 10, AuthorID: 2, Content: "ahead"})
	require.NoError(t, err)
	require.Equal(t, uint64(10), a4.Version)

	snap, err := e.GetSnapshot(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, uint64(10), snap.Version)
	require.Equal(t, "ahead", snap.Content)
}

func TestApplyPersistFailureChangesNothing(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	st.docs["p1/f1"] = "before"
	e := NewMemoryEngine(st, nil)
	ref := DocumentRef{ProjectID: "p1", FileID: "f1"}
	require.NoError(t, e.Hydrate(ctx, ref))

	st.failNext = errors.New("disk on fire")
	_, err := e.Apply(ctx, ref, ClientOp{Version: 1, AuthorID: 1, Content: "after"})
	require.Error(t, err)
	require.True(t, errs.IsCode(err, errs.CodePersistence))

	snap, err := e.GetSnapshot(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, uint64(0), snap.Version)
	require.Equal(t, "before", snap.Content)
	require.Equal(t, "before", st.docs["p1/f1"])
}

func TestApplyDeltaPayload(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	st.docs["p1/f1"] = "Hello world"
	e := NewMemoryEngine(st, nil)
	ref := DocumentRef{ProjectID: "p1", FileID: "f1"}
	require.NoError(t, e.Hydrate(ctx, ref))

	a, err := e.Apply(ctx, ref, ClientOp{
		Version:  1,
		AuthorID: 1,
		Ops: delta.Delta{
			{Kind: delta.KindRetain, Count: 5},
			{Kind: delta.KindInsert, Text: " collaborative"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "Hello collaborative world", a.Content)
	require.Equal(t, "Hello collaborative world", st.docs["p1/f1"])
}

func TestApplyDeltaOutOfBounds(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	st.docs["p1/f1"] = "ab"
	e := NewMemoryEngine(st, nil)
	ref := DocumentRef{ProjectID: "p1", FileID: "f1"}
	require.NoError(t, e.Hydrate(ctx, ref))

	_, err := e.Apply(ctx, ref, ClientOp{
		Version: 1,
		Ops:     delta.Delta{{Kind: delta.KindDelete, Count: 10}},
	})
	require.True(t, errs.IsCode(err, errs.CodeValidation))

	snap, err := e.GetSnapshot(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, "ab", snap.Content)
	require.Equal(t, uint64(0), snap.Version)
}

func TestDispose(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	st.docs["p1/f1"] = "x"
	e := NewMemoryEngine(st, nil)
	ref := DocumentRef{ProjectID: "p1", FileID: "f1"}
	require.NoError(t, e.Hydrate(ctx, ref))

	e.Dispose(ref)
	_, err := e.GetSnapshot(ctx, ref)
	require.True(t, errs.IsCode(err, errs.CodeNotFound))

	// Disposing an absent ref is a no-op.
	e.Dispose(ref)

	// Rehydrate picks the persisted content back up at version 0.
	require.NoError(t, e.Hydrate(ctx, ref))
	snap, err := e.GetSnapshot(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, uint64(0), snap.Version)
	require.Equal(t, "x", snap.Content)
}

func TestApplyIndependentRefs(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	st.docs["p1/f1"] = ""
	st.docs["p1/f2"] = ""
	e := NewMemoryEngine(st, nil)
	r1 := DocumentRef{ProjectID: "p1", FileID: "f1"}
	r2 := DocumentRef{ProjectID: "p1", FileID: "f2"}
	require.NoError(t, e.Hydrate(ctx, r1))
	require.NoError(t, e.Hydrate(ctx, r2))

	// Interleave commits across refs; each ref keeps its own sequence.
	_, err := e.Apply(ctx, r1, ClientOp{Version: 1, Content: "a"})
	require.NoError(t, err)
	_, err = e.Apply(ctx, r2, ClientOp{Version: 1, Content: "x"})
	require.NoError(t, err)
	_, err = e.Apply(ctx, r1, ClientOp{Version: 2, Content: "ab"})
	require.NoError(t, err)

	s1, err := e.GetSnapshot(ctx, r1)
	require.NoError(t, err)
	require.Equal(t, uint64(2), s1.Version)
	require.Equal(t, "ab", s1.Content)

	s2, err := e.GetSnapshot(ctx, r2)
	require.NoError(t, err)
	require.Equal(t, uint64(1), s2.Version)
	require.Equal(t, "x", s2.Content)
}
