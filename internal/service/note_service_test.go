package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haierkeys/onyx-note-sync/internal/domain"
	"github.com/haierkeys/onyx-note-sync/pkg/code"
	"github.com/haierkeys/onyx-note-sync/pkg/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNoteService(t *testing.T, notes *memNotes, store *memStore, gate SyncGate) (NoteService, *workerpool.Pool) {
	t.Helper()
	pool := workerpool.New(&workerpool.Config{MaxWorkers: 2, QueueSize: 8}, nil)
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })
	svc := NewNoteService(notes, store, gate, pool, nil, nil, NoteServiceConfig{Collection: testCollection, Owner: "alice"}, nil)
	return svc, pool
}

func TestNoteService_CreateTriggersPass(t *testing.T) {
	gate := &staticGate{connected: true}
	svc, _ := newTestNoteService(t, newMemNotes(), newMemStore(), gate)

	n, err := svc.Create(context.Background(), "t", "c")
	require.NoError(t, err)
	assert.Positive(t, n.LocalID)
	assert.Equal(t, []string{TriggerReasonLocalCreate}, gate.all())
}

func TestNoteService_UpdatePushesBoundNote(t *testing.T) {
	ctx := context.Background()
	notes, store := newMemNotes(), newMemStore()
	store.seed(domain.Document{ID: "abc", Collection: testCollection, Title: "old", Content: "old"})
	id := notes.put(domain.Note{RemoteID: "abc", Title: "old", Content: "old"})
	gate := &staticGate{connected: true}
	svc, pool := newTestNoteService(t, notes, store, gate)

	n, err := svc.Update(ctx, id, "new", `[{"id":"main","type":"p","content":"hello"}]`)
	require.NoError(t, err)
	assert.Equal(t, "new", n.Title)

	require.NoError(t, pool.Shutdown(ctx))
	doc, _ := store.get("abc")
	assert.Equal(t, "new", doc.Title)
	assert.Equal(t, "hello", doc.Content)
	assert.Empty(t, gate.all())
}

func TestNoteService_UpdateUnboundTriggers(t *testing.T) {
	ctx := context.Background()
	notes, store := newMemNotes(), newMemStore()
	id, _ := notes.CreateNote(ctx, "t", "c")
	gate := &staticGate{connected: true}
	svc, pool := newTestNoteService(t, notes, store, gate)

	_, err := svc.Update(ctx, id, "t2", "c2")
	require.NoError(t, err)
	require.NoError(t, pool.Shutdown(ctx))
	assert.Zero(t, store.updates.Load())
	assert.Equal(t, []string{TriggerReasonLocalUpdate}, gate.all())
}

func TestNoteService_UpdateOfflineStaysLocal(t *testing.T) {
	ctx := context.Background()
	notes, store := newMemNotes(), newMemStore()
	id := notes.put(domain.Note{RemoteID: "abc", Title: "old"})
	svc, pool := newTestNoteService(t, notes, store, &staticGate{connected: false})

	_, err := svc.Update(ctx, id, "new", "c")
	require.NoError(t, err)
	require.NoError(t, pool.Shutdown(ctx))
	assert.Zero(t, store.updates.Load())

	n, _ := notes.GetNote(ctx, id)
	assert.Equal(t, "new", n.Title)
}

func TestNoteService_DeletePropagatesOnce(t *testing.T) {
	ctx := context.Background()
	notes, store := newMemNotes(), newMemStore()
	store.seed(domain.Document{ID: "abc123", Collection: testCollection})
	id := notes.put(domain.Note{RemoteID: "abc123", Title: "t"})
	svc, pool := newTestNoteService(t, notes, store, &staticGate{connected: true})

	require.NoError(t, svc.Delete(ctx, id))
	require.NoError(t, pool.Shutdown(ctx))

	assert.Equal(t, []string{"abc123"}, store.deleteCalls())
	_, err := notes.GetNote(ctx, id)
	assert.True(t, errors.Is(err, code.ErrorNoteNotFound))
	ids, _ := notes.ListTombstones(ctx)
	assert.Empty(t, ids, "successful remote delete clears the tombstone")
}

func TestNoteService_DeleteToleratesRemoteFailure(t *testing.T) {
	ctx := context.Background()
	notes, store := newMemNotes(), newMemStore()
	store.deleteErr = errBoom
	id := notes.put(domain.Note{RemoteID: "abc123", Title: "t"})
	svc, pool := newTestNoteService(t, notes, store, &staticGate{connected: true})

	require.NoError(t, svc.Delete(ctx, id))
	require.NoError(t, pool.Shutdown(ctx))

	// 只调用一次，失败后不重试
	assert.Equal(t, []string{"abc123"}, store.deleteCalls())
	_, err := notes.GetNote(ctx, id)
	assert.Error(t, err)
	ids, _ := notes.ListTombstones(ctx)
	assert.Equal(t, []string{"abc123"}, ids)
}

func TestNoteService_DeleteUnboundStaysLocal(t *testing.T) {
	ctx := context.Background()
	notes, store := newMemNotes(), newMemStore()
	id, _ := notes.CreateNote(ctx, "t", "c")
	svc, pool := newTestNoteService(t, notes, store, nil)

	require.NoError(t, svc.Delete(ctx, id))
	require.NoError(t, pool.Shutdown(ctx))
	assert.Empty(t, store.deleteCalls())

	assert.True(t, errors.Is(svc.Delete(ctx, id), code.ErrorNoteNotFound))
}

func TestNoteService_DeleteWithoutPool(t *testing.T) {
	ctx := context.Background()
	notes, store := newMemNotes(), newMemStore()
	id := notes.put(domain.Note{RemoteID: "abc123"})
	svc := NewNoteService(notes, store, nil, nil, nil, nil, NoteServiceConfig{Collection: testCollection}, nil)

	require.NoError(t, svc.Delete(ctx, id))
	assert.Eventually(t, func() bool { return len(store.deleteCalls()) == 1 }, time.Second, 5*time.Millisecond)
}
