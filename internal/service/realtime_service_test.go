package service

import (
	"context"
	"testing"

	"github.com/haierkeys/onyx-note-sync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealtimeListener_SubscribesOnce(t *testing.T) {
	store := newMemStore()
	l := NewRealtimeListener(newMemNotes(), store, &recordingSyncer{}, nil, testCollection, nil)

	require.NoError(t, l.Start(context.Background()))
	require.NoError(t, l.Start(context.Background()))
	assert.EqualValues(t, 1, store.subscribes.Load())
	assert.True(t, l.Active())

	sub := store.lastSub()
	l.Stop()
	assert.True(t, sub.unsubscribed.Load())
	assert.False(t, l.Active())
	l.Stop()
}

func TestRealtimeListener_ResubscribesAfterDrop(t *testing.T) {
	store := newMemStore()
	l := NewRealtimeListener(newMemNotes(), store, &recordingSyncer{}, nil, testCollection, nil)
	require.NoError(t, l.Start(context.Background()))

	store.lastSub().drop()
	assert.False(t, l.Active())

	require.NoError(t, l.Start(context.Background()))
	assert.EqualValues(t, 2, store.subscribes.Load())
	assert.True(t, l.Active())
}

func TestRealtimeListener_CreateAndUpdateTrigger(t *testing.T) {
	store := newMemStore()
	syncer := &recordingSyncer{}
	l := NewRealtimeListener(newMemNotes(), store, syncer, nil, testCollection, nil)
	require.NoError(t, l.Start(context.Background()))

	sub := store.lastSub()
	sub.emit(domain.RemoteEvent{Action: domain.RemoteActionCreate, Document: domain.Document{ID: "a"}})
	sub.emit(domain.RemoteEvent{Action: domain.RemoteActionUpdate, Document: domain.Document{ID: "a"}})
	assert.Equal(t, []string{TriggerReasonRealtime, TriggerReasonRealtime}, syncer.all())
}

func TestRealtimeListener_DeleteBoundNote(t *testing.T) {
	ctx := context.Background()
	notes, store := newMemNotes(), newMemStore()
	notes.put(domain.Note{RemoteID: "abc", Title: "t"})
	keep := notes.put(domain.Note{RemoteID: "keep", Title: "k"})
	bus := NewEventBus(nil)
	events, cancel := bus.Subscribe(4)
	defer cancel()
	syncer := &recordingSyncer{}
	l := NewRealtimeListener(notes, store, syncer, bus, testCollection, nil)
	require.NoError(t, l.Start(ctx))

	store.lastSub().emit(domain.RemoteEvent{Action: domain.RemoteActionDelete, Document: domain.Document{ID: "abc"}})

	assert.Equal(t, 1, notes.count())
	_, err := notes.GetNote(ctx, keep)
	assert.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Empty(t, syncer.all(), "deletes bypass the orchestrator")
}

func TestRealtimeListener_DeleteUnknownIsNoop(t *testing.T) {
	ctx := context.Background()
	notes, store := newMemNotes(), newMemStore()
	notes.put(domain.Note{RemoteID: "abc", Title: "t"})
	bus := NewEventBus(nil)
	events, cancel := bus.Subscribe(4)
	defer cancel()
	l := NewRealtimeListener(notes, store, &recordingSyncer{}, bus, testCollection, nil)
	require.NoError(t, l.Start(ctx))

	store.lastSub().emit(domain.RemoteEvent{Action: domain.RemoteActionDelete, Document: domain.Document{ID: "xyz"}})

	assert.Equal(t, 1, notes.count())
	_, err := notes.GetNoteByRemoteID(ctx, "abc")
	assert.NoError(t, err)
	// 刷新信号仍然发出
	assert.Len(t, events, 1)
}
