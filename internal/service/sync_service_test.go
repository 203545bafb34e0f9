package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/haierkeys/onyx-note-sync/internal/domain"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCollection = "notes"

var syncBase = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

var testScope = BindingScope("", testCollection, "alice")

func newTestSync(notes *memNotes, store *memStore, sweep bool) (SyncService, *EventBus) {
	bus := NewEventBus(nil)
	svc := NewSyncService(notes, store, nil, nil, bus, nil, SyncConfig{
		Collection:         testCollection,
		Owner:              "alice",
		DeviceNamespace:    uuid.NameSpaceOID,
		SweepRemoteDeletes: sweep,
	}, nil)
	return svc, bus
}

func TestReconcile_PushIdempotentUnderDoubleCall(t *testing.T) {
	ctx := context.Background()
	notes, store := newMemNotes(), newMemStore()
	a, _ := notes.CreateNote(ctx, "a", "one")
	b, _ := notes.CreateNote(ctx, "b", "two")
	svc, _ := newTestSync(notes, store, true)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Reconcile(ctx)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 2, store.creates.Load())
	for _, id := range []int64{a, b} {
		n, err := notes.GetNote(ctx, id)
		require.NoError(t, err)
		assert.True(t, n.IsBound())
		doc, ok := store.get(n.RemoteID)
		require.True(t, ok)
		assert.Equal(t, "alice", doc.Owner)
		assert.Equal(t, svc.ClientKey(id), doc.ClientKey)
	}

	r := svc.Reconcile(ctx)
	assert.Zero(t, r.Pushed)
	assert.EqualValues(t, 2, store.creates.Load())
}

func TestReconcile_PushFailureRetriedNextPass(t *testing.T) {
	ctx := context.Background()
	notes, store := newMemNotes(), newMemStore()
	id, _ := notes.CreateNote(ctx, "a", "one")
	svc, _ := newTestSync(notes, store, true)

	store.createErr = errBoom
	r := svc.Reconcile(ctx)
	assert.False(t, r.Skipped)
	assert.Equal(t, 1, r.Failed)
	n, _ := notes.GetNote(ctx, id)
	assert.False(t, n.IsBound())

	store.mu.Lock()
	store.createErr = nil
	store.mu.Unlock()
	r = svc.Reconcile(ctx)
	assert.Equal(t, 1, r.Pushed)
	assert.Zero(t, r.Failed)
}

func TestReconcile_PullIdempotent(t *testing.T) {
	ctx := context.Background()
	notes, store := newMemNotes(), newMemStore()
	store.seed(domain.Document{ID: "r1", Collection: testCollection, Title: "one", Content: "1", Updated: syncBase})
	store.seed(domain.Document{ID: "r2", Collection: testCollection, Title: "two", Content: "2", Updated: syncBase.Add(time.Minute)})
	svc, _ := newTestSync(notes, store, true)

	r := svc.Reconcile(ctx)
	assert.Equal(t, 2, r.Pulled)

	n, err := notes.GetNoteByRemoteID(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, "two", n.Title)
	assert.True(t, syncBase.Add(time.Minute).Equal(n.UpdatedAt))

	r = svc.Reconcile(ctx)
	assert.Zero(t, r.Pulled)
	assert.Equal(t, 2, r.Unchanged)
	assert.Equal(t, 2, notes.count())
	assert.Zero(t, store.creates.Load())
}

func TestReconcile_ConflictWithinToleranceIsNoop(t *testing.T) {
	ctx := context.Background()
	notes, store := newMemNotes(), newMemStore()
	id := notes.put(domain.Note{RemoteID: "abc", Title: "local", Content: "local body", UpdatedAt: syncBase})
	store.seed(domain.Document{ID: "abc", Collection: testCollection, Title: "remote", Content: "remote body", Updated: syncBase.Add(1500 * time.Millisecond)})
	svc, _ := newTestSync(notes, store, true)

	r := svc.Reconcile(ctx)
	assert.Zero(t, r.Overwritten)
	assert.Equal(t, 1, r.Unchanged)

	n, _ := notes.GetNote(ctx, id)
	assert.Equal(t, "local body", n.Content)
	assert.Zero(t, store.updates.Load())
}

func TestReconcile_ConflictPastToleranceOverwritesLocal(t *testing.T) {
	ctx := context.Background()
	notes, store := newMemNotes(), newMemStore()
	id := notes.put(domain.Note{RemoteID: "abc", Title: "local", Content: "local body", UpdatedAt: syncBase})
	store.seed(domain.Document{ID: "abc", Collection: testCollection, Title: "remote", Content: "remote body", Updated: syncBase.Add(5000 * time.Millisecond)})
	svc, _ := newTestSync(notes, store, true)

	r := svc.Reconcile(ctx)
	assert.Equal(t, 1, r.Overwritten)

	n, _ := notes.GetNote(ctx, id)
	assert.Equal(t, "remote", n.Title)
	assert.Equal(t, "remote body", n.Content)
	// 对账阶段从不推送
	assert.Zero(t, store.updates.Load())
}

func TestReconcile_ConcurrentCallIsNoop(t *testing.T) {
	ctx := context.Background()
	notes, store := newMemNotes(), newMemStore()
	_, _ = notes.CreateNote(ctx, "a", "one")
	store.listGate = make(chan struct{})
	store.listEntered = make(chan struct{}, 1)
	svc, _ := newTestSync(notes, store, true)

	first := make(chan domain.SyncReport, 1)
	go func() { first <- svc.Reconcile(ctx) }()

	select {
	case <-store.listEntered:
	case <-time.After(time.Second):
		t.Fatal("first pass never reached the remote")
	}
	assert.True(t, svc.IsRunning())

	second := svc.Reconcile(ctx)
	assert.True(t, second.Skipped)
	assert.Equal(t, SkipReasonRunning, second.SkipReason)
	assert.Zero(t, store.creates.Load())

	close(store.listGate)
	r := <-first
	assert.Equal(t, 1, r.Pushed)
	assert.False(t, svc.IsRunning())
	assert.EqualValues(t, 1, store.creates.Load())
}

func TestReconcile_LegacyContentRoundTrip(t *testing.T) {
	ctx := context.Background()
	notes, store := newMemNotes(), newMemStore()
	id, _ := notes.CreateNote(ctx, "t", `[{"id":"main","type":"p","content":"hello"}]`)
	envelope := `{"iv":"aa","salt":"bb","data":"cc"}`
	lockedID, _ := notes.CreateNote(ctx, "locked", envelope)
	svc, _ := newTestSync(notes, store, true)

	svc.Reconcile(ctx)
	n, _ := notes.GetNote(ctx, id)
	doc, ok := store.get(n.RemoteID)
	require.True(t, ok)
	assert.Equal(t, "hello", doc.Content)

	locked, _ := notes.GetNote(ctx, lockedID)
	lockedDoc, _ := store.get(locked.RemoteID)
	assert.Equal(t, envelope, lockedDoc.Content)

	// 另一台设备拉取得到展开后的内容
	other := newMemNotes()
	otherSvc, _ := newTestSync(other, store, true)
	r := otherSvc.Reconcile(ctx)
	assert.Equal(t, 2, r.Pulled)
	pulled, err := other.GetNoteByRemoteID(ctx, n.RemoteID)
	require.NoError(t, err)
	assert.Equal(t, "hello", pulled.Content)
}

func TestReconcile_FetchFailureSkipsAndNotifies(t *testing.T) {
	ctx := context.Background()
	notes, store := newMemNotes(), newMemStore()
	_, _ = notes.CreateNote(ctx, "a", "one")
	store.listErr = errBoom
	svc, bus := newTestSync(notes, store, true)
	events, cancel := bus.Subscribe(4)
	defer cancel()

	r := svc.Reconcile(ctx)
	assert.True(t, r.Skipped)
	assert.Equal(t, SkipReasonFetchFailed, r.SkipReason)
	assert.Zero(t, store.creates.Load())

	select {
	case ev := <-events:
		assert.IsType(t, NotesChangedEvent{}, ev)
	default:
		t.Fatal("notes changed not published")
	}
}

func TestReconcile_AlwaysNotifies(t *testing.T) {
	notes, store := newMemNotes(), newMemStore()
	svc, bus := newTestSync(notes, store, true)
	events, cancel := bus.Subscribe(4)
	defer cancel()

	svc.Reconcile(context.Background())
	assert.Len(t, events, 1)
}

func TestReconcile_TombstoneBlocksResurrection(t *testing.T) {
	ctx := context.Background()
	notes, store := newMemNotes(), newMemStore()
	id := notes.put(domain.Note{RemoteID: "abc123", RemoteScope: testScope, Title: "t", Content: "c", UpdatedAt: syncBase})
	store.seed(domain.Document{ID: "abc123", Collection: testCollection, Title: "t", Content: "c", Updated: syncBase})
	store.seed(domain.Document{ID: "other", Collection: testCollection, Title: "o", Content: "o", Updated: syncBase})
	svc, _ := newTestSync(notes, store, true)

	// 远端删除失败后留下孤儿文档
	_, err := notes.DeleteNote(ctx, id)
	require.NoError(t, err)

	r := svc.Reconcile(ctx)
	assert.Equal(t, 1, r.Pulled)
	_, err = notes.GetNoteByRemoteID(ctx, "abc123")
	assert.Error(t, err)

	store.remove("abc123")
	svc.Reconcile(ctx)
	ids, _ := notes.ListTombstones(ctx)
	assert.Empty(t, ids)
}

func TestReconcile_SweepRemoteDeletes(t *testing.T) {
	ctx := context.Background()

	setup := func() (*memNotes, *memStore) {
		notes, store := newMemNotes(), newMemStore()
		notes.put(domain.Note{RemoteID: "keep", RemoteScope: testScope, Title: "k", UpdatedAt: syncBase})
		notes.put(domain.Note{RemoteID: "gone", RemoteScope: testScope, Title: "g", UpdatedAt: syncBase})
		store.seed(domain.Document{ID: "keep", Collection: testCollection, Title: "k", Updated: syncBase})
		return notes, store
	}

	t.Run("enabled", func(t *testing.T) {
		notes, store := setup()
		svc, _ := newTestSync(notes, store, true)
		r := svc.Reconcile(ctx)
		assert.Equal(t, 1, r.Swept)
		_, err := notes.GetNoteByRemoteID(ctx, "gone")
		assert.Error(t, err)
		_, err = notes.GetNoteByRemoteID(ctx, "keep")
		assert.NoError(t, err)
	})

	t.Run("disabled", func(t *testing.T) {
		notes, store := setup()
		svc, _ := newTestSync(notes, store, false)
		r := svc.Reconcile(ctx)
		assert.Zero(t, r.Swept)
		assert.Equal(t, 2, notes.count())
	})

	t.Run("empty remote list", func(t *testing.T) {
		notes, store := setup()
		store.remove("keep")
		svc, _ := newTestSync(notes, store, true)
		r := svc.Reconcile(ctx)
		assert.Zero(t, r.Swept)
		assert.Equal(t, 2, notes.count())
	})
}

func TestReconcile_SweepKeepsNotesBoundInOtherScope(t *testing.T) {
	ctx := context.Background()
	notes, store := newMemNotes(), newMemStore()
	oldScope := BindingScope("", "archive", "alice")
	notes.put(domain.Note{RemoteID: "old-1", RemoteScope: oldScope, Title: "o1", UpdatedAt: syncBase})
	notes.put(domain.Note{RemoteID: "old-2", RemoteScope: BindingScope("", testCollection, "bob"), Title: "o2", UpdatedAt: syncBase})
	notes.put(domain.Note{RemoteID: "legacy", Title: "l", UpdatedAt: syncBase})
	store.seed(domain.Document{ID: "new-1", Collection: testCollection, Title: "n1", Content: "n", Updated: syncBase})
	svc, _ := newTestSync(notes, store, true)

	r := svc.Reconcile(ctx)
	assert.Zero(t, r.Swept)
	assert.Zero(t, r.Failed)
	assert.Equal(t, 1, r.Pulled)
	for _, id := range []string{"old-1", "old-2", "legacy", "new-1"} {
		_, err := notes.GetNoteByRemoteID(ctx, id)
		assert.NoError(t, err, id)
	}
	assert.Equal(t, oldScope, notes.scopeOf("old-1"))
	assert.Empty(t, notes.scopeOf("legacy"))
	assert.Equal(t, testScope, notes.scopeOf("new-1"))

	// 第二轮同样不会清除
	r = svc.Reconcile(ctx)
	assert.Zero(t, r.Swept)
	assert.Equal(t, 4, notes.count())
}

func TestReconcile_ListedBindingJoinsActiveScope(t *testing.T) {
	ctx := context.Background()
	notes, store := newMemNotes(), newMemStore()
	notes.put(domain.Note{RemoteID: "shared", Title: "s", Content: "s", UpdatedAt: syncBase})
	notes.put(domain.Note{Title: "fresh", Content: "f", UpdatedAt: syncBase})
	store.seed(domain.Document{ID: "shared", Collection: testCollection, Title: "s", Content: "s", Updated: syncBase})
	svc, _ := newTestSync(notes, store, true)

	r := svc.Reconcile(ctx)
	require.Equal(t, 1, r.Pushed)
	assert.Equal(t, testScope, notes.scopeOf("shared"), "listed in the active collection")

	all, err := notes.ListNotes(ctx)
	require.NoError(t, err)
	for _, n := range all {
		assert.Equal(t, testScope, n.RemoteScope, n.Title)
	}

	// 绑定进入当前范围后，远端删除会被清除
	store.remove("shared")
	r = svc.Reconcile(ctx)
	assert.Equal(t, 1, r.Swept)
	_, err = notes.GetNoteByRemoteID(ctx, "shared")
	assert.Error(t, err)
}

func TestReconcile_SweepReadsLocalBeforeRemote(t *testing.T) {
	ctx := context.Background()
	notes, store := newMemNotes(), newMemStore()
	notes.put(domain.Note{RemoteID: "a", RemoteScope: testScope, Title: "a", UpdatedAt: syncBase})
	store.seed(domain.Document{ID: "a", Collection: testCollection, Title: "a", Updated: syncBase})
	store.listHook = func() {
		// 远端列表读取时本地已完成读取，此时绑定的笔记不属于本轮的清除对象
		notes.put(domain.Note{RemoteID: "late", RemoteScope: testScope, Title: "late", UpdatedAt: syncBase})
	}
	svc, _ := newTestSync(notes, store, true)

	r := svc.Reconcile(ctx)
	assert.Zero(t, r.Swept)
	_, err := notes.GetNoteByRemoteID(ctx, "late")
	assert.NoError(t, err)
}

func TestClientKey_Deterministic(t *testing.T) {
	svc, _ := newTestSync(newMemNotes(), newMemStore(), true)
	assert.Equal(t, svc.ClientKey(7), svc.ClientKey(7))
	assert.NotEqual(t, svc.ClientKey(7), svc.ClientKey(8))

	other := NewSyncService(newMemNotes(), newMemStore(), nil, nil, nil, nil, SyncConfig{DeviceNamespace: uuid.NameSpaceURL}, nil)
	assert.NotEqual(t, svc.ClientKey(7), other.ClientKey(7))
}

// 无论执行多少次对账，每条本地笔记只推送一次
func TestProperty1_EachNotePushedOnce(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("creates == notes after repeated passes", prop.ForAll(
		func(count, passes int) bool {
			ctx := context.Background()
			notes, store := newMemNotes(), newMemStore()
			for i := 0; i < count; i++ {
				_, _ = notes.CreateNote(ctx, "t", "c")
			}
			svc, _ := newTestSync(notes, store, true)
			for i := 0; i < passes; i++ {
				svc.Reconcile(ctx)
			}
			return int(store.creates.Load()) == count && notes.count() == count
		},
		gen.IntRange(0, 20),
		gen.IntRange(1, 4),
	))

	properties.TestingRun(t)
}

// 多次对账后拉取的笔记数量等于远端文档数量
func TestProperty2_PullConverges(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("local count == remote count", prop.ForAll(
		func(count, passes int) bool {
			ctx := context.Background()
			notes, store := newMemNotes(), newMemStore()
			for i := 0; i < count; i++ {
				_, _ = store.CreateDocument(ctx, testCollection, domain.DocumentFields{Title: "t"})
			}
			created := store.creates.Load()
			svc, _ := newTestSync(notes, store, true)
			for i := 0; i < passes; i++ {
				svc.Reconcile(ctx)
			}
			return notes.count() == count && store.creates.Load() == created
		},
		gen.IntRange(0, 20),
		gen.IntRange(1, 4),
	))

	properties.TestingRun(t)
}
