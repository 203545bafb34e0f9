package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/haierkeys/onyx-note-sync/internal/dao"
	"github.com/haierkeys/onyx-note-sync/internal/domain"
	"github.com/haierkeys/onyx-note-sync/internal/dto"
	"github.com/haierkeys/onyx-note-sync/pkg/code"
	"github.com/haierkeys/onyx-note-sync/pkg/writequeue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type broadcastRecord struct {
	owner      string
	collection string
	action     domain.RemoteAction
	id         string
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []broadcastRecord
}

func (b *recordingBroadcaster) BroadcastRecord(owner, collection string, action domain.RemoteAction, doc *domain.Document) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, broadcastRecord{owner, collection, action, doc.ID})
}

func newTestCollectionService(t *testing.T) (CollectionService, *recordingBroadcaster) {
	t.Helper()
	db, err := dao.NewDBEngineWithConfig(dao.DatabaseConfig{
		Type: "sqlite",
		Path: filepath.Join(t.TempDir(), "server.db"),
	}, nil)
	require.NoError(t, err)
	wq := writequeue.New(nil, nil)
	d := dao.New(db, dao.WithWriteQueue(wq))
	t.Cleanup(func() {
		_ = wq.Shutdown(context.Background())
		_ = d.Close()
	})
	b := &recordingBroadcaster{}
	return NewCollectionService(dao.NewDocumentRepository(d), b, nil), b
}

func TestCollectionService_CRUDAndBroadcast(t *testing.T) {
	ctx := context.Background()
	svc, b := newTestCollectionService(t)

	doc, err := svc.Create(ctx, "alice", "notes", &dto.RecordCreateRequest{Title: "t", Content: "c"})
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, "alice", doc.Owner)

	updated, err := svc.Update(ctx, "alice", "notes", doc.ID, &dto.RecordUpdateRequest{Title: "t2", Content: "c2"})
	require.NoError(t, err)
	assert.Equal(t, "t2", updated.Title)

	list, err := svc.List(ctx, "alice", "notes")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, svc.Delete(ctx, "alice", "notes", doc.ID))
	_, err = svc.Get(ctx, "alice", "notes", doc.ID)
	assert.True(t, errors.Is(err, code.ErrorRecordNotFound))

	assert.Equal(t, []broadcastRecord{
		{"alice", "notes", domain.RemoteActionCreate, doc.ID},
		{"alice", "notes", domain.RemoteActionUpdate, doc.ID},
		{"alice", "notes", domain.RemoteActionDelete, doc.ID},
	}, b.events)
}

func TestCollectionService_OwnerScoping(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestCollectionService(t)

	_, err := svc.Create(ctx, "alice", "notes", &dto.RecordCreateRequest{Title: "t", Owner: "mallory"})
	assert.True(t, errors.Is(err, code.ErrorInvalidParams))

	_, err = svc.List(ctx, "", "notes")
	assert.True(t, errors.Is(err, code.ErrorNotUserAuthToken))

	doc, err := svc.Create(ctx, "alice", "notes", &dto.RecordCreateRequest{Title: "t", Owner: "alice"})
	require.NoError(t, err)

	list, err := svc.List(ctx, "bob", "notes")
	require.NoError(t, err)
	assert.Empty(t, list)

	err = svc.Delete(ctx, "bob", "notes", doc.ID)
	assert.True(t, errors.Is(err, code.ErrorRecordNotFound))
}

func TestCollectionService_ClientKeyDeduplicates(t *testing.T) {
	ctx := context.Background()
	svc, b := newTestCollectionService(t)
	req := &dto.RecordCreateRequest{Title: "t", Content: "c", ClientKey: "k1"}

	first, err := svc.Create(ctx, "alice", "notes", req)
	require.NoError(t, err)
	second, err := svc.Create(ctx, "alice", "notes", req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// 同一幂等键在其他 owner 下互不影响
	other, err := svc.Create(ctx, "bob", "notes", req)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)

	assert.Len(t, b.events, 2)
}
