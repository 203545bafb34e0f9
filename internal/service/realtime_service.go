package service

import (
	"context"
	"sync"

	"github.com/haierkeys/onyx-note-sync/internal/domain"
	"github.com/haierkeys/onyx-note-sync/internal/task"
	"github.com/haierkeys/onyx-note-sync/pkg/logger"
	"go.uber.org/zap"
)

const TriggerReasonRealtime = "realtime"

// RealtimeListener turns remote change events into reconcile triggers and direct deletes
// RealtimeListener 将远端实时事件转换为对账触发或直接删除
type RealtimeListener interface {
	// Start subscribes once; calling it while a live subscription exists does nothing
	// Start 建立订阅，已有存活订阅时直接返回
	Start(ctx context.Context) error

	// Stop 取消订阅并等待连接关闭，可重复调用
	Stop()

	// Active 订阅是否存活
	Active() bool
}

type realtimeListener struct {
	notes      domain.NoteRepository
	remote     domain.DocumentStore
	syncer     task.Syncer
	bus        *EventBus
	collection string
	logger     *zap.Logger

	mu  sync.Mutex
	sub domain.Subscription
}

// NewRealtimeListener 创建实时监听器
func NewRealtimeListener(notes domain.NoteRepository, remote domain.DocumentStore, syncer task.Syncer, bus *EventBus, collection string, zl *zap.Logger) RealtimeListener {
	if zl == nil {
		zl = zap.NewNop()
	}
	if bus == nil {
		bus = NewEventBus(zl)
	}
	return &realtimeListener{
		notes:      notes,
		remote:     remote,
		syncer:     syncer,
		bus:        bus,
		collection: collection,
		logger:     zl.With(zap.String(logger.FieldCollection, collection)),
	}
}

func (l *realtimeListener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sub != nil {
		if alive(l.sub) {
			return nil
		}
		l.sub = nil
	}
	sub, err := l.remote.Subscribe(ctx, l.collection, l.handle)
	if err != nil {
		return err
	}
	l.sub = sub
	return nil
}

func (l *realtimeListener) Stop() {
	l.mu.Lock()
	sub := l.sub
	l.sub = nil
	l.mu.Unlock()

	if sub == nil {
		return
	}
	if err := sub.Unsubscribe(); err != nil {
		l.logger.Warn("realtime unsubscribe failed", zap.Error(err))
	}
}

func (l *realtimeListener) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sub != nil && alive(l.sub)
}

func alive(sub domain.Subscription) bool {
	select {
	case <-sub.Done():
		return false
	default:
		return true
	}
}

// handle runs on the subscription read loop, one event at a time
// handle 在订阅读循环中串行执行
func (l *realtimeListener) handle(ev domain.RemoteEvent) {
	switch ev.Action {
	case domain.RemoteActionCreate, domain.RemoteActionUpdate:
		if l.syncer != nil {
			l.syncer.Trigger(TriggerReasonRealtime)
		}
	case domain.RemoteActionDelete:
		l.applyDelete(ev.Document.ID)
	}
}

// applyDelete 删除绑定到远端 ID 的本地笔记，未知 ID 无副作用
func (l *realtimeListener) applyDelete(remoteID string) {
	deleted, err := l.notes.DeleteNoteByRemoteID(context.Background(), remoteID)
	if err != nil {
		l.logger.Warn("realtime delete failed", zap.String(logger.FieldRemoteID, remoteID), zap.Error(err))
	} else if deleted {
		l.logger.Info("local note deleted by remote", zap.String(logger.FieldRemoteID, remoteID))
	}
	l.bus.NotesChanged()
}
