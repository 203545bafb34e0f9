package service

import (
	"context"

	"github.com/haierkeys/onyx-note-sync/internal/domain"
	"github.com/haierkeys/onyx-note-sync/internal/task"
	"github.com/haierkeys/onyx-note-sync/pkg/code"
	"github.com/haierkeys/onyx-note-sync/pkg/logger"
	"github.com/haierkeys/onyx-note-sync/pkg/notecontent"
	"github.com/haierkeys/onyx-note-sync/pkg/workerpool"
	"go.uber.org/zap"
)

const (
	TriggerReasonLocalCreate = "local-create"
	TriggerReasonLocalUpdate = "local-update"
)

// SyncGate is the part of a session local CRUD talks to
// SyncGate 本地增删改使用的会话能力
type SyncGate interface {
	task.Syncer
	Connected() bool
}

// NoteService local note CRUD; writes are never gated on sync
// NoteService 本地笔记增删改查，写入从不等待同步
type NoteService interface {
	List(ctx context.Context) ([]*domain.Note, error)

	Get(ctx context.Context, localID int64) (*domain.Note, error)

	// Create 创建笔记并触发一次对账
	Create(ctx context.Context, title, content string) (*domain.Note, error)

	// Update writes locally, then pushes a bound note in the background while connected
	// Update 先写本地，已绑定且在线时后台推送到远端
	Update(ctx context.Context, localID int64, title, content string) (*domain.Note, error)

	// Delete removes the note locally and requests the remote delete without waiting for it
	// Delete 删除本地笔记，并异步请求删除远端文档
	Delete(ctx context.Context, localID int64) error
}

// NoteServiceConfig 笔记服务配置
type NoteServiceConfig struct {
	Collection string
	Owner      string
}

type noteService struct {
	notes   domain.NoteRepository
	remote  domain.DocumentStore
	gate    SyncGate
	pool    *workerpool.Pool
	bus     *EventBus
	metrics *SyncMetrics
	cfg     NoteServiceConfig
	logger  *zap.Logger
}

// NewNoteService 创建 NoteService 实例，gate 为 nil 时只操作本地
func NewNoteService(
	notes domain.NoteRepository,
	remote domain.DocumentStore,
	gate SyncGate,
	pool *workerpool.Pool,
	bus *EventBus,
	metrics *SyncMetrics,
	cfg NoteServiceConfig,
	zl *zap.Logger,
) NoteService {
	if zl == nil {
		zl = zap.NewNop()
	}
	if bus == nil {
		bus = NewEventBus(zl)
	}
	return &noteService{
		notes:   notes,
		remote:  remote,
		gate:    gate,
		pool:    pool,
		bus:     bus,
		metrics: metrics,
		cfg:     cfg,
		logger:  zl.With(zap.String(logger.FieldCollection, cfg.Collection)),
	}
}

func (s *noteService) List(ctx context.Context) ([]*domain.Note, error) {
	return s.notes.ListNotes(ctx)
}

func (s *noteService) Get(ctx context.Context, localID int64) (*domain.Note, error) {
	return s.notes.GetNote(ctx, localID)
}

func (s *noteService) Create(ctx context.Context, title, content string) (*domain.Note, error) {
	id, err := s.notes.CreateNote(ctx, title, content)
	if err != nil {
		return nil, err
	}
	n, err := s.notes.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	s.bus.NotesChanged()
	if s.gate != nil {
		s.gate.Trigger(TriggerReasonLocalCreate)
	}
	return n, nil
}

func (s *noteService) Update(ctx context.Context, localID int64, title, content string) (*domain.Note, error) {
	if err := s.notes.UpdateNote(ctx, localID, title, content); err != nil {
		return nil, err
	}
	n, err := s.notes.GetNote(ctx, localID)
	if err != nil {
		return nil, err
	}
	s.bus.NotesChanged()

	if s.gate == nil || s.remote == nil {
		return n, nil
	}
	if !n.IsBound() {
		s.gate.Trigger(TriggerReasonLocalUpdate)
		return n, nil
	}
	if !s.gate.Connected() {
		return n, nil
	}

	remoteID := n.RemoteID
	fields := domain.DocumentFields{
		Title:   title,
		Content: notecontent.ForTransmission(content),
		Owner:   s.cfg.Owner,
	}
	s.background(ctx, func(ctx context.Context) error {
		if err := s.remote.UpdateDocument(ctx, s.cfg.Collection, remoteID, fields); err != nil {
			s.logger.Warn("push edit failed",
				zap.Int64(logger.FieldLocalID, localID),
				zap.String(logger.FieldRemoteID, remoteID),
				zap.Error(err))
			return err
		}
		return nil
	}, func(err error) {
		s.logger.Warn("push edit not scheduled",
			zap.Int64(logger.FieldLocalID, localID),
			zap.Error(err))
	})
	return n, nil
}

func (s *noteService) Delete(ctx context.Context, localID int64) error {
	n, err := s.notes.DeleteNote(ctx, localID)
	if err != nil {
		return err
	}
	s.bus.NotesChanged()

	if !n.IsBound() || s.remote == nil {
		return nil
	}
	remoteID := n.RemoteID
	orphaned := func(err error) {
		s.metrics.OrphanedDocument()
		s.logger.Warn(code.ErrorOrphanedRemoteDocument.Msg(),
			zap.Int64(logger.FieldLocalID, localID),
			zap.String(logger.FieldRemoteID, remoteID),
			zap.Error(err))
	}
	s.background(ctx, func(ctx context.Context) error {
		if err := s.remote.DeleteDocument(ctx, s.cfg.Collection, remoteID); err != nil {
			orphaned(err)
			return err
		}
		if err := s.notes.ClearTombstone(ctx, remoteID); err != nil {
			s.logger.Warn("clear tombstone failed", zap.String(logger.FieldRemoteID, remoteID), zap.Error(err))
		}
		return nil
	}, orphaned)
	return nil
}

// background runs fn detached from the caller's cancellation; rejected calls onReject
// background 脱离调用方取消信号执行 fn，提交失败时调用 onReject
func (s *noteService) background(ctx context.Context, fn func(context.Context) error, onReject func(error)) {
	ctx = context.WithoutCancel(ctx)
	if s.pool == nil {
		go func() { _ = fn(ctx) }()
		return
	}
	if err := s.pool.SubmitAsync(ctx, fn); err != nil {
		onReject(err)
	}
}
