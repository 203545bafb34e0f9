package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/haierkeys/onyx-note-sync/internal/domain"
	"github.com/haierkeys/onyx-note-sync/pkg/code"
	"github.com/haierkeys/onyx-note-sync/pkg/logger"
	"github.com/haierkeys/onyx-note-sync/pkg/notecontent"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	SkipReasonRunning     = "already running"
	SkipReasonFetchFailed = "fetch failed"
)

// SyncConfig 对账配置
type SyncConfig struct {
	// Collection 远端集合名称
	Collection string
	// Owner authenticated identity stamped on pushed documents
	// Owner 推送文档时写入的身份
	Owner string
	// DeviceNamespace 生成幂等键的命名空间
	DeviceNamespace uuid.UUID
	// Scope identifies the remote side of this session's bindings, see BindingScope
	// Scope 本会话绑定所属的远端范围，为空时由 Collection 与 Owner 生成
	Scope string
	// SweepRemoteDeletes removes local notes bound in Scope whose remote document is no longer listed
	// SweepRemoteDeletes 删除在 Scope 内绑定且远端已不存在的本地笔记
	SweepRemoteDeletes bool
}

// BindingScope joins server, collection and owner into the key stored with each binding
// BindingScope 将服务地址、集合与身份拼接为绑定范围
func BindingScope(baseURL, collection, owner string) string {
	return strings.TrimRight(strings.TrimSpace(baseURL), "/") + "|" + collection + "|" + owner
}

// SyncService is the reconciliation orchestrator, the only reader of both stores
// SyncService 对账编排器，唯一同时读取两侧存储的组件
type SyncService interface {
	// Reconcile runs one pass; a call made while another pass runs returns a skipped report
	// Reconcile 执行一次完整对账，已有对账在运行时直接返回跳过
	Reconcile(ctx context.Context) domain.SyncReport

	// IsRunning 是否有对账正在运行
	IsRunning() bool

	// ClientKey 本地笔记对应的幂等键
	ClientKey(localID int64) string
}

type syncService struct {
	notes    domain.NoteRepository
	remote   domain.DocumentStore
	binder   BindingService
	resolver ConflictResolver
	bus      *EventBus
	metrics  *SyncMetrics
	cfg      SyncConfig
	logger   *zap.Logger

	running atomic.Bool
}

// NewSyncService 创建对账编排器
func NewSyncService(
	notes domain.NoteRepository,
	remote domain.DocumentStore,
	binder BindingService,
	resolver ConflictResolver,
	bus *EventBus,
	metrics *SyncMetrics,
	cfg SyncConfig,
	zl *zap.Logger,
) SyncService {
	if zl == nil {
		zl = zap.NewNop()
	}
	if resolver == nil {
		resolver = NewConflictResolver(DefaultSkewTolerance)
	}
	if binder == nil {
		binder = NewBindingService(notes, zl)
	}
	if bus == nil {
		bus = NewEventBus(zl)
	}
	if cfg.Scope == "" {
		cfg.Scope = BindingScope("", cfg.Collection, cfg.Owner)
	}
	return &syncService{
		notes:    notes,
		remote:   remote,
		binder:   binder,
		resolver: resolver,
		bus:      bus,
		metrics:  metrics,
		cfg:      cfg,
		logger:   zl.With(zap.String(logger.FieldCollection, cfg.Collection)),
	}
}

func (s *syncService) IsRunning() bool {
	return s.running.Load()
}

func (s *syncService) ClientKey(localID int64) string {
	return uuid.NewSHA1(s.cfg.DeviceNamespace, []byte(strconv.FormatInt(localID, 10))).String()
}

// passState 一次对账中的中间状态
type passState struct {
	locals     []*domain.Note
	docs       []*domain.Document
	tombstones map[string]struct{}
	// bound remote id -> local note, grows as the push phase binds notes
	bound map[string]*domain.Note
	// boundAtFetch 拉取时已绑定的远端 ID，清理阶段只处理这些
	boundAtFetch map[string]*domain.Note
	// fresh 本轮推送或拉取新绑定的远端 ID
	fresh []string
}

func (s *syncService) Reconcile(ctx context.Context) domain.SyncReport {
	if !s.running.CompareAndSwap(false, true) {
		s.metrics.TriggerDropped()
		s.logger.Debug("reconcile skipped, pass already running")
		return domain.SyncReport{Skipped: true, SkipReason: SkipReasonRunning}
	}
	defer s.running.Store(false)

	start := time.Now()
	var report domain.SyncReport
	// notify: 无论结果如何都发出列表变化信号
	defer s.bus.NotesChanged()

	st, err := s.fetch(ctx)
	if err != nil {
		report.Skipped = true
		report.SkipReason = SkipReasonFetchFailed
		report.Duration = time.Since(start)
		s.metrics.ObserveFetchFailure(report.Duration)
		s.logger.Warn("reconcile aborted, list fetch failed",
			zap.NamedError("code", code.ErrorConnectivityLost),
			zap.Error(err))
		return report
	}

	s.push(ctx, st, &report)
	s.pull(ctx, st, &report)
	s.resolve(ctx, st, &report)
	scoped := s.markScope(ctx, st, &report)
	if s.cfg.SweepRemoteDeletes && scoped {
		s.sweep(ctx, st, &report)
	}

	report.Duration = time.Since(start)
	s.metrics.ObservePass(report)

	fields := []zap.Field{
		zap.Int("pushed", report.Pushed),
		zap.Int("pulled", report.Pulled),
		zap.Int("overwritten", report.Overwritten),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("swept", report.Swept),
		zap.Int("failed", report.Failed),
		zap.Duration(logger.FieldDuration, report.Duration),
	}
	if report.HasFailures() {
		s.logger.Warn(code.ErrorPartialSync.Msg(), fields...)
	} else {
		s.logger.Info("reconcile finished", fields...)
	}
	return report
}

// fetch reads both lists; with the sweep on, the remote list is read after the local one
// so a binding made by another writer in between is always listed
// fetch 拉取两侧列表，开启清理时先读本地再读远端，保证远端快照不早于本地快照
func (s *syncService) fetch(ctx context.Context) (*passState, error) {
	st := &passState{
		tombstones:   make(map[string]struct{}),
		bound:        make(map[string]*domain.Note),
		boundAtFetch: make(map[string]*domain.Note),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		locals, err := s.notes.ListNotes(gctx)
		if err != nil {
			return fmt.Errorf("list local notes: %w", err)
		}
		st.locals = locals
		return nil
	})
	listRemote := func(ctx context.Context) error {
		docs, err := s.remote.ListDocuments(ctx, s.cfg.Collection)
		if err != nil {
			return fmt.Errorf("list remote documents: %w", err)
		}
		st.docs = docs
		return nil
	}
	if !s.cfg.SweepRemoteDeletes {
		g.Go(func() error { return listRemote(gctx) })
	}
	g.Go(func() error {
		ids, err := s.notes.ListTombstones(gctx)
		if err != nil {
			return fmt.Errorf("list tombstones: %w", err)
		}
		for _, id := range ids {
			st.tombstones[id] = struct{}{}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if s.cfg.SweepRemoteDeletes {
		if err := listRemote(ctx); err != nil {
			return nil, err
		}
	}

	for _, n := range st.locals {
		if n.IsBound() {
			st.bound[n.RemoteID] = n
			st.boundAtFetch[n.RemoteID] = n
		}
	}
	return st, nil
}

// push 为每条未绑定的本地笔记创建远端文档并绑定
func (s *syncService) push(ctx context.Context, st *passState, report *domain.SyncReport) {
	for _, n := range st.locals {
		if n.IsBound() {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		log := s.logger.With(zap.String(logger.FieldPhase, "push"), zap.Int64(logger.FieldLocalID, n.LocalID))

		// 重新读取，笔记可能已被并发的对账或用户操作绑定或删除
		content, err := s.notes.GetNoteContent(ctx, n.LocalID)
		if errors.Is(err, code.ErrorNoteNotFound) {
			continue
		}
		if err != nil {
			report.Failed++
			log.Warn("read note failed", zap.Error(err))
			continue
		}
		if content.RemoteID != "" {
			st.bound[content.RemoteID] = n
			continue
		}

		remoteID, err := s.remote.CreateDocument(ctx, s.cfg.Collection, domain.DocumentFields{
			Title:     content.Title,
			Content:   notecontent.ForTransmission(content.Content),
			Owner:     s.cfg.Owner,
			ClientKey: s.ClientKey(n.LocalID),
		})
		if err != nil {
			report.Failed++
			log.Warn("create remote document failed", zap.Error(err))
			continue
		}
		if err := s.binder.Bind(ctx, n.LocalID, remoteID); err != nil {
			report.Failed++
			log.Warn("bind remote id failed", zap.String(logger.FieldRemoteID, remoteID), zap.Error(err))
			continue
		}
		st.bound[remoteID] = n
		st.fresh = append(st.fresh, remoteID)
		report.Pushed++
	}
}

// pull 导入本地没有对应笔记的远端文档
func (s *syncService) pull(ctx context.Context, st *passState, report *domain.SyncReport) {
	for _, doc := range st.docs {
		if _, ok := st.bound[doc.ID]; ok {
			continue
		}
		if _, ok := st.tombstones[doc.ID]; ok {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		localID, err := s.notes.ImportRemoteNote(ctx, doc.ID, doc.Title, doc.Content, doc.Updated)
		if errors.Is(err, code.ErrorRemoteIDTaken) {
			// imported by a realtime path since the fetch
			continue
		}
		if err != nil {
			report.Failed++
			s.logger.Warn("import remote document failed",
				zap.String(logger.FieldPhase, "pull"),
				zap.String(logger.FieldRemoteID, doc.ID),
				zap.Error(err))
			continue
		}
		st.bound[doc.ID] = &domain.Note{LocalID: localID, RemoteID: doc.ID}
		st.fresh = append(st.fresh, doc.ID)
		report.Pulled++
	}
}

// resolve 对已匹配的笔记进行冲突裁决，只会覆盖本地
func (s *syncService) resolve(ctx context.Context, st *passState, report *domain.SyncReport) {
	for _, doc := range st.docs {
		local, ok := st.boundAtFetch[doc.ID]
		if !ok {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		decision := s.resolver.Resolve(local.UpdatedAt, doc.Updated)
		if decision != domain.SyncPull {
			report.Unchanged++
			continue
		}
		if err := s.notes.UpdateNote(ctx, local.LocalID, doc.Title, doc.Content); err != nil {
			if errors.Is(err, code.ErrorNoteNotFound) {
				continue
			}
			report.Failed++
			s.logger.Warn("overwrite local note failed",
				zap.String(logger.FieldPhase, "conflict"),
				zap.Int64(logger.FieldLocalID, local.LocalID),
				zap.String(logger.FieldRemoteID, doc.ID),
				zap.Error(err))
			continue
		}
		report.Overwritten++
	}
}

// markScope records the active scope on bindings listed or created in this pass
// markScope 为本轮在远端列表中出现或新建的绑定记录当前范围
func (s *syncService) markScope(ctx context.Context, st *passState, report *domain.SyncReport) bool {
	ids := append([]string(nil), st.fresh...)
	for _, doc := range st.docs {
		if n, ok := st.boundAtFetch[doc.ID]; ok && n.RemoteScope != s.cfg.Scope {
			ids = append(ids, doc.ID)
		}
	}
	if len(ids) == 0 {
		return true
	}
	if err := s.notes.MarkRemoteScope(ctx, s.cfg.Scope, ids); err != nil {
		report.Failed++
		s.logger.Warn("record binding scope failed", zap.String(logger.FieldPhase, "scope"), zap.Error(err))
		return false
	}
	return true
}

// sweep removes local notes bound in the active scope whose remote half disappeared,
// and forgets tombstones of that scope whose document is gone
// sweep 删除当前范围内远端已消失的本地笔记，并清除该范围内已无远端文档的墓碑
// Bindings of another scope or of no recorded scope are left alone
// 其他范围或未记录范围的绑定不处理
func (s *syncService) sweep(ctx context.Context, st *passState, report *domain.SyncReport) {
	if len(st.docs) == 0 {
		if len(st.boundAtFetch) > 0 || len(st.tombstones) > 0 {
			s.logger.Info("sweep skipped, remote list is empty", zap.String(logger.FieldPhase, "sweep"))
		}
		return
	}
	listed := make(map[string]struct{}, len(st.docs))
	for _, doc := range st.docs {
		listed[doc.ID] = struct{}{}
	}

	foreign := 0
	for remoteID, n := range st.boundAtFetch {
		if _, ok := listed[remoteID]; ok {
			continue
		}
		if n.RemoteScope != s.cfg.Scope {
			foreign++
			continue
		}
		if ctx.Err() != nil {
			return
		}
		deleted, err := s.notes.DeleteNoteByRemoteID(ctx, remoteID)
		if err != nil {
			report.Failed++
			s.logger.Warn("sweep local note failed",
				zap.String(logger.FieldPhase, "sweep"),
				zap.Int64(logger.FieldLocalID, n.LocalID),
				zap.String(logger.FieldRemoteID, remoteID),
				zap.Error(err))
			continue
		}
		if deleted {
			report.Swept++
		}
	}

	if foreign > 0 {
		s.logger.Debug("sweep kept notes bound outside the active scope",
			zap.String(logger.FieldPhase, "sweep"), zap.Int("count", foreign))
	}

	scoped, err := s.notes.ListScopedTombstones(ctx, s.cfg.Scope)
	if err != nil {
		s.logger.Warn("list scoped tombstones failed", zap.String(logger.FieldPhase, "sweep"), zap.Error(err))
		return
	}
	for _, remoteID := range scoped {
		if _, ok := listed[remoteID]; ok {
			continue
		}
		// 仅处理抓取时已存在的墓碑
		if _, ok := st.tombstones[remoteID]; !ok {
			continue
		}
		if err := s.notes.ClearTombstone(ctx, remoteID); err != nil {
			s.logger.Warn("clear tombstone failed", zap.String(logger.FieldRemoteID, remoteID), zap.Error(err))
		}
	}
}
