package service

import (
	"context"
	"sync"
	"time"

	"github.com/haierkeys/onyx-note-sync/internal/domain"
	"github.com/haierkeys/onyx-note-sync/internal/task"
	"github.com/haierkeys/onyx-note-sync/pkg/code"
	"github.com/haierkeys/onyx-note-sync/pkg/logger"
	"github.com/haierkeys/onyx-note-sync/pkg/safe_close"
	"go.uber.org/zap"
)

// SessionConfig 同步会话配置
type SessionConfig struct {
	Sync               SyncConfig
	SkewTolerance      time.Duration
	HeartbeatInterval  time.Duration
	TriggerOnHeartbeat bool
	// FullSyncSpec cron spec of the safety-net pass, empty disables it
	// FullSyncSpec 兜底全量对账的 cron 表达式，为空不启用
	FullSyncSpec string
}

// Session carries one authenticated sync session: remote client, connected flag, subscription and heartbeat
// Session 一个已认证的同步会话，持有远端客户端、连接状态、实时订阅与心跳
type Session struct {
	cfg     SessionConfig
	bus     *EventBus
	metrics *SyncMetrics
	logger  *zap.Logger

	sync     SyncService
	listener RealtimeListener
	monitor  ConnectivityMonitor

	// triggers holds at most one pending pass, extra triggers coalesce into it
	triggers chan string

	mu      sync.Mutex
	sc      *safe_close.SafeClose
	cancel  context.CancelFunc
	running bool
}

// NewSession 创建同步会话，Start 之前不会访问远端
func NewSession(notes domain.NoteRepository, remote domain.DocumentStore, cfg SessionConfig, bus *EventBus, metrics *SyncMetrics, zl *zap.Logger) *Session {
	if zl == nil {
		zl = zap.NewNop()
	}
	if bus == nil {
		bus = NewEventBus(zl)
	}
	s := &Session{
		cfg:      cfg,
		bus:      bus,
		metrics:  metrics,
		logger:   zl,
		triggers: make(chan string, 1),
	}
	binder := NewBindingService(notes, zl)
	s.sync = NewSyncService(notes, remote, binder, NewConflictResolver(cfg.SkewTolerance), bus, metrics, cfg.Sync, zl)
	s.listener = NewRealtimeListener(notes, remote, s, bus, cfg.Sync.Collection, zl)
	s.monitor = NewConnectivityMonitor(remote, s.listener, s, bus, metrics, zl)
	return s
}

// Start launches the heartbeat, the cron safety net and the trigger loop
// Start 启动心跳、兜底定时任务与触发循环
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	sc := safe_close.NewSafeClose()

	manager := task.NewManager(s.logger, sc, task.Deps{
		Prober:             s.monitor,
		Syncer:             s,
		HeartbeatInterval:  s.cfg.HeartbeatInterval,
		TriggerOnHeartbeat: s.cfg.TriggerOnHeartbeat,
		FullSyncSpec:       s.cfg.FullSyncSpec,
	})
	if err := manager.RegisterTasks(); err != nil {
		cancel()
		return err
	}

	sc.Attach(func(done func(), closeSignal <-chan struct{}) {
		defer done()
		s.triggerLoop(ctx, closeSignal)
	})
	manager.Start()

	s.sc = sc
	s.cancel = cancel
	s.running = true
	s.logger.Info("sync session started", zap.String(logger.FieldCollection, s.cfg.Sync.Collection))
	return nil
}

// Stop tears down the heartbeat and the subscription; nothing outlives the call
// Stop 停止心跳并取消订阅，返回后不再有后台活动
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		// a bare Probe may have opened the stream without Start
		s.listener.Stop()
		return
	}
	s.cancel()
	s.sc.SendCloseSignal(nil)
	if err := s.sc.WaitClosed(); err != nil {
		s.logger.Warn("sync session closed with error", zap.Error(err))
	}
	// 心跳已退出，订阅不会再被重新建立
	s.listener.Stop()

	// drain a pending trigger so a restarted session does not inherit it
	select {
	case <-s.triggers:
	default:
	}
	s.running = false
	s.logger.Info("sync session stopped")
}

// Trigger requests a pass; dropped while a pass runs, coalesced while one is pending
// Trigger 请求一次对账：运行中直接丢弃，已有待执行请求时合并
func (s *Session) Trigger(reason string) bool {
	if s.sync.IsRunning() {
		s.metrics.TriggerDropped()
		s.logger.Debug("trigger dropped, pass running", zap.String(logger.FieldReason, reason))
		return false
	}
	select {
	case s.triggers <- reason:
	default:
	}
	return true
}

func (s *Session) triggerLoop(ctx context.Context, closeSignal <-chan struct{}) {
	for {
		select {
		case <-closeSignal:
			return
		case <-ctx.Done():
			return
		case reason := <-s.triggers:
			if !s.monitor.Connected() {
				s.logger.Debug("trigger ignored, offline",
					zap.String(logger.FieldReason, reason),
					zap.Int("code", code.ErrorConnectivityLost.Code()))
				continue
			}
			s.logger.Debug("reconcile triggered", zap.String(logger.FieldReason, reason))
			s.sync.Reconcile(ctx)
		}
	}
}

// Reconcile runs a pass on the caller's goroutine, bypassing the trigger queue
// Reconcile 在调用方协程中直接执行一次对账
func (s *Session) Reconcile(ctx context.Context) domain.SyncReport {
	return s.sync.Reconcile(ctx)
}

// Probe 立即执行一次连通性探测
func (s *Session) Probe(ctx context.Context) bool {
	return s.monitor.Probe(ctx)
}

func (s *Session) Connected() bool {
	return s.monitor.Connected()
}

func (s *Session) Events() *EventBus {
	return s.bus
}

func (s *Session) SyncService() SyncService {
	return s.sync
}

// Running 会话是否已启动
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
