package service

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/haierkeys/onyx-note-sync/internal/domain"
	"github.com/haierkeys/onyx-note-sync/internal/task"
	"github.com/haierkeys/onyx-note-sync/pkg/code"
	"go.uber.org/zap"
)

const (
	TriggerReasonReconnect   = "reconnect"
	TriggerReasonResubscribe = "resubscribe"
)

// ConnectivityMonitor owns the connected flag and the realtime subscription lifecycle
// ConnectivityMonitor 维护连接状态，并据此管理实时订阅
type ConnectivityMonitor interface {
	// Probe 执行一次健康检查并返回最新连接状态
	Probe(ctx context.Context) bool

	// Connected 最近一次探测的结果
	Connected() bool
}

type connectivityMonitor struct {
	remote   domain.DocumentStore
	listener RealtimeListener
	syncer   task.Syncer
	bus      *EventBus
	metrics  *SyncMetrics
	logger   *zap.Logger

	// probes are serialized so transitions are observed in order
	mu        sync.Mutex
	connected atomic.Bool
}

// NewConnectivityMonitor 创建连接监控
func NewConnectivityMonitor(remote domain.DocumentStore, listener RealtimeListener, syncer task.Syncer, bus *EventBus, metrics *SyncMetrics, zl *zap.Logger) ConnectivityMonitor {
	if zl == nil {
		zl = zap.NewNop()
	}
	if bus == nil {
		bus = NewEventBus(zl)
	}
	return &connectivityMonitor{
		remote:   remote,
		listener: listener,
		syncer:   syncer,
		bus:      bus,
		metrics:  metrics,
		logger:   zl,
	}
}

func (m *connectivityMonitor) Connected() bool {
	return m.connected.Load()
}

func (m *connectivityMonitor) Probe(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.remote.HealthCheck(ctx)
	ok := err == nil
	was := m.connected.Swap(ok)
	m.metrics.SetConnected(ok)

	switch {
	case ok && !was:
		m.logger.Info("remote store reachable")
		m.bus.Publish(ConnectivityChangedEvent{Connected: true})
		m.subscribe(ctx, TriggerReasonReconnect)
	case !ok && was:
		m.logger.Warn(code.ErrorConnectivityLost.Msg(), zap.Error(err))
		m.bus.Publish(ConnectivityChangedEvent{Connected: false})
		if m.listener != nil {
			m.listener.Stop()
		}
	case ok && m.listener != nil && !m.listener.Active():
		// 连接正常但订阅已断开
		m.subscribe(ctx, TriggerReasonResubscribe)
	case !ok:
		m.logger.Debug("remote store still unreachable", zap.Error(err))
	}
	return ok
}

// subscribe re-establishes the realtime stream and asks for a catch-up pass
// subscribe 重新建立订阅并触发一次补偿对账
func (m *connectivityMonitor) subscribe(ctx context.Context, reason string) {
	if m.listener != nil {
		if err := m.listener.Start(ctx); err != nil {
			m.logger.Warn("realtime subscribe failed",
				zap.Int("code", code.ErrorSubscriptionDropped.Code()),
				zap.Error(err))
		}
	}
	if m.syncer != nil {
		m.syncer.Trigger(reason)
	}
}
