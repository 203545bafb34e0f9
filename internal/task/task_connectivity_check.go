package task

import (
	"context"
	"time"
)

// DefaultHeartbeatInterval 默认探测间隔
const DefaultHeartbeatInterval = 5 * time.Second

// ConnectivityCheckTask probes the remote store and, when online, triggers a pass
// ConnectivityCheckTask 探测远端连通性，在线时可触发对账
type ConnectivityCheckTask struct {
	prober   Prober
	syncer   Syncer
	interval time.Duration
	trigger  bool
}

// Name 返回任务名称
func (t *ConnectivityCheckTask) Name() string {
	return "ConnectivityCheck"
}

// LoopInterval 返回执行间隔
func (t *ConnectivityCheckTask) LoopInterval() time.Duration {
	return t.interval
}

// IsStartupRun 启动时立即探测一次
func (t *ConnectivityCheckTask) IsStartupRun() bool {
	return true
}

// Run 执行一次探测
func (t *ConnectivityCheckTask) Run(ctx context.Context) error {
	if !t.prober.Probe(ctx) {
		return nil
	}
	if t.trigger && t.syncer != nil {
		t.syncer.Trigger("heartbeat")
	}
	return nil
}

// NewConnectivityCheckTask 创建连通性探测任务
func NewConnectivityCheckTask(deps Deps) (Task, error) {
	if deps.Prober == nil {
		return nil, nil
	}
	interval := deps.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &ConnectivityCheckTask{
		prober:   deps.Prober,
		syncer:   deps.Syncer,
		interval: interval,
		trigger:  deps.TriggerOnHeartbeat,
	}, nil
}

func init() {
	Register(NewConnectivityCheckTask)
}
