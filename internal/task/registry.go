package task

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Prober runs one connectivity probe and reports the resulting state
// Prober 执行一次连通性探测并返回结果
type Prober interface {
	Probe(ctx context.Context) bool
}

// Syncer accepts a reconciliation trigger
// Syncer 接收对账触发
type Syncer interface {
	Trigger(reason string) bool
}

// Deps are the collaborators a task factory may use
// Deps 任务工厂可使用的依赖
type Deps struct {
	Prober Prober
	Syncer Syncer
	// HeartbeatInterval 连通性探测间隔
	HeartbeatInterval time.Duration
	// TriggerOnHeartbeat 探测成功后触发一次对账
	TriggerOnHeartbeat bool
	// FullSyncSpec cron 表达式，为空时不启用
	FullSyncSpec string
	Logger       *zap.Logger
}

// TaskFactory 任务工厂函数类型，返回 nil 表示任务未启用
type TaskFactory func(deps Deps) (Task, error)

// taskRegistry 全局任务注册表
var (
	taskRegistry  []TaskFactory
	registryMutex sync.RWMutex
)

// Register 注册任务工厂函数
// 通常在各个任务文件的 init() 函数中调用
func Register(factory TaskFactory) {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	taskRegistry = append(taskRegistry, factory)
}

// GetFactories 获取所有已注册的任务工厂
func GetFactories() []TaskFactory {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	// 返回副本,避免外部修改
	factories := make([]TaskFactory, len(taskRegistry))
	copy(factories, taskRegistry)
	return factories
}
