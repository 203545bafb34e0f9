package task

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// FullSyncTask is the cron safety net that requests a pass even without other triggers
// FullSyncTask 定时兜底对账，没有其他触发时也会发起
type FullSyncTask struct {
	syncer Syncer
	spec   string
}

// Name 返回任务名称
func (t *FullSyncTask) Name() string {
	return "FullSync"
}

// LoopInterval cron 任务不使用固定间隔
func (t *FullSyncTask) LoopInterval() time.Duration {
	return 0
}

// IsStartupRun 是否立即执行一次
func (t *FullSyncTask) IsStartupRun() bool {
	return false
}

// Spec cron 表达式
func (t *FullSyncTask) Spec() string {
	return t.spec
}

// Run 触发一次对账
func (t *FullSyncTask) Run(ctx context.Context) error {
	t.syncer.Trigger("schedule")
	return nil
}

// NewFullSyncTask 创建定时对账任务，未配置表达式时不启用
func NewFullSyncTask(deps Deps) (Task, error) {
	if deps.Syncer == nil || deps.FullSyncSpec == "" {
		return nil, nil
	}
	if _, err := cron.ParseStandard(deps.FullSyncSpec); err != nil {
		return nil, fmt.Errorf("invalid full sync cron %q: %w", deps.FullSyncSpec, err)
	}
	return &FullSyncTask{syncer: deps.Syncer, spec: deps.FullSyncSpec}, nil
}

func init() {
	Register(NewFullSyncTask)
}
