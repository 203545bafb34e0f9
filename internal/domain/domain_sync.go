package domain

import "time"

// SyncDecision 冲突裁决结果
type SyncDecision int

const (
	SyncNoop SyncDecision = iota
	SyncPull
	// SyncPush is a named outcome only, reconciliation never overwrites remote documents
	// SyncPush 仅作为命名结果保留，对账阶段不会覆盖远端
	SyncPush
)

func (d SyncDecision) String() string {
	switch d {
	case SyncPull:
		return "pull"
	case SyncPush:
		return "push"
	default:
		return "noop"
	}
}

// SyncReport summarises one reconciliation pass
// SyncReport 一次对账的统计
type SyncReport struct {
	// Skipped the pass was dropped by the single-flight guard or the offline gate
	// Skipped 被单飞保护或离线状态跳过
	Skipped bool
	// SkipReason 跳过原因
	SkipReason  string
	Pushed      int
	Pulled      int
	Overwritten int
	Unchanged   int
	Failed      int
	// Swept 本地因远端删除而移除的笔记数
	Swept    int
	Duration time.Duration
}

// HasFailures 是否存在单条失败
func (r SyncReport) HasFailures() bool {
	return r.Failed > 0
}
