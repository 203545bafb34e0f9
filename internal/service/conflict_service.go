// Package service 实现业务逻辑层
package service

import (
	"time"

	"github.com/haierkeys/onyx-note-sync/internal/domain"
)

// DefaultSkewTolerance clock skew absorbed before a remote edit wins
// DefaultSkewTolerance 远端修改胜出前容忍的时钟偏差
const DefaultSkewTolerance = 2000 * time.Millisecond

// ConflictResolver 冲突裁决接口
type ConflictResolver interface {
	// Resolve compares the two sides of a bound pair; it never answers SyncPush
	// Resolve 比较已绑定的一对笔记的时间戳，不会返回 SyncPush
	Resolve(localUpdatedAt, remoteUpdatedAt time.Time) domain.SyncDecision

	// Tolerance 当前容忍的时钟偏差
	Tolerance() time.Duration
}

type conflictResolver struct {
	tolerance time.Duration
}

// NewConflictResolver 创建冲突裁决器，tolerance <= 0 时使用默认值
func NewConflictResolver(tolerance time.Duration) ConflictResolver {
	if tolerance <= 0 {
		tolerance = DefaultSkewTolerance
	}
	return &conflictResolver{tolerance: tolerance}
}

// Resolve 远端严格晚于本地 + 容差时拉取，否则保持不变
func (r *conflictResolver) Resolve(localUpdatedAt, remoteUpdatedAt time.Time) domain.SyncDecision {
	if remoteUpdatedAt.After(localUpdatedAt.Add(r.tolerance)) {
		return domain.SyncPull
	}
	return domain.SyncNoop
}

func (r *conflictResolver) Tolerance() time.Duration {
	return r.tolerance
}
