package service

import (
	"context"
	"errors"
	"sync"

	"github.com/haierkeys/onyx-note-sync/internal/domain"
	"github.com/haierkeys/onyx-note-sync/pkg/code"
	"github.com/haierkeys/onyx-note-sync/pkg/logger"
	"go.uber.org/zap"
)

// BindingService writes cross-store identifiers; it is the only writer of remote ids
// BindingService 跨存储标识的唯一写入方
type BindingService interface {
	// Bind 绑定本地笔记与远端文档，相同参数重复调用无副作用
	Bind(ctx context.Context, localID int64, remoteID string) error
}

type bindingService struct {
	repo   domain.NoteRepository
	logger *zap.Logger
	mu     sync.Mutex
}

// NewBindingService 创建 BindingService 实例
func NewBindingService(repo domain.NoteRepository, zl *zap.Logger) BindingService {
	if zl == nil {
		zl = zap.NewNop()
	}
	return &bindingService{repo: repo, logger: zl}
}

func (s *bindingService) Bind(ctx context.Context, localID int64, remoteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.repo.BindRemoteID(ctx, localID, remoteID)
	if errors.Is(err, code.ErrorBindingConflict) {
		s.logger.Error("binding conflict",
			zap.Int64(logger.FieldLocalID, localID),
			zap.String(logger.FieldRemoteID, remoteID),
			zap.Error(err))
	}
	return err
}
