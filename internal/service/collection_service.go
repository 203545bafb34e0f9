package service

import (
	"context"
	"errors"
	"strings"

	"github.com/haierkeys/onyx-note-sync/internal/domain"
	"github.com/haierkeys/onyx-note-sync/internal/dto"
	"github.com/haierkeys/onyx-note-sync/pkg/code"
	"github.com/haierkeys/onyx-note-sync/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RecordBroadcaster pushes record changes to realtime subscribers of a collection
// RecordBroadcaster 向集合的实时订阅者推送记录变更
type RecordBroadcaster interface {
	BroadcastRecord(owner, collection string, action domain.RemoteAction, doc *domain.Document)
}

// CollectionService serves the remote collection contract for the reference server, scoped per owner
// CollectionService 参考服务端的集合服务，按 owner 隔离
type CollectionService interface {
	List(ctx context.Context, owner, collection string) ([]*domain.Document, error)

	Get(ctx context.Context, owner, collection, id string) (*domain.Document, error)

	// Create returns the existing record when the client key was already used
	// Create 幂等键已存在时返回已有记录
	Create(ctx context.Context, owner, collection string, params *dto.RecordCreateRequest) (*domain.Document, error)

	Update(ctx context.Context, owner, collection, id string, params *dto.RecordUpdateRequest) (*domain.Document, error)

	Delete(ctx context.Context, owner, collection, id string) error
}

type collectionService struct {
	repo        domain.DocumentRepository
	broadcaster RecordBroadcaster
	logger      *zap.Logger
}

// NewCollectionService 创建 CollectionService 实例
func NewCollectionService(repo domain.DocumentRepository, broadcaster RecordBroadcaster, zl *zap.Logger) CollectionService {
	if zl == nil {
		zl = zap.NewNop()
	}
	return &collectionService{repo: repo, broadcaster: broadcaster, logger: zl}
}

// checkOwner 请求中的 owner 必须与令牌身份一致
func checkOwner(owner, requested string) error {
	if owner == "" {
		return code.ErrorNotUserAuthToken
	}
	if requested != "" && requested != owner {
		return code.ErrorInvalidParams.WithDetails("owner does not match the token identity")
	}
	return nil
}

func checkCollection(collection string) error {
	if strings.TrimSpace(collection) == "" {
		return code.ErrorInvalidParams.WithDetails("collection is empty")
	}
	return nil
}

func (s *collectionService) List(ctx context.Context, owner, collection string) ([]*domain.Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if err := checkOwner(owner, ""); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, collection, owner)
}

func (s *collectionService) Get(ctx context.Context, owner, collection, id string) (*domain.Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if err := checkOwner(owner, ""); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, collection, owner, id)
}

func (s *collectionService) Create(ctx context.Context, owner, collection string, params *dto.RecordCreateRequest) (*domain.Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if err := checkOwner(owner, params.Owner); err != nil {
		return nil, err
	}

	if params.ClientKey != "" {
		existing, err := s.repo.GetByClientKey(ctx, collection, owner, params.ClientKey)
		if err == nil {
			s.logger.Info("record create deduplicated",
				zap.String(logger.FieldCollection, collection),
				zap.String(logger.FieldRemoteID, existing.ID))
			return existing, nil
		}
		if !errors.Is(err, code.ErrorRecordNotFound) {
			return nil, err
		}
	}

	doc, err := s.repo.Create(ctx, &domain.Document{
		Collection: collection,
		Owner:      owner,
		Title:      params.Title,
		Content:    params.Content,
		ClientKey:  params.ClientKey,
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) && params.ClientKey != "" {
		// 并发创建，返回先写入的记录
		return s.repo.GetByClientKey(ctx, collection, owner, params.ClientKey)
	}
	if err != nil {
		return nil, err
	}
	s.broadcast(owner, collection, domain.RemoteActionCreate, doc)
	return doc, nil
}

func (s *collectionService) Update(ctx context.Context, owner, collection, id string, params *dto.RecordUpdateRequest) (*domain.Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if err := checkOwner(owner, params.Owner); err != nil {
		return nil, err
	}
	doc, err := s.repo.Update(ctx, &domain.Document{
		ID:         id,
		Collection: collection,
		Owner:      owner,
		Title:      params.Title,
		Content:    params.Content,
	})
	if err != nil {
		return nil, err
	}
	s.broadcast(owner, collection, domain.RemoteActionUpdate, doc)
	return doc, nil
}

func (s *collectionService) Delete(ctx context.Context, owner, collection, id string) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	if err := checkOwner(owner, ""); err != nil {
		return err
	}
	doc, err := s.repo.Delete(ctx, collection, owner, id)
	if err != nil {
		return err
	}
	s.broadcast(owner, collection, domain.RemoteActionDelete, doc)
	return nil
}

func (s *collectionService) broadcast(owner, collection string, action domain.RemoteAction, doc *domain.Document) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.BroadcastRecord(owner, collection, action, doc)
}
