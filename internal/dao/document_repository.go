package dao

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/haierkeys/onyx-note-sync/internal/domain"
	"github.com/haierkeys/onyx-note-sync/internal/model"
	"github.com/haierkeys/onyx-note-sync/pkg/code"
	"github.com/haierkeys/onyx-note-sync/pkg/timex"
	"github.com/jinzhu/copier"
	"gorm.io/gorm"
)

const documentKey = "document"

// documentRepository 实现 domain.DocumentRepository 接口
type documentRepository struct {
	dao *Dao
	now func() time.Time
}

// NewDocumentRepository 创建 DocumentRepository 实例
func NewDocumentRepository(dao *Dao) domain.DocumentRepository {
	return &documentRepository{dao: dao, now: func() time.Time { return time.Now().UTC() }}
}

func (r *documentRepository) document(ctx context.Context) (*gorm.DB, error) {
	return r.dao.UseWithOnceFunc(ctx, documentKey, func(g *gorm.DB) error {
		return model.AutoMigrate(g, "Document")
	})
}

func (r *documentRepository) write(ctx context.Context, fn func(db *gorm.DB) error) error {
	if _, err := r.document(ctx); err != nil {
		return err
	}
	return r.dao.ExecuteWrite(ctx, documentKey, fn)
}

var documentCopyOption = copier.Option{
	Converters: []copier.TypeConverter{
		{
			SrcType: timex.Time{},
			DstType: time.Time{},
			Fn: func(src interface{}) (interface{}, error) {
				return src.(timex.Time).Time(), nil
			},
		},
		{
			SrcType: new(string),
			DstType: "",
			Fn: func(src interface{}) (interface{}, error) {
				if s, ok := src.(*string); ok && s != nil {
					return *s, nil
				}
				return "", nil
			},
		},
	},
}

// toDomain 将 DAO Document 转换为领域模型
func (r *documentRepository) toDomain(m *model.Document) (*domain.Document, error) {
	if m == nil {
		return nil, nil
	}
	doc := &domain.Document{}
	if err := copier.CopyWithOption(doc, m, documentCopyOption); err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *documentRepository) toDomainList(ms []*model.Document) ([]*domain.Document, error) {
	out := make([]*domain.Document, 0, len(ms))
	for _, m := range ms {
		d, err := r.toDomain(m)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func recordNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return code.ErrorRecordNotFound
	}
	return err
}

// List 列出 owner 在集合中的文档，按 updated 倒序
func (r *documentRepository) List(ctx context.Context, collection, owner string) ([]*domain.Document, error) {
	db, err := r.document(ctx)
	if err != nil {
		return nil, err
	}
	var ms []*model.Document
	err = db.Where("collection = ? AND owner = ?", collection, owner).
		Order("updated DESC").Order("id ASC").
		Find(&ms).Error
	if err != nil {
		return nil, err
	}
	return r.toDomainList(ms)
}

// Get 获取单个文档
func (r *documentRepository) Get(ctx context.Context, collection, owner, id string) (*domain.Document, error) {
	db, err := r.document(ctx)
	if err != nil {
		return nil, err
	}
	var m model.Document
	if err := db.Where("collection = ? AND owner = ? AND id = ?", collection, owner, id).First(&m).Error; err != nil {
		return nil, recordNotFound(err)
	}
	return r.toDomain(&m)
}

// GetByClientKey 根据幂等键查找文档
func (r *documentRepository) GetByClientKey(ctx context.Context, collection, owner, clientKey string) (*domain.Document, error) {
	db, err := r.document(ctx)
	if err != nil {
		return nil, err
	}
	var m model.Document
	err = db.Where("collection = ? AND owner = ? AND client_key = ?", collection, owner, clientKey).First(&m).Error
	if err != nil {
		return nil, recordNotFound(err)
	}
	return r.toDomain(&m)
}

// Create 创建文档，ID 与时间戳由服务端生成
func (r *documentRepository) Create(ctx context.Context, doc *domain.Document) (*domain.Document, error) {
	now := timex.Time(r.now())
	m := &model.Document{
		ID:         uuid.NewString(),
		Collection: doc.Collection,
		Owner:      doc.Owner,
		Title:      doc.Title,
		Content:    doc.Content,
		Created:    now,
		Updated:    now,
	}
	if doc.ClientKey != "" {
		key := doc.ClientKey
		m.ClientKey = &key
	}
	err := r.write(ctx, func(db *gorm.DB) error {
		if err := db.Create(m).Error; err != nil {
			if isDuplicateKey(err) {
				return gorm.ErrDuplicatedKey
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.toDomain(m)
}

// Update 更新标题与内容
func (r *documentRepository) Update(ctx context.Context, doc *domain.Document) (*domain.Document, error) {
	var out *model.Document
	err := r.write(ctx, func(db *gorm.DB) error {
		res := db.Model(&model.Document{}).
			Where("collection = ? AND owner = ? AND id = ?", doc.Collection, doc.Owner, doc.ID).
			Updates(map[string]any{
				"title":   doc.Title,
				"content": doc.Content,
				"updated": timex.Time(r.now()),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return code.ErrorRecordNotFound
		}
		var m model.Document
		if err := db.Where("id = ?", doc.ID).First(&m).Error; err != nil {
			return recordNotFound(err)
		}
		out = &m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.toDomain(out)
}

// Delete 删除文档并返回删除前的记录
func (r *documentRepository) Delete(ctx context.Context, collection, owner, id string) (*domain.Document, error) {
	var deleted *model.Document
	err := r.write(ctx, func(db *gorm.DB) error {
		var m model.Document
		if err := db.Where("collection = ? AND owner = ? AND id = ?", collection, owner, id).First(&m).Error; err != nil {
			return recordNotFound(err)
		}
		if err := db.Delete(&model.Document{}, "id = ?", id).Error; err != nil {
			return err
		}
		deleted = &m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.toDomain(deleted)
}
