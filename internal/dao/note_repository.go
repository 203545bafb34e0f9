package dao

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/haierkeys/onyx-note-sync/internal/domain"
	"github.com/haierkeys/onyx-note-sync/internal/model"
	"github.com/haierkeys/onyx-note-sync/pkg/code"
	"github.com/haierkeys/onyx-note-sync/pkg/timex"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const noteKey = "note"

// noteRepository 实现 domain.NoteRepository 接口
type noteRepository struct {
	dao *Dao
	now func() time.Time
}

// NewNoteRepository 创建 NoteRepository 实例
func NewNoteRepository(dao *Dao) domain.NoteRepository {
	return &noteRepository{dao: dao, now: func() time.Time { return time.Now().UTC() }}
}

// note 获取迁移后的 note 表会话
func (r *noteRepository) note(ctx context.Context) (*gorm.DB, error) {
	return r.dao.UseWithOnceFunc(ctx, noteKey, func(g *gorm.DB) error {
		return model.AutoMigrate(g, "Note")
	})
}

// write 在 note 写通道中执行
func (r *noteRepository) write(ctx context.Context, fn func(db *gorm.DB) error) error {
	if _, err := r.note(ctx); err != nil {
		return err
	}
	return r.dao.ExecuteWrite(ctx, noteKey, fn)
}

// toDomain 将 DAO Note 转换为领域模型
func (r *noteRepository) toDomain(m *model.Note) *domain.Note {
	if m == nil {
		return nil
	}
	n := &domain.Note{
		LocalID:     m.ID,
		RemoteScope: m.RemoteScope,
		Title:       m.Title,
		Content:     m.Content,
		CreatedAt:   m.CreatedAt.Time(),
		UpdatedAt:   m.UpdatedAt.Time(),
	}
	if m.RemoteID != nil {
		n.RemoteID = *m.RemoteID
	}
	return n
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return code.ErrorNoteNotFound
	}
	return err
}

// ListNotes 按 updated_at DESC, id DESC 列出全部笔记
func (r *noteRepository) ListNotes(ctx context.Context) ([]*domain.Note, error) {
	db, err := r.note(ctx)
	if err != nil {
		return nil, err
	}
	var ms []*model.Note
	if err := db.Order("updated_at DESC").Order("id DESC").Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Note, 0, len(ms))
	for _, m := range ms {
		out = append(out, r.toDomain(m))
	}
	return out, nil
}

// GetNote 根据本地 ID 获取笔记
func (r *noteRepository) GetNote(ctx context.Context, localID int64) (*domain.Note, error) {
	db, err := r.note(ctx)
	if err != nil {
		return nil, err
	}
	var m model.Note
	if err := db.Where("id = ?", localID).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return r.toDomain(&m), nil
}

// GetNoteContent 获取标题、内容与绑定信息
func (r *noteRepository) GetNoteContent(ctx context.Context, localID int64) (*domain.NoteContent, error) {
	n, err := r.GetNote(ctx, localID)
	if err != nil {
		return nil, err
	}
	return &domain.NoteContent{Title: n.Title, Content: n.Content, RemoteID: n.RemoteID}, nil
}

// GetNoteByRemoteID 根据远端 ID 获取笔记
func (r *noteRepository) GetNoteByRemoteID(ctx context.Context, remoteID string) (*domain.Note, error) {
	db, err := r.note(ctx)
	if err != nil {
		return nil, err
	}
	var m model.Note
	if err := db.Where("remote_id = ?", remoteID).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return r.toDomain(&m), nil
}

// CreateNote 创建笔记
func (r *noteRepository) CreateNote(ctx context.Context, title, content string) (int64, error) {
	now := timex.Time(r.now())
	m := &model.Note{Title: title, Content: content, CreatedAt: now, UpdatedAt: now}
	err := r.write(ctx, func(db *gorm.DB) error {
		return db.Create(m).Error
	})
	if err != nil {
		return 0, err
	}
	return m.ID, nil
}

// UpdateNote 覆盖标题与内容
func (r *noteRepository) UpdateNote(ctx context.Context, localID int64, title, content string) error {
	return r.write(ctx, func(db *gorm.DB) error {
		res := db.Model(&model.Note{}).Where("id = ?", localID).Updates(map[string]any{
			"title":      title,
			"content":    content,
			"updated_at": timex.Time(r.now()),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return code.ErrorNoteNotFound
		}
		return nil
	})
}

// BindRemoteID only writes when the note is unbound, so an existing binding is never overwritten
// BindRemoteID 仅在未绑定时写入，已有绑定不会被覆盖
func (r *noteRepository) BindRemoteID(ctx context.Context, localID int64, remoteID string) error {
	if remoteID == "" {
		return code.ErrorInvalidParams.WithDetails("remote id is empty")
	}
	return r.write(ctx, func(db *gorm.DB) error {
		res := db.Model(&model.Note{}).
			Where("id = ? AND remote_id IS NULL", localID).
			Updates(map[string]any{"remote_id": remoteID, "updated_at": timex.Time(r.now())})
		if res.Error != nil {
			if isDuplicateKey(res.Error) {
				return code.ErrorRemoteIDTaken.WithDetails(remoteID)
			}
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}

		var m model.Note
		if err := db.Where("id = ?", localID).First(&m).Error; err != nil {
			return notFound(err)
		}
		if m.RemoteID != nil && *m.RemoteID == remoteID {
			return nil
		}
		existing := ""
		if m.RemoteID != nil {
			existing = *m.RemoteID
		}
		return code.ErrorBindingConflict.WithDetails(fmt.Sprintf("local %d bound to %s, refused %s", localID, existing, remoteID))
	})
}

// ImportRemoteNote 导入远端文档，远端 updated 作为本地时间戳
func (r *noteRepository) ImportRemoteNote(ctx context.Context, remoteID, title, content string, remoteUpdatedAt time.Time) (int64, error) {
	if remoteID == "" {
		return 0, code.ErrorInvalidParams.WithDetails("remote id is empty")
	}
	updated := remoteUpdatedAt.UTC()
	if remoteUpdatedAt.IsZero() {
		updated = r.now()
	}
	m := &model.Note{
		RemoteID:  &remoteID,
		Title:     title,
		Content:   content,
		CreatedAt: timex.Time(r.now()),
		UpdatedAt: timex.Time(updated),
	}
	err := r.write(ctx, func(db *gorm.DB) error {
		if err := db.Create(m).Error; err != nil {
			if isDuplicateKey(err) {
				return code.ErrorRemoteIDTaken.WithDetails(remoteID)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return m.ID, nil
}

// DeleteNote 删除笔记并返回删除前的记录
func (r *noteRepository) DeleteNote(ctx context.Context, localID int64) (*domain.Note, error) {
	var deleted *domain.Note
	err := r.write(ctx, func(db *gorm.DB) error {
		var m model.Note
		if err := db.Where("id = ?", localID).First(&m).Error; err != nil {
			return notFound(err)
		}
		return db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Delete(&model.Note{}, "id = ?", localID).Error; err != nil {
				return err
			}
			if m.RemoteID != nil {
				tomb := &model.NoteTombstone{RemoteID: *m.RemoteID, RemoteScope: m.RemoteScope, DeletedAt: timex.Time(r.now())}
				if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(tomb).Error; err != nil {
					return err
				}
			}
			deleted = r.toDomain(&m)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// DeleteNoteByRemoteID 删除绑定到 remoteID 的笔记
func (r *noteRepository) DeleteNoteByRemoteID(ctx context.Context, remoteID string) (bool, error) {
	if remoteID == "" {
		return false, nil
	}
	var deleted bool
	err := r.write(ctx, func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			res := tx.Where("remote_id = ?", remoteID).Delete(&model.Note{})
			if res.Error != nil {
				return res.Error
			}
			deleted = res.RowsAffected > 0
			return tx.Where("remote_id = ?", remoteID).Delete(&model.NoteTombstone{}).Error
		})
	})
	return deleted, err
}

// ListTombstones 列出墓碑中的远端 ID
func (r *noteRepository) ListTombstones(ctx context.Context) ([]string, error) {
	db, err := r.note(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := db.Model(&model.NoteTombstone{}).Order("deleted_at ASC").Pluck("remote_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ClearTombstone 清除墓碑
func (r *noteRepository) ClearTombstone(ctx context.Context, remoteID string) error {
	return r.write(ctx, func(db *gorm.DB) error {
		return db.Where("remote_id = ?", remoteID).Delete(&model.NoteTombstone{}).Error
	})
}

// MarkRemoteScope 为已绑定笔记记录远端范围
func (r *noteRepository) MarkRemoteScope(ctx context.Context, scope string, remoteIDs []string) error {
	if len(remoteIDs) == 0 {
		return nil
	}
	return r.write(ctx, func(db *gorm.DB) error {
		return db.Model(&model.Note{}).
			Where("remote_id IN ? AND remote_scope <> ?", remoteIDs, scope).
			Update("remote_scope", scope).Error
	})
}

// ListScopedTombstones 列出 scope 范围内的墓碑
func (r *noteRepository) ListScopedTombstones(ctx context.Context, scope string) ([]string, error) {
	db, err := r.note(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := db.Model(&model.NoteTombstone{}).
		Where("remote_scope = ?", scope).
		Order("deleted_at ASC").
		Pluck("remote_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
