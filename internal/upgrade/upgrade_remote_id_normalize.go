package upgrade

import (
	"context"

	"github.com/haierkeys/onyx-note-sync/internal/model"
	"gorm.io/gorm"
)

// RemoteIDNormalizeMigrate 清理早期版本写入的空 remote_id 与失效墓碑
// Early builds stored "" for unbound notes, which collides under the unique remote_id index
type RemoteIDNormalizeMigrate struct{}

func (m *RemoteIDNormalizeMigrate) Version() string {
	return "0.4.0"
}

func (m *RemoteIDNormalizeMigrate) Description() string {
	return "Normalize empty note remote ids to NULL and drop tombstones of still bound notes"
}

func (m *RemoteIDNormalizeMigrate) Up(ctx context.Context, db *gorm.DB) error {
	if err := model.AutoMigrate(db, "Note"); err != nil {
		return err
	}

	if err := db.Model(&model.Note{}).
		Where("remote_id = ?", "").
		Update("remote_id", gorm.Expr("NULL")).Error; err != nil {
		return err
	}

	// 仍绑定在本地笔记上的远端 ID 不应留有墓碑
	bound := db.Model(&model.Note{}).Select("remote_id").Where("remote_id IS NOT NULL")
	return db.Where("remote_id IN (?)", bound).Delete(&model.NoteTombstone{}).Error
}
