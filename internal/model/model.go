package model

import (
	"gorm.io/gorm"
)

// AutoMigrate migrates one table by model key, unknown keys are ignored
// AutoMigrate 按模型 key 迁移表结构，未知 key 忽略
// Adding remote_id to an older note table is an additive column migration
// 旧版 note 表会以新增列的方式补上 remote_id
func AutoMigrate(db *gorm.DB, key string) error {
	switch key {
	case "Note":
		return db.AutoMigrate(Note{}, NoteTombstone{})
	case "Document":
		return db.AutoMigrate(Document{})
	}
	return nil
}
