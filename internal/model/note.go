package model

import "github.com/haierkeys/onyx-note-sync/pkg/timex"

const TableNameNote = "note"

// Note mapped from table <note>
// RemoteID is NULL while unbound so the unique index only covers bound notes
// 未绑定时 RemoteID 为 NULL，唯一索引只约束已绑定笔记
type Note struct {
	ID          int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	RemoteID    *string    `gorm:"column:remote_id;size:64;uniqueIndex:idx_note_remote_id" json:"remoteId"`
	RemoteScope string     `gorm:"column:remote_scope;size:255;not null;default:''" json:"remoteScope"`
	Title       string     `gorm:"column:title;not null;default:''" json:"title"`
	Content     string     `gorm:"column:content;type:text" json:"content"`
	CreatedAt   timex.Time `gorm:"column:created_at;precision:3;autoCreateTime:false" json:"createdAt"`
	UpdatedAt   timex.Time `gorm:"column:updated_at;precision:3;index:idx_note_updated_at;autoUpdateTime:false" json:"updatedAt"`
}

// TableName Note's table name
func (*Note) TableName() string {
	return TableNameNote
}

const TableNameNoteTombstone = "note_tombstone"

// NoteTombstone remembers remote ids of locally deleted notes until the remote side is gone
// NoteTombstone 记录已在本地删除的笔记的远端 ID，直到远端文档消失
type NoteTombstone struct {
	RemoteID    string     `gorm:"column:remote_id;primaryKey;size:64" json:"remoteId"`
	RemoteScope string     `gorm:"column:remote_scope;size:255;not null;default:''" json:"remoteScope"`
	DeletedAt   timex.Time `gorm:"column:deleted_at;precision:3" json:"deletedAt"`
}

// TableName NoteTombstone's table name
func (*NoteTombstone) TableName() string {
	return TableNameNoteTombstone
}
