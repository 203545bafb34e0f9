package model

import "github.com/haierkeys/onyx-note-sync/pkg/timex"

const TableNameDocument = "document"

// Document mapped from table <document>, the reference server's collection records
// Document 参考服务端的集合记录
// ClientKey is NULL for documents created without an idempotency key
// 未携带幂等键创建的文档 ClientKey 为 NULL
type Document struct {
	ID         string     `gorm:"column:id;primaryKey;size:64" json:"id"`
	Collection string     `gorm:"column:collection;size:128;not null;index:idx_document_owner,priority:1;uniqueIndex:idx_document_client_key,priority:1" json:"collection"`
	Owner      string     `gorm:"column:owner;size:128;not null;index:idx_document_owner,priority:2;uniqueIndex:idx_document_client_key,priority:2" json:"owner"`
	ClientKey  *string    `gorm:"column:client_key;size:64;uniqueIndex:idx_document_client_key,priority:3" json:"clientKey"`
	Title      string     `gorm:"column:title;not null;default:''" json:"title"`
	Content    string     `gorm:"column:content;type:text" json:"content"`
	Created    timex.Time `gorm:"column:created;precision:3" json:"created"`
	Updated    timex.Time `gorm:"column:updated;precision:3" json:"updated"`
}

// TableName Document's table name
func (*Document) TableName() string {
	return TableNameDocument
}
