// Package dto Defines data transfer objects (request parameters and response structs)
// Package dto 定义数据传输对象（请求参数和响应结构体）
package dto

import (
	"github.com/haierkeys/onyx-note-sync/internal/domain"
	"github.com/haierkeys/onyx-note-sync/pkg/timex"
)

// RecordDTO collection record on the wire
// RecordDTO 集合记录传输对象
type RecordDTO struct {
	ID         string     `json:"id"`
	Collection string     `json:"collectionName"`
	Owner      string     `json:"owner"`
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	ClientKey  string     `json:"clientKey,omitempty"`
	Created    timex.Time `json:"created"`
	Updated    timex.Time `json:"updated"`
}

// CollectionURI 集合路径参数
type CollectionURI struct {
	Collection string `uri:"collection" binding:"required,collection"`
}

// RecordURI 记录路径参数
type RecordURI struct {
	Collection string `uri:"collection" binding:"required,collection"`
	ID         string `uri:"id" binding:"required,max=64"`
}

// RecordCreateRequest 创建记录请求
type RecordCreateRequest struct {
	Title   string `json:"title" binding:"max=512"`
	Content string `json:"content"`
	// Owner must match the token identity when set
	// Owner 非空时必须与令牌身份一致
	Owner     string `json:"owner" binding:"max=128"`
	ClientKey string `json:"clientKey" binding:"max=64"`
}

// RecordUpdateRequest 更新记录请求
type RecordUpdateRequest struct {
	Title   string `json:"title" binding:"max=512"`
	Content string `json:"content"`
	Owner   string `json:"owner" binding:"max=128"`
}

// HealthDTO 健康检查响应
type HealthDTO struct {
	Status  string     `json:"status"`
	Version string     `json:"version"`
	Time    timex.Time `json:"time"`
}

// RecordFromDomain 领域文档转换为传输对象
func RecordFromDomain(d *domain.Document) RecordDTO {
	return RecordDTO{
		ID:         d.ID,
		Collection: d.Collection,
		Owner:      d.Owner,
		Title:      d.Title,
		Content:    d.Content,
		ClientKey:  d.ClientKey,
		Created:    timex.Time(d.Created),
		Updated:    timex.Time(d.Updated),
	}
}

// ToDomain 传输对象转换为领域文档
func (r RecordDTO) ToDomain() *domain.Document {
	return &domain.Document{
		ID:         r.ID,
		Collection: r.Collection,
		Owner:      r.Owner,
		Title:      r.Title,
		Content:    r.Content,
		ClientKey:  r.ClientKey,
		Created:    r.Created.Time(),
		Updated:    r.Updated.Time(),
	}
}
