// Package domain 定义领域模型和接口
package domain

import "time"

// Note 本地笔记领域模型
type Note struct {
	// LocalID 本地存储分配，永不复用
	LocalID int64
	// RemoteID 绑定的远端文档 ID，空字符串表示未绑定
	RemoteID string
	// RemoteScope is the server, collection and owner the binding was last seen in, empty when unknown
	// RemoteScope 绑定最近一次出现的远端范围（服务地址、集合与身份），未知时为空
	RemoteScope string
	Title       string
	// Content 明文、加密信封 {iv,salt,data} 或旧版 [{id,type,content}] 包装，同步引擎不解读
	Content   string
	CreatedAt time.Time
	// UpdatedAt 每次本地写入时更新（UTC）
	UpdatedAt time.Time
}

// IsBound 是否已绑定远端文档
func (n *Note) IsBound() bool {
	return n.RemoteID != ""
}

// NoteContent is the projection returned by GetNoteContent
// NoteContent GetNoteContent 返回的内容投影
type NoteContent struct {
	Title    string
	Content  string
	RemoteID string
}
