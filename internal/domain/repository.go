// Package domain 定义领域模型和接口
package domain

import (
	"context"
	"time"
)

// NoteRepository is the local note store
// NoteRepository 本地笔记存储接口
type NoteRepository interface {
	// ListNotes 按 updated_at 倒序列出全部笔记
	ListNotes(ctx context.Context) ([]*Note, error)

	// GetNote 根据本地 ID 获取笔记
	GetNote(ctx context.Context, localID int64) (*Note, error)

	// GetNoteContent 获取标题、内容与绑定信息
	GetNoteContent(ctx context.Context, localID int64) (*NoteContent, error)

	// GetNoteByRemoteID 根据远端 ID 获取笔记
	GetNoteByRemoteID(ctx context.Context, remoteID string) (*Note, error)

	// CreateNote 创建笔记并返回本地 ID
	CreateNote(ctx context.Context, title, content string) (int64, error)

	// UpdateNote 覆盖标题与内容，并更新 updated_at
	UpdateNote(ctx context.Context, localID int64, title, content string) error

	// BindRemoteID binds once; the same id again is a no-op, another id is ErrorBindingConflict
	// BindRemoteID 绑定远端 ID，相同参数幂等，不同远端 ID 返回 ErrorBindingConflict
	BindRemoteID(ctx context.Context, localID int64, remoteID string) error

	// ImportRemoteNote 以远端时间戳导入远端文档，返回本地 ID
	ImportRemoteNote(ctx context.Context, remoteID, title, content string, remoteUpdatedAt time.Time) (int64, error)

	// DeleteNote deletes the note, a bound note leaves a tombstone for its remote id
	// DeleteNote 删除笔记，已绑定的笔记会留下远端 ID 墓碑
	DeleteNote(ctx context.Context, localID int64) (*Note, error)

	// DeleteNoteByRemoteID 删除绑定到 remoteID 的笔记并清除墓碑，返回是否删除了笔记
	DeleteNoteByRemoteID(ctx context.Context, remoteID string) (bool, error)

	// ListTombstones 列出本地已删除但远端可能仍存在的远端 ID
	ListTombstones(ctx context.Context) ([]string, error)

	// ClearTombstone 远端文档确认不存在后清除墓碑
	ClearTombstone(ctx context.Context, remoteID string) error

	// MarkRemoteScope records scope on the notes bound to remoteIDs
	// MarkRemoteScope 为绑定到 remoteIDs 的笔记记录远端范围
	MarkRemoteScope(ctx context.Context, scope string, remoteIDs []string) error

	// ListScopedTombstones 列出在 scope 范围内删除的笔记留下的墓碑
	ListScopedTombstones(ctx context.Context, scope string) ([]string, error)
}

// DocumentStore is the remote collection store as seen by the engine
// DocumentStore 同步引擎使用的远端集合存储接口
type DocumentStore interface {
	ListDocuments(ctx context.Context, collection string) ([]*Document, error)

	CreateDocument(ctx context.Context, collection string, fields DocumentFields) (string, error)

	UpdateDocument(ctx context.Context, collection, remoteID string, fields DocumentFields) error

	DeleteDocument(ctx context.Context, collection, remoteID string) error

	// Subscribe returns once the server acknowledged the subscription
	// Subscribe 服务端确认订阅后返回
	Subscribe(ctx context.Context, collection string, handler RemoteEventHandler) (Subscription, error)

	HealthCheck(ctx context.Context) error
}

// DocumentRepository 服务端文档持久化接口
type DocumentRepository interface {
	List(ctx context.Context, collection, owner string) ([]*Document, error)

	Get(ctx context.Context, collection, owner, id string) (*Document, error)

	// GetByClientKey 根据幂等键查找文档
	GetByClientKey(ctx context.Context, collection, owner, clientKey string) (*Document, error)

	Create(ctx context.Context, doc *Document) (*Document, error)

	Update(ctx context.Context, doc *Document) (*Document, error)

	// Delete 返回被删除的文档
	Delete(ctx context.Context, collection, owner, id string) (*Document, error)
}
