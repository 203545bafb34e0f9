package domain

import "time"

// Document 远端集合中的文档
type Document struct {
	ID         string
	Collection string
	Owner      string
	Title      string
	Content    string
	// ClientKey idempotency key of the creating device, empty for foreign documents
	// ClientKey 创建端的幂等键，外部创建的文档为空
	ClientKey string
	Created   time.Time
	Updated   time.Time
}

// DocumentFields 创建或更新远端文档时发送的字段
type DocumentFields struct {
	Title     string
	Content   string
	Owner     string
	ClientKey string
}

// RemoteAction 远端实时事件类型
type RemoteAction string

const (
	RemoteActionCreate RemoteAction = "create"
	RemoteActionUpdate RemoteAction = "update"
	RemoteActionDelete RemoteAction = "delete"
)

// Valid 是否为已知事件类型
func (a RemoteAction) Valid() bool {
	switch a {
	case RemoteActionCreate, RemoteActionUpdate, RemoteActionDelete:
		return true
	}
	return false
}

// RemoteEvent 远端实时变更事件
type RemoteEvent struct {
	Action   RemoteAction
	Document Document
}

// RemoteEventHandler 实时事件回调，在订阅的读循环中串行调用
type RemoteEventHandler func(event RemoteEvent)

// Subscription is an open realtime stream
// Subscription 已建立的实时订阅
type Subscription interface {
	// Unsubscribe closes the stream, safe to call more than once
	// Unsubscribe 关闭订阅，可重复调用
	Unsubscribe() error
	// Done is closed once the stream is gone, whether by Unsubscribe or a drop
	// Done 订阅结束（主动取消或断开）后关闭
	Done() <-chan struct{}
}
