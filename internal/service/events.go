package service

import (
	"sync"

	"go.uber.org/zap"
)

// Event in-process notification published by the sync engine
// Event 同步引擎发布的进程内事件
type Event interface {
	EventName() string
}

// NotesChangedEvent the local note list may have changed, carries no payload
// NotesChangedEvent 本地笔记列表可能已变化，不携带数据
type NotesChangedEvent struct{}

func (NotesChangedEvent) EventName() string { return "notes-changed" }

// ConnectivityChangedEvent 连接状态变化
type ConnectivityChangedEvent struct {
	Connected bool
}

func (ConnectivityChangedEvent) EventName() string { return "connectivity-changed" }

// EventBus fans events out to channel subscribers; a full subscriber misses the event
// EventBus 将事件分发给订阅者，订阅者缓冲区满时丢弃该事件
type EventBus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	logger *zap.Logger
}

// NewEventBus 创建事件总线
func NewEventBus(zl *zap.Logger) *EventBus {
	if zl == nil {
		zl = zap.NewNop()
	}
	return &EventBus{subs: make(map[int]chan Event), logger: zl}
}

// Subscribe registers a subscriber; cancel closes the channel and is safe to call twice
// Subscribe 注册订阅者，cancel 会关闭通道，可重复调用
func (b *EventBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish 非阻塞发布事件
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.logger.Debug("event dropped, subscriber is full", zap.String("event", e.EventName()))
		}
	}
}

// NotesChanged 发布笔记列表变化信号
func (b *EventBus) NotesChanged() {
	b.Publish(NotesChangedEvent{})
}
