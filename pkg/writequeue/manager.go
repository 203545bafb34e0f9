// Package writequeue serializes writes per key
// Package writequeue 按 key 串行化写操作
// SQLite allows one writer at a time; funnelling writes for the same store through one lane avoids "database is locked"
// SQLite 同时只允许一个写者，同一存储的写操作经由同一通道执行，避免 "database is locked"
package writequeue

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrWriteQueueFull 写队列已满
	ErrWriteQueueFull = errors.New("write queue is full")
	// ErrWriteQueueClosed 写队列管理器已关闭
	ErrWriteQueueClosed = errors.New("write queue is closed")
	// ErrWriteTimeout 写操作超时
	ErrWriteTimeout = errors.New("write operation timeout")
)

// Config 写队列配置
type Config struct {
	// QueueCapacity per-key capacity, default 100
	// QueueCapacity 每个 key 的队列容量，默认 100
	QueueCapacity int
	// WriteTimeout max wait for one write, default 30s
	// WriteTimeout 单次写操作最长等待，默认 30 秒
	WriteTimeout time.Duration
	// IdleTimeout an idle lane retires after this, default 10m
	// IdleTimeout 通道空闲超过该时间后退出，默认 10 分钟
	IdleTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		QueueCapacity: 100,
		WriteTimeout:  30 * time.Second,
		IdleTimeout:   10 * time.Minute,
	}
}

type writeOp struct {
	ctx    context.Context
	fn     func() error
	result chan error
}

// lane one FIFO queue and its worker
// lane 单个 FIFO 队列及其 worker
type lane struct {
	key string
	ch  chan writeOp
}

// Manager 管理所有 key 的写队列
type Manager struct {
	config Config
	logger *zap.Logger

	mu     sync.Mutex
	lanes  map[string]*lane
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// New 创建写队列管理器，cfg 为 nil 时使用默认配置
func New(cfg *Config, logger *zap.Logger) *Manager {
	c := DefaultConfig()
	if cfg != nil {
		if cfg.QueueCapacity > 0 {
			c.QueueCapacity = cfg.QueueCapacity
		}
		if cfg.WriteTimeout > 0 {
			c.WriteTimeout = cfg.WriteTimeout
		}
		if cfg.IdleTimeout > 0 {
			c.IdleTimeout = cfg.IdleTimeout
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		config: c,
		logger: logger,
		lanes:  make(map[string]*lane),
		done:   make(chan struct{}),
	}
}

// Execute runs fn on the lane of key and waits for its result; writes on one key run in FIFO order
// Execute 在 key 对应的通道上执行 fn 并等待结果，同一 key 的写操作按 FIFO 顺序执行
func (m *Manager) Execute(ctx context.Context, key string, fn func() error) error {
	result := make(chan error, 1)
	if err := m.enqueue(key, writeOp{ctx: ctx, fn: fn, result: result}); err != nil {
		return err
	}

	timer := time.NewTimer(m.config.WriteTimeout)
	defer timer.Stop()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrWriteTimeout
	}
}

// enqueue pushes under the manager lock so a lane cannot retire between lookup and send
// enqueue 在锁内投递，避免查找与发送之间通道退出
func (m *Manager) enqueue(key string, op writeOp) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrWriteQueueClosed
	}

	l, ok := m.lanes[key]
	if !ok {
		l = &lane{key: key, ch: make(chan writeOp, m.config.QueueCapacity)}
		m.lanes[key] = l
		m.wg.Add(1)
		go m.worker(l)
		m.logger.Debug("write queue lane created", zap.String("key", key))
	}

	select {
	case l.ch <- op:
		return nil
	default:
		return ErrWriteQueueFull
	}
}

func (m *Manager) worker(l *lane) {
	defer m.wg.Done()

	idle := time.NewTimer(m.config.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case op := <-l.ch:
			m.apply(op)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(m.config.IdleTimeout)
		case <-idle.C:
			if m.retire(l) {
				return
			}
			idle.Reset(m.config.IdleTimeout)
		case <-m.done:
			m.drain(l)
			return
		}
	}
}

// retire removes an empty lane, returns false when writes arrived meanwhile
// retire 移除空闲通道，期间有新写入时返回 false
func (m *Manager) retire(l *lane) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(l.ch) > 0 {
		return false
	}
	delete(m.lanes, l.key)
	m.logger.Debug("write queue lane retired", zap.String("key", l.key))
	return true
}

func (m *Manager) drain(l *lane) {
	for {
		select {
		case op := <-l.ch:
			m.apply(op)
		default:
			return
		}
	}
}

func (m *Manager) apply(op writeOp) {
	if err := op.ctx.Err(); err != nil {
		op.result <- err
		return
	}
	op.result <- op.fn()
}

// Shutdown rejects new writes and drains queued ones
// Shutdown 拒绝新的写入并排空已排队的写操作
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.done)
	m.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		m.logger.Debug("write queue manager shutdown completed")
		return nil
	case <-ctx.Done():
		m.logger.Warn("write queue manager shutdown timeout")
		return ctx.Err()
	}
}

// LaneCount 当前活跃通道数量
func (m *Manager) LaneCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lanes)
}

// IsClosed 管理器是否已关闭
func (m *Manager) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
