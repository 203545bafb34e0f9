// Package workerpool runs background jobs on a bounded set of goroutines
// Package workerpool 在有限数量的协程上执行后台任务
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	// ErrWorkerPoolFull 任务队列已满
	ErrWorkerPoolFull = errors.New("worker pool queue is full")
	// ErrWorkerPoolClosed Worker Pool 已关闭
	ErrWorkerPoolClosed = errors.New("worker pool is closed")
	// ErrTaskPanicked 任务执行时发生 panic
	ErrTaskPanicked = errors.New("task panicked")
)

// Config Worker Pool 配置
type Config struct {
	// MaxWorkers 最大并发 worker 数量，默认 8
	MaxWorkers int
	// QueueSize 任务队列大小，默认 256
	QueueSize int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MaxWorkers: 8,
		QueueSize:  256,
	}
}

type job struct {
	ctx    context.Context
	fn     func(context.Context) error
	result chan error
}

// Pool bounded worker pool; jobs queued past QueueSize are rejected, never blocked on
// Pool 有界 worker 池，超过队列容量的任务直接拒绝而不阻塞
type Pool struct {
	config Config
	logger *zap.Logger

	jobs chan job
	wg   sync.WaitGroup

	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64

	// stop cancels job contexts when shutdown times out
	stop     context.Context
	stopFunc context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// New 创建 Worker Pool，cfg 为 nil 时使用默认配置，logger 为 nil 时使用 nop logger
func New(cfg *Config, logger *zap.Logger) *Pool {
	c := DefaultConfig()
	if cfg != nil {
		if cfg.MaxWorkers > 0 {
			c.MaxWorkers = cfg.MaxWorkers
		}
		if cfg.QueueSize > 0 {
			c.QueueSize = cfg.QueueSize
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	stop, stopFunc := context.WithCancel(context.Background())
	p := &Pool{
		config:   c,
		logger:   logger,
		jobs:     make(chan job, c.QueueSize),
		stop:     stop,
		stopFunc: stopFunc,
	}

	p.wg.Add(c.MaxWorkers)
	for i := 0; i < c.MaxWorkers; i++ {
		go p.loop()
	}

	p.logger.Debug("worker pool started",
		zap.Int("maxWorkers", c.MaxWorkers),
		zap.Int("queueSize", c.QueueSize))
	return p
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for j := range p.jobs {
		err := p.run(j)
		if j.result != nil {
			j.result <- err
		}
	}
}

// run executes one job, converting a panic into ErrTaskPanicked
// run 执行单个任务，panic 转换为 ErrTaskPanicked
func (p *Pool) run(j job) (err error) {
	p.active.Add(1)
	defer p.active.Add(-1)

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker pool task panic", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
		if err != nil {
			p.failed.Add(1)
		} else {
			p.completed.Add(1)
		}
	}()

	if err := j.ctx.Err(); err != nil {
		return err
	}

	ctx, cancel := mergeCancel(j.ctx, p.stop)
	defer cancel()
	return j.fn(ctx)
}

// mergeCancel derives a context from ctx that is also cancelled by stop
func mergeCancel(ctx, stop context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(ctx)
	unregister := context.AfterFunc(stop, cancel)
	return merged, func() {
		unregister()
		cancel()
	}
}

func (p *Pool) enqueue(j job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrWorkerPoolClosed
	}
	select {
	case p.jobs <- j:
		return nil
	default:
		p.logger.Warn("worker pool queue is full",
			zap.Int("queueSize", p.config.QueueSize),
			zap.Int64("activeCount", p.active.Load()))
		return ErrWorkerPoolFull
	}
}

// Submit 提交任务并等待完成
func (p *Pool) Submit(ctx context.Context, fn func(context.Context) error) error {
	result := make(chan error, 1)
	if err := p.enqueue(job{ctx: ctx, fn: fn, result: result}); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitAsync 异步提交任务（不等待结果）
func (p *Pool) SubmitAsync(ctx context.Context, fn func(context.Context) error) error {
	return p.enqueue(job{ctx: ctx, fn: fn})
}

// Shutdown stops accepting jobs and drains the queue; on ctx expiry running jobs are cancelled
// Shutdown 停止接收任务并排空队列，ctx 超时后取消执行中的任务
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.stopFunc()
		p.logger.Debug("worker pool shutdown completed",
			zap.Int64("completed", p.completed.Load()),
			zap.Int64("failed", p.failed.Load()))
		return nil
	case <-ctx.Done():
		p.stopFunc()
		p.logger.Warn("worker pool shutdown timeout, cancelling running tasks",
			zap.Int64("activeCount", p.active.Load()),
			zap.Int("queuedCount", len(p.jobs)))
		return ctx.Err()
	}
}

// Metrics Worker Pool 指标
type Metrics struct {
	MaxWorkers  int
	ActiveCount int64
	QueuedCount int
	Completed   int64
	Failed      int64
	IsClosed    bool
}

// GetMetrics 获取当前指标
func (p *Pool) GetMetrics() Metrics {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	return Metrics{
		MaxWorkers:  p.config.MaxWorkers,
		ActiveCount: p.active.Load(),
		QueuedCount: len(p.jobs),
		Completed:   p.completed.Load(),
		Failed:      p.failed.Load(),
		IsClosed:    closed,
	}
}
