// Package safe_close fans a single close signal out to attached goroutines and waits for them
// Package safe_close 将关闭信号分发给所有挂载的协程并等待其退出
package safe_close

import (
	"sync"
)

// SafeClose coordinates shutdown of attached workers
// SafeClose 协调挂载协程的关闭
type SafeClose struct {
	closeSignal chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup

	mu  sync.Mutex
	err error
}

// NewSafeClose 创建 SafeClose
func NewSafeClose() *SafeClose {
	return &SafeClose{closeSignal: make(chan struct{})}
}

// Attach starts fn in its own goroutine; fn must call done when it returns
// Attach 在独立协程中运行 fn，fn 返回时必须调用 done
func (s *SafeClose) Attach(fn func(done func(), closeSignal <-chan struct{})) {
	s.wg.Add(1)
	var once sync.Once
	done := func() { once.Do(s.wg.Done) }
	go fn(done, s.closeSignal)
}

// SendCloseSignal closes the signal channel once; the first non-nil err is kept
// SendCloseSignal 只关闭一次信号通道，保留第一个非空错误
func (s *SafeClose) SendCloseSignal(err error) {
	if err != nil {
		s.mu.Lock()
		if s.err == nil {
			s.err = err
		}
		s.mu.Unlock()
	}
	s.closeOnce.Do(func() {
		close(s.closeSignal)
	})
}

// WaitClosed blocks until every attached worker called done
// WaitClosed 阻塞直到所有挂载协程调用 done
func (s *SafeClose) WaitClosed() error {
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// CloseSignal exposes the signal channel for select loops
// CloseSignal 返回信号通道，供 select 使用
func (s *SafeClose) CloseSignal() <-chan struct{} {
	return s.closeSignal
}

// IsClosed 是否已发送关闭信号
func (s *SafeClose) IsClosed() bool {
	select {
	case <-s.closeSignal:
		return true
	default:
		return false
	}
}
