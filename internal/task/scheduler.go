package task

import (
	"context"
	"time"

	"github.com/haierkeys/onyx-note-sync/pkg/logger"
	"github.com/haierkeys/onyx-note-sync/pkg/safe_close"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Task 定义任务接口
type Task interface {
	Name() string                  // 任务名称
	Run(ctx context.Context) error // 执行任务
	LoopInterval() time.Duration   // 执行间隔
	IsStartupRun() bool            // 是否立即执行一次
}

// CronTask is scheduled by a cron expression instead of a fixed interval
// CronTask 按 cron 表达式调度的任务
type CronTask interface {
	Task
	Spec() string
}

// Scheduler 任务调度器
// Every task goroutine is attached to the SafeClose, closing it stops all of them
// 所有任务协程挂在 SafeClose 上，发送关闭信号即可全部停止
type Scheduler struct {
	logger *zap.Logger
	tasks  []Task
	sc     *safe_close.SafeClose
}

// NewScheduler 创建任务调度器
func NewScheduler(logger *zap.Logger, sc *safe_close.SafeClose) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		logger: logger,
		tasks:  make([]Task, 0),
		sc:     sc,
	}
}

// AddTask 添加任务
func (s *Scheduler) AddTask(task Task) {
	s.tasks = append(s.tasks, task)
}

// Tasks 已添加的任务
func (s *Scheduler) Tasks() []Task {
	out := make([]Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Start 启动所有任务
func (s *Scheduler) Start() {
	if len(s.tasks) == 0 {
		s.logger.Info("no tasks to schedule")
		return
	}

	s.logger.Info("tasks starting", zap.Int("count", len(s.tasks)))

	var c *cron.Cron
	for _, task := range s.tasks {
		if ct, ok := task.(CronTask); ok && ct.Spec() != "" {
			if c == nil {
				c = cron.New(
					cron.WithLogger(cronLogger{s.logger}),
					cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.logger})),
				)
			}
			s.addCronTask(c, ct)
			continue
		}
		s.startTask(task)
	}

	if c != nil {
		c.Start()
		s.sc.Attach(func(done func(), closeSignal <-chan struct{}) {
			defer done()
			<-closeSignal
			<-c.Stop().Done()
		})
	}
}

// taskContext is cancelled together with the close signal
// taskContext 随关闭信号一起取消
func (s *Scheduler) taskContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-s.sc.CloseSignal():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// runOnce 执行一次任务并恢复 panic
func (s *Scheduler) runOnce(ctx context.Context, task Task, mode string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panic",
				zap.String(logger.FieldTask, task.Name()),
				zap.String("mode", mode),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()
	s.logger.Debug("task running", zap.String(logger.FieldTask, task.Name()), zap.String("mode", mode))
	if err := task.Run(ctx); err != nil {
		s.logger.Error("task running error",
			zap.String(logger.FieldTask, task.Name()),
			zap.String("mode", mode),
			zap.Error(err))
	}
}

// startTask 启动单个定时任务
func (s *Scheduler) startTask(task Task) {
	s.sc.Attach(func(done func(), closeSignal <-chan struct{}) {
		defer done()

		ctx, cancel := s.taskContext()
		defer cancel()

		// 立即执行一次，在同一协程内完成，关闭时不会遗留
		if task.IsStartupRun() {
			s.runOnce(ctx, task, "startupRun")
		}

		if task.LoopInterval() <= 0 {
			return
		}

		ticker := time.NewTicker(task.LoopInterval())
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.runOnce(ctx, task, "loopRun")
			case <-closeSignal:
				s.logger.Info("task stopped", zap.String(logger.FieldTask, task.Name()))
				return
			}
		}
	})
}

// addCronTask 注册 cron 任务
func (s *Scheduler) addCronTask(c *cron.Cron, task CronTask) {
	_, err := c.AddFunc(task.Spec(), func() {
		ctx, cancel := s.taskContext()
		defer cancel()
		s.runOnce(ctx, task, "cronRun")
	})
	if err != nil {
		s.logger.Error("cron task rejected",
			zap.String(logger.FieldTask, task.Name()),
			zap.String("spec", task.Spec()),
			zap.Error(err))
		return
	}
	s.logger.Info("cron task scheduled", zap.String(logger.FieldTask, task.Name()), zap.String("spec", task.Spec()))
}

// cronLogger adapts zap to cron.Logger
// cronLogger 将 zap 适配为 cron.Logger
type cronLogger struct {
	l *zap.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
