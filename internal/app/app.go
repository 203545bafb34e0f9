package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/haierkeys/onyx-note-sync/internal/dao"
	"github.com/haierkeys/onyx-note-sync/internal/domain"
	"github.com/haierkeys/onyx-note-sync/internal/remote"
	"github.com/haierkeys/onyx-note-sync/internal/service"
	pkgapp "github.com/haierkeys/onyx-note-sync/pkg/app"
	"github.com/haierkeys/onyx-note-sync/pkg/workerpool"
	"github.com/haierkeys/onyx-note-sync/pkg/writequeue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultShutdownTimeout 默认关闭超时时间
const DefaultShutdownTimeout = 30 * time.Second

// App is the sync engine container: local store, remote client, session and note service
// App 同步引擎容器，封装本地存储、远端客户端、同步会话与笔记服务
type App struct {
	// 基础设施（注入的依赖）
	config *AppConfig
	logger *zap.Logger
	DB     *gorm.DB
	Dao    *dao.Dao

	// 并发控制组件
	workerPool    *workerpool.Pool
	writeQueueMgr *writequeue.Manager

	// 可观测性
	Registry *prometheus.Registry
	Metrics  *service.SyncMetrics
	Events   *service.EventBus

	// Repository 层
	NoteRepo domain.NoteRepository
	Remote   *remote.Client

	// Service 层
	Session     *service.Session
	NoteService service.NoteService

	// 关闭控制
	shutdownCh chan struct{}
	wg         sync.WaitGroup
}

// NewApp 创建同步引擎容器实例
// cfg: 应用配置（必须）
// logger: zap 日志器（必须）
// db: 本地数据库连接（必须）
func NewApp(cfg *AppConfig, logger *zap.Logger, db *gorm.DB) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}

	a := &App{
		config:     cfg,
		logger:     logger,
		DB:         db,
		shutdownCh: make(chan struct{}),
	}

	wpConfig := cfg.GetWorkerPoolConfig()
	a.workerPool = workerpool.New(&wpConfig, logger)

	wqConfig := cfg.GetWriteQueueConfig()
	a.writeQueueMgr = writequeue.New(&wqConfig, logger)

	a.Dao = dao.New(db, dao.WithWriteQueue(a.writeQueueMgr), dao.WithLogger(logger))

	a.Registry = newRegistry()
	a.Metrics = service.NewSyncMetrics(a.Registry)
	a.Events = service.NewEventBus(logger)

	client, err := remote.New(remote.Config{
		BaseURL: cfg.Remote.BaseURL,
		Token:   cfg.Remote.Token,
		Timeout: cfg.GetRequestTimeout(),
	}, logger)
	if err != nil {
		return nil, err
	}
	a.Remote = client

	a.NoteRepo = dao.NewNoteRepository(a.Dao)

	sessionCfg := cfg.GetSessionConfig()
	a.Session = service.NewSession(a.NoteRepo, a.Remote, sessionCfg, a.Events, a.Metrics, logger)
	a.NoteService = service.NewNoteService(a.NoteRepo, a.Remote, a.Session, a.workerPool, a.Events, a.Metrics,
		service.NoteServiceConfig{Collection: sessionCfg.Sync.Collection, Owner: sessionCfg.Sync.Owner}, logger)

	logger.Info("App container initialized successfully",
		zap.String("remote", cfg.Remote.BaseURL),
		zap.String("collection", cfg.Remote.Collection),
		zap.Int("workerPoolMaxWorkers", wpConfig.MaxWorkers),
		zap.Int("writeQueueCapacity", wqConfig.QueueCapacity))

	return a, nil
}

// newRegistry 创建带运行时指标的 Prometheus 注册表
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Config 获取应用配置
func (a *App) Config() *AppConfig {
	return a.config
}

// Logger 获取日志器
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Version 获取版本信息
func (a *App) Version() pkgapp.VersionInfo {
	return pkgapp.VersionInfo{
		Version:   Version,
		GitTag:    GitTag,
		BuildTime: BuildTime,
	}
}

// StartSync 启动同步会话
func (a *App) StartSync(ctx context.Context) error {
	if a.IsShuttingDown() {
		return fmt.Errorf("app is shutting down")
	}
	return a.Session.Start(ctx)
}

// TrackOperation tracks a foreground operation so Shutdown waits for it
// TrackOperation 跟踪前台操作，Shutdown 会等待其完成
func (a *App) TrackOperation(fn func()) {
	a.wg.Add(1)
	defer a.wg.Done()
	fn()
}

// IsShuttingDown 是否正在关闭
func (a *App) IsShuttingDown() bool {
	select {
	case <-a.shutdownCh:
		return true
	default:
		return false
	}
}

// WorkerPool 获取 Worker Pool
func (a *App) WorkerPool() *workerpool.Pool {
	return a.workerPool
}

// Shutdown 优雅关闭应用容器
// 按顺序关闭：Session -> Worker Pool -> Write Queue Manager -> Database
// ctx 为 nil 时使用默认 30 秒超时
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("App container shutting down...")

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
	}

	select {
	case <-a.shutdownCh:
		return nil
	default:
		close(a.shutdownCh)
	}

	var errs []error

	// 0. 停止同步会话（心跳、定时任务、实时订阅）
	if a.Session != nil {
		a.Session.Stop()
		a.logger.Info("Sync session stopped")
	}

	// 1. 关闭 Worker Pool，等待后台远端写入完成
	if a.workerPool != nil {
		if err := a.workerPool.Shutdown(ctx); err != nil {
			a.logger.Warn("Worker pool shutdown error", zap.Error(err))
			errs = append(errs, fmt.Errorf("worker pool shutdown: %w", err))
		}
	}

	// 2. 等待前台操作完成
	if err := a.waitOperations(ctx); err != nil {
		errs = append(errs, err)
	}

	// 3. 排空写队列
	if a.writeQueueMgr != nil {
		if err := a.writeQueueMgr.Shutdown(ctx); err != nil {
			a.logger.Warn("write queue manager shutdown error", zap.Error(err))
			errs = append(errs, fmt.Errorf("write queue manager shutdown: %w", err))
		}
	}

	// 4. 关闭数据库
	if a.Dao != nil {
		if err := a.Dao.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			a.logger.Info("Database connection closed")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	a.logger.Info("App container shutdown completed")
	return nil
}

func (a *App) waitOperations(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		a.logger.Warn("Timeout waiting for background operations")
		return fmt.Errorf("timeout waiting for background operations: %w", ctx.Err())
	}
}
