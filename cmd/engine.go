package cmd

import (
	"context"
	"fmt"

	internalApp "github.com/haierkeys/onyx-note-sync/internal/app"
	"github.com/haierkeys/onyx-note-sync/internal/routers"
	"github.com/haierkeys/onyx-note-sync/internal/service"
	"github.com/haierkeys/onyx-note-sync/pkg/safe_close"
	"go.uber.org/zap"
)

// Engine is one running sync engine, rebuilt on config reload
// Engine 一个运行中的同步引擎，配置变更时重建
type Engine struct {
	logger *zap.Logger
	config *internalApp.AppConfig
	app    *internalApp.App
	sc     *safe_close.SafeClose
}

// NewEngine 加载配置并启动同步会话与私有监听
func NewEngine(f *commonFlags) (*Engine, error) {
	cfg, lg, err := loadRuntime(f)
	if err != nil {
		return nil, err
	}
	a, err := openEngine(cfg, lg)
	if err != nil {
		return nil, err
	}

	e := &Engine{logger: lg, config: cfg, app: a, sc: safe_close.NewSafeClose()}

	if cfg.Remote.Token == "" {
		lg.Warn("remote.token is empty, the remote will reject requests; issue one with the token command")
	}

	if addr := cfg.Server.PrivateHttpListen; addr != "" {
		srv := newHTTPServer(addr, routers.NewPrivateRouterWithLogger(cfg.Server.RunMode, a.Registry, lg), cfg)
		attachHTTPServer(e.sc, srv, lg, "private api service")
	}

	e.sc.Attach(func(done func(), closeSignal <-chan struct{}) {
		defer done()
		events, cancel := a.Events.Subscribe(16)
		defer cancel()
		for {
			select {
			case <-closeSignal:
				return
			case ev := <-events:
				if c, ok := ev.(service.ConnectivityChangedEvent); ok {
					lg.Info("connectivity changed", zap.Bool("connected", c.Connected))
				}
			}
		}
	})

	// App Container 优雅关闭
	e.sc.Attach(func(done func(), closeSignal <-chan struct{}) {
		defer done()
		<-closeSignal
		if err := a.Shutdown(context.Background()); err != nil {
			lg.Error("failed to shutdown app container", zap.Error(err))
		}
	})

	if err := a.StartSync(context.Background()); err != nil {
		e.sc.SendCloseSignal(err)
		_ = e.sc.WaitClosed()
		return nil, fmt.Errorf("start sync session: %w", err)
	}

	lg.Warn(fmt.Sprintf("%s v%s (Git: %s, BuildTime: %s)", internalApp.Name, internalApp.Version, internalApp.GitTag, internalApp.BuildTime),
		zap.String("remote", cfg.Remote.BaseURL),
		zap.String("collection", cfg.Remote.Collection),
		zap.String("database", cfg.Database.Path))
	return e, nil
}

// Close 停止引擎并等待全部关闭处理完成
func (e *Engine) Close() error {
	e.sc.SendCloseSignal(nil)
	err := e.sc.WaitClosed()
	_ = e.logger.Sync()
	return err
}
