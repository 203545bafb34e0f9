package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	internalApp "github.com/haierkeys/onyx-note-sync/internal/app"
	"github.com/haierkeys/onyx-note-sync/internal/dao"
	"github.com/haierkeys/onyx-note-sync/internal/upgrade"
	"github.com/haierkeys/onyx-note-sync/pkg/fileurl"
	"github.com/haierkeys/onyx-note-sync/pkg/logger"
	"github.com/haierkeys/onyx-note-sync/pkg/safe_close"
	"github.com/haierkeys/onyx-note-sync/pkg/util"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// defaultSecretKey 内嵌配置中的占位密钥，首次生成配置时替换为随机值
const defaultSecretKey = "onyx-note-sync-auth-token"

type commonFlags struct {
	dir    string // 工作目录
	config string // 配置文件路径
}

func bindCommonFlags(cmd *cobra.Command, f *commonFlags) {
	fs := cmd.Flags()
	fs.StringVarP(&f.dir, "dir", "d", "", "working dir")
	fs.StringVarP(&f.config, "config", "c", "", "config file")
}

// resolveConfig changes into the working dir and finds the config file, writing the default one when none exists
// resolveConfig 切换工作目录并查找配置文件，不存在时写入默认配置
func resolveConfig(f *commonFlags) (string, error) {
	if f.dir != "" {
		if err := os.Chdir(f.dir); err != nil {
			return "", fmt.Errorf("change working dir: %w", err)
		}
		bootstrapLogger.Info("working directory changed", zap.String("dir", f.dir))
	}
	if f.config != "" {
		return f.config, nil
	}

	for _, p := range []string{"config/config-dev.yaml", "config.yaml", "config/config.yaml"} {
		if fileurl.IsExist(p) {
			return p, nil
		}
	}

	path := "config/config.yaml"
	content := strings.Replace(configDefault, defaultSecretKey, util.GetRandomString(32), 1)
	created, err := fileurl.WriteFileIfAbsent(path, []byte(content), 0644)
	if err != nil {
		return "", fmt.Errorf("config file auto create: %w", err)
	}
	if created {
		bootstrapLogger.Warn("config file not found, default config created", zap.String("path", path))
	}
	return path, nil
}

// loadRuntime 加载配置并初始化日志器
func loadRuntime(f *commonFlags) (*internalApp.AppConfig, *zap.Logger, error) {
	path, err := resolveConfig(f)
	if err != nil {
		return nil, nil, err
	}
	cfg, realpath, err := internalApp.LoadConfig(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	lg, err := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		Production: cfg.Log.Production,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init logger: %w", err)
	}
	lg.Debug("config loaded", zap.String("path", realpath))
	return cfg, lg, nil
}

// openDatabase 创建数据库所在目录并打开连接
func openDatabase(c dao.DatabaseConfig, lg *zap.Logger) (*gorm.DB, error) {
	if c.Type == "sqlite" || c.Type == "" {
		if err := os.MkdirAll(filepath.Dir(c.Path), 0754); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(c.Path), err)
		}
	}
	return dao.NewDBEngineWithConfig(c, lg)
}

// openEngine 打开本地数据库并创建同步引擎容器
func openEngine(cfg *internalApp.AppConfig, lg *zap.Logger) (*internalApp.App, error) {
	db, err := openDatabase(cfg.Database, lg)
	if err != nil {
		return nil, fmt.Errorf("initDatabase: %w", err)
	}
	closeDB := func() {
		if sqlDB, e := db.DB(); e == nil {
			_ = sqlDB.Close()
		}
	}
	if _, err := upgrade.NewMigrationManager(db, lg).Run(context.Background()); err != nil {
		closeDB()
		return nil, fmt.Errorf("upgrade: %w", err)
	}
	a, err := internalApp.NewApp(cfg, lg, db)
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("failed to create app container: %w", err)
	}
	return a, nil
}

// attachHTTPServer runs srv until the close signal, a listen error closes everything
// attachHTTPServer 运行 srv 直到收到关闭信号，监听失败时触发整体关闭
func attachHTTPServer(sc *safe_close.SafeClose, srv *http.Server, lg *zap.Logger, name string) {
	lg.Info(name+" listening", zap.String("addr", srv.Addr))
	sc.Attach(func(done func(), closeSignal <-chan struct{}) {
		defer done()
		errChan := make(chan error, 1)
		go func() {
			errChan <- srv.ListenAndServe()
		}()
		select {
		case err := <-errChan:
			lg.Error(name+" err", zap.Error(err))
			sc.SendCloseSignal(err)
		case <-closeSignal:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				lg.Error(name+" shutdown error", zap.Error(err))
			}
		}
	})
}

func newHTTPServer(addr string, handler http.Handler, cfg *internalApp.AppConfig) *http.Server {
	return &http.Server{
		Addr:           addr,
		Handler:        handler,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
}
