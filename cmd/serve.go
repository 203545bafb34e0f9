package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	internalApp "github.com/haierkeys/onyx-note-sync/internal/app"
	"github.com/haierkeys/onyx-note-sync/internal/routers"
	"github.com/haierkeys/onyx-note-sync/pkg/safe_close"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type serveFlags struct {
	commonFlags
	port    string // 启动端口
	runMode string // 启动模式
}

// checkSecurityConfig warns when the signing key is still the placeholder
// checkSecurityConfig 签名密钥仍为占位值时输出警告
func checkSecurityConfig(cfg *internalApp.AppConfig, lg *zap.Logger) {
	if cfg.Security.AuthTokenKey != defaultSecretKey && cfg.Security.AuthTokenKey != "" {
		return
	}
	fmt.Println()
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("SECURITY WARNING: Using default secret key!")
	fmt.Println("Please modify 'security.auth-token-key' in config.yaml")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println()
	lg.Warn("Using default secret key - please change security.auth-token-key in config.yaml")
}

// startCollectionServer 启动参考集合服务端
func startCollectionServer(f *serveFlags) (*safe_close.SafeClose, *zap.Logger, error) {
	cfg, lg, err := loadRuntime(&f.commonFlags)
	if err != nil {
		return nil, nil, err
	}
	if f.port != "" {
		cfg.Server.HttpPort = f.port
	}
	runMode := f.runMode
	if runMode == "" {
		runMode = cfg.Server.RunMode
	}
	gin.SetMode(runMode)

	checkSecurityConfig(cfg, lg)

	db, err := openDatabase(cfg.Server.Database, lg)
	if err != nil {
		return nil, nil, fmt.Errorf("initDatabase: %w", err)
	}
	s, err := internalApp.NewServer(cfg, lg, db)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create server container: %w", err)
	}

	sc := safe_close.NewSafeClose()
	attachHTTPServer(sc, newHTTPServer(cfg.Server.HttpPort, routers.NewRouter(s), cfg), lg, "api service")
	if addr := cfg.Server.PrivateHttpListen; addr != "" {
		attachHTTPServer(sc, newHTTPServer(addr, routers.NewPrivateRouterWithLogger(runMode, s.Registry, lg), cfg), lg, "private api service")
	}
	sc.Attach(func(done func(), closeSignal <-chan struct{}) {
		defer done()
		<-closeSignal
		if err := s.Shutdown(context.Background()); err != nil {
			lg.Error("failed to shutdown server container", zap.Error(err))
		}
	})

	lg.Warn(fmt.Sprintf("%s collection server v%s", internalApp.Name, internalApp.Version),
		zap.String("http", cfg.Server.HttpPort),
		zap.String("database", cfg.Server.Database.Path))
	return sc, lg, nil
}

func init() {
	serveEnv := new(serveFlags)

	var serveCommand = &cobra.Command{
		Use:   "serve [-c config_file] [-d working_dir] [-p port]",
		Short: "Run the reference collection server",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, lg, err := startCollectionServer(serveEnv)
			if err != nil {
				bootstrapLogger.Error("collection server start err", zap.Error(err))
				return err
			}

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-quit:
				lg.Info("Received shutdown signal, initiating graceful shutdown...")
				sc.SendCloseSignal(nil)
			case <-sc.CloseSignal():
			}

			if err := sc.WaitClosed(); err != nil {
				lg.Error("Shutdown completed with error", zap.Error(err))
				return err
			}
			lg.Info("Collection server has been shut down gracefully.")
			return nil
		},
	}

	rootCmd.AddCommand(serveCommand)
	bindCommonFlags(serveCommand, &serveEnv.commonFlags)
	fs := serveCommand.Flags()
	fs.StringVarP(&serveEnv.port, "port", "p", "", "run port")
	fs.StringVarP(&serveEnv.runMode, "mode", "m", "", "run mode")
}
