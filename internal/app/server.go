package app

import (
	"context"
	"fmt"
	"time"

	"github.com/haierkeys/onyx-note-sync/internal/dao"
	"github.com/haierkeys/onyx-note-sync/internal/domain"
	"github.com/haierkeys/onyx-note-sync/internal/service"
	pkgapp "github.com/haierkeys/onyx-note-sync/pkg/app"
	"github.com/haierkeys/onyx-note-sync/pkg/writequeue"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Server is the reference collection server container
// Server 参考集合服务端容器
type Server struct {
	config *AppConfig
	logger *zap.Logger
	DB     *gorm.DB
	Dao    *dao.Dao

	writeQueueMgr *writequeue.Manager

	Registry *prometheus.Registry

	DocumentRepo      domain.DocumentRepository
	CollectionService service.CollectionService
	TokenManager      pkgapp.TokenManager
	WSS               *pkgapp.WebsocketServer
}

// NewServer 创建服务端容器实例
func NewServer(cfg *AppConfig, logger *zap.Logger, db *gorm.DB) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}

	s := &Server{config: cfg, logger: logger, DB: db}

	wqConfig := cfg.GetWriteQueueConfig()
	s.writeQueueMgr = writequeue.New(&wqConfig, logger)
	s.Dao = dao.New(db, dao.WithWriteQueue(s.writeQueueMgr), dao.WithLogger(logger))
	s.Registry = newRegistry()

	s.TokenManager = NewTokenManager(cfg)
	s.WSS = pkgapp.NewWebsocketServer(pkgapp.WebsocketServerConfig{}, logger)

	s.DocumentRepo = dao.NewDocumentRepository(s.Dao)
	s.CollectionService = service.NewCollectionService(s.DocumentRepo, &hubBroadcaster{wss: s.WSS, logger: logger}, logger)

	logger.Info("Server container initialized successfully",
		zap.String("database", cfg.Server.Database.Type),
		zap.Int("writeQueueCapacity", wqConfig.QueueCapacity))
	return s, nil
}

// NewTokenManager builds the identity token manager from the security section
// NewTokenManager 根据安全配置创建身份令牌管理器
func NewTokenManager(cfg *AppConfig) pkgapp.TokenManager {
	return pkgapp.NewTokenManager(pkgapp.TokenConfig{
		SecretKey: cfg.Security.AuthTokenKey,
		Expiry:    cfg.GetTokenExpiry(),
		Portable:  cfg.Security.PortableToken,
	})
}

// Config 获取应用配置
func (s *Server) Config() *AppConfig {
	return s.config
}

// Logger 获取日志器
func (s *Server) Logger() *zap.Logger {
	return s.logger
}

// Version 获取版本信息
func (s *Server) Version() pkgapp.VersionInfo {
	return pkgapp.VersionInfo{Version: Version, GitTag: GitTag, BuildTime: BuildTime}
}

// Now 服务端当前时间
func (s *Server) Now() time.Time {
	return time.Now().UTC()
}

// Shutdown 按顺序关闭：WebSocket -> Write Queue Manager -> Database
func (s *Server) Shutdown(ctx context.Context) error {
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
	}

	var errs []error
	if s.WSS != nil {
		s.WSS.Close()
	}
	if s.writeQueueMgr != nil {
		if err := s.writeQueueMgr.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("write queue manager shutdown: %w", err))
		}
	}
	if s.Dao != nil {
		if err := s.Dao.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	s.logger.Info("Server container shutdown completed")
	return nil
}
