// Package dao 实现数据访问层
package dao

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/haierkeys/onyx-note-sync/pkg/fileurl"
	"github.com/haierkeys/onyx-note-sync/pkg/util"
	"github.com/haierkeys/onyx-note-sync/pkg/writequeue"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// Type sqlite, mysql or postgres
	// Type 数据库类型：sqlite、mysql、postgres
	Type string `yaml:"type" default:"sqlite"`
	// Path sqlite 文件路径
	Path     string `yaml:"path"`
	UserName string `yaml:"username"`
	Password string `yaml:"password"`
	Host     string `yaml:"host" default:"127.0.0.1"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name" default:"onyx"`
	Charset  string `yaml:"charset" default:"utf8mb4"`
	SSLMode  string `yaml:"ssl-mode" default:"disable"`

	MaxIdleConns    int    `yaml:"max-idle-conns" default:"4"`
	MaxOpenConns    int    `yaml:"max-open-conns" default:"8"`
	ConnMaxLifetime string `yaml:"conn-max-lifetime" default:"10m"`
	// Debug 打印 SQL
	Debug bool `yaml:"debug"`
}

// Dao 数据访问对象
// Writes for one key are serialized through the write queue, SQLite allows a single writer
// 同一 key 的写操作经写队列串行执行，SQLite 只允许单写
type Dao struct {
	db     *gorm.DB
	wq     *writequeue.Manager
	logger *zap.Logger

	onceMu sync.Mutex
	once   map[string]bool
}

// Option Dao 配置项
type Option func(*Dao)

// WithWriteQueue 设置写队列
func WithWriteQueue(wq *writequeue.Manager) Option {
	return func(d *Dao) { d.wq = wq }
}

// WithLogger 设置日志器
func WithLogger(l *zap.Logger) Option {
	return func(d *Dao) {
		if l != nil {
			d.logger = l
		}
	}
}

// New 创建 Dao
func New(db *gorm.DB, opts ...Option) *Dao {
	d := &Dao{
		db:     db,
		logger: zap.NewNop(),
		once:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DB 返回底层 gorm.DB
func (d *Dao) DB() *gorm.DB {
	return d.db
}

// UseWithOnceFunc runs fn the first time key is used, a failed fn is retried on the next call
// UseWithOnceFunc 首次使用 key 时执行 fn（一般为表迁移），失败时下次调用重试
func (d *Dao) UseWithOnceFunc(ctx context.Context, key string, fn func(g *gorm.DB) error) (*gorm.DB, error) {
	d.onceMu.Lock()
	defer d.onceMu.Unlock()
	if !d.once[key] {
		if err := fn(d.db.WithContext(ctx)); err != nil {
			return nil, fmt.Errorf("prepare %s: %w", key, err)
		}
		d.once[key] = true
	}
	return d.db.WithContext(ctx), nil
}

// ExecuteWrite runs fn on the write lane of key
// ExecuteWrite 在 key 对应的写通道中执行 fn
func (d *Dao) ExecuteWrite(ctx context.Context, key string, fn func(db *gorm.DB) error) error {
	if d.wq == nil {
		return fn(d.db.WithContext(ctx))
	}
	return d.wq.Execute(ctx, key, func() error {
		return fn(d.db.WithContext(ctx))
	})
}

// Close 关闭底层连接
func (d *Dao) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NewDBEngineWithConfig opens the configured database
// NewDBEngineWithConfig 根据配置打开数据库
func NewDBEngineWithConfig(c DatabaseConfig, zl *zap.Logger) (*gorm.DB, error) {
	dialector, err := newDialector(c)
	if err != nil {
		return nil, err
	}

	logMode := logger.Silent
	if c.Debug {
		logMode = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logMode),
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true, // 使用单数表名
		},
	})
	if err != nil {
		return nil, err
	}

	// 获取通用数据库对象 sql.DB ，然后使用其提供的功能
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	maxOpen := c.MaxOpenConns
	if c.Type == "sqlite" || c.Type == "" {
		// WAL 允许并发读，写仍由写队列串行化
		maxOpen = max(maxOpen, 1)
	}
	sqlDB.SetMaxIdleConns(c.MaxIdleConns)
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetConnMaxLifetime(util.DurationOr(c.ConnMaxLifetime, 10*time.Minute))

	if zl != nil {
		zl.Info("database opened", zap.String("type", c.Type), zap.String("path", c.Path))
	}
	return db, nil
}

func newDialector(c DatabaseConfig) (gorm.Dialector, error) {
	switch c.Type {
	case "mysql":
		port := c.Port
		if port == 0 {
			port = 3306
		}
		return mysql.Open(fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=true&loc=UTC",
			c.UserName, c.Password, c.Host, port, c.Name, c.Charset)), nil
	case "postgres":
		port := c.Port
		if port == 0 {
			port = 5432
		}
		return postgres.Open(fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
			c.Host, c.UserName, c.Password, c.Name, port, c.SSLMode)), nil
	case "sqlite", "":
		if c.Path == "" {
			return nil, errors.New("database path is required for sqlite")
		}
		if !fileurl.IsExist(c.Path) {
			if err := fileurl.CreatePath(c.Path, os.ModePerm); err != nil {
				return nil, err
			}
		}
		return sqlite.Open(c.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"), nil
	}
	return nil, fmt.Errorf("unsupported database type %q", c.Type)
}

// isDuplicateKey 判断是否违反唯一约束
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "duplicate key value")
}
