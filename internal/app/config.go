// Package app 提供应用容器，封装所有依赖和服务
package app

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/haierkeys/onyx-note-sync/internal/dao"
	"github.com/haierkeys/onyx-note-sync/internal/service"
	pkgapp "github.com/haierkeys/onyx-note-sync/pkg/app"
	"github.com/haierkeys/onyx-note-sync/pkg/util"
	"github.com/haierkeys/onyx-note-sync/pkg/workerpool"
	"github.com/haierkeys/onyx-note-sync/pkg/writequeue"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	defaultLocalDBPath  = "storage/database/notes.db"
	defaultServerDBPath = "storage/database/server.db"
)

// AppConfig 应用配置
type AppConfig struct {
	File     string             `yaml:"-"` // 配置文件路径，不序列化
	Log      LogConfig          `yaml:"log"`
	Database dao.DatabaseConfig `yaml:"database"`
	Remote   RemoteConfig       `yaml:"remote"`
	Sync     SyncSettings       `yaml:"sync"`
	Server   ServerConfig       `yaml:"server"`
	Security SecurityConfig     `yaml:"security"`
	App      AppSettings        `yaml:"app"`
	Tracer   TracerConfig       `yaml:"tracer"`
}

// LogConfig 日志配置
type LogConfig struct {
	// Level 日志级别，参见 zapcore.ParseLevel
	Level string `yaml:"level" default:"info"`
	// File 日志文件路径，为空时只输出到 stderr
	File string `yaml:"file" default:"storage/logs/onyx.log"`
	// Production 是否启用 JSON 输出
	Production bool `yaml:"production"`
}

// RemoteConfig remote collection store the engine syncs with
// RemoteConfig 同步引擎连接的远端集合存储
type RemoteConfig struct {
	// BaseURL 远端服务地址
	BaseURL string `yaml:"base-url" default:"http://127.0.0.1:9100"`
	// Collection 集合名称
	Collection string `yaml:"collection" default:"notes"`
	// Token identity token issued by the remote, see the token command
	// Token 远端签发的身份令牌
	Token string `yaml:"token"`
	// Identity owner stamped on pushed documents, empty lets the server use the token identity
	// Identity 推送文档的 owner，为空时由服务端使用令牌身份
	Identity string `yaml:"identity"`
	// RequestTimeout 单次远端请求超时
	RequestTimeout string `yaml:"request-timeout" default:"10s"`
	// DeviceID overrides the machine id in idempotency keys
	// DeviceID 覆盖幂等键中使用的机器 ID
	DeviceID string `yaml:"device-id"`
}

// SyncSettings 同步引擎配置
type SyncSettings struct {
	// SkewTolerance 冲突裁决容忍的时钟偏差
	SkewTolerance string `yaml:"skew-tolerance" default:"2s"`
	// HeartbeatInterval 连通性探测间隔
	HeartbeatInterval string `yaml:"heartbeat-interval" default:"5s"`
	// TriggerOnHeartbeat 探测成功后触发对账
	TriggerOnHeartbeat *bool `yaml:"trigger-on-heartbeat" default:"true"`
	// FullSyncCron safety-net pass, "off" disables it
	// FullSyncCron 兜底全量对账，设为 off 时关闭
	FullSyncCron string `yaml:"full-sync-cron" default:"@every 1m"`
	// SweepRemoteDeletes 删除远端已不存在的已绑定本地笔记
	SweepRemoteDeletes *bool `yaml:"sweep-remote-deletes" default:"true"`
}

// ServerConfig reference collection server
// ServerConfig 参考集合服务端配置
type ServerConfig struct {
	// RunMode 运行模式
	RunMode string `yaml:"run-mode" default:"release"`
	// HttpPort HTTP 端口
	HttpPort string `yaml:"http-port" default:":9100"`
	// ReadTimeout 读取超时（秒）
	ReadTimeout int `yaml:"read-timeout" default:"60"`
	// WriteTimeout 写入超时（秒）
	WriteTimeout int `yaml:"write-timeout" default:"60"`
	// PrivateHttpListen metrics and pprof listener, empty disables it
	// PrivateHttpListen 指标与 pprof 监听地址，为空时关闭
	PrivateHttpListen string `yaml:"private-http-listen" default:"127.0.0.1:9101"`
	// Database 服务端文档存储
	Database dao.DatabaseConfig `yaml:"database"`
	// RateLimit requests per second shared by the collection routes, 0 disables it
	// RateLimit 集合路由每秒请求数上限，0 表示关闭
	RateLimit int `yaml:"rate-limit" default:"50"`
	// RequestTimeout bounds each record request, the realtime socket is exempt
	// RequestTimeout 单次记录请求超时，实时连接不受限
	RequestTimeout string `yaml:"request-timeout" default:"30s"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	AuthTokenKey string `yaml:"auth-token-key" default:"onyx-note-sync-auth-token"`
	// TokenExpiry 支持格式：7d（天）、24h（小时）、30m（分钟）
	TokenExpiry string `yaml:"token-expiry" default:"365d"`
	// PortableToken signs without the machine id so tokens verify on another host
	// PortableToken 签名不混入机器 ID，令牌可在其他主机校验
	PortableToken bool `yaml:"portable-token"`
}

// AppSettings 应用设置
type AppSettings struct {
	// Worker Pool 配置
	WorkerPoolMaxWorkers int `yaml:"worker-pool-max-workers" default:"8"`
	WorkerPoolQueueSize  int `yaml:"worker-pool-queue-size" default:"256"`

	// Write Queue 配置
	WriteQueueCapacity int    `yaml:"write-queue-capacity" default:"100"`
	WriteQueueTimeout  string `yaml:"write-queue-timeout" default:"30s"`
	WriteQueueIdleTime string `yaml:"write-queue-idle-time" default:"10m"`
}

// TracerConfig 请求追踪配置
type TracerConfig struct {
	// Header 追踪 ID 请求头名称，默认 X-Trace-ID
	Header string `yaml:"header" default:"X-Trace-ID"`
}

// SetDefaults fills the database paths, the two stores share one config type
// SetDefaults 填充数据库路径，本地与服务端存储共用同一配置类型
func (c *AppConfig) SetDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = defaultLocalDBPath
	}
	if c.Server.Database.Path == "" {
		c.Server.Database.Path = defaultServerDBPath
	}
}

// LoadConfig 从文件加载配置
// 返回配置实例和配置文件的绝对路径
func LoadConfig(f string) (*AppConfig, string, error) {
	realpath, err := filepath.Abs(f)
	if err != nil {
		return nil, "", err
	}
	realpath = filepath.Clean(realpath)

	c := new(AppConfig)
	c.File = realpath

	// 设置默认值
	if err := defaults.Set(c); err != nil {
		return nil, realpath, errors.Wrap(err, "set default config failed")
	}

	file, err := os.ReadFile(realpath)
	if err != nil {
		return nil, realpath, errors.Wrap(err, "read config file failed")
	}

	if err := yaml.Unmarshal(file, c); err != nil {
		return nil, realpath, errors.Wrap(err, "parse config file failed")
	}

	// 再次设置默认值，以填充 YAML 中存在但值为空的字段
	if err := defaults.Set(c); err != nil {
		return nil, realpath, errors.Wrap(err, "re-set default config failed")
	}

	if _, err := util.ParseDuration(c.Sync.SkewTolerance); err != nil {
		return nil, realpath, errors.Wrap(err, "invalid sync.skew-tolerance")
	}
	if _, err := util.ParseDuration(c.Sync.HeartbeatInterval); err != nil {
		return nil, realpath, errors.Wrap(err, "invalid sync.heartbeat-interval")
	}

	return c, realpath, nil
}

// Save 保存配置到文件
func (c *AppConfig) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal config failed")
	}
	if err := os.WriteFile(c.File, data, 0644); err != nil {
		return errors.Wrap(err, "write config file failed")
	}
	return nil
}

// GetWorkerPoolConfig 获取 Worker Pool 配置
func (c *AppConfig) GetWorkerPoolConfig() workerpool.Config {
	cfg := workerpool.DefaultConfig()
	if c.App.WorkerPoolMaxWorkers > 0 {
		cfg.MaxWorkers = c.App.WorkerPoolMaxWorkers
	}
	if c.App.WorkerPoolQueueSize > 0 {
		cfg.QueueSize = c.App.WorkerPoolQueueSize
	}
	return cfg
}

// GetWriteQueueConfig 获取 Write Queue 配置
func (c *AppConfig) GetWriteQueueConfig() writequeue.Config {
	cfg := writequeue.DefaultConfig()
	if c.App.WriteQueueCapacity > 0 {
		cfg.QueueCapacity = c.App.WriteQueueCapacity
	}
	cfg.WriteTimeout = util.DurationOr(c.App.WriteQueueTimeout, cfg.WriteTimeout)
	cfg.IdleTimeout = util.DurationOr(c.App.WriteQueueIdleTime, cfg.IdleTimeout)
	return cfg
}

// GetTokenExpiry 获取 Token 过期时间
func (c *AppConfig) GetTokenExpiry() time.Duration {
	return util.DurationOr(c.Security.TokenExpiry, 365*24*time.Hour)
}

// GetServerRequestTimeout 获取服务端记录请求超时
func (c *AppConfig) GetServerRequestTimeout() time.Duration {
	return util.DurationOr(c.Server.RequestTimeout, 30*time.Second)
}

// GetRequestTimeout 获取远端请求超时
func (c *AppConfig) GetRequestTimeout() time.Duration {
	return util.DurationOr(c.Remote.RequestTimeout, 10*time.Second)
}

// GetSessionConfig 获取同步会话配置
func (c *AppConfig) GetSessionConfig() service.SessionConfig {
	return service.SessionConfig{
		Sync: service.SyncConfig{
			Collection:         c.Remote.Collection,
			Owner:              c.Remote.Identity,
			Scope:              service.BindingScope(c.Remote.BaseURL, c.Remote.Collection, c.RemoteOwner()),
			DeviceNamespace:    util.DeviceNamespace(c.Remote.DeviceID),
			SweepRemoteDeletes: boolOr(c.Sync.SweepRemoteDeletes, true),
		},
		SkewTolerance:      util.DurationOr(c.Sync.SkewTolerance, service.DefaultSkewTolerance),
		HeartbeatInterval:  util.DurationOr(c.Sync.HeartbeatInterval, 5*time.Second),
		TriggerOnHeartbeat: boolOr(c.Sync.TriggerOnHeartbeat, true),
		FullSyncSpec:       fullSyncSpec(c.Sync.FullSyncCron),
	}
}

// RemoteOwner is remote.identity, or the owner carried by remote.token when no identity is set
// RemoteOwner 返回 remote.identity，未设置时取 remote.token 中的身份
func (c *AppConfig) RemoteOwner() string {
	if c.Remote.Identity != "" {
		return c.Remote.Identity
	}
	return pkgapp.TokenOwner(c.Remote.Token)
}

func fullSyncSpec(spec string) string {
	if strings.EqualFold(strings.TrimSpace(spec), "off") {
		return ""
	}
	return spec
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
