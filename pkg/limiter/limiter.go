// Package limiter keeps token buckets keyed by route prefix
// Package limiter 按路由前缀维护令牌桶
package limiter

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/juju/ratelimit"
)

// Face 限流器接口
type Face interface {
	Key(c *gin.Context) string
	GetBucket(key string) (*ratelimit.Bucket, bool)
	AddBuckets(rules ...BucketRule) Face
}

// BucketRule 令牌桶规则
type BucketRule struct {
	// Key route prefix the rule applies to
	// Key 规则对应的路由前缀
	Key string
	// FillInterval 放入令牌的间隔
	FillInterval time.Duration
	// Capacity 桶容量
	Capacity int64
	// Quantum 每次放入的令牌数
	Quantum int64
}

// MethodLimiter matches the longest registered prefix of the request path
// MethodLimiter 以请求路径匹配最长的已注册前缀
type MethodLimiter struct {
	mu       sync.RWMutex
	buckets  map[string]*ratelimit.Bucket
	prefixes []string
}

// NewMethodLimiter 创建路由前缀限流器
func NewMethodLimiter() Face {
	return &MethodLimiter{buckets: make(map[string]*ratelimit.Bucket)}
}

// Key returns the matched prefix, or the raw path when nothing matches
// Key 返回匹配到的前缀，未匹配时返回原始路径
func (l *MethodLimiter) Key(c *gin.Context) string {
	path := c.Request.URL.Path
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, p := range l.prefixes {
		if strings.HasPrefix(path, p) {
			return p
		}
	}
	return path
}

// GetBucket 获取令牌桶
func (l *MethodLimiter) GetBucket(key string) (*ratelimit.Bucket, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.buckets[key]
	return b, ok
}

// AddBuckets 添加令牌桶规则，已存在的 key 不会被覆盖
func (l *MethodLimiter) AddBuckets(rules ...BucketRule) Face {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rule := range rules {
		if _, ok := l.buckets[rule.Key]; ok {
			continue
		}
		l.buckets[rule.Key] = ratelimit.NewBucketWithQuantum(rule.FillInterval, rule.Capacity, rule.Quantum)
		l.prefixes = append(l.prefixes, rule.Key)
	}
	// 长前缀优先匹配
	sort.Slice(l.prefixes, func(i, j int) bool { return len(l.prefixes[i]) > len(l.prefixes[j]) })
	return l
}
