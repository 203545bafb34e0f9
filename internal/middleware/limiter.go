package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/haierkeys/onyx-note-sync/pkg/app"
	"github.com/haierkeys/onyx-note-sync/pkg/code"
	"github.com/haierkeys/onyx-note-sync/pkg/limiter"
)

// RateLimiter 创建限流中间件，未配置规则的路由不限流
func RateLimiter(l limiter.Face) gin.HandlerFunc {
	return func(c *gin.Context) {
		if bucket, ok := l.GetBucket(l.Key(c)); ok {
			if bucket.TakeAvailable(1) == 0 {
				app.NewResponse(c).ToResponse(code.ErrorTooManyRequests)
				c.Abort()
				return
			}
		}
		c.Next()
	}
}
