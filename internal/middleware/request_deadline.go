package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/haierkeys/onyx-note-sync/pkg/app"
	"github.com/haierkeys/onyx-note-sync/pkg/code"
)

// RequestDeadline bounds the request context by timeout, a non-positive timeout leaves it untouched
// A handler that returns past the deadline without writing gets ErrorRequestTimeout
// RequestDeadline 为请求上下文设置截止时间，超时且未写响应时返回 ErrorRequestTimeout
func RequestDeadline(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			app.NewResponse(c).ToResponse(code.ErrorRequestTimeout.WithDetails(timeout.String()))
		}
	}
}
