// Package api_router 提供 HTTP API 路由处理器
package api_router

import (
	"context"
	"errors"

	"github.com/haierkeys/onyx-note-sync/internal/app"
	"github.com/haierkeys/onyx-note-sync/internal/middleware"
	"github.com/haierkeys/onyx-note-sync/pkg/code"
	"go.uber.org/zap"
)

// Handler 基础 Handler 结构体，封装服务端容器
type Handler struct {
	Server *app.Server
}

// NewHandler 创建基础 Handler 实例
func NewHandler(s *app.Server) *Handler {
	return &Handler{Server: s}
}

// logError logs unexpected errors, business codes stay at debug
// logError 记录非预期错误，业务错误码只输出 debug 日志
func (h *Handler) logError(ctx context.Context, op string, err error) {
	var c *code.Code
	fields := []zap.Field{zap.String("trace_id", middleware.GetTraceID(ctx)), zap.Error(err)}
	if errors.As(err, &c) {
		h.Server.Logger().Debug(op, fields...)
		return
	}
	h.Server.Logger().Error(op, fields...)
}
