// Package websocket_router 提供实时订阅的 WebSocket 消息处理器
package websocket_router

import (
	"strings"

	"github.com/bytedance/sonic"
	"github.com/haierkeys/onyx-note-sync/internal/dto"
	pkgapp "github.com/haierkeys/onyx-note-sync/pkg/app"
	"github.com/haierkeys/onyx-note-sync/pkg/code"
	"github.com/haierkeys/onyx-note-sync/pkg/validator"
	"go.uber.org/zap"
)

// RealtimeHandler handles collection subscriptions on the realtime socket
// RealtimeHandler 处理实时连接上的集合订阅
type RealtimeHandler struct {
	logger *zap.Logger
}

// NewRealtimeHandler 创建 RealtimeHandler 实例
func NewRealtimeHandler(logger *zap.Logger) *RealtimeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RealtimeHandler{logger: logger}
}

func parseSubscribe(msg *pkgapp.WebSocketMessage) (string, bool) {
	var req dto.SubscribeRequest
	if err := sonic.Unmarshal(msg.Data, &req); err != nil {
		return "", false
	}
	req.Collection = strings.TrimSpace(req.Collection)
	if err := validator.Default.ValidateStruct(&req); err != nil {
		return "", false
	}
	return req.Collection, true
}

// Subscribe acknowledges with a Res frame of the same type once the topic is registered
// Subscribe 注册主题后以同类型 Res 消息确认
func (h *RealtimeHandler) Subscribe(c *pkgapp.WebsocketClient, msg *pkgapp.WebSocketMessage) {
	collection, ok := parseSubscribe(msg)
	if !ok {
		c.ToResponse(code.ErrorInvalidParams.WithDetails("collection is missing or malformed"), dto.RealtimeSubscribe)
		return
	}
	c.Subscribe(collection)
	h.logger.Info("realtime subscribe",
		zap.String("owner", c.Identity.Owner),
		zap.String("collection", collection))
	c.ToResponse(code.Success, dto.RealtimeSubscribe)
}

// Unsubscribe 取消订阅
func (h *RealtimeHandler) Unsubscribe(c *pkgapp.WebsocketClient, msg *pkgapp.WebSocketMessage) {
	collection, ok := parseSubscribe(msg)
	if !ok {
		return
	}
	c.Unsubscribe(collection)
	h.logger.Info("realtime unsubscribe",
		zap.String("owner", c.Identity.Owner),
		zap.String("collection", collection))
}
