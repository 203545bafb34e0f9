package api_router

import (
	"github.com/gin-gonic/gin"
	"github.com/haierkeys/onyx-note-sync/internal/dto"
	pkgapp "github.com/haierkeys/onyx-note-sync/pkg/app"
	"github.com/haierkeys/onyx-note-sync/pkg/code"
	"github.com/haierkeys/onyx-note-sync/pkg/timex"
	"go.uber.org/zap"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	*Handler
}

// NewHealthHandler 创建健康检查处理器实例
func NewHealthHandler(h *Handler) *HealthHandler {
	return &HealthHandler{Handler: h}
}

// Check answers the connectivity probe, a broken database reports unhealthy
// Check 响应连通性探测，数据库异常时返回 unhealthy
func (h *HealthHandler) Check(c *gin.Context) {
	res := dto.HealthDTO{
		Status:  "ok",
		Version: h.Server.Version().Version,
		Time:    timex.Time(h.Server.Now()),
	}

	if err := h.Server.DB.WithContext(c.Request.Context()).Exec("SELECT 1").Error; err != nil {
		h.Server.Logger().Warn("health check database error", zap.Error(err))
		res.Status = "unhealthy"
		pkgapp.NewResponse(c).ToResponse(code.Failed.WithData(res))
		return
	}

	pkgapp.NewResponse(c).ToResponse(code.Success.WithData(res))
}
