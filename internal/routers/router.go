// Package routers 组装服务端 HTTP 与实时路由
package routers

import (
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/haierkeys/onyx-note-sync/internal/app"
	"github.com/haierkeys/onyx-note-sync/internal/dto"
	"github.com/haierkeys/onyx-note-sync/internal/middleware"
	"github.com/haierkeys/onyx-note-sync/internal/routers/api_router"
	"github.com/haierkeys/onyx-note-sync/internal/routers/websocket_router"
	"github.com/haierkeys/onyx-note-sync/pkg/limiter"
	"github.com/haierkeys/onyx-note-sync/pkg/validator"
)

// NewRouter 创建服务端路由
func NewRouter(s *app.Server) *gin.Engine {
	cfg := s.Config()
	binding.Validator = validator.Default

	realtime := websocket_router.NewRealtimeHandler(s.Logger())
	s.WSS.Use(dto.RealtimeSubscribe, realtime.Subscribe)
	s.WSS.Use(dto.RealtimeUnsubscribe, realtime.Unsubscribe)

	r := gin.New()

	api := r.Group("/api")
	{
		api.Use(middleware.ServerInfo(app.Name, s.Version().Version))
		api.Use(middleware.TraceMiddleware(cfg.Tracer.Header))
		api.Use(middleware.AccessLogWithLogger(s.Logger()))
		api.Use(middleware.RecoveryWithLogger(s.Logger()))
		if cfg.Server.RateLimit > 0 {
			api.Use(middleware.RateLimiter(newRecordLimiter(cfg.Server.RateLimit)))
		}

		base := api_router.NewHandler(s)
		health := api_router.NewHealthHandler(base)
		record := api_router.NewRecordHandler(base)

		api.GET("/health", health.Check)

		auth := middleware.IdentityAuthToken(s.TokenManager)
		api.GET("/realtime", auth, s.WSS.Run())

		records := api.Group("/collections/:collection/records", auth, middleware.RequestDeadline(cfg.GetServerRequestTimeout()))
		records.GET("", record.List)
		records.POST("", record.Create)
		records.GET("/:id", record.Get)
		records.PATCH("/:id", record.Update)
		records.DELETE("/:id", record.Delete)
	}

	r.NoRoute(middleware.RouteNotFound("/api", routeTable(r)))
	return r
}

// routeTable lists the registered routes as "METHOD path"
// routeTable 以 "METHOD path" 形式列出已注册路由
func routeTable(r *gin.Engine) []string {
	routes := r.Routes()
	out := make([]string, 0, len(routes))
	for _, ri := range routes {
		out = append(out, ri.Method+" "+ri.Path)
	}
	sort.Strings(out)
	return out
}

// newRecordLimiter shares one bucket of rps tokens per second across the collection routes
// newRecordLimiter 集合路由共享每秒 rps 个令牌的令牌桶
func newRecordLimiter(rps int) limiter.Face {
	return limiter.NewMethodLimiter().AddBuckets(limiter.BucketRule{
		Key:          "/api/collections",
		FillInterval: time.Second,
		Capacity:     int64(rps),
		Quantum:      int64(rps),
	})
}
