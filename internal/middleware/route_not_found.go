package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/haierkeys/onyx-note-sync/pkg/app"
	"github.com/haierkeys/onyx-note-sync/pkg/code"
)

// RouteNotFound answers unmatched requests with ErrorRouteNotFound
// Requests under prefix also get the served routes as data
// RouteNotFound 未匹配的请求返回 ErrorRouteNotFound，prefix 下的请求附带可用接口列表
func RouteNotFound(prefix string, routes []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		e := code.ErrorRouteNotFound.WithDetails(c.Request.Method + " " + c.Request.URL.Path)
		if prefix != "" && strings.HasPrefix(c.Request.URL.Path, prefix) && len(routes) > 0 {
			e = e.WithData(routes)
		}
		app.NewResponse(c).ToResponse(e)
		c.Abort()
	}
}
