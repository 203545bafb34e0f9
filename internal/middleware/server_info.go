package middleware

import (
	"github.com/gin-gonic/gin"
)

const (
	ServerNameHeader    = "X-Server-Name"
	ServerVersionHeader = "X-Server-Version"
)

// ServerInfo stamps the server name and version headers so sync clients can tell which build answered
// ServerInfo 在响应头中写入服务名称与版本
func ServerInfo(name, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if name != "" {
			c.Header(ServerNameHeader, name)
		}
		if version != "" {
			c.Header(ServerVersionHeader, version)
		}
		c.Next()
	}
}
