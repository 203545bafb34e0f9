package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/haierkeys/onyx-note-sync/pkg/app"
	"github.com/haierkeys/onyx-note-sync/pkg/code"
)

// IdentityAuthToken verifies the bearer identity token and stores the identity on the context
// IdentityAuthToken 校验身份令牌并将身份写入上下文
func IdentityAuthToken(tm app.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := app.NewResponse(c)

		token := app.BearerToken(c)
		if token == "" {
			response.ToResponse(code.ErrorNotUserAuthToken)
			c.Abort()
			return
		}

		identity, err := tm.Parse(token)
		if err != nil {
			response.ToResponse(code.ErrorInvalidUserAuthToken.WithDetails(err.Error()))
			c.Abort()
			return
		}
		c.Set(app.IdentityContextKey, identity)

		c.Next()
	}
}
