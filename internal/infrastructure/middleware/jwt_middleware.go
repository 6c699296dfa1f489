package middleware

import (
	"net/http"
	"strings"

	"support_chat_server/pkg/errorx"
	"support_chat_server/pkg/util/jwt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ContextAdminID is the gin context key holding the authenticated admin id.
const ContextAdminID = "admin_id"

// JWTAuth requires a valid admin access token, taken from the Authorization
// bearer header or, for browser websockets that cannot set headers, the token query.
func JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				unauthorized(c, "use an Authorization: Bearer token")
				return
			}
			token = parts[1]
		}
		if token == "" {
			unauthorized(c, "admin login required")
			return
		}

		claims, err := jwt.ParseToken(token)
		if err != nil {
			zap.L().Debug("admin token rejected", zap.Error(err))
			unauthorized(c, "token expired or invalid")
			return
		}
		c.Set(ContextAdminID, claims.AdminID)
		c.Next()
	}
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code": errorx.CodeUnauthorized,
		"msg":  msg,
	})
}
