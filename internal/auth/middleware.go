package auth

import (
	"net/http"

	"storepilot/internal/logger"

	"github.com/gin-gonic/gin"
)

// UserIDKey gin 上下文中的用户 ID 键
const UserIDKey = "user_id"

// AuthMiddleware JWT 认证中间件
func AuthMiddleware(validator *TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractTokenFromBearer(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "缺少认证令牌",
			})
			return
		}

		claims, err := validator.Validate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "令牌验证失败: " + err.Error(),
			})
			return
		}

		c.Set(UserIDKey, claims.Subject)
		c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), claims.Subject))
		c.Next()
	}
}

// UserID 从 Gin Context 获取当前用户 ID
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
