package middleware

import (
	"strings"

	"socratic_backend/internal/config"
	"socratic_backend/internal/util"
	"socratic_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// bearerToken 优先取 Authorization 头，其次取 token 查询参数
func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")); token != "" && token != header {
			return token
		}
	}
	return c.Query("token")
}

// AuthMiddleware 必须登录
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		claims, err := util.ParseJWT(tokenString, cfg.JWT.Secret)
		if err != nil {
			logger.Log.Debug("JWT rejected", zap.Error(err))
			util.Unauthorized(c)
			c.Abort()
			return
		}

		c.Set(util.ContextUserKey, claims)
		c.Next()
	}
}

// TryAuthMiddleware 可选登录，令牌无效时按匿名处理
func TryAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString := bearerToken(c); tokenString != "" {
			if claims, err := util.ParseJWT(tokenString, cfg.JWT.Secret); err == nil {
				c.Set(util.ContextUserKey, claims)
			}
		}
		c.Next()
	}
}
