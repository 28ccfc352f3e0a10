package security

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"socratic_backend/internal/util"
	"socratic_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// CORS 中间件 仅允许白名单中的Origin，支持Credentials。白名单包含 "*" 时放行所有来源。
func CORS(allowedOrigins []string) gin.HandlerFunc {
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}
	allowAll := originSet["*"]

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if origin != "" && (allowAll || originSet[origin]) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Add("Vary", "Origin")
		}

		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Secure 中间件
func Secure() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 防止MIME嗅探
		c.Header("X-Content-Type-Options", "nosniff")
		// 防止点击劫持
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

// KeyFunc 决定限流维度
type KeyFunc func(c *gin.Context) string

// ClientIPKey 按来源IP限流
func ClientIPKey(c *gin.Context) string {
	return c.ClientIP()
}

// UserOrIPKey 已登录用户按用户ID限流，匿名请求按IP
func UserOrIPKey(c *gin.Context) string {
	if claims := util.GetUserFromContext(c); claims != nil {
		return "user:" + strconv.FormatUint(uint64(claims.UserID), 10)
	}
	return "ip:" + c.ClientIP()
}

// visitor 包装限流器和最后活跃时间，用于定期清理
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter 限流中间件 按IP限流，自动清理过期条目
func RateLimiter(maxRequests int, window time.Duration) gin.HandlerFunc {
	return NamedRateLimiter("global", maxRequests, window, ClientIPKey)
}

// NamedRateLimiter 令牌桶限流，name 用于区分指标
func NamedRateLimiter(name string, maxRequests int, window time.Duration, key KeyFunc) gin.HandlerFunc {
	if maxRequests <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	store := make(map[string]*visitor)
	var mu sync.Mutex

	go func() {
		expiry := window * 3
		if expiry < time.Minute {
			expiry = time.Minute
		}
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			mu.Lock()
			for k, v := range store {
				if time.Since(v.lastSeen) > expiry {
					delete(store, k)
				}
			}
			mu.Unlock()
		}
	}()

	r := rate.Every(window / time.Duration(maxRequests))

	return func(c *gin.Context) {
		k := key(c)

		mu.Lock()
		v, exists := store[k]
		if !exists {
			v = &visitor{
				limiter: rate.NewLimiter(r, maxRequests),
			}
			store[k] = v
		}
		v.lastSeen = time.Now()
		mu.Unlock()

		if !v.limiter.Allow() {
			monitoring.RateLimited.WithLabelValues(name).Inc()
			util.Error(c, http.StatusTooManyRequests, "rate_limited", "too many requests")
			c.Abort()
			return
		}

		c.Next()
	}
}
