package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterConfig 限流配置
type RateLimiterConfig struct {
	RequestsPerMinute int           // 每分钟请求数
	BurstSize         int           // 突发容量
	IdleTTL           time.Duration // 空闲多久后回收
}

// DefaultRateLimiterConfig 默认配置
func DefaultRateLimiterConfig() *RateLimiterConfig {
	return &RateLimiterConfig{
		RequestsPerMinute: 30,
		BurstSize:         10,
		IdleTTL:           10 * time.Minute,
	}
}

type clientState struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter 按调用方限流的令牌桶
type RateLimiter struct {
	config  *RateLimiterConfig
	clients map[string]*clientState
	mu      sync.Mutex
	now     func() time.Time
}

// NewRateLimiter 创建限流器
func NewRateLimiter(config *RateLimiterConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimiterConfig()
	}
	return &RateLimiter{
		config:  config,
		clients: make(map[string]*clientState),
		now:     time.Now,
	}
}

// Allow 判断 key 对应的调用方是否还有配额
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	st, ok := rl.clients[key]
	if !ok {
		st = &clientState{
			limiter: rate.NewLimiter(rate.Limit(float64(rl.config.RequestsPerMinute)/60), rl.config.BurstSize),
		}
		rl.clients[key] = st
	}
	st.lastSeen = now

	// 顺带回收空闲的调用方
	if len(rl.clients) > 1024 {
		for k, s := range rl.clients {
			if now.Sub(s.lastSeen) > rl.config.IdleTTL {
				delete(rl.clients, k)
			}
		}
	}
	return st.limiter.AllowN(now, 1)
}

// Middleware 限流中间件；keyFunc 返回空字符串时按客户端 IP 计
func (rl *RateLimiter) Middleware(keyFunc func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := ""
		if keyFunc != nil {
			key = keyFunc(c)
		}
		if key == "" {
			key = c.ClientIP()
		}
		if !rl.Allow(key) {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "rate limit exceeded, please retry later",
			})
			return
		}
		c.Next()
	}
}
