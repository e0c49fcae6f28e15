package api

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"storepilot/internal/logger"
	middlewarepkg "storepilot/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RequestLogger 请求日志中间件；5xx 记 Error，4xx 记 Warn
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := zapcore.InfoLevel
		switch {
		case status >= http.StatusInternalServerError:
			level = zapcore.ErrorLevel
		case status >= http.StatusBadRequest:
			level = zapcore.WarnLevel
		}

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", middlewarepkg.GetRequestID(c)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		logger.WithContext(c.Request.Context()).Log(level, "HTTP 请求", fields...)
	}
}

// CORSConfig 跨域配置，启动时从环境变量读取一次
type CORSConfig struct {
	AllowOrigins []string // 为空表示允许任意来源
	AllowHeaders []string
	AllowMethods []string
}

// CORSConfigFromEnv 读取 CORS_ALLOW_ORIGINS / CORS_ALLOW_HEADERS / CORS_ALLOW_METHODS
func CORSConfigFromEnv() CORSConfig {
	return CORSConfig{
		AllowOrigins: getEnvList("CORS_ALLOW_ORIGINS"),
		AllowHeaders: defaultIfEmpty(getEnvList("CORS_ALLOW_HEADERS"), []string{
			"Content-Type", "Authorization", "Accept", "Origin", "Cache-Control",
			middlewarepkg.HeaderRequestID, middlewarepkg.HeaderTraceID,
		}),
		AllowMethods: defaultIfEmpty(getEnvList("CORS_ALLOW_METHODS"), []string{
			http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions,
		}),
	}
}

// CORS 跨域中间件
func CORS(cfg CORSConfig) gin.HandlerFunc {
	headers := strings.Join(cfg.AllowHeaders, ", ")
	methods := strings.Join(cfg.AllowMethods, ", ")
	exposed := middlewarepkg.HeaderRequestID + ", " + middlewarepkg.HeaderTraceID

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		h := c.Writer.Header()

		switch {
		case len(cfg.AllowOrigins) == 0:
			h.Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(cfg.AllowOrigins, origin):
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		}
		h.Set("Access-Control-Allow-Headers", headers)
		h.Set("Access-Control-Allow-Methods", methods)
		h.Set("Access-Control-Expose-Headers", exposed)
		h.Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// defaultIfEmpty 返回非空列表或默认值
func defaultIfEmpty(list []string, def []string) []string {
	if len(list) == 0 {
		return def
	}
	return list
}
