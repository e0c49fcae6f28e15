package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// PrometheusMiddleware 记录请求数、耗时、响应大小与并发数
// /metrics 与 /health 不计入
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.URL.Path {
		case "/metrics", "/health":
			c.Next()
			return
		}

		APIRequestsInFlight.Inc()
		defer APIRequestsInFlight.Dec()

		start := time.Now()
		c.Next()

		route := routeLabel(c)
		method := c.Request.Method
		APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		APIRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size > 0 {
			APIResponseSize.WithLabelValues(method, route).Observe(float64(size))
		}
	}
}

// routeLabel 使用路由模板（/api/v1/commands/:id）作为标签，未匹配的路由归为一类
func routeLabel(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}
