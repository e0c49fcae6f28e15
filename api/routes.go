package api

import (
	"storepilot/internal/auth"
	middlewarepkg "storepilot/internal/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册所有 API 路由
func RegisterRoutes(router *gin.Engine, container *AppContainer, handlers *Handlers) {
	apiV1 := router.Group("/api/v1")
	apiV1.Use(auth.AuthMiddleware(container.Validator))

	var interpretLimit []gin.HandlerFunc
	if n := container.Config.Auth.InterpretPerMinute; n > 0 {
		limiter := middlewarepkg.NewRateLimiter(&middlewarepkg.RateLimiterConfig{
			RequestsPerMinute: n,
			BurstSize:         max(1, n/3),
			IdleTTL:           middlewarepkg.DefaultRateLimiterConfig().IdleTTL,
		})
		interpretLimit = append(interpretLimit, limiter.Middleware(auth.UserID))
	}

	registerCommandRoutes(apiV1, handlers, interpretLimit)
	registerAutomationRoutes(apiV1, handlers)
	apiV1.POST("/scheduler", handlers.Scheduler.Run)
}

// registerCommandRoutes 命令路由；解释类接口会调用模型，单独限流
func registerCommandRoutes(api *gin.RouterGroup, h *Handlers, limit []gin.HandlerFunc) {
	cmds := api.Group("/commands")
	{
		cmds.POST("/interpret", append(limit, h.Commands.Interpret)...)
		cmds.POST("/execute", h.Commands.Execute)
		cmds.GET("", h.Commands.List)
		cmds.GET("/:id", h.Commands.Get)
		cmds.POST("/:id/clarify", append(limit, h.Commands.Clarify)...)
		cmds.POST("/:id/confirm", h.Commands.Confirm)
		cmds.POST("/:id/preview", h.Commands.Preview)
		cmds.POST("/:id/undo", h.Commands.Undo)
	}
}

func registerAutomationRoutes(api *gin.RouterGroup, h *Handlers) {
	autos := api.Group("/automations")
	{
		autos.POST("", h.Automations.Create)
		autos.GET("", h.Automations.List)
		autos.PATCH("/:id", h.Automations.Update)
	}
}
