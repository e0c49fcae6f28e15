package common

import (
	"errors"
	"net/http"

	"storepilot/internal/action"
	"storepilot/internal/ai"
	"storepilot/internal/automation"
	"storepilot/internal/command"
	"storepilot/internal/execution"
	"storepilot/internal/interpreter"
	"storepilot/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StatusFor 将业务错误映射为 HTTP 状态码
func StatusFor(err error) int {
	var (
		cfgErr   *ai.ConfigurationError
		paramErr *action.ParamError
	)
	switch {
	case errors.As(err, &cfgErr):
		return http.StatusServiceUnavailable
	case errors.Is(err, command.ErrNotFound),
		errors.Is(err, automation.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, command.ErrInvalidTransition),
		errors.Is(err, command.ErrCommandImmutable),
		errors.Is(err, command.ErrConfirmationRequired),
		errors.Is(err, command.ErrPreviewRequired):
		return http.StatusConflict
	case errors.Is(err, command.ErrTooManyInFlight):
		return http.StatusTooManyRequests
	case errors.Is(err, execution.ErrNoConnectedPlatform),
		errors.Is(err, execution.ErrNothingToUndo),
		errors.Is(err, interpreter.ErrUnableToInterpret):
		return http.StatusUnprocessableEntity
	case errors.As(err, &paramErr),
		errors.Is(err, action.ErrUnknownType),
		errors.Is(err, command.ErrNotExecutable),
		errors.Is(err, execution.ErrNoActions),
		errors.Is(err, automation.ErrInvalidAutomation):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// OK 成功响应
func OK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, APIResponse{Success: true, Data: data})
}

// Fail 按错误类型返回失败响应；data 可为空
func Fail(c *gin.Context, err error, data interface{}) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.WithContext(c.Request.Context()).Error("请求处理失败",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		msg = "internal server error"
	}
	c.JSON(status, APIResponse{Success: false, Data: data, Error: msg})
}

// BadRequest 参数错误
func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, APIResponse{Success: false, Error: msg})
}
