package scheduler

import (
	"context"
	"net/http"
	"time"

	response "storepilot/api/handlers/common"
	"storepilot/internal/auth"
	"storepilot/internal/automation"
	"storepilot/internal/worker/tasks"

	"github.com/gin-gonic/gin"
)

// Runner 调度器
type Runner interface {
	ExecutePending(ctx context.Context, userID string, now time.Time) ([]automation.PendingResult, error)
	Analyze(ctx context.Context, userID string, now time.Time) ([]automation.AnalysisResult, error)
}

// Enqueuer 异步投递调度任务（可选）
type Enqueuer interface {
	EnqueueScheduler(ctx context.Context, mode, userID string) (string, error)
}

// Handler 手动触发调度
type Handler struct {
	runner Runner
	queue  Enqueuer
	now    func() time.Time
}

// NewHandler 构造函数；queue 为 nil 时不支持 async
func NewHandler(runner Runner, queue Enqueuer) *Handler {
	return &Handler{runner: runner, queue: queue, now: time.Now}
}

type runDTO struct {
	Mode  string `json:"mode" binding:"required,oneof=analyze execute_pending"`
	Async bool   `json:"async"`
}

// Run 为当前用户执行一次调度
func (h *Handler) Run(c *gin.Context) {
	var dto runDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	userID := auth.UserID(c)

	if dto.Async {
		if h.queue == nil {
			response.BadRequest(c, "async scheduling is not available")
			return
		}
		taskID, err := h.queue.EnqueueScheduler(ctx, dto.Mode, userID)
		if err != nil {
			response.Fail(c, err, nil)
			return
		}
		response.OK(c, http.StatusAccepted, gin.H{"mode": dto.Mode, "task_id": taskID})
		return
	}

	var (
		results any
		err     error
	)
	switch dto.Mode {
	case tasks.ModeAnalyze:
		results, err = h.runner.Analyze(ctx, userID, h.now())
	default:
		results, err = h.runner.ExecutePending(ctx, userID, h.now())
	}
	if err != nil {
		response.Fail(c, err, nil)
		return
	}
	response.OK(c, http.StatusOK, gin.H{"mode": dto.Mode, "results": results})
}
