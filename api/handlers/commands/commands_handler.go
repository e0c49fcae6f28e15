package commands

import (
	"context"
	"net/http"
	"strconv"

	response "storepilot/api/handlers/common"
	"storepilot/internal/action"
	"storepilot/internal/auth"
	"storepilot/internal/command"
	"storepilot/internal/execution"
	"storepilot/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Service 命令服务（便于注入 mock）
type Service interface {
	Interpret(ctx context.Context, in command.InterpretInput) (*command.Command, error)
	Clarify(ctx context.Context, userID, id string, answers []action.ClarificationTurn) (*command.Command, error)
	Confirm(ctx context.Context, userID, id string) (*command.Command, error)
	Preview(ctx context.Context, userID, id string) (*execution.Preview, error)
	Execute(ctx context.Context, in command.ExecuteInput) (*command.Command, *execution.Outcome, error)
	Undo(ctx context.Context, userID, id string) (*command.Command, error)
	Get(ctx context.Context, userID, id string) (*command.Command, error)
	List(ctx context.Context, userID string, params command.ListParams) ([]command.Command, int64, error)
}

// Handler 命令 API
type Handler struct {
	service Service
}

// NewHandler 构造函数
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type interpretDTO struct {
	CommandText     string                `json:"command_text" binding:"required"`
	PlatformTargets []string              `json:"platform_targets"`
	Context         action.CommandContext `json:"context"`
	RequestPreview  bool                  `json:"request_preview"`
}

type clarifyDTO struct {
	Answers []action.ClarificationTurn `json:"answers" binding:"required,min=1"`
}

type executeDTO struct {
	CommandID       string          `json:"command_id"`
	Actions         []action.Action `json:"actions"`
	PlatformTargets []string        `json:"platform_targets"`
}

// CommandView 命令响应
type CommandView struct {
	CommandID      string                 `json:"command_id"`
	Status         command.Status         `json:"status"`
	Interpretation *action.Interpretation `json:"interpretation,omitempty"`
	Preview        *execution.Preview     `json:"preview,omitempty"`
	UndoOf         *string                `json:"undo_of,omitempty"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
}

// ExecuteView 执行响应
type ExecuteView struct {
	CommandID string             `json:"command_id"`
	Status    string             `json:"status"`
	Results   []execution.Result `json:"results"`
}

func viewOf(cmd *command.Command) *CommandView {
	if cmd == nil {
		return nil
	}
	interp, _ := cmd.ParsedInterpretation()
	return &CommandView{
		CommandID:      cmd.ID,
		Status:         cmd.Status,
		Interpretation: interp,
		UndoOf:         cmd.UndoOf,
		ErrorMessage:   cmd.ErrorMessage,
	}
}

// failWith 失败时仍带上命令状态（例如解释失败后命令已记为 failed）
func failWith(c *gin.Context, err error, cmd *command.Command) {
	if cmd == nil {
		response.Fail(c, err, nil)
		return
	}
	response.Fail(c, err, viewOf(cmd))
}

// Interpret 创建并解释命令
func (h *Handler) Interpret(c *gin.Context) {
	var dto interpretDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	userID := auth.UserID(c)

	cmd, err := h.service.Interpret(ctx, command.InterpretInput{
		UserID:          userID,
		Text:            dto.CommandText,
		PlatformTargets: dto.PlatformTargets,
		Context:         dto.Context,
	})
	if err != nil {
		failWith(c, err, cmd)
		return
	}

	view := viewOf(cmd)
	// 不可撤销的计划总是附带预览
	if interp := view.Interpretation; interp.Executable() && (dto.RequestPreview || interp.RequiresPreview) {
		preview, err := h.service.Preview(ctx, userID, cmd.ID)
		if err != nil {
			// 预览失败不影响解释结果
			logger.WithContext(ctx).Warn("命令预览失败", zap.String("command_id", cmd.ID), zap.Error(err))
		} else {
			view.Preview = preview
		}
	}
	response.OK(c, http.StatusOK, view)
}

// Clarify 回答澄清问题并重新解释
func (h *Handler) Clarify(c *gin.Context) {
	var dto clarifyDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	cmd, err := h.service.Clarify(c.Request.Context(), auth.UserID(c), c.Param("id"), dto.Answers)
	if err != nil {
		failWith(c, err, cmd)
		return
	}
	response.OK(c, http.StatusOK, viewOf(cmd))
}

// Confirm 确认执行
func (h *Handler) Confirm(c *gin.Context) {
	cmd, err := h.service.Confirm(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		response.Fail(c, err, nil)
		return
	}
	response.OK(c, http.StatusOK, viewOf(cmd))
}

// Preview 试运行
func (h *Handler) Preview(c *gin.Context) {
	preview, err := h.service.Preview(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		response.Fail(c, err, nil)
		return
	}
	response.OK(c, http.StatusOK, preview)
}

// Execute 执行已解释的命令，或直接执行动作计划
func (h *Handler) Execute(c *gin.Context) {
	var dto executeDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if dto.CommandID == "" && len(dto.Actions) == 0 {
		response.BadRequest(c, "command_id or actions is required")
		return
	}

	cmd, outcome, err := h.service.Execute(c.Request.Context(), command.ExecuteInput{
		UserID:          auth.UserID(c),
		CommandID:       dto.CommandID,
		Actions:         dto.Actions,
		PlatformTargets: dto.PlatformTargets,
	})
	view := &ExecuteView{Results: []execution.Result{}}
	if cmd != nil {
		view.CommandID = cmd.ID
		view.Status = string(cmd.Status)
	}
	if outcome != nil {
		view.Status = string(outcome.Status)
		view.Results = outcome.Results
	}
	if err != nil {
		if cmd == nil {
			response.Fail(c, err, nil)
		} else {
			response.Fail(c, err, view)
		}
		return
	}
	response.OK(c, http.StatusOK, view)
}

// Undo 生成撤销命令
func (h *Handler) Undo(c *gin.Context) {
	cmd, err := h.service.Undo(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		response.Fail(c, err, nil)
		return
	}
	response.OK(c, http.StatusCreated, viewOf(cmd))
}

// Get 查询命令
func (h *Handler) Get(c *gin.Context) {
	cmd, err := h.service.Get(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		response.Fail(c, err, nil)
		return
	}
	response.OK(c, http.StatusOK, cmd)
}

// List 返回命令列表（带筛选与分页）。
func (h *Handler) List(c *gin.Context) {
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	items, total, err := h.service.List(c.Request.Context(), auth.UserID(c), command.ListParams{
		Status:   c.Query("status"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		response.Fail(c, err, nil)
		return
	}
	if items == nil {
		items = []command.Command{}
	}
	response.OK(c, http.StatusOK, response.ListResponse{
		Items:      items,
		Pagination: response.NewPagination(page, pageSize, total),
	})
}
