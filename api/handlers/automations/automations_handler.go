package automations

import (
	"context"
	"net/http"

	response "storepilot/api/handlers/common"
	"storepilot/internal/auth"
	"storepilot/internal/automation"

	"github.com/gin-gonic/gin"
)

// Service 自动化服务
type Service interface {
	Create(ctx context.Context, in automation.CreateInput) (*automation.Automation, error)
	List(ctx context.Context, userID string) ([]automation.Automation, error)
	Update(ctx context.Context, userID, id string, in automation.UpdateInput) (*automation.Automation, error)
}

// Handler 自动化 API
type Handler struct {
	service Service
}

// NewHandler 构造函数
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Create 创建自动化
func (h *Handler) Create(c *gin.Context) {
	var in automation.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	in.UserID = auth.UserID(c)
	a, err := h.service.Create(c.Request.Context(), in)
	if err != nil {
		response.Fail(c, err, nil)
		return
	}
	response.OK(c, http.StatusCreated, a)
}

// List 列出自动化
func (h *Handler) List(c *gin.Context) {
	items, err := h.service.List(c.Request.Context(), auth.UserID(c))
	if err != nil {
		response.Fail(c, err, nil)
		return
	}
	if items == nil {
		items = []automation.Automation{}
	}
	response.OK(c, http.StatusOK, items)
}

// Update 启用/停用或修改排期
func (h *Handler) Update(c *gin.Context) {
	var in automation.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	a, err := h.service.Update(c.Request.Context(), auth.UserID(c), c.Param("id"), in)
	if err != nil {
		response.Fail(c, err, nil)
		return
	}
	response.OK(c, http.StatusOK, a)
}
