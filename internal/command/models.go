package command

import (
	"encoding/json"
	"fmt"
	"time"

	"storepilot/internal/action"
	"storepilot/internal/execution"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Status 命令状态
type Status string

const (
	StatusPending               Status = "pending"
	StatusInterpreted           Status = "interpreted"
	StatusAwaitingClarification Status = "awaiting_clarification"
	StatusConfirmed             Status = "confirmed"
	StatusExecuting             Status = "executing"
	StatusCompleted             Status = "completed"
	StatusFailed                Status = "failed"
	StatusPartiallyCompleted    Status = "partially_completed"
)

// transitions 允许的状态迁移
var transitions = map[Status][]Status{
	StatusPending:               {StatusInterpreted, StatusAwaitingClarification, StatusFailed},
	StatusAwaitingClarification: {StatusInterpreted, StatusAwaitingClarification, StatusFailed},
	StatusInterpreted:           {StatusConfirmed, StatusExecuting, StatusFailed},
	StatusConfirmed:             {StatusExecuting, StatusFailed},
	StatusExecuting:             {StatusCompleted, StatusFailed, StatusPartiallyCompleted},
}

// Terminal 终态不可再修改
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusPartiallyCompleted:
		return true
	}
	return false
}

// CanTransition 是否允许从 s 迁移到 to
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Source 命令来源
type Source string

const (
	SourceUser       Source = "user"
	SourceAutomation Source = "automation"
	SourceUndo       Source = "undo"
)

// Command 一条用户命令及其解释、执行结果
type Command struct {
	ID              string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID          string         `gorm:"type:varchar(64);index:idx_command_user_status" json:"user_id"`
	Text            string         `gorm:"type:text" json:"text"`
	PlatformTargets datatypes.JSON `json:"platform_targets"`
	Context         datatypes.JSON `json:"context,omitempty"`
	Status          Status         `gorm:"size:32;index:idx_command_user_status" json:"status"`
	Interpretation  datatypes.JSON `json:"interpretation,omitempty"`
	Results         datatypes.JSON `json:"results,omitempty"`
	RiskLevel       string         `gorm:"size:16" json:"risk_level,omitempty"`
	UndoOf          *string        `gorm:"type:varchar(36);index" json:"undo_of,omitempty"`
	AutomationID    *string        `gorm:"type:varchar(36);index" json:"automation_id,omitempty"`
	Source          Source         `gorm:"size:16" json:"source"`
	DedupKey        string         `gorm:"size:64;index" json:"-"`
	ErrorMessage    string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
}

// TableName 表名
func (Command) TableName() string { return "commands" }

func (c *Command) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	return nil
}

// Targets 目标平台列表
func (c *Command) Targets() []string {
	var out []string
	if len(c.PlatformTargets) > 0 {
		_ = json.Unmarshal(c.PlatformTargets, &out)
	}
	return out
}

// CommandContext 解释时使用的上下文
func (c *Command) CommandContext() action.CommandContext {
	var out action.CommandContext
	if len(c.Context) > 0 {
		_ = json.Unmarshal(c.Context, &out)
	}
	return out
}

// ParsedInterpretation 解码已保存的解释结果，未解释时返回 nil
func (c *Command) ParsedInterpretation() (*action.Interpretation, error) {
	if len(c.Interpretation) == 0 {
		return nil, nil
	}
	var interp action.Interpretation
	if err := json.Unmarshal(c.Interpretation, &interp); err != nil {
		return nil, fmt.Errorf("解析命令解释结果失败: %w", err)
	}
	return &interp, nil
}

// ParsedResults 解码执行结果
func (c *Command) ParsedResults() ([]execution.Result, error) {
	if len(c.Results) == 0 {
		return nil, nil
	}
	var results []execution.Result
	if err := json.Unmarshal(c.Results, &results); err != nil {
		return nil, fmt.Errorf("解析执行结果失败: %w", err)
	}
	return results, nil
}

func mustJSON(v any) datatypes.JSON {
	raw, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(raw)
}
