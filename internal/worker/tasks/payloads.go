package tasks

import "fmt"

// Task Types
const (
	TypeExecutePending = "scheduler:execute_pending"
	TypeAnalyze        = "scheduler:analyze"
)

// 调度模式
const (
	ModeExecutePending = "execute_pending"
	ModeAnalyze        = "analyze"
)

// QueueScheduler 调度任务专用队列
const QueueScheduler = "scheduler"

// SchedulerPayload 调度任务载荷
// UserID 为空表示处理全部用户
type SchedulerPayload struct {
	UserID string `json:"user_id,omitempty"`
}

// TypeForMode 调度模式对应的任务类型
func TypeForMode(mode string) (string, error) {
	switch mode {
	case ModeExecutePending:
		return TypeExecutePending, nil
	case ModeAnalyze:
		return TypeAnalyze, nil
	}
	return "", fmt.Errorf("unknown scheduler mode %q (expected analyze or execute_pending)", mode)
}
