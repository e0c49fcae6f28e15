package execution

import (
	"storepilot/internal/action"
	"storepilot/internal/platform"
)

// Status 执行后的命令状态
type Status string

const (
	StatusCompleted          Status = "completed"
	StatusFailed             Status = "failed"
	StatusPartiallyCompleted Status = "partially_completed"
)

// ItemResult 单个商品（或规格）的执行结果，Before 用于撤销
type ItemResult struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Title     string `json:"title,omitempty"`
	Field     string `json:"field"`
	Before    any    `json:"before,omitempty"`
	After     any    `json:"after,omitempty"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// Summary 条目统计
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Result 一个 (平台, 动作) 的执行结果
type Result struct {
	Platform     string        `json:"platform"`
	PlatformID   string        `json:"platform_id"`
	PlatformType platform.Type `json:"platform_type"`
	ActionType   action.Type   `json:"action_type"`
	StepNumber   int           `json:"step_number"`
	Success      bool          `json:"success"`
	Skipped      bool          `json:"skipped,omitempty"`
	Result       any           `json:"result,omitempty"`
	Error        string        `json:"error,omitempty"`
	Items        []ItemResult  `json:"items,omitempty"`
	Summary      Summary       `json:"summary"`

	// 供后续依赖步骤使用的商品
	products []platform.Product
}

func (r *Result) summarize() {
	r.Summary = Summary{Total: len(r.Items)}
	for _, item := range r.Items {
		if item.Success {
			r.Summary.Succeeded++
		} else {
			r.Summary.Failed++
		}
	}
}

func (r *Result) outcome() string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.Success:
		return "success"
	default:
		return "failed"
	}
}

// Fold 汇总结果得到命令状态；跳过按失败计
func Fold(results []Result) Status {
	if len(results) == 0 {
		return StatusFailed
	}
	succeeded := 0
	for _, r := range results {
		if r.Success && !r.Skipped {
			succeeded++
		}
	}
	switch succeeded {
	case len(results):
		return StatusCompleted
	case 0:
		return StatusFailed
	default:
		return StatusPartiallyCompleted
	}
}

// Outcome 一次执行的整体结果
type Outcome struct {
	Status  Status   `json:"status"`
	Results []Result `json:"results"`
}
