package action

import (
	"fmt"
	"sort"
)

// RiskLevel 风险等级
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Rank 便于比较的等级序号
func (l RiskLevel) Rank() int {
	switch l {
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// Source 解释来源
type Source string

const (
	SourceAI      Source = "ai"
	SourcePattern Source = "pattern"
	SourceUndo    Source = "undo"
)

// Clarification 需要用户补充信息时返回的结构化问题
type Clarification struct {
	Reason      string   `json:"reason"`
	Questions   []string `json:"questions"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// EstimatedImpact 影响评估
type EstimatedImpact struct {
	Description           string    `json:"description"`
	AffectedItemsEstimate int       `json:"affected_items_estimate"`
	RiskLevel             RiskLevel `json:"risk_level"`
	Reversible            bool      `json:"reversible"`
}

// Interpretation 命令解释结果
type Interpretation struct {
	Actions              []Action         `json:"actions"`
	Summary              string           `json:"summary,omitempty"`
	ConfidenceScore      float64          `json:"confidence_score"`
	RiskLevel            RiskLevel        `json:"risk_level"`
	RiskScore            int              `json:"risk_score"`
	RiskWarning          *string          `json:"risk_warning"`
	Warnings             []string         `json:"warnings"`
	ClarificationNeeded  *Clarification   `json:"clarification_needed"`
	EstimatedImpact      *EstimatedImpact `json:"estimated_impact,omitempty"`
	Source               Source           `json:"source"`
	RequiresConfirmation bool             `json:"requires_confirmation"`
	RequiresPreview      bool             `json:"requires_preview"`
}

// NeedsClarification 是否等待用户澄清
func (i *Interpretation) NeedsClarification() bool {
	return i != nil && i.ClarificationNeeded != nil
}

// Executable 可以交给执行引擎
func (i *Interpretation) Executable() bool {
	return i != nil && i.ClarificationNeeded == nil && len(i.Actions) > 0
}

// NormalizeSteps 补全缺失的步骤号并按步骤号排序，然后校验依赖关系
// 依赖必须指向更早的步骤
func NormalizeSteps(actions []Action) error {
	next := 1
	for i := range actions {
		if actions[i].StepNumber <= 0 {
			actions[i].StepNumber = next
		}
		if actions[i].StepNumber >= next {
			next = actions[i].StepNumber + 1
		}
	}
	sort.SliceStable(actions, func(a, b int) bool { return actions[a].StepNumber < actions[b].StepNumber })

	seen := make(map[int]bool, len(actions))
	for i := range actions {
		step := actions[i].StepNumber
		if seen[step] {
			return paramError("step_number", fmt.Sprintf("%d is used by more than one action", step))
		}
		if dep, ok := actions[i].DependsOn(); ok && !seen[dep] {
			return paramError("depends_on_step", fmt.Sprintf("step %d depends on step %d which does not run before it", step, dep))
		}
		seen[step] = true
	}
	return nil
}

// ValidateActions 校验整组动作
func ValidateActions(actions []Action) error {
	if err := NormalizeSteps(actions); err != nil {
		return err
	}
	for i := range actions {
		if err := actions[i].Validate(); err != nil {
			return fmt.Errorf("step %d (%s): %w", actions[i].StepNumber, actions[i].Type, err)
		}
	}
	return nil
}
