package risk

import (
	"fmt"
	"strings"

	"storepilot/internal/action"
)

// Apply 为解释结果补全风险字段、影响评估与确认/预览要求
// 需要澄清时清空动作列表，保证该解释无法被执行
func Apply(interp *action.Interpretation) {
	if interp == nil {
		return
	}
	if interp.ClarificationNeeded == nil {
		interp.ClarificationNeeded = Clarify(interp)
	}

	assessment := Score(interp)
	interp.RiskLevel = assessment.Level
	interp.RiskScore = assessment.Score
	interp.Warnings = assessment.Warnings
	if interp.Warnings == nil {
		interp.Warnings = []string{}
	}
	interp.RiskWarning = assessment.Warning()

	impact := EstimateImpact(interp.Actions)
	impact.RiskLevel = assessment.Level
	interp.EstimatedImpact = &impact

	confirm := assessment.Level.Rank() >= action.RiskMedium.Rank()
	for i := range interp.Actions {
		if interp.Actions[i].RequiresConfirmation {
			confirm = true
		}
	}
	interp.RequiresConfirmation = confirm
	interp.RequiresPreview = !impact.Reversible

	if interp.ClarificationNeeded != nil {
		interp.Actions = []action.Action{}
	}
}

// RequiresConfirmation 执行前是否必须经过用户确认
func RequiresConfirmation(interp *action.Interpretation) bool {
	if interp == nil {
		return false
	}
	if Score(interp).Level.Rank() >= action.RiskMedium.Rank() {
		return true
	}
	for i := range interp.Actions {
		if interp.Actions[i].RequiresConfirmation || interp.Actions[i].Type == action.TypeCustomCommand {
			return true
		}
	}
	return false
}

// Reversible 动作能否通过撤销恢复
func Reversible(t action.Type) bool {
	switch t {
	case action.TypeCustomCommand, action.TypeApplyDiscount:
		return false
	default:
		return true
	}
}

// EstimateImpact 按动作估计影响范围；all/filtered 范围在预览前无法计数，记为 0
func EstimateImpact(actions []action.Action) action.EstimatedImpact {
	impact := action.EstimatedImpact{Reversible: true, RiskLevel: action.RiskLow}
	parts := make([]string, 0, len(actions))
	for i := range actions {
		a := &actions[i]
		if !Reversible(a.Type) {
			impact.Reversible = false
		}
		impact.AffectedItemsEstimate += countItems(a)
		parts = append(parts, describeAction(a))
	}
	if len(parts) == 0 {
		impact.Description = "No changes"
	} else {
		impact.Description = strings.Join(parts, ", then ")
	}
	return impact
}

func countItems(a *action.Action) int {
	if bulk, ok := a.Params.(*action.BulkParams); ok {
		return len(bulk.Items)
	}
	t := a.Target()
	if t == nil || t.EffectiveScope() != action.ScopeSelected {
		return 0
	}
	if n := len(t.ProductIDs); n > 0 {
		return n
	}
	return 1
}

func describeAction(a *action.Action) string {
	desc := describeType(a.Type)
	switch p := a.Params.(type) {
	case *action.PriceParams:
		if p.Operation == action.OpSet {
			desc = fmt.Sprintf("set price to %s", formatNumber(p.Value))
		} else if p.Unit == action.UnitFixed {
			desc = fmt.Sprintf("%s price by %s", p.Operation, formatNumber(p.Value))
		} else {
			desc = fmt.Sprintf("%s price by %s%%", p.Operation, formatNumber(p.Value))
		}
	case *action.InventoryParams:
		if p.Available != nil {
			desc = fmt.Sprintf("%s inventory %d units", p.Operation, *p.Available)
		}
	case *action.GetProductsParams:
		desc = "look up products"
	case *action.BulkParams:
		desc = fmt.Sprintf("bulk update %d items", len(p.Items))
	case *action.CustomParams:
		desc = fmt.Sprintf("%s %s", p.Method, p.Endpoint)
	case *action.ConditionalParams:
		desc = fmt.Sprintf("when %s: %s", p.Condition, describeAction(&p.Then))
	}
	if t := a.Target(); t != nil {
		switch t.EffectiveScope() {
		case action.ScopeAll:
			desc += " on all products"
		case action.ScopeFiltered:
			desc += " on filtered products"
		case action.ScopeSelected:
			desc += " on " + describeSelection(t)
		}
	}
	return desc
}

func describeSelection(t *action.Target) string {
	switch {
	case len(t.ProductIDs) > 0:
		return fmt.Sprintf("%d selected products", len(t.ProductIDs))
	case t.SKU != "":
		return "SKU " + t.SKU
	default:
		return fmt.Sprintf("%q", t.ProductTitle)
	}
}
