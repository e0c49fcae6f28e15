package risk

import (
	"fmt"

	"storepilot/internal/action"
)

// Clarify 写操作缺少可解析的目标时生成澄清问题；无需澄清时返回 nil
func Clarify(interp *action.Interpretation) *action.Clarification {
	if interp == nil {
		return nil
	}
	var questions []string
	for i := range interp.Actions {
		a := &interp.Actions[i]
		if !a.Type.IsWrite() {
			continue
		}
		if _, ok := a.DependsOn(); ok {
			continue
		}
		t := a.Target()
		if t == nil || t.Resolvable() {
			continue
		}
		questions = append(questions, questionFor(a, t))
	}
	if len(questions) == 0 {
		return nil
	}
	return &action.Clarification{
		Reason:    "The command does not say which products it should change",
		Questions: questions,
		Suggestions: []string{
			"Apply to all products",
			"Only products matching a tag, vendor or title",
			"A specific product by name or SKU",
		},
	}
}

func questionFor(a *action.Action, t *action.Target) string {
	what := describeType(a.Type)
	switch t.Scope {
	case action.ScopeSelected:
		return fmt.Sprintf("Which products should the %s apply to? No products are selected.", what)
	case action.ScopeFiltered:
		return fmt.Sprintf("Which filter should the %s use (tag, vendor, title or price range)?", what)
	default:
		return fmt.Sprintf("Should the %s apply to all products, a filtered set, or specific products?", what)
	}
}

func describeType(t action.Type) string {
	switch t {
	case action.TypeUpdatePrice:
		return "price change"
	case action.TypeUpdateInventory:
		return "inventory update"
	case action.TypeUpdateListing:
		return "listing update"
	case action.TypeApplyDiscount:
		return "discount"
	case action.TypeUpdateSEO:
		return "SEO update"
	case action.TypeConditionalUpdate:
		return "conditional update"
	default:
		return string(t)
	}
}
