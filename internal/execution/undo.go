package execution

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"storepilot/internal/action"
)

// ErrNothingToUndo 结果中没有可恢复的修改
var ErrNothingToUndo = errors.New("nothing to undo: no reversible changes were recorded")

// UndoPlan 撤销计划
type UndoPlan struct {
	Actions         []action.Action
	PlatformTargets []string
	Warnings        []string
}

// BuildUndo 根据已记录的 before 值生成恢复计划
// 价格、库存与标题通过 bulk_operation 恢复；其余修改只给出警告
func BuildUndo(results []Result) (*UndoPlan, error) {
	undo := &UndoPlan{}
	var items []action.BulkItem
	platforms := map[string]bool{}
	warned := map[string]bool{}
	warn := func(msg string) {
		if !warned[msg] {
			warned[msg] = true
			undo.Warnings = append(undo.Warnings, msg)
		}
	}

	for _, r := range results {
		if r.ActionType == action.TypeGetProducts || r.Skipped {
			continue
		}
		switch r.ActionType {
		case action.TypeApplyDiscount, action.TypeCustomCommand:
			if r.Success {
				warn(fmt.Sprintf("%s on %s cannot be undone automatically", r.ActionType, r.Platform))
			}
			continue
		}
		for _, item := range r.Items {
			if !item.Success {
				continue
			}
			bulk := action.BulkItem{PlatformID: r.PlatformID, ProductID: item.ProductID, VariantID: item.VariantID}
			switch item.Field {
			case FieldPrice:
				v, ok := toFloat(item.Before)
				if !ok {
					continue
				}
				bulk.Price = &v
			case FieldInventory:
				v, ok := toFloat(item.Before)
				if !ok {
					continue
				}
				n := int(math.Round(v))
				bulk.Inventory = &n
			case FieldTitle:
				s, _ := item.Before.(string)
				if s == "" {
					continue
				}
				bulk.Title = s
				bulk.VariantID = ""
			case FieldListing:
				before, _ := item.Before.(map[string]any)
				title, _ := before["title"].(string)
				if len(before) > 1 || (len(before) == 1 && title == "") {
					warn(fmt.Sprintf("listing fields other than title on %s cannot be undone automatically", r.Platform))
				}
				if title == "" {
					continue
				}
				bulk.Title = title
			default:
				warn(fmt.Sprintf("%s changes on %s cannot be undone automatically", item.Field, r.Platform))
				continue
			}
			items = append(items, bulk)
			platforms[r.PlatformID] = true
		}
	}

	if len(items) == 0 {
		return undo, ErrNothingToUndo
	}
	undo.Actions = []action.Action{action.New(1, &action.BulkParams{Items: items})}
	for _, r := range results {
		if platforms[r.PlatformID] {
			undo.PlatformTargets = append(undo.PlatformTargets, r.PlatformID)
			delete(platforms, r.PlatformID)
		}
	}
	return undo, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
