// Package risk 对解释结果做风险评分与澄清判定
package risk

import (
	"fmt"
	"math"
	"strings"

	"storepilot/internal/action"
)

// 评分阈值与分值
const (
	HighThreshold   = 4
	MediumThreshold = 2

	decreasePoints      = 2
	largeChangePoints   = 2
	mediumChangePoints  = 1
	scopeAllPoints      = 2
	scopeFilteredPoints = 1
	bulkInventoryPoints = 1
	lowConfidencePoints = 1

	largeChangeAbove    = 20.0
	mediumChangeFrom    = 10.0
	bulkInventoryAbove  = 100
	confidenceThreshold = 0.8
)

// Assessment 风险评估结果
type Assessment struct {
	Level    action.RiskLevel `json:"risk_level"`
	Score    int              `json:"risk_score"`
	Warnings []string         `json:"warnings"`
}

// Warning 把各条警告合并成一句，无警告时返回 nil
func (a Assessment) Warning() *string {
	if len(a.Warnings) == 0 {
		return nil
	}
	joined := strings.Join(a.Warnings, "; ")
	return &joined
}

// LevelFor 分数到等级的映射
func LevelFor(score int) action.RiskLevel {
	switch {
	case score >= HighThreshold:
		return action.RiskHigh
	case score >= MediumThreshold:
		return action.RiskMedium
	default:
		return action.RiskLow
	}
}

// Score 计算风险
// 分数取各动作得分的最大值，再叠加解释整体的置信度惩罚；警告逐条累积
func Score(interp *action.Interpretation) Assessment {
	if interp == nil {
		return Assessment{Level: action.RiskLow}
	}
	w := &warnings{}
	best := 0
	for i := range interp.Actions {
		if s := scoreAction(&interp.Actions[i], w); s > best {
			best = s
		}
	}
	total := best
	if interp.ConfidenceScore < confidenceThreshold {
		total += lowConfidencePoints
		w.add(fmt.Sprintf("Low confidence interpretation (%d%%), please review before executing", int(math.Round(interp.ConfidenceScore*100))))
	}
	return Assessment{Level: LevelFor(total), Score: total, Warnings: w.list}
}

func scoreAction(a *action.Action, w *warnings) int {
	score := 0
	switch p := a.Params.(type) {
	case *action.PriceParams:
		score += scorePrice(p, w)
	case *action.InventoryParams:
		score += scoreInventory(p, w)
	case *action.DiscountParams:
		if p.ValueType == action.DiscountPercentage {
			score += scoreMagnitude(p.Value, "%", "discount", w)
		}
	case *action.ConditionalParams:
		nested := p.Then
		score += scoreAction(&nested, w)
	case *action.CustomParams:
		w.add(fmt.Sprintf("Custom %s request to %s cannot be undone automatically", p.Method, p.Endpoint))
	case *action.BulkParams:
		if len(p.Items) > bulkInventoryAbove {
			w.add(fmt.Sprintf("Bulk operation touches %d items", len(p.Items)))
		}
	}
	if t := a.Target(); t != nil {
		score += scoreScope(t, w)
	}
	return score
}

func scorePrice(p *action.PriceParams, w *warnings) int {
	if p.Operation == action.OpSet {
		return 0
	}
	score := 0
	unit := "%"
	if p.Unit == action.UnitFixed {
		unit = " (fixed amount)"
	}
	if p.Operation == action.OpDecrease {
		score += decreasePoints
		w.add(fmt.Sprintf("Price decrease of %s%s will reduce your margins", formatNumber(p.Value), unit))
	}
	score += scoreMagnitude(p.Value, unit, "price change", w)
	return score
}

// scoreInventory 库存只按数量阈值计分，不套用价格的幅度规则
func scoreInventory(p *action.InventoryParams, w *warnings) int {
	if p.Available == nil {
		return 0
	}
	if *p.Available > bulkInventoryAbove {
		w.add(fmt.Sprintf("Large inventory change of %d units", *p.Available))
		return bulkInventoryPoints
	}
	return 0
}

func scoreMagnitude(value float64, unit, what string, w *warnings) int {
	magnitude := math.Abs(value)
	switch {
	case magnitude > largeChangeAbove:
		w.add(fmt.Sprintf("Large %s of %s%s", what, formatNumber(magnitude), unit))
		return largeChangePoints
	case magnitude >= mediumChangeFrom:
		return mediumChangePoints
	default:
		return 0
	}
}

func scoreScope(t *action.Target, w *warnings) int {
	switch t.EffectiveScope() {
	case action.ScopeAll:
		w.add("This will affect ALL products in your store")
		return scopeAllPoints
	case action.ScopeFiltered:
		w.add("This will affect every product matching the filter")
		return scopeFilteredPoints
	default:
		return 0
	}
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}

type warnings struct {
	list []string
}

func (w *warnings) add(msg string) {
	for _, existing := range w.list {
		if existing == msg {
			return
		}
	}
	w.list = append(w.list, msg)
}
