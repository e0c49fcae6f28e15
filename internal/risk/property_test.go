package risk

import (
	"testing"

	"storepilot/internal/action"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var scopesByWidth = []action.Scope{action.ScopeSelected, action.ScopeFiltered, action.ScopeAll}

func scopedPrice(op string, value float64, width int, confidence float64) *action.Interpretation {
	t := action.Target{Scope: scopesByWidth[width]}
	switch t.Scope {
	case action.ScopeSelected:
		t.SKU = "SKU-1"
	case action.ScopeFiltered:
		t.Filter = &action.Filter{Tag: "sale"}
	}
	return &action.Interpretation{
		ConfidenceScore: confidence,
		Actions: []action.Action{
			action.New(1, &action.PriceParams{Operation: op, Unit: action.UnitPercent, Value: value, Target: t}),
		},
	}
}

// 风险等级对幅度、范围、置信度单调
func TestScoreMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	ops := gen.OneConstOf(action.OpIncrease, action.OpDecrease)

	properties.Property("larger magnitude never lowers risk", prop.ForAll(
		func(op string, a, b float64, width int, conf float64) bool {
			lo, hi := a, b
			if lo > hi {
				lo, hi = hi, lo
			}
			low := Score(scopedPrice(op, lo, width, conf))
			high := Score(scopedPrice(op, hi, width, conf))
			return high.Score >= low.Score && high.Level.Rank() >= low.Level.Rank()
		},
		ops, gen.Float64Range(0.01, 99), gen.Float64Range(0.01, 99), gen.IntRange(0, 2), gen.Float64Range(0, 1),
	))

	properties.Property("wider scope never lowers risk", prop.ForAll(
		func(op string, value float64, a, b int, conf float64) bool {
			narrow, wide := a, b
			if narrow > wide {
				narrow, wide = wide, narrow
			}
			n := Score(scopedPrice(op, value, narrow, conf))
			w := Score(scopedPrice(op, value, wide, conf))
			return w.Score >= n.Score && w.Level.Rank() >= n.Level.Rank()
		},
		ops, gen.Float64Range(0.01, 99), gen.IntRange(0, 2), gen.IntRange(0, 2), gen.Float64Range(0, 1),
	))

	properties.Property("lower confidence never lowers risk", prop.ForAll(
		func(op string, value float64, width int, a, b float64) bool {
			lowConf, highConf := a, b
			if lowConf > highConf {
				lowConf, highConf = highConf, lowConf
			}
			unsure := Score(scopedPrice(op, value, width, lowConf))
			sure := Score(scopedPrice(op, value, width, highConf))
			return unsure.Score >= sure.Score && unsure.Level.Rank() >= sure.Level.Rank()
		},
		ops, gen.Float64Range(0.01, 99), gen.IntRange(0, 2), gen.Float64Range(0, 1), gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}
