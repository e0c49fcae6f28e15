package risk

import (
	"testing"

	"storepilot/internal/action"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func priceInterp(op string, value float64, scope action.Scope, confidence float64) *action.Interpretation {
	return &action.Interpretation{
		ConfidenceScore: confidence,
		Actions: []action.Action{
			action.New(1, &action.PriceParams{Operation: op, Unit: action.UnitPercent, Value: value, Target: action.Target{Scope: scope}}),
		},
	}
}

func TestScoreIncreaseAllBy25IsHigh(t *testing.T) {
	a := Score(priceInterp(action.OpIncrease, 25, action.ScopeAll, 0.95))

	assert.Equal(t, action.RiskHigh, a.Level)
	assert.GreaterOrEqual(t, a.Score, 4)
	joined := *a.Warning()
	assert.Contains(t, joined, "ALL products")
	assert.Contains(t, joined, "25%")
}

func TestScoreSelectedInventoryIsLow(t *testing.T) {
	qty := 50
	interp := &action.Interpretation{
		ConfidenceScore: 0.9,
		Actions: []action.Action{
			action.New(1, &action.InventoryParams{Operation: action.OpSet, Available: &qty, Target: action.Target{Scope: action.ScopeSelected, SKU: "ABC"}}),
		},
	}
	a := Score(interp)
	assert.Equal(t, action.RiskLow, a.Level)
	assert.Zero(t, a.Score)
	assert.Nil(t, a.Warning())
}

func TestScoreFactors(t *testing.T) {
	cases := []struct {
		name   string
		interp *action.Interpretation
		score  int
		level  action.RiskLevel
	}{
		{"small increase selected", priceInterp(action.OpIncrease, 5, action.ScopeSelected, 0.9), 0, action.RiskLow},
		{"medium increase filtered", priceInterp(action.OpIncrease, 15, action.ScopeFiltered, 0.9), 2, action.RiskMedium},
		{"small decrease selected", priceInterp(action.OpDecrease, 5, action.ScopeSelected, 0.9), 2, action.RiskMedium},
		{"large decrease all", priceInterp(action.OpDecrease, 30, action.ScopeAll, 0.9), 6, action.RiskHigh},
		{"low confidence", priceInterp(action.OpIncrease, 5, action.ScopeSelected, 0.6), 1, action.RiskLow},
		{"boundary 20 is medium magnitude", priceInterp(action.OpIncrease, 20, action.ScopeSelected, 0.9), 1, action.RiskLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := Score(tc.interp)
			assert.Equal(t, tc.score, a.Score)
			assert.Equal(t, tc.level, a.Level)
		})
	}
}

func TestScoreTakesWorstAction(t *testing.T) {
	qty := 500
	interp := &action.Interpretation{
		ConfidenceScore: 0.9,
		Actions: []action.Action{
			action.New(1, &action.PriceParams{Operation: action.OpIncrease, Value: 5, Target: action.Target{Scope: action.ScopeSelected, SKU: "A"}}),
			action.New(2, &action.InventoryParams{Available: &qty, Target: action.Target{Scope: action.ScopeAll}}),
		},
	}
	a := Score(interp)
	assert.Equal(t, 3, a.Score)
	assert.Equal(t, action.RiskMedium, a.Level)
	assert.Len(t, a.Warnings, 2)
}

func TestClarifyMissingTarget(t *testing.T) {
	interp := priceInterp(action.OpIncrease, 10, "", 0.9)
	clar := Clarify(interp)
	require.NotNil(t, clar)
	assert.NotEmpty(t, clar.Questions)
	assert.NotEmpty(t, clar.Suggestions)

	assert.Nil(t, Clarify(priceInterp(action.OpIncrease, 10, action.ScopeAll, 0.9)))
}

func TestClarifySkipsDependentAndReadSteps(t *testing.T) {
	qty := 10
	interp := &action.Interpretation{
		ConfidenceScore: 0.9,
		Actions: []action.Action{
			action.New(1, &action.GetProductsParams{}),
			{Type: action.TypeUpdateInventory, StepNumber: 2, DependsOnStep: action.StepRef(1), Params: &action.InventoryParams{Available: &qty}},
		},
	}
	assert.Nil(t, Clarify(interp))
}

func TestApplyClarificationEmptiesActions(t *testing.T) {
	interp := priceInterp(action.OpDecrease, 10, "", 0.9)
	Apply(interp)

	require.NotNil(t, interp.ClarificationNeeded)
	assert.Empty(t, interp.Actions)
	assert.False(t, interp.Executable())
}

func TestApplySetsConfirmationAndPreview(t *testing.T) {
	interp := priceInterp(action.OpIncrease, 25, action.ScopeAll, 0.95)
	Apply(interp)
	assert.Equal(t, action.RiskHigh, interp.RiskLevel)
	assert.True(t, interp.RequiresConfirmation)
	assert.False(t, interp.RequiresPreview)
	require.NotNil(t, interp.EstimatedImpact)
	assert.True(t, interp.EstimatedImpact.Reversible)
	assert.Contains(t, interp.EstimatedImpact.Description, "all products")

	custom := &action.Interpretation{
		ConfidenceScore: 0.9,
		Actions: []action.Action{
			{Type: action.TypeCustomCommand, StepNumber: 1, RequiresConfirmation: true, Params: &action.CustomParams{Method: "GET", Endpoint: "/shop.json"}},
		},
	}
	Apply(custom)
	assert.Equal(t, action.RiskLow, custom.RiskLevel)
	assert.True(t, custom.RequiresConfirmation)
	assert.True(t, custom.RequiresPreview)
	assert.False(t, custom.EstimatedImpact.Reversible)
}

func TestRequiresConfirmation(t *testing.T) {
	assert.False(t, RequiresConfirmation(priceInterp(action.OpIncrease, 5, action.ScopeSelected, 0.9)))
	assert.True(t, RequiresConfirmation(priceInterp(action.OpIncrease, 5, action.ScopeAll, 0.9)))
}
