package command

import (
	"context"
	"errors"
	"testing"

	"storepilot/internal/action"
	"storepilot/internal/execution"
	"storepilot/internal/interpreter"
	"storepilot/internal/risk"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupCommandTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Command{}))
	return db
}

type fakeInterpreter struct {
	calls []interpreter.Request
	fn    func(req interpreter.Request) (*action.Interpretation, error)
}

func (f *fakeInterpreter) Interpret(_ context.Context, req interpreter.Request) (*action.Interpretation, error) {
	f.calls = append(f.calls, req)
	return f.fn(req)
}

type fakeExecutor struct {
	requests []execution.Request
	outcome  *execution.Outcome
	err      error
}

func (f *fakeExecutor) Execute(_ context.Context, req execution.Request) (*execution.Outcome, error) {
	f.requests = append(f.requests, req)
	return f.outcome, f.err
}

func (f *fakeExecutor) Preview(_ context.Context, req execution.Request) (*execution.Preview, error) {
	return &execution.Preview{Steps: []execution.PreviewStep{{ActionType: req.Actions[0].Type, AffectedCount: 3}}, TotalAffected: 3}, nil
}

func scored(actions ...action.Action) *action.Interpretation {
	interp := &action.Interpretation{Actions: actions, ConfidenceScore: 0.95, Source: action.SourceAI}
	risk.Apply(interp)
	return interp
}

func lowRiskPlan() *action.Interpretation {
	n := 50
	return scored(action.New(1, &action.InventoryParams{Target: action.Target{Scope: action.ScopeSelected, SKU: "ABC"}, Operation: action.OpSet, Available: &n}))
}

func highRiskPlan() *action.Interpretation {
	return scored(action.New(1, &action.PriceParams{Target: action.Target{Scope: action.ScopeAll}, Operation: action.OpIncrease, Unit: action.UnitPercent, Value: 25}))
}

func completedOutcome() *execution.Outcome {
	return &execution.Outcome{Status: execution.StatusCompleted, Results: []execution.Result{{
		Platform: "Main", PlatformID: "p1", ActionType: action.TypeUpdatePrice, StepNumber: 1, Success: true,
		Items: []execution.ItemResult{{ProductID: "101", VariantID: "1001", Field: execution.FieldPrice, Before: 20.0, After: 25.0, Success: true}},
	}}}
}

func TestInterpretAndDedup(t *testing.T) {
	ctx := context.Background()
	interp := &fakeInterpreter{fn: func(interpreter.Request) (*action.Interpretation, error) { return lowRiskPlan(), nil }}
	svc := NewService(setupCommandTestDB(t), interp, &fakeExecutor{})

	in := InterpretInput{UserID: "u1", Text: "set inventory to 50 for product ABC", PlatformTargets: []string{"shopify"}}
	cmd, err := svc.Interpret(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, StatusInterpreted, cmd.Status)
	assert.Equal(t, "LOW", cmd.RiskLevel)
	assert.Equal(t, []string{"shopify"}, cmd.Targets())

	parsed, err := cmd.ParsedInterpretation()
	require.NoError(t, err)
	require.Len(t, parsed.Actions, 1)
	assert.Equal(t, action.TypeUpdateInventory, parsed.Actions[0].Type)

	// 重复提交返回同一命令，不再调用模型
	again, err := svc.Interpret(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, cmd.ID, again.ID)
	assert.Len(t, interp.calls, 1)
}

func TestClarificationRoundTrip(t *testing.T) {
	ctx := context.Background()
	interp := &fakeInterpreter{fn: func(req interpreter.Request) (*action.Interpretation, error) {
		if len(req.Context.Clarifications) == 0 {
			return scored(action.New(1, &action.PriceParams{Operation: action.OpIncrease, Value: 10})), nil
		}
		return lowRiskPlan(), nil
	}}
	svc := NewService(setupCommandTestDB(t), interp, &fakeExecutor{})

	cmd, err := svc.Interpret(ctx, InterpretInput{UserID: "u1", Text: "raise prices by 10%"})
	require.NoError(t, err)
	require.Equal(t, StatusAwaitingClarification, cmd.Status)
	parsed, err := cmd.ParsedInterpretation()
	require.NoError(t, err)
	assert.Empty(t, parsed.Actions)
	require.NotNil(t, parsed.ClarificationNeeded)

	_, err = svc.Confirm(ctx, "u1", cmd.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Clarify(ctx, "u1", cmd.ID, nil)
	var paramErr *action.ParamError
	assert.ErrorAs(t, err, &paramErr)

	cmd, err = svc.Clarify(ctx, "u1", cmd.ID, []action.ClarificationTurn{{Question: "Which products?", Answer: "product ABC"}})
	require.NoError(t, err)
	assert.Equal(t, StatusInterpreted, cmd.Status)
	require.Len(t, interp.calls, 2)
	assert.Equal(t, "product ABC", interp.calls[1].Context.Clarifications[0].Answer)
	assert.Len(t, cmd.CommandContext().Clarifications, 1)
}

func TestInterpretFailureIsTerminal(t *testing.T) {
	ctx := context.Background()
	interp := &fakeInterpreter{fn: func(interpreter.Request) (*action.Interpretation, error) {
		return nil, interpreter.ErrUnableToInterpret
	}}
	svc := NewService(setupCommandTestDB(t), interp, &fakeExecutor{})

	cmd, err := svc.Interpret(ctx, InterpretInput{UserID: "u1", Text: "do something vague"})
	require.ErrorIs(t, err, interpreter.ErrUnableToInterpret)
	require.NotNil(t, cmd)
	assert.Equal(t, StatusFailed, cmd.Status)
	assert.Contains(t, cmd.ErrorMessage, "unable to interpret")

	_, err = svc.Confirm(ctx, "u1", cmd.ID)
	assert.ErrorIs(t, err, ErrCommandImmutable)
}

func TestExecuteRequiresConfirmationForHighRisk(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{outcome: completedOutcome()}
	interp := &fakeInterpreter{fn: func(interpreter.Request) (*action.Interpretation, error) { return highRiskPlan(), nil }}
	svc := NewService(setupCommandTestDB(t), interp, exec)

	cmd, err := svc.Interpret(ctx, InterpretInput{UserID: "u1", Text: "increase all prices by 25%"})
	require.NoError(t, err)
	assert.Equal(t, "HIGH", cmd.RiskLevel)

	_, _, err = svc.Execute(ctx, ExecuteInput{UserID: "u1", CommandID: cmd.ID})
	require.ErrorIs(t, err, ErrConfirmationRequired)
	assert.Empty(t, exec.requests)

	_, err = svc.Confirm(ctx, "u1", cmd.ID)
	require.NoError(t, err)

	cmd, outcome, err := svc.Execute(ctx, ExecuteInput{UserID: "u1", CommandID: cmd.ID})
	require.NoError(t, err)
	assert.Equal(t, execution.StatusCompleted, outcome.Status)
	assert.Equal(t, StatusCompleted, cmd.Status)
	assert.NotNil(t, cmd.CompletedAt)
	require.Len(t, exec.requests, 1)
	assert.Equal(t, cmd.ID, exec.requests[0].CommandID)

	results, err := cmd.ParsedResults()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)

	_, _, err = svc.Execute(ctx, ExecuteInput{UserID: "u1", CommandID: cmd.ID})
	assert.ErrorIs(t, err, ErrCommandImmutable)
}

func TestExecuteDirectPlan(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{outcome: completedOutcome()}
	svc := NewService(setupCommandTestDB(t), &fakeInterpreter{}, exec)

	cmd, outcome, err := svc.Execute(ctx, ExecuteInput{UserID: "u1", Actions: lowRiskPlan().Actions, PlatformTargets: []string{"p1"}})
	require.NoError(t, err)
	assert.Equal(t, execution.StatusCompleted, outcome.Status)
	assert.Equal(t, StatusCompleted, cmd.Status)
	assert.Equal(t, []string{"p1"}, exec.requests[0].PlatformTargets)

	_, _, err = svc.Execute(ctx, ExecuteInput{UserID: "u1", Actions: highRiskPlan().Actions})
	assert.ErrorIs(t, err, ErrConfirmationRequired)

	_, _, err = svc.Execute(ctx, ExecuteInput{UserID: "u1"})
	assert.ErrorIs(t, err, ErrNotExecutable)
}

func discountPlan() *action.Interpretation {
	return scored(action.New(1, &action.DiscountParams{
		Target:    action.Target{Scope: action.ScopeSelected, ProductIDs: []string{"101"}},
		ValueType: action.DiscountPercentage,
		Value:     5,
	}))
}

func TestExecuteNonReversibleNeedsConfirmation(t *testing.T) {
	ctx := context.Background()
	plan := discountPlan()
	require.False(t, plan.RequiresConfirmation)
	require.True(t, plan.RequiresPreview)

	exec := &fakeExecutor{outcome: completedOutcome()}
	interp := &fakeInterpreter{fn: func(interpreter.Request) (*action.Interpretation, error) { return discountPlan(), nil }}
	svc := NewService(setupCommandTestDB(t), interp, exec)

	// 直接提交：保存为 interpreted，等待预览与确认
	direct, _, err := svc.Execute(ctx, ExecuteInput{UserID: "u1", Actions: plan.Actions})
	require.ErrorIs(t, err, ErrPreviewRequired)
	require.NotNil(t, direct)
	assert.Equal(t, StatusInterpreted, direct.Status)
	assert.Empty(t, exec.requests)

	cmd, err := svc.Interpret(ctx, InterpretInput{UserID: "u1", Text: "5% off product 101"})
	require.NoError(t, err)
	_, _, err = svc.Execute(ctx, ExecuteInput{UserID: "u1", CommandID: cmd.ID})
	require.ErrorIs(t, err, ErrPreviewRequired)
	assert.Empty(t, exec.requests)

	preview, err := svc.Preview(ctx, "u1", cmd.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, preview.TotalAffected)

	_, err = svc.Confirm(ctx, "u1", direct.ID)
	require.NoError(t, err)
	_, outcome, err := svc.Execute(ctx, ExecuteInput{UserID: "u1", CommandID: direct.ID})
	require.NoError(t, err)
	assert.Equal(t, execution.StatusCompleted, outcome.Status)
	assert.Len(t, exec.requests, 1)
}

func TestRunAutomation(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{outcome: completedOutcome()}
	db := setupCommandTestDB(t)
	svc := NewService(db, &fakeInterpreter{}, exec)

	cmd, outcome, err := svc.RunAutomation(ctx, "u1", "auto-1", "weekly markup", highRiskPlan().Actions, []string{"p1"})
	require.NoError(t, err)
	assert.Equal(t, execution.StatusCompleted, outcome.Status)
	assert.Equal(t, StatusCompleted, cmd.Status)
	assert.Equal(t, SourceAutomation, cmd.Source)
	require.Len(t, exec.requests, 1)
	assert.Equal(t, "auto-1", exec.requests[0].AutomationID)

	n := 5
	vague := []action.Action{action.New(1, &action.InventoryParams{Operation: action.OpSet, Available: &n})}
	cmd, _, err = svc.RunAutomation(ctx, "u1", "auto-2", "restock", vague, nil)
	require.ErrorIs(t, err, ErrNotExecutable)
	assert.Nil(t, cmd)
	assert.Len(t, exec.requests, 1)

	var count int64
	require.NoError(t, db.Model(&Command{}).Where("automation_id = ?", "auto-2").Count(&count).Error)
	assert.Zero(t, count)
}

func TestExecuteInFlightLimit(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{outcome: completedOutcome()}
	db := setupCommandTestDB(t)
	svc := NewService(db, &fakeInterpreter{}, exec)
	svc.maxInFlight = 1

	require.NoError(t, db.Create(&Command{UserID: "u1", Text: "running", Status: StatusExecuting}).Error)
	_, _, err := svc.Execute(ctx, ExecuteInput{UserID: "u1", Actions: lowRiskPlan().Actions})
	require.ErrorIs(t, err, ErrTooManyInFlight)

	require.NoError(t, db.Migrator().DropTable(&Command{}))
	_, _, err = svc.Execute(ctx, ExecuteInput{UserID: "u2", Actions: lowRiskPlan().Actions})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTooManyInFlight)
	assert.Contains(t, err.Error(), "统计执行中命令失败")
	assert.Empty(t, exec.requests)
}

func TestExecuteNoPlatformMarksFailed(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{err: execution.ErrNoConnectedPlatform}
	svc := NewService(setupCommandTestDB(t), &fakeInterpreter{}, exec)

	cmd, _, err := svc.Execute(ctx, ExecuteInput{UserID: "u1", Actions: lowRiskPlan().Actions})
	require.True(t, errors.Is(err, execution.ErrNoConnectedPlatform))
	stored, err := svc.Get(ctx, "u1", cmd.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "no connected platforms")
}

func TestUndoCreatesNewCommand(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{outcome: completedOutcome()}
	svc := NewService(setupCommandTestDB(t), &fakeInterpreter{}, exec)

	orig, _, err := svc.Execute(ctx, ExecuteInput{UserID: "u1", Actions: lowRiskPlan().Actions})
	require.NoError(t, err)

	undo, err := svc.Undo(ctx, "u1", orig.ID)
	require.NoError(t, err)
	assert.NotEqual(t, orig.ID, undo.ID)
	require.NotNil(t, undo.UndoOf)
	assert.Equal(t, orig.ID, *undo.UndoOf)
	assert.Equal(t, SourceUndo, undo.Source)
	assert.Equal(t, StatusInterpreted, undo.Status)
	assert.Equal(t, []string{"p1"}, undo.Targets())

	parsed, err := undo.ParsedInterpretation()
	require.NoError(t, err)
	require.Len(t, parsed.Actions, 1)
	bulk := parsed.Actions[0].Params.(*action.BulkParams)
	assert.Equal(t, 20.0, *bulk.Items[0].Price)
	assert.Equal(t, action.SourceUndo, parsed.Source)

	stored, err := svc.Get(ctx, "u1", orig.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)
	assert.Nil(t, stored.UndoOf)

	_, err = svc.Undo(ctx, "u1", undo.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestListAndOwnership(t *testing.T) {
	ctx := context.Background()
	interp := &fakeInterpreter{fn: func(interpreter.Request) (*action.Interpretation, error) { return lowRiskPlan(), nil }}
	svc := NewService(setupCommandTestDB(t), interp, &fakeExecutor{})

	for _, text := range []string{"one", "two", "three"} {
		_, err := svc.Interpret(ctx, InterpretInput{UserID: "u1", Text: "set inventory to 50 for product " + text})
		require.NoError(t, err)
	}
	other, err := svc.Interpret(ctx, InterpretInput{UserID: "u2", Text: "set inventory to 50 for product x"})
	require.NoError(t, err)

	items, total, err := svc.List(ctx, "u1", ListParams{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, items, 2)

	_, total, err = svc.List(ctx, "u1", ListParams{Status: string(StatusFailed)})
	require.NoError(t, err)
	assert.Zero(t, total)

	_, err = svc.Get(ctx, "u1", other.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransitionTable(t *testing.T) {
	assert.True(t, StatusPending.CanTransition(StatusAwaitingClarification))
	assert.True(t, StatusAwaitingClarification.CanTransition(StatusAwaitingClarification))
	assert.True(t, StatusInterpreted.CanTransition(StatusExecuting))
	assert.False(t, StatusAwaitingClarification.CanTransition(StatusConfirmed))
	assert.False(t, StatusPending.CanTransition(StatusExecuting))
	assert.False(t, StatusCompleted.CanTransition(StatusExecuting))
	assert.True(t, StatusPartiallyCompleted.Terminal())
	assert.False(t, StatusConfirmed.Terminal())
}
