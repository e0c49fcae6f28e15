package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"storepilot/internal/automation"
	"storepilot/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap/zaptest"
)

type fakeScheduler struct {
	pendingUser  string
	analyzeUser  string
	pendingCalls int
	analyzeCalls int
	retErr       error
}

func (f *fakeScheduler) ExecutePending(_ context.Context, userID string, _ time.Time) ([]automation.PendingResult, error) {
	f.pendingCalls++
	f.pendingUser = userID
	return []automation.PendingResult{{Outcome: automation.OutcomeExecuted}}, f.retErr
}

func (f *fakeScheduler) Analyze(_ context.Context, userID string, _ time.Time) ([]automation.AnalysisResult, error) {
	f.analyzeCalls++
	f.analyzeUser = userID
	return []automation.AnalysisResult{{Applied: true}}, f.retErr
}

func TestSchedulerHandlerExecutePending_Success(t *testing.T) {
	runner := &fakeScheduler{}
	h := NewSchedulerHandler(runner, zaptest.NewLogger(t))
	payload, _ := json.Marshal(tasks.SchedulerPayload{UserID: "u1"})
	task := asynq.NewTask(tasks.TypeExecutePending, payload)
	if err := h.HandleExecutePending(context.Background(), task); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if runner.pendingCalls != 1 || runner.pendingUser != "u1" {
		t.Fatalf("runner not invoked correctly: calls=%d user=%s", runner.pendingCalls, runner.pendingUser)
	}
}

func TestSchedulerHandlerEmptyPayloadMeansAllUsers(t *testing.T) {
	runner := &fakeScheduler{}
	h := NewSchedulerHandler(runner, zaptest.NewLogger(t))
	task := asynq.NewTask(tasks.TypeAnalyze, nil)
	if err := h.HandleAnalyze(context.Background(), task); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if runner.analyzeCalls != 1 || runner.analyzeUser != "" {
		t.Fatalf("runner not invoked correctly: calls=%d user=%q", runner.analyzeCalls, runner.analyzeUser)
	}
}

func TestSchedulerHandler_RunError(t *testing.T) {
	expectedErr := errors.New("boom")
	runner := &fakeScheduler{retErr: expectedErr}
	h := NewSchedulerHandler(runner, zaptest.NewLogger(t))
	task := asynq.NewTask(tasks.TypeAnalyze, []byte(`{}`))
	if err := h.HandleAnalyze(context.Background(), task); !errors.Is(err, expectedErr) {
		t.Fatalf("expected error %v, got %v", expectedErr, err)
	}
}

func TestSchedulerHandler_InvalidPayload(t *testing.T) {
	runner := &fakeScheduler{}
	h := NewSchedulerHandler(runner, zaptest.NewLogger(t))
	task := asynq.NewTask(tasks.TypeExecutePending, []byte("not-json"))
	err := h.HandleExecutePending(context.Background(), task)
	if err == nil {
		t.Fatalf("expected error for invalid payload")
	}
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("invalid payload should not be retried, got %v", err)
	}
	if runner.pendingCalls != 0 {
		t.Fatalf("runner should not be called when payload invalid")
	}
}

func TestTypeForMode(t *testing.T) {
	if typ, err := tasks.TypeForMode(tasks.ModeAnalyze); err != nil || typ != tasks.TypeAnalyze {
		t.Fatalf("unexpected mapping: %s %v", typ, err)
	}
	if _, err := tasks.TypeForMode("purge"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
