package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storepilot/internal/automation"
	"storepilot/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// SchedulerRunner 调度器抽象，便于注入 mock
type SchedulerRunner interface {
	ExecutePending(ctx context.Context, userID string, now time.Time) ([]automation.PendingResult, error)
	Analyze(ctx context.Context, userID string, now time.Time) ([]automation.AnalysisResult, error)
}

type SchedulerHandler struct {
	runner SchedulerRunner
	now    func() time.Time
	logger *zap.Logger
}

func NewSchedulerHandler(runner SchedulerRunner, logger *zap.Logger) *SchedulerHandler {
	return &SchedulerHandler{
		runner: runner,
		now:    time.Now,
		logger: logger,
	}
}

func decodePayload(t *asynq.Task) (tasks.SchedulerPayload, error) {
	var p tasks.SchedulerPayload
	if len(t.Payload()) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("json unmarshal failed: %w", err)
	}
	return p, nil
}

func (h *SchedulerHandler) HandleExecutePending(ctx context.Context, t *asynq.Task) error {
	p, err := decodePayload(t)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	results, err := h.runner.ExecutePending(ctx, p.UserID, h.now())
	if err != nil {
		h.logger.Error("执行到期自动化失败", zap.String("user_id", p.UserID), zap.Error(err))
		return err
	}

	counts := map[string]int{}
	for _, r := range results {
		counts[r.Outcome]++
	}
	h.logger.Info("到期自动化处理完成",
		zap.String("user_id", p.UserID),
		zap.Int("executed", counts[automation.OutcomeExecuted]),
		zap.Int("rescheduled", counts[automation.OutcomeRescheduled]),
		zap.Int("failed", counts[automation.OutcomeFailed]),
	)
	return nil
}

func (h *SchedulerHandler) HandleAnalyze(ctx context.Context, t *asynq.Task) error {
	p, err := decodePayload(t)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	results, err := h.runner.Analyze(ctx, p.UserID, h.now())
	if err != nil {
		h.logger.Error("排期分析失败", zap.String("user_id", p.UserID), zap.Error(err))
		return err
	}

	applied := 0
	for _, r := range results {
		if r.Applied {
			applied++
		}
	}
	h.logger.Info("排期分析完成", zap.Int("automations", len(results)), zap.Int("applied", applied))
	return nil
}
