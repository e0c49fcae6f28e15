package automation

import (
	"context"
	"fmt"
	"time"

	"storepilot/internal/action"
	"storepilot/internal/command"
	"storepilot/internal/config"
	"storepilot/internal/execution"
	"storepilot/internal/logger"
	"storepilot/internal/metrics"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Runner 创建并执行自动化命令
type Runner interface {
	RunAutomation(ctx context.Context, userID, automationID, name string, actions []action.Action, targets []string) (*command.Command, *execution.Outcome, error)
}

// HistorySource 执行历史
type HistorySource interface {
	History(ctx context.Context, userID, automationID string, since time.Time, limit int) ([]execution.Record, error)
}

// Scheduler 排期分析与到期执行
type Scheduler struct {
	db             *gorm.DB
	runner         Runner
	history        HistorySource
	locker         Locker
	window         time.Duration
	historyDays    int
	historyLimit   int
	applyThreshold float64
	lockTTL        time.Duration
	logger         *zap.Logger
}

// SchedulerOption 选项
type SchedulerOption func(*Scheduler)

// WithLocker 设置分布式锁
func WithLocker(l Locker) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithSchedulerConfig 从配置读取窗口、历史范围与阈值
func WithSchedulerConfig(cfg config.SchedulerConfig) SchedulerOption {
	return func(s *Scheduler) {
		if cfg.Window > 0 {
			s.window = cfg.Window
		}
		if cfg.HistoryDays > 0 {
			s.historyDays = cfg.HistoryDays
		}
		if cfg.HistoryLimit > 0 {
			s.historyLimit = cfg.HistoryLimit
		}
		if cfg.ApplyThreshold > 0 {
			s.applyThreshold = cfg.ApplyThreshold
		}
		if cfg.LockTTL > 0 {
			s.lockTTL = cfg.LockTTL
		}
	}
}

// NewScheduler 创建调度器
func NewScheduler(db *gorm.DB, runner Runner, history HistorySource, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		db:             db,
		runner:         runner,
		history:        history,
		locker:         noopLocker{},
		window:         5 * time.Minute,
		historyDays:    30,
		historyLimit:   100,
		applyThreshold: 0.7,
		lockTTL:        10 * time.Minute,
		logger:         logger.Named("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AnalysisResult 单个自动化的分析结果
type AnalysisResult struct {
	AutomationID   string         `json:"automation_id"`
	Name           string         `json:"name"`
	Recommendation Recommendation `json:"recommendation"`
	Applied        bool           `json:"applied"`
	NextRun        *time.Time     `json:"next_run,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// Analyze 为启用的自动化计算排期建议；置信度超过阈值的建议会被保存并用于下一次运行
// userID 为空时处理全部用户
func (s *Scheduler) Analyze(ctx context.Context, userID string, now time.Time) ([]AnalysisResult, error) {
	var out []AnalysisResult
	err := metrics.RecordSchedulerRun("analyze", func() error {
		automations, err := s.enabled(ctx, userID)
		if err != nil {
			return err
		}
		for i := range automations {
			out = append(out, s.analyzeOne(ctx, &automations[i], now))
		}
		return nil
	})
	return out, err
}

func (s *Scheduler) analyzeOne(ctx context.Context, a *Automation, now time.Time) AnalysisResult {
	res := AnalysisResult{AutomationID: a.ID, Name: a.Name}
	since := now.AddDate(0, 0, -s.historyDays)
	history, err := s.history.History(ctx, a.UserID, a.ID, since, s.historyLimit)
	if err != nil {
		res.Error = err.Error()
		s.logger.Warn("读取执行历史失败", zap.String("automation_id", a.ID), zap.Error(err))
		return res
	}

	rec := Recommend(a.Schedule(), history, now)
	updates := map[string]any{}
	if rec.Confidence > s.applyThreshold {
		rec.Applied = true
		next := NextRunOrTomorrow(rec.Schedule, now)
		updates["ai_recommended_schedule"] = toJSON(rec)
		updates["next_ai_scheduled_run"] = next
		res.NextRun = &next
	} else if a.NextAIScheduledRun == nil {
		next := NextRunOrTomorrow(a.EffectiveSchedule(), now)
		updates["next_ai_scheduled_run"] = next
		res.NextRun = &next
	} else {
		res.NextRun = a.NextAIScheduledRun
	}
	res.Recommendation = rec
	res.Applied = rec.Applied
	metrics.RecommendationsTotal.WithLabelValues(fmt.Sprintf("%t", rec.Applied)).Inc()

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&Automation{}).Where("id = ?", a.ID).Updates(updates).Error; err != nil {
			res.Error = err.Error()
			s.logger.Error("保存排期建议失败", zap.String("automation_id", a.ID), zap.Error(err))
		}
	}
	return res
}

// 到期处理结果
const (
	OutcomeExecuted    = "executed"
	OutcomeRescheduled = "rescheduled"
	OutcomeScheduled   = "scheduled"
	OutcomeLocked      = "locked"
	OutcomeFailed      = "failed"
)

// PendingResult 单个自动化的处理结果
type PendingResult struct {
	AutomationID string     `json:"automation_id"`
	Name         string     `json:"name"`
	Outcome      string     `json:"outcome"`
	CommandID    string     `json:"command_id,omitempty"`
	Status       string     `json:"status,omitempty"`
	NextRun      *time.Time `json:"next_run,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// ExecutePending 执行下一次运行时间落在 [now-window, now+window] 内的自动化
// 早于窗口的只重新排期不执行；没有下一次运行时间的补上；单个自动化失败不影响其他
func (s *Scheduler) ExecutePending(ctx context.Context, userID string, now time.Time) ([]PendingResult, error) {
	var out []PendingResult
	err := metrics.RecordSchedulerRun("execute_pending", func() error {
		automations, err := s.enabled(ctx, userID)
		if err != nil {
			return err
		}
		for i := range automations {
			a := &automations[i]
			var res *PendingResult
			switch {
			case a.NextAIScheduledRun == nil:
				res = s.reschedule(ctx, a, now, OutcomeScheduled)
			case a.NextAIScheduledRun.Before(now.Add(-s.window)):
				res = s.reschedule(ctx, a, now, OutcomeRescheduled)
			case !a.NextAIScheduledRun.After(now.Add(s.window)):
				res = s.runOne(ctx, a, now)
			default:
				continue
			}
			metrics.AutomationTriggersTotal.WithLabelValues(res.Outcome).Inc()
			out = append(out, *res)
		}
		return nil
	})
	return out, err
}

func (s *Scheduler) reschedule(ctx context.Context, a *Automation, now time.Time, outcome string) *PendingResult {
	next := NextRunOrTomorrow(a.EffectiveSchedule(), now)
	res := &PendingResult{AutomationID: a.ID, Name: a.Name, Outcome: outcome, NextRun: &next}
	if err := s.db.WithContext(ctx).Model(&Automation{}).Where("id = ?", a.ID).
		Update("next_ai_scheduled_run", next).Error; err != nil {
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
	}
	return res
}

func (s *Scheduler) runOne(ctx context.Context, a *Automation, now time.Time) *PendingResult {
	res := &PendingResult{AutomationID: a.ID, Name: a.Name}
	key := fmt.Sprintf("%s:%d", a.ID, a.NextAIScheduledRun.Unix())
	acquired, err := s.locker.Acquire(ctx, key, s.lockTTL)
	if err != nil {
		// 锁服务不可用时不执行，避免重复触发
		res.Outcome = OutcomeFailed
		res.Error = fmt.Sprintf("acquire run lock: %v", err)
		return res
	}
	if !acquired {
		res.Outcome = OutcomeLocked
		return res
	}

	log := s.logger.With(zap.String("automation_id", a.ID), zap.String("user_id", a.UserID))
	res.Outcome = OutcomeExecuted
	actions, err := a.Actions()
	if err == nil {
		var (
			cmd     *command.Command
			outcome *execution.Outcome
		)
		cmd, outcome, err = s.runner.RunAutomation(ctx, a.UserID, a.ID, a.Name, actions, a.Targets())
		if cmd != nil {
			res.CommandID = cmd.ID
		}
		if outcome != nil {
			res.Status = string(outcome.Status)
		}
	}
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
		log.Warn("自动化执行失败", zap.Error(err))
	} else {
		log.Info("自动化执行完成", zap.String("command_id", res.CommandID), zap.String("status", res.Status))
	}

	// 无论成败都推进排期，避免启用的自动化失去下一次触发
	next := NextRunOrTomorrow(a.EffectiveSchedule(), now)
	res.NextRun = &next
	if err := s.db.WithContext(ctx).Model(&Automation{}).Where("id = ?", a.ID).Updates(map[string]any{
		"last_executed_at":      now,
		"trigger_count":         gorm.Expr("trigger_count + ?", 1),
		"next_ai_scheduled_run": next,
	}).Error; err != nil {
		log.Error("更新自动化排期失败", zap.Error(err))
		if res.Error == "" {
			res.Error = err.Error()
		}
	}
	return res
}

func (s *Scheduler) enabled(ctx context.Context, userID string) ([]Automation, error) {
	q := s.db.WithContext(ctx).Where("enabled = ?", true)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	var list []Automation
	err := q.Order("created_at ASC").Find(&list).Error
	return list, err
}
