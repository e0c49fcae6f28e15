// Package command 管理命令的生命周期：解释、澄清、确认、执行与撤销
package command

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"storepilot/internal/action"
	"storepilot/internal/execution"
	"storepilot/internal/interpreter"
	"storepilot/internal/logger"
	"storepilot/internal/risk"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotFound 命令不存在或不属于当前用户
	ErrNotFound = errors.New("command not found")
	// ErrInvalidTransition 当前状态不允许该操作
	ErrInvalidTransition = errors.New("invalid command status transition")
	// ErrCommandImmutable 命令已处于终态
	ErrCommandImmutable = errors.New("command is in a terminal state and cannot be modified")
	// ErrConfirmationRequired 中高风险计划必须先解释并确认
	ErrConfirmationRequired = errors.New("command requires confirmation before execution")
	// ErrPreviewRequired 不可撤销的计划必须先预览并确认
	ErrPreviewRequired = errors.New("command cannot be undone automatically; preview and confirm it before execution")
	// ErrNotExecutable 解释结果没有可执行的动作
	ErrNotExecutable = errors.New("command has no executable actions")
	// ErrTooManyInFlight 同时执行中的命令过多
	ErrTooManyInFlight = errors.New("too many commands are executing, try again later")
)

// Interpreter 命令解释
type Interpreter interface {
	Interpret(ctx context.Context, req interpreter.Request) (*action.Interpretation, error)
}

// Executor 动作执行与预览
type Executor interface {
	Execute(ctx context.Context, req execution.Request) (*execution.Outcome, error)
	Preview(ctx context.Context, req execution.Request) (*execution.Preview, error)
}

// Service 命令服务
type Service struct {
	db          *gorm.DB
	interp      Interpreter
	exec        Executor
	maxInFlight int
	dedupWindow time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

// NewService 创建服务
func NewService(db *gorm.DB, interp Interpreter, exec Executor) *Service {
	return &Service{
		db:          db,
		interp:      interp,
		exec:        exec,
		maxInFlight: 10,
		dedupWindow: 60 * time.Second,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger.Named("command"),
	}
}

// AutoMigrate 确保表结构存在
func (s *Service) AutoMigrate() error {
	return s.db.AutoMigrate(&Command{})
}

// InterpretInput 解释输入
type InterpretInput struct {
	UserID          string
	Text            string
	PlatformTargets []string
	Context         action.CommandContext
}

// Interpret 创建命令并解释
// 解释失败时命令记为 failed 并返回错误；重复提交在去重窗口内返回已有命令
func (s *Service) Interpret(ctx context.Context, in InterpretInput) (*Command, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, &action.ParamError{Field: "command_text", Reason: "is required"}
	}

	dedupKey := computeDedupKey(in.UserID, text, in.PlatformTargets, in.Context)
	if existing := s.findRecentDuplicate(ctx, in.UserID, dedupKey); existing != nil {
		return existing, nil
	}

	cmd := &Command{
		UserID:          in.UserID,
		Text:            text,
		PlatformTargets: mustJSON(nonNil(in.PlatformTargets)),
		Context:         mustJSON(in.Context),
		Status:          StatusPending,
		Source:          SourceUser,
		DedupKey:        dedupKey,
	}
	if err := s.db.WithContext(ctx).Create(cmd).Error; err != nil {
		return nil, err
	}
	return s.interpretInto(ctx, cmd, in.Context)
}

func (s *Service) interpretInto(ctx context.Context, cmd *Command, cmdCtx action.CommandContext) (*Command, error) {
	ctx = logger.WithCommandID(ctx, cmd.ID)
	interp, err := s.interp.Interpret(ctx, interpreter.Request{
		UserID:          cmd.UserID,
		Text:            cmd.Text,
		PlatformTargets: cmd.Targets(),
		Context:         cmdCtx,
	})
	if err != nil {
		if terr := s.transition(ctx, cmd, StatusFailed, map[string]any{"error_message": err.Error()}); terr != nil {
			logger.FromContext(ctx, s.logger).Error("记录解释失败状态失败", zap.Error(terr))
		}
		return cmd, err
	}
	if err := s.saveInterpretation(ctx, cmd, interp, cmdCtx); err != nil {
		return nil, err
	}
	return cmd, nil
}

// saveInterpretation 需要澄清时进入 awaiting_clarification，否则进入 interpreted
func (s *Service) saveInterpretation(ctx context.Context, cmd *Command, interp *action.Interpretation, cmdCtx action.CommandContext) error {
	next := StatusInterpreted
	if interp.NeedsClarification() {
		next = StatusAwaitingClarification
	}
	return s.transition(ctx, cmd, next, map[string]any{
		"interpretation": mustJSON(interp),
		"risk_level":     string(interp.RiskLevel),
		"context":        mustJSON(cmdCtx),
	})
}

// Clarify 追加澄清回答并重新解释
func (s *Service) Clarify(ctx context.Context, userID, id string, answers []action.ClarificationTurn) (*Command, error) {
	cmd, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if cmd.Status != StatusAwaitingClarification {
		return nil, s.stateError(cmd.Status)
	}
	if len(answers) == 0 {
		return nil, &action.ParamError{Field: "answers", Reason: "must not be empty"}
	}
	cmdCtx := cmd.CommandContext().WithAnswers(answers...)
	return s.interpretInto(ctx, cmd, cmdCtx)
}

// Confirm 用户确认执行
func (s *Service) Confirm(ctx context.Context, userID, id string) (*Command, error) {
	cmd, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if cmd.Status != StatusInterpreted {
		return nil, s.stateError(cmd.Status)
	}
	interp, err := cmd.ParsedInterpretation()
	if err != nil {
		return nil, err
	}
	if !interp.Executable() {
		return nil, ErrNotExecutable
	}
	if err := s.transition(ctx, cmd, StatusConfirmed, nil); err != nil {
		return nil, err
	}
	return cmd, nil
}

// Preview 对已解释的命令做试运行
func (s *Service) Preview(ctx context.Context, userID, id string) (*execution.Preview, error) {
	cmd, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	interp, err := cmd.ParsedInterpretation()
	if err != nil {
		return nil, err
	}
	if !interp.Executable() {
		return nil, ErrNotExecutable
	}
	return s.exec.Preview(ctx, execution.Request{
		UserID:          userID,
		CommandID:       cmd.ID,
		Actions:         interp.Actions,
		PlatformTargets: cmd.Targets(),
	})
}

// ExecuteInput 执行输入；CommandID 为空时直接执行给定动作
type ExecuteInput struct {
	UserID          string
	CommandID       string
	Actions         []action.Action
	PlatformTargets []string
}

// Execute 执行命令
// 指定命令时要求其已解释（需要确认或不可撤销的必须先确认）；
// 未指定命令时对动作计划评分，中高风险拒绝执行，不可撤销的计划保存为待确认命令
func (s *Service) Execute(ctx context.Context, in ExecuteInput) (*Command, *execution.Outcome, error) {
	if err := s.enforceInFlightLimit(ctx, in.UserID); err != nil {
		return nil, nil, err
	}

	var (
		cmd    *Command
		interp *action.Interpretation
		err    error
	)
	if in.CommandID != "" {
		cmd, err = s.Get(ctx, in.UserID, in.CommandID)
		if err != nil {
			return nil, nil, err
		}
		switch cmd.Status {
		case StatusConfirmed, StatusInterpreted:
		default:
			return nil, nil, s.stateError(cmd.Status)
		}
		interp, err = cmd.ParsedInterpretation()
		if err != nil {
			return nil, nil, err
		}
		if !interp.Executable() {
			return nil, nil, ErrNotExecutable
		}
		if cmd.Status == StatusInterpreted {
			if interp.RequiresConfirmation {
				return cmd, nil, ErrConfirmationRequired
			}
			if interp.RequiresPreview {
				return cmd, nil, ErrPreviewRequired
			}
		}
	} else {
		interp, err = directInterpretation(in.Actions)
		if err != nil {
			return nil, nil, err
		}
		if interp.RequiresConfirmation {
			return nil, nil, ErrConfirmationRequired
		}
		cmd = &Command{
			UserID:          in.UserID,
			Text:            "direct execution: " + describeActions(interp.Actions),
			PlatformTargets: mustJSON(nonNil(in.PlatformTargets)),
			Status:          StatusInterpreted,
			Interpretation:  mustJSON(interp),
			RiskLevel:       string(interp.RiskLevel),
			Source:          SourceUser,
		}
		if err := s.db.WithContext(ctx).Create(cmd).Error; err != nil {
			return nil, nil, err
		}
		// 保留为 interpreted，调用方按 ID 预览并确认后再执行
		if interp.RequiresPreview {
			return cmd, nil, ErrPreviewRequired
		}
	}

	outcome, err := s.run(ctx, cmd, interp.Actions, "")
	return cmd, outcome, err
}

// RunAutomation 为自动化创建命令并立即执行；自动化计划视为已确认
func (s *Service) RunAutomation(ctx context.Context, userID, automationID, name string, actions []action.Action, targets []string) (*Command, *execution.Outcome, error) {
	interp := &action.Interpretation{Actions: actions, ConfidenceScore: 1, Summary: name}
	if err := action.ValidateActions(interp.Actions); err != nil {
		return nil, nil, fmt.Errorf("automation %s has an invalid plan: %w", automationID, err)
	}
	risk.Apply(interp)
	if interp.NeedsClarification() {
		return nil, nil, fmt.Errorf("automation %s: %w: %s", automationID, ErrNotExecutable, interp.ClarificationNeeded.Reason)
	}
	id := automationID
	cmd := &Command{
		UserID:          userID,
		Text:            "automation: " + name,
		PlatformTargets: mustJSON(nonNil(targets)),
		Status:          StatusConfirmed,
		Interpretation:  mustJSON(interp),
		RiskLevel:       string(interp.RiskLevel),
		AutomationID:    &id,
		Source:          SourceAutomation,
	}
	if err := s.db.WithContext(ctx).Create(cmd).Error; err != nil {
		return nil, nil, err
	}
	outcome, err := s.run(ctx, cmd, interp.Actions, automationID)
	return cmd, outcome, err
}

// run executing -> 终态；执行前失败（如没有可用平台）记为 failed
func (s *Service) run(ctx context.Context, cmd *Command, actions []action.Action, automationID string) (*execution.Outcome, error) {
	ctx = logger.WithCommandID(ctx, cmd.ID)
	if err := s.transition(ctx, cmd, StatusExecuting, nil); err != nil {
		return nil, err
	}
	outcome, err := s.exec.Execute(ctx, execution.Request{
		UserID:          cmd.UserID,
		CommandID:       cmd.ID,
		AutomationID:    automationID,
		Actions:         actions,
		PlatformTargets: cmd.Targets(),
	})
	ctx = context.WithoutCancel(ctx)
	now := s.now()
	if err != nil {
		if terr := s.transition(ctx, cmd, StatusFailed, map[string]any{"error_message": err.Error(), "completed_at": now}); terr != nil {
			logger.FromContext(ctx, s.logger).Error("记录执行失败状态失败", zap.Error(terr))
		}
		return nil, err
	}
	updates := map[string]any{
		"results":      mustJSON(outcome.Results),
		"completed_at": now,
	}
	if err := s.transition(ctx, cmd, Status(outcome.Status), updates); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// Undo 根据原命令记录的 before 值生成新的撤销命令（状态 interpreted），原命令不变
func (s *Service) Undo(ctx context.Context, userID, id string) (*Command, error) {
	orig, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if orig.Status != StatusCompleted && orig.Status != StatusPartiallyCompleted {
		return nil, fmt.Errorf("%w: only completed commands can be undone", ErrInvalidTransition)
	}
	results, err := orig.ParsedResults()
	if err != nil {
		return nil, err
	}
	plan, err := execution.BuildUndo(results)
	if err != nil {
		return nil, err
	}

	interp := &action.Interpretation{
		Actions:         plan.Actions,
		Summary:         "Undo: " + orig.Text,
		ConfidenceScore: 1,
	}
	risk.Apply(interp)
	interp.Source = action.SourceUndo
	interp.Warnings = append(interp.Warnings, plan.Warnings...)

	origID := orig.ID
	cmd := &Command{
		UserID:          userID,
		Text:            "undo: " + orig.Text,
		PlatformTargets: mustJSON(plan.PlatformTargets),
		Status:          StatusInterpreted,
		Interpretation:  mustJSON(interp),
		RiskLevel:       string(interp.RiskLevel),
		UndoOf:          &origID,
		Source:          SourceUndo,
	}
	if err := s.db.WithContext(ctx).Create(cmd).Error; err != nil {
		return nil, err
	}
	return cmd, nil
}

// Get 查询用户的命令
func (s *Service) Get(ctx context.Context, userID, id string) (*Command, error) {
	var cmd Command
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&cmd).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &cmd, nil
}

// ListParams 列表过滤
type ListParams struct {
	Status   string
	Page     int
	PageSize int
}

// List 返回用户的命令列表（按创建时间倒序）
func (s *Service) List(ctx context.Context, userID string, params ListParams) ([]Command, int64, error) {
	if userID == "" {
		return nil, 0, errors.New("userID required")
	}
	pageSize := params.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	page := params.Page
	if page < 1 {
		page = 1
	}
	query := s.db.WithContext(ctx).Model(&Command{}).Where("user_id = ?", userID)
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var items []Command
	if err := query.Order("created_at DESC").Limit(pageSize).Offset((page - 1) * pageSize).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// transition 条件更新：只有数据库中的状态仍为 cmd.Status 时才写入
func (s *Service) transition(ctx context.Context, cmd *Command, to Status, updates map[string]any) error {
	if cmd.Status.Terminal() {
		return ErrCommandImmutable
	}
	if !cmd.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cmd.Status, to)
	}
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to
	updates["updated_at"] = s.now()

	res := s.db.WithContext(ctx).Model(&Command{}).
		Where("id = ? AND status = ?", cmd.ID, cmd.Status).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: command %s changed concurrently", ErrInvalidTransition, cmd.ID)
	}
	return s.db.WithContext(ctx).First(cmd, "id = ?", cmd.ID).Error
}

func (s *Service) stateError(status Status) error {
	if status.Terminal() {
		return ErrCommandImmutable
	}
	return fmt.Errorf("%w: command is %s", ErrInvalidTransition, status)
}

func (s *Service) enforceInFlightLimit(ctx context.Context, userID string) error {
	var count int64
	cutoff := s.now().Add(-5 * time.Minute)
	if err := s.db.WithContext(ctx).
		Model(&Command{}).
		Where("user_id = ? AND status = ? AND updated_at >= ?", userID, StatusExecuting, cutoff).
		Count(&count).Error; err != nil {
		return fmt.Errorf("统计执行中命令失败: %w", err)
	}
	if int(count) >= s.maxInFlight {
		return ErrTooManyInFlight
	}
	return nil
}

func (s *Service) findRecentDuplicate(ctx context.Context, userID, dedupKey string) *Command {
	var cmd Command
	cutoff := s.now().Add(-s.dedupWindow)
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND dedup_key = ? AND status IN ? AND created_at >= ?",
			userID, dedupKey, []Status{StatusInterpreted, StatusAwaitingClarification}, cutoff).
		Order("created_at DESC").
		First(&cmd).Error; err == nil {
		return &cmd
	}
	return nil
}

func computeDedupKey(userID, text string, targets []string, cmdCtx action.CommandContext) string {
	base := userID + "|" + strings.ToLower(text) + "|" + strings.Join(targets, ",") + "|" + string(mustJSON(cmdCtx))
	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:])
}

// directInterpretation 对直接提交的动作计划做校验与风险评估
func directInterpretation(actions []action.Action) (*action.Interpretation, error) {
	if len(actions) == 0 {
		return nil, ErrNotExecutable
	}
	interp := &action.Interpretation{Actions: append([]action.Action(nil), actions...), ConfidenceScore: 1}
	if err := action.ValidateActions(interp.Actions); err != nil {
		return nil, fmt.Errorf("invalid action plan: %w", err)
	}
	risk.Apply(interp)
	if interp.NeedsClarification() {
		return nil, fmt.Errorf("%w: %s", ErrNotExecutable, interp.ClarificationNeeded.Reason)
	}
	return interp, nil
}

func describeActions(actions []action.Action) string {
	parts := make([]string, 0, len(actions))
	for _, a := range actions {
		parts = append(parts, string(a.Type))
	}
	return strings.Join(parts, ", ")
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
