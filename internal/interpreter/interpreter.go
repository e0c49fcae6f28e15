// Package interpreter 把自然语言命令解释为结构化动作计划
// 优先调用大模型，失败时退回正则规则
package interpreter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storepilot/internal/action"
	"storepilot/internal/ai"
	"storepilot/internal/cache"
	"storepilot/internal/config"
	"storepilot/internal/logger"
	"storepilot/internal/metrics"
	"storepilot/internal/risk"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrUnableToInterpret 模型与规则都无法解释命令
var ErrUnableToInterpret = errors.New("unable to interpret command")

// Request 解释请求
type Request struct {
	UserID          string
	Text            string
	PlatformTargets []string
	Context         action.CommandContext
}

// Interpreter 命令解释器
type Interpreter struct {
	client           ai.ModelClient
	clientErr        error
	library          *PromptLibrary
	systemPrompt     string
	minConfidence    float64
	maxContextTokens int
	temperature      float64
	maxTokens        int
	timeout          time.Duration
	tracer           trace.Tracer
	logger           *zap.Logger
}

// Option 解释器选项
type Option func(*Interpreter)

// WithMinConfidence 设置模型输出的最低置信度
func WithMinConfidence(v float64) Option {
	return func(i *Interpreter) {
		if v > 0 {
			i.minConfidence = v
		}
	}
}

// WithMaxContextTokens 设置上下文 token 预算，0 表示不限制
func WithMaxContextTokens(n int) Option {
	return func(i *Interpreter) { i.maxContextTokens = n }
}

// WithGeneration 设置生成参数
func WithGeneration(temperature float64, maxTokens int) Option {
	return func(i *Interpreter) {
		i.temperature = temperature
		if maxTokens > 0 {
			i.maxTokens = maxTokens
		}
	}
}

// WithTimeout 设置单次模型调用超时
func WithTimeout(d time.Duration) Option {
	return func(i *Interpreter) { i.timeout = d }
}

// WithUnavailableReason 记录模型客户端不可用的原因（通常是 *ai.ConfigurationError）
func WithUnavailableReason(err error) Option {
	return func(i *Interpreter) { i.clientErr = err }
}

// New 创建解释器；client 为 nil 时只使用规则解释
func New(client ai.ModelClient, opts ...Option) (*Interpreter, error) {
	lib, err := LoadPromptLibrary()
	if err != nil {
		return nil, err
	}
	if _, err := interpretationSchema(); err != nil {
		return nil, err
	}
	i := &Interpreter{
		client:        client,
		library:       lib,
		systemPrompt:  lib.SystemPrompt(),
		minConfidence: DefaultMinConfidence,
		temperature:   0.1,
		maxTokens:     2048,
		timeout:       60 * time.Second,
		tracer:        otel.Tracer("storepilot/internal/interpreter"),
		logger:        logger.Named("interpreter"),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.client == nil && i.clientErr == nil {
		i.clientErr = &ai.ConfigurationError{Feature: "AI command interpretation", Setting: "ai.anthropic.api_key or ai.openai.api_key"}
	}
	return i, nil
}

// NewFromConfig 按配置创建解释器；缺少 API Key 时降级为规则解释
// store 非 nil 且启用缓存时，模型响应经 ai.CachingClient 缓存
func NewFromConfig(cfg config.AIConfig, store cache.Store) (*Interpreter, error) {
	opts := []Option{
		WithMinConfidence(cfg.MinConfidence),
		WithMaxContextTokens(cfg.MaxContextTokens),
		WithGeneration(cfg.Temperature, cfg.MaxTokens),
	}
	if cfg.TimeoutSeconds > 0 {
		opts = append(opts, WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second))
	}

	client, err := ai.NewClient(cfg)
	if err != nil {
		var cfgErr *ai.ConfigurationError
		if !errors.As(err, &cfgErr) {
			return nil, err
		}
		logger.Named("interpreter").Warn("未配置模型 API Key，命令解释仅使用规则匹配", zap.String("setting", cfgErr.Setting))
		opts = append(opts, WithUnavailableReason(cfgErr))
	}
	if client != nil && store != nil && cfg.Cache.Enabled {
		client = ai.NewCachingClient(client, store, cfg.Cache.TTL, cfg.Cache.MaxTemperature, logger.Named("model_cache"))
	}
	return New(client, opts...)
}

// Close 释放模型客户端
func (i *Interpreter) Close() error {
	if i.client != nil {
		return i.client.Close()
	}
	return nil
}

// Interpret 解释命令
// 模型调用任何环节失败都会退回规则解释；规则也无法匹配时返回包装了原始原因的 ErrUnableToInterpret
func (i *Interpreter) Interpret(ctx context.Context, req Request) (*action.Interpretation, error) {
	ctx, span := i.tracer.Start(ctx, "Interpreter.Interpret")
	defer span.End()

	log := logger.WithContext(ctx).Named("interpreter")
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		err := &InterpretationError{Reason: "empty command"}
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %w", ErrUnableToInterpret, err)
	}

	interp, cause := i.interpretWithModel(ctx, &req)
	if cause != nil {
		span.RecordError(cause)
		log.Warn("模型解释失败，使用规则兜底", zap.Error(cause))
		interp = fallbackPlan(req.Text)
		if interp == nil {
			metrics.InterpretationsTotal.WithLabelValues(string(action.SourcePattern), "failed").Inc()
			span.SetStatus(codes.Error, "no interpretation")
			return nil, fmt.Errorf("%w: %w", ErrUnableToInterpret, cause)
		}
	}

	applyContext(interp, req.Context)
	risk.Apply(interp)

	outcome := "actions"
	if interp.NeedsClarification() {
		outcome = "clarification"
	}
	metrics.InterpretationsTotal.WithLabelValues(string(interp.Source), outcome).Inc()
	metrics.InterpretationRisk.WithLabelValues(string(interp.RiskLevel)).Inc()
	span.SetAttributes(
		attribute.String("interpretation.source", string(interp.Source)),
		attribute.String("interpretation.risk_level", string(interp.RiskLevel)),
		attribute.Float64("interpretation.confidence", interp.ConfidenceScore),
		attribute.Int("interpretation.actions", len(interp.Actions)),
	)
	log.Info("命令解释完成",
		zap.String("source", string(interp.Source)),
		zap.String("risk_level", string(interp.RiskLevel)),
		zap.Int("actions", len(interp.Actions)),
		zap.Bool("clarification", interp.NeedsClarification()),
	)
	return interp, nil
}

func (i *Interpreter) interpretWithModel(ctx context.Context, req *Request) (*action.Interpretation, error) {
	if i.client == nil {
		return nil, i.clientErr
	}

	ctx, span := i.tracer.Start(ctx, "Interpreter.ChatCompletion", trace.WithAttributes(attribute.String("model.provider", i.client.Name())))
	defer span.End()

	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	var resp *ai.ChatCompletionResponse
	err := metrics.RecordModelCall(i.client.Name(), func() (int, int, error) {
		var callErr error
		resp, callErr = i.client.ChatCompletion(ctx, &ai.ChatCompletionRequest{
			System:      i.systemPrompt,
			Messages:    []ai.Message{{Role: "user", Content: BuildUserMessage(req, i.maxContextTokens)}},
			Temperature: i.temperature,
			MaxTokens:   i.maxTokens,
		})
		if callErr != nil {
			return 0, 0, callErr
		}
		return resp.Usage.PromptTokens, resp.Usage.CompletionTokens, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "model call failed")
		return nil, fmt.Errorf("model call: %w", err)
	}

	raw, err := ExtractJSON(resp.Content)
	if err != nil {
		return nil, &InterpretationError{Reason: "model reply has no JSON object", Err: err}
	}
	return DecodeInterpretation(raw, i.minConfidence)
}

// fallbackPlan 规则解释，不计算风险
func fallbackPlan(text string) *action.Interpretation {
	for _, rule := range fallbackRules {
		m := rule.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		params := rule.build(m, text)
		if err := params.Validate(); err != nil {
			continue
		}
		return &action.Interpretation{
			Actions:         []action.Action{action.New(1, params)},
			Summary:         text,
			ConfidenceScore: FallbackConfidence,
			Source:          action.SourcePattern,
		}
	}
	return nil
}

// applyContext 用上下文中选中的商品补全 scope=selected 且未给出标识的目标
func applyContext(interp *action.Interpretation, cmdCtx action.CommandContext) {
	if len(cmdCtx.SelectedProductIDs) == 0 {
		return
	}
	for idx := range interp.Actions {
		fill(&interp.Actions[idx], cmdCtx.SelectedProductIDs)
	}
}

func fill(a *action.Action, ids []string) {
	if t := a.Target(); t != nil && t.Scope == action.ScopeSelected && !t.HasIdentifiers() {
		t.ProductIDs = append([]string(nil), ids...)
	}
	if cond, ok := a.Params.(*action.ConditionalParams); ok {
		fill(&cond.Then, ids)
	}
}
