// Package execution 在用户已连接的平台上逐步执行动作计划
package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storepilot/internal/action"
	"storepilot/internal/logger"
	"storepilot/internal/metrics"
	"storepilot/internal/platform"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	// ErrNoConnectedPlatform 目标平台均不可用，不做任何执行
	ErrNoConnectedPlatform = errors.New("no connected platforms found for this command")
	// ErrNoActions 计划为空
	ErrNoActions = errors.New("no actions to execute")
)

// Request 执行请求
type Request struct {
	UserID          string
	CommandID       string
	AutomationID    string
	Actions         []action.Action
	PlatformTargets []string
}

// TargetResolver 解析用户的可用平台
type TargetResolver interface {
	ResolveTargets(ctx context.Context, userID string, targets []string) ([]platform.Platform, error)
}

type batcher interface {
	Batches() *platform.BatchIterator
}

// Engine 执行引擎
type Engine struct {
	platforms   TargetResolver
	requester   platform.Requester
	records     *Records
	concurrency int
	newBatches  func() *platform.BatchIterator
	now         func() time.Time
	tracer      trace.Tracer
	logger      *zap.Logger
}

// Option 引擎选项
type Option func(*Engine)

// WithPlatformConcurrency 多个平台并行执行，同一平台内的步骤仍严格有序
func WithPlatformConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithRecords 执行后写入 execution_records
func WithRecords(r *Records) Option {
	return func(e *Engine) { e.records = r }
}

// WithBatching 设置多条目动作的批大小与批间隔
func WithBatching(size int, interval time.Duration) Option {
	return func(e *Engine) {
		e.newBatches = func() *platform.BatchIterator { return platform.NewBatchIterator(size, interval) }
	}
}

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine 创建执行引擎
func NewEngine(platforms TargetResolver, requester platform.Requester, opts ...Option) *Engine {
	e := &Engine{
		platforms:   platforms,
		requester:   requester,
		concurrency: 1,
		newBatches:  func() *platform.BatchIterator { return platform.NewBatchIterator(10, 0) },
		now:         time.Now,
		tracer:      otel.Tracer("storepilot/internal/execution"),
		logger:      logger.Named("execution"),
	}
	if b, ok := requester.(batcher); ok {
		e.newBatches = b.Batches
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute 执行动作计划
// 每个 (平台, 动作) 都会产生一条结果；平台错误记录在结果里，执行继续
// 调用方取消请求不会中断已开始的执行
func (e *Engine) Execute(ctx context.Context, req Request) (*Outcome, error) {
	ctx = context.WithoutCancel(ctx)
	if req.CommandID != "" {
		ctx = logger.WithCommandID(ctx, req.CommandID)
	}
	start := e.now()
	ctx, span := e.tracer.Start(ctx, "Engine.Execute", trace.WithAttributes(
		attribute.String("command.id", req.CommandID),
		attribute.Int("actions", len(req.Actions)),
	))
	defer span.End()

	actions, platforms, err := e.prepare(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	perPlatform := make([][]Result, len(platforms))
	if e.concurrency <= 1 || len(platforms) == 1 {
		for i := range platforms {
			perPlatform[i] = e.runPlatform(ctx, &platforms[i], actions)
		}
	} else {
		sem := make(chan struct{}, e.concurrency)
		var wg sync.WaitGroup
		for i := range platforms {
			wg.Add(1)
			sem <- struct{}{}
			go func(i int) {
				defer wg.Done()
				defer func() { <-sem }()
				perPlatform[i] = e.runPlatform(ctx, &platforms[i], actions)
			}(i)
		}
		wg.Wait()
	}

	var results []Result
	for _, rs := range perPlatform {
		results = append(results, rs...)
	}
	outcome := &Outcome{Status: Fold(results), Results: results}

	if e.records != nil {
		if err := e.records.Save(ctx, toRecords(req, results, start)); err != nil {
			logger.FromContext(ctx, e.logger).Error("写入执行记录失败", zap.Error(err))
		}
	}

	metrics.ExecutionsTotal.WithLabelValues(string(outcome.Status)).Inc()
	metrics.ExecutionDuration.Observe(e.now().Sub(start).Seconds())
	span.SetAttributes(attribute.String("execution.status", string(outcome.Status)))
	logger.FromContext(ctx, e.logger).Info("命令执行完成",
		zap.String("status", string(outcome.Status)),
		zap.Int("platforms", len(platforms)),
		zap.Int("results", len(results)),
	)
	return outcome, nil
}

// prepare 校验计划并解析目标平台
func (e *Engine) prepare(ctx context.Context, req Request) ([]action.Action, []platform.Platform, error) {
	if len(req.Actions) == 0 {
		return nil, nil, ErrNoActions
	}
	actions := append([]action.Action(nil), req.Actions...)
	if err := action.ValidateActions(actions); err != nil {
		return nil, nil, fmt.Errorf("invalid action plan: %w", err)
	}
	platforms, err := e.platforms.ResolveTargets(ctx, req.UserID, req.PlatformTargets)
	if err != nil {
		return nil, nil, err
	}
	if len(platforms) == 0 {
		return nil, nil, ErrNoConnectedPlatform
	}
	return actions, platforms, nil
}

func (e *Engine) newRun(p *platform.Platform) (*platformRun, error) {
	cat, err := platform.CatalogFor(e.requester, p)
	if err != nil {
		return nil, err
	}
	return &platformRun{platform: p, catalog: cat, req: e.requester, batches: e.newBatches()}, nil
}

func newResult(p *platform.Platform, a *action.Action) Result {
	return Result{
		Platform:     p.Label(),
		PlatformID:   p.ID,
		PlatformType: p.PlatformType,
		ActionType:   a.Type,
		StepNumber:   a.StepNumber,
	}
}

// dependencyProducts 返回依赖步骤的商品；依赖不可用时返回跳过原因
func dependencyProducts(a *action.Action, done map[int]*Result) ([]platform.Product, string) {
	dep, ok := a.DependsOn()
	if !ok {
		return nil, ""
	}
	prev, found := done[dep]
	switch {
	case !found:
		return nil, fmt.Sprintf("skipped: dependency step %d did not run", dep)
	case prev.Skipped:
		return nil, fmt.Sprintf("skipped: dependency step %d was skipped", dep)
	case !prev.Success:
		return nil, fmt.Sprintf("skipped: dependency step %d failed", dep)
	case len(prev.products) == 0:
		return nil, fmt.Sprintf("skipped: dependency step %d produced no products", dep)
	}
	return prev.products, ""
}

func (e *Engine) runPlatform(ctx context.Context, p *platform.Platform, actions []action.Action) []Result {
	ctx, span := e.tracer.Start(ctx, "Engine.runPlatform", trace.WithAttributes(
		attribute.String("platform.id", p.ID),
		attribute.String("platform.type", string(p.PlatformType)),
	))
	defer span.End()

	results := make([]Result, 0, len(actions))
	run, runErr := e.newRun(p)
	done := make(map[int]*Result, len(actions))

	for i := range actions {
		a := &actions[i]
		res := newResult(p, a)
		switch {
		case runErr != nil:
			res.Error = runErr.Error()
		default:
			deps, skip := dependencyProducts(a, done)
			if skip != "" {
				res.Skipped = true
				res.Error = skip
			} else {
				e.runAction(ctx, run, a, deps, &res)
			}
		}
		metrics.ActionResultsTotal.WithLabelValues(string(p.PlatformType), string(a.Type), res.outcome()).Inc()
		if !res.Success {
			logger.FromContext(ctx, e.logger).Warn("动作执行失败",
				zap.String("platform_id", p.ID),
				zap.String("action_type", string(a.Type)),
				zap.Int("step", a.StepNumber),
				zap.String("error", res.Error),
			)
		}
		results = append(results, res)
		done[a.StepNumber] = &results[len(results)-1]
	}
	return results
}

// runAction 执行单个动作，错误写入结果而不是返回
func (e *Engine) runAction(ctx context.Context, run *platformRun, a *action.Action, deps []platform.Product, res *Result) {
	pl, err := planFor(ctx, run, a, deps)
	if err != nil {
		res.Error = err.Error()
		return
	}
	if pl.single == nil && len(pl.changes) == 0 && !pl.allowEmpty {
		res.Error = errNoProducts.Error()
		return
	}

	res.Result = pl.result
	var touched []platform.Product
	seen := map[string]bool{}
	err = platform.Each(ctx, run.batches, pl.changes, func(c change) {
		item := c.item()
		switch {
		case c.err != nil:
			item.Error = c.err.Error()
		case c.apply == nil:
			item.Error = "no operation"
		default:
			if err := c.apply(ctx); err != nil {
				item.Error = err.Error()
			} else {
				item.Success = true
			}
		}
		if item.Success && !seen[c.product.ID] {
			seen[c.product.ID] = true
			touched = append(touched, c.product)
		}
		res.Items = append(res.Items, item)
	})
	res.summarize()
	if err != nil {
		res.Error = err.Error()
		return
	}

	if pl.single != nil {
		out, err := pl.single(ctx)
		if err != nil {
			res.Error = err.Error()
			return
		}
		res.Result = out
	}

	if len(pl.changes) == 0 {
		res.products = pl.products
	} else {
		res.products = touched
	}
	res.Success = res.Summary.Failed == 0
	if !res.Success {
		res.Error = fmt.Sprintf("%d of %d items failed: %s", res.Summary.Failed, res.Summary.Total, firstItemError(res.Items))
	}
}

func firstItemError(items []ItemResult) string {
	for _, item := range items {
		if !item.Success && item.Error != "" {
			return item.Error
		}
	}
	return ""
}
