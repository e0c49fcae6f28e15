package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storepilot_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storepilot_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// APIResponseSize API 响应体大小（字节）
	APIResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storepilot_api_response_size_bytes",
			Help:    "API 响应体大小分布",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000},
		},
		[]string{"method", "path"},
	)

	// APIRequestsInFlight 正在处理的请求数
	APIRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storepilot_api_requests_in_flight",
			Help: "正在处理的 API 请求数",
		},
	)
)

// 命令解释指标
var (
	// InterpretationsTotal 命令解释次数
	InterpretationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storepilot_interpretations_total",
			Help: "命令解释总数",
		},
		[]string{"source", "outcome"}, // source: ai, pattern; outcome: actions, clarification, failed
	)

	// InterpretationRisk 解释结果的风险等级分布
	InterpretationRisk = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storepilot_interpretation_risk_total",
			Help: "按风险等级统计的解释结果",
		},
		[]string{"risk_level"},
	)

	// ModelCallsTotal 模型调用总数
	ModelCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storepilot_model_calls_total",
			Help: "模型调用总数",
		},
		[]string{"provider", "status"},
	)

	// ModelCallDuration 模型调用耗时（秒）
	ModelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storepilot_model_call_duration_seconds",
			Help:    "模型调用耗时分布",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	// ModelCallTokens 模型调用 Token 消耗
	ModelCallTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storepilot_model_call_tokens_total",
			Help: "模型调用 Token 消耗总数",
		},
		[]string{"provider", "type"}, // type: prompt, completion
	)

	// ModelCacheTotal 模型响应缓存查询
	ModelCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storepilot_model_cache_total",
			Help: "模型响应缓存命中与未命中次数",
		},
		[]string{"backend", "result"}, // result: hit, miss, error
	)
)

// 执行指标
var (
	// ExecutionsTotal 命令执行次数（按最终状态）
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storepilot_executions_total",
			Help: "命令执行总数",
		},
		[]string{"status"}, // completed, failed, partially_completed
	)

	// ExecutionDuration 命令执行耗时（秒）
	ExecutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storepilot_execution_duration_seconds",
			Help:    "命令执行耗时分布",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	// ActionResultsTotal 每个 (平台, 动作) 的执行结果
	ActionResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storepilot_action_results_total",
			Help: "平台动作执行结果总数",
		},
		[]string{"platform_type", "action_type", "outcome"}, // outcome: success, failed, skipped
	)

	// PlatformRequestsTotal 平台 API 请求次数
	PlatformRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storepilot_platform_requests_total",
			Help: "平台 API 请求总数",
		},
		[]string{"platform_type", "method", "status"},
	)

	// PlatformRequestDuration 平台 API 请求耗时（秒）
	PlatformRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storepilot_platform_request_duration_seconds",
			Help:    "平台 API 请求耗时分布",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"platform_type"},
	)
)

// 调度指标
var (
	// SchedulerRunsTotal 调度任务执行次数
	SchedulerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storepilot_scheduler_runs_total",
			Help: "调度任务执行总数",
		},
		[]string{"mode", "status"}, // mode: analyze, execute_pending
	)

	// AutomationTriggersTotal 自动化触发次数
	AutomationTriggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storepilot_automation_triggers_total",
			Help: "自动化触发结果总数",
		},
		[]string{"outcome"}, // executed, rescheduled, scheduled, locked, failed
	)

	// RecommendationsTotal 排期推荐次数
	RecommendationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storepilot_schedule_recommendations_total",
			Help: "排期推荐总数",
		},
		[]string{"applied"},
	)

	// WorkerTasksTotal 异步任务处理次数
	WorkerTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storepilot_worker_tasks_total",
			Help: "异步任务处理总数",
		},
		[]string{"type", "status"},
	)

	// WorkerTaskDuration 异步任务耗时（秒）
	WorkerTaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storepilot_worker_task_duration_seconds",
			Help:    "异步任务耗时分布",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"type"},
	)
)

// 系统指标
var (
	// BuildInfo 构建信息
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storepilot_build_info",
			Help: "StorePilot 构建信息",
		},
		[]string{"version", "go_version", "commit"},
	)
)

// RecordBuildInfo 记录构建信息
func RecordBuildInfo(version, goVersion, commit string) {
	BuildInfo.WithLabelValues(version, goVersion, commit).Set(1)
}
