package metrics

import (
	"database/sql"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// RegisterDBStats 注册连接池指标（storepilot 库的 go_sql_* 系列），抓取时读取 sql.DBStats
// 重复注册视为成功，测试中多次构建应用容器时不会报错
func RegisterDBStats(reg prometheus.Registerer, db *sql.DB) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	err := reg.Register(collectors.NewDBStatsCollector(db, "storepilot"))
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		return nil
	}
	return err
}

// RecordModelCall 记录模型调用耗时、token 与结果
func RecordModelCall(provider string, fn func() (int, int, error)) error {
	start := time.Now()
	promptTokens, completionTokens, err := fn()
	ModelCallDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())

	if promptTokens > 0 {
		ModelCallTokens.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		ModelCallTokens.WithLabelValues(provider, "completion").Add(float64(completionTokens))
	}
	ModelCallsTotal.WithLabelValues(provider, statusLabel(err)).Inc()
	return err
}

// RecordSchedulerRun 记录调度任务执行
func RecordSchedulerRun(mode string, fn func() error) error {
	err := fn()
	SchedulerRunsTotal.WithLabelValues(mode, statusLabel(err)).Inc()
	return err
}

func statusLabel(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}
