// Package worker 异步任务：自动化调度的 asynq 消费端与周期触发
package worker

import (
	"context"
	"errors"
	"time"

	"storepilot/internal/metrics"
	"storepilot/internal/worker/handlers"
	"storepilot/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Server 调度任务消费者
type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *zap.Logger
}

// NewServer 创建消费者；调度任务按全量用户扫描，低并发即可
func NewServer(redisOpt asynq.RedisConnOpt, scheduler handlers.SchedulerRunner, logger *zap.Logger) *Server {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 2,
		Queues: map[string]int{
			tasks.QueueScheduler: 6,
			"default":            1,
		},
		Logger:          logger.Sugar(),
		ShutdownTimeout: 30 * time.Second,
		// SkipRetry 的载荷错误不计入失败统计
		IsFailure: func(err error) bool { return !errors.Is(err, asynq.SkipRetry) },
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			logger.Error("调度任务执行失败",
				zap.String("type", task.Type()),
				zap.Int("retried", retried),
				zap.Error(err),
			)
		}),
	})

	mux := asynq.NewServeMux()
	mux.Use(instrument)

	h := handlers.NewSchedulerHandler(scheduler, logger)
	mux.HandleFunc(tasks.TypeExecutePending, h.HandleExecutePending)
	mux.HandleFunc(tasks.TypeAnalyze, h.HandleAnalyze)

	return &Server{server: srv, mux: mux, logger: logger}
}

// instrument 记录任务耗时与结果
func instrument(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		start := time.Now()
		err := next.ProcessTask(ctx, t)
		status := "success"
		if err != nil {
			status = "failed"
		}
		metrics.WorkerTasksTotal.WithLabelValues(t.Type(), status).Inc()
		metrics.WorkerTaskDuration.WithLabelValues(t.Type()).Observe(time.Since(start).Seconds())
		return err
	})
}

// Start 非阻塞启动
func (s *Server) Start() error {
	s.logger.Info("调度 Worker 启动")
	return s.server.Start(s.mux)
}

// Shutdown 等待进行中的任务结束后停止
func (s *Server) Shutdown() {
	s.logger.Info("调度 Worker 停止中...")
	s.server.Shutdown()
}
