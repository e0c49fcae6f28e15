package worker

import (
	"fmt"
	"time"

	"storepilot/internal/config"
	"storepilot/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Periodic 按 cron 表达式周期性投递调度任务
type Periodic struct {
	scheduler *asynq.Scheduler
	logger    *zap.Logger
}

// NewPeriodic 注册 execute_pending 与 analyze 两个周期任务
func NewPeriodic(redisOpt asynq.RedisConnOpt, cfg config.SchedulerConfig, logger *zap.Logger) (*Periodic, error) {
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				logger.Warn("周期任务投递失败", zap.Error(err))
			}
		},
	})

	entries := []struct {
		cron     string
		taskType string
	}{
		{cfg.ExecutePendingCron, tasks.TypeExecutePending},
		{cfg.AnalyzeCron, tasks.TypeAnalyze},
	}
	for _, e := range entries {
		if e.cron == "" {
			continue
		}
		// 同一周期内只保留一个待执行任务
		unique := time.Minute
		if e.taskType == tasks.TypeExecutePending && cfg.Window > 0 {
			unique = cfg.Window
		}
		id, err := scheduler.Register(e.cron, asynq.NewTask(e.taskType, nil),
			asynq.Queue(tasks.QueueScheduler),
			asynq.MaxRetry(0),
			asynq.Unique(unique),
		)
		if err != nil {
			return nil, fmt.Errorf("注册周期任务 %s 失败: %w", e.taskType, err)
		}
		logger.Info("周期任务已注册", zap.String("type", e.taskType), zap.String("cron", e.cron), zap.String("entry_id", id))
	}

	return &Periodic{scheduler: scheduler, logger: logger}, nil
}

// Start 非阻塞启动
func (p *Periodic) Start() error {
	return p.scheduler.Start()
}

// Shutdown 停止周期调度
func (p *Periodic) Shutdown() {
	p.logger.Info("周期调度停止中...")
	p.scheduler.Shutdown()
}
