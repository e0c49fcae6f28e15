package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storepilot/internal/worker/tasks"

	"github.com/hibiken/asynq"
)

// Client 任务队列客户端接口
type Client interface {
	EnqueueScheduler(ctx context.Context, mode, userID string) (string, error)
	Close() error
}

type asynqClient struct {
	client *asynq.Client
}

// NewClient 创建任务队列客户端
func NewClient(redisOpt asynq.RedisConnOpt) Client {
	return &asynqClient{client: asynq.NewClient(redisOpt)}
}

// EnqueueScheduler 投递一次调度任务，返回任务 ID
func (c *asynqClient) EnqueueScheduler(ctx context.Context, mode, userID string) (string, error) {
	taskType, err := tasks.TypeForMode(mode)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(tasks.SchedulerPayload{UserID: userID})
	if err != nil {
		return "", fmt.Errorf("marshal payload failed: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, asynq.NewTask(taskType, payload),
		asynq.Queue(tasks.QueueScheduler),
		asynq.MaxRetry(0),
		asynq.Timeout(10*time.Minute),
	)
	if err != nil {
		return "", fmt.Errorf("enqueue task failed: %w", err)
	}
	return info.ID, nil
}

func (c *asynqClient) Close() error {
	return c.client.Close()
}
