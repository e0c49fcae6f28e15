package automation

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker 单次运行锁，防止多个实例重复触发同一次运行
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisLocker 基于 SETNX 的锁；锁随 TTL 自动过期，不主动释放
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisLocker 创建 Redis 锁
func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client, prefix: "storepilot:automation:run:"}
}

// Acquire 获取锁
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, l.prefix+key, time.Now().Unix(), ttl).Result()
}

type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string, time.Duration) (bool, error) { return true, nil }
