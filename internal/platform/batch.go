package platform

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// BatchIterator 按批大小切分条目，批与批之间通过令牌桶限速
type BatchIterator struct {
	size    int
	limiter *rate.Limiter
}

// NewBatchIterator 创建批量迭代器；interval <= 0 时不限速
func NewBatchIterator(size int, interval time.Duration) *BatchIterator {
	if size <= 0 {
		size = 10
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &BatchIterator{size: size, limiter: rate.NewLimiter(limit, 1)}
}

// Size 批大小
func (b *BatchIterator) Size() int { return b.size }

// Wait 等待下一个令牌，用于翻页等非切片场景
func (b *BatchIterator) Wait(ctx context.Context) error {
	return b.limiter.Wait(ctx)
}

// EachBatch 依次处理每一批；等待被取消时返回 ctx 错误，已处理的批不回滚
func EachBatch[T any](ctx context.Context, b *BatchIterator, items []T, fn func(batch []T)) error {
	for start := 0; start < len(items); start += b.size {
		if err := b.limiter.Wait(ctx); err != nil {
			return err
		}
		end := start + b.size
		if end > len(items) {
			end = len(items)
		}
		fn(items[start:end])
	}
	return nil
}

// Each 逐个处理条目，批边界处限速
func Each[T any](ctx context.Context, b *BatchIterator, items []T, fn func(item T)) error {
	return EachBatch(ctx, b, items, func(batch []T) {
		for _, item := range batch {
			fn(item)
		}
	})
}
