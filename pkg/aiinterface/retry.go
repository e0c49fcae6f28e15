package aiinterface

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// MaxRetryBackoff 单次重试等待上限（含上游 Retry-After）
const MaxRetryBackoff = 30 * time.Second

// SleepFunc 可取消的等待，测试中可替换
type SleepFunc func(ctx context.Context, d time.Duration) error

// SleepContext 等待 d 或 ctx 结束
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ClassifyStatus 按上游 HTTP 状态码归类；529 等 5xx 视为服务端错误
func ClassifyStatus(code int) ErrorType {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrorTypeAuth
	case code == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case code == http.StatusBadRequest || code == http.StatusNotFound || code == http.StatusRequestEntityTooLarge:
		return ErrorTypeInvalidParams
	case code >= 500:
		return ErrorTypeServerError
	default:
		return ErrorTypeUnknown
	}
}

// Retry 执行 call，可重试的 ClientError 最多重试 maxRetries 次
// 等待时间按 1s、2s、4s 递增，上游给出 Retry-After 时以它为准
func Retry(ctx context.Context, maxRetries int, sleep SleepFunc, call func() error) error {
	if sleep == nil {
		sleep = SleepContext
	}
	for attempt := 0; ; attempt++ {
		err := call()
		if err == nil {
			return nil
		}
		var clientErr *ClientError
		if attempt >= maxRetries || !errors.As(err, &clientErr) || !clientErr.IsRetryable() {
			return err
		}
		wait := min(time.Duration(1<<uint(attempt))*time.Second, MaxRetryBackoff)
		if clientErr.RetryAfter > 0 {
			wait = min(clientErr.RetryAfter, MaxRetryBackoff)
		}
		if serr := sleep(ctx, wait); serr != nil {
			return &ClientError{Type: ErrorTypeNetwork, Message: "请求已取消", Err: serr}
		}
	}
}
