package platform

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedOperation 平台不支持该操作
	ErrUnsupportedOperation = errors.New("operation not supported by platform")
	// ErrUnknownPlatform 未知平台类型
	ErrUnknownPlatform = errors.New("unknown platform type")
	// ErrMissingCredentials 平台缺少访问凭证
	ErrMissingCredentials = errors.New("platform credentials missing")
	// ErrListTruncated 商品超过可读取的页数，不能保证覆盖全部商品
	ErrListTruncated = errors.New("product listing truncated")
)

// APIError 平台返回非 2xx 响应；Body 保留原始响应文本用于诊断
type APIError struct {
	Platform Type
	Method   string
	Endpoint string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: HTTP %d on %s %s: %s", e.Platform, e.Status, e.Method, e.Endpoint, e.Body)
}

// IsStatus 判断错误是否为指定状态码的 APIError
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

func unsupported(t Type, op string) error {
	return fmt.Errorf("%w: %s on %s", ErrUnsupportedOperation, op, t)
}
