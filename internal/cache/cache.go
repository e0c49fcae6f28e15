// Package cache 模型响应缓存
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Store 缓存后端
type Store interface {
	// Get 未命中时返回 ok=false 且 err=nil
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Backend 后端名称，用于指标标签
	Backend() string
}

// Key 对各部分做 SHA-256 生成缓存键，部分之间以 0 字节分隔
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
