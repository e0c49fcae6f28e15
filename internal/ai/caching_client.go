package ai

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"storepilot/internal/cache"
	"storepilot/internal/metrics"

	"go.uber.org/zap"
)

// DefaultCacheMaxTemperature 温度高于该值时结果不稳定，不缓存
const DefaultCacheMaxTemperature = 0.3

// CachingClient 带响应缓存的客户端包装器
// 同一命令文本与上下文在低温度下会得到相同解释，命中时跳过模型调用
type CachingClient struct {
	client  ModelClient
	store   cache.Store
	ttl     time.Duration
	maxTemp float64
	logger  *zap.Logger
}

// NewCachingClient 创建缓存包装器；maxTemp 为 0 时使用 DefaultCacheMaxTemperature
func NewCachingClient(client ModelClient, store cache.Store, ttl time.Duration, maxTemp float64, logger *zap.Logger) *CachingClient {
	if maxTemp <= 0 {
		maxTemp = DefaultCacheMaxTemperature
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachingClient{client: client, store: store, ttl: ttl, maxTemp: maxTemp, logger: logger}
}

func (c *CachingClient) Name() string { return c.client.Name() }

func (c *CachingClient) Close() error { return c.client.Close() }

// ChatCompletion 先查缓存，未命中时调用底层客户端并写回
// 缓存读写失败只记录日志，不影响调用结果
func (c *CachingClient) ChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if req.Temperature > c.maxTemp {
		return c.client.ChatCompletion(ctx, req)
	}

	key := c.cacheKey(req)
	backend := c.store.Backend()

	raw, ok, err := c.store.Get(ctx, key)
	switch {
	case err != nil:
		metrics.ModelCacheTotal.WithLabelValues(backend, "error").Inc()
		c.logger.Warn("读取模型缓存失败", zap.String("backend", backend), zap.Error(err))
	case ok:
		var cached ChatCompletionResponse
		if err := json.Unmarshal(raw, &cached); err == nil {
			metrics.ModelCacheTotal.WithLabelValues(backend, "hit").Inc()
			c.logger.Debug("模型缓存命中", zap.String("provider", c.client.Name()))
			// 命中不消耗 Token
			cached.Usage = Usage{}
			return &cached, nil
		}
		metrics.ModelCacheTotal.WithLabelValues(backend, "error").Inc()
	default:
		metrics.ModelCacheTotal.WithLabelValues(backend, "miss").Inc()
	}

	resp, err := c.client.ChatCompletion(ctx, req)
	if err != nil || resp == nil {
		return resp, err
	}

	if payload, err := json.Marshal(resp); err == nil {
		if err := c.store.Set(ctx, key, payload, c.ttl); err != nil {
			c.logger.Warn("写入模型缓存失败", zap.String("backend", backend), zap.Error(err))
		}
	}
	return resp, nil
}

func (c *CachingClient) cacheKey(req *ChatCompletionRequest) string {
	parts := []string{
		c.client.Name(),
		req.System,
		strconv.FormatFloat(req.Temperature, 'f', -1, 64),
		strconv.Itoa(req.MaxTokens),
	}
	for _, m := range req.Messages {
		parts = append(parts, m.Role, m.Content)
	}
	return cache.Key(parts...)
}
