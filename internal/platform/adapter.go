package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storepilot/internal/config"
	"storepilot/internal/logger"
	"storepilot/internal/metrics"
	"storepilot/pkg/httputil"

	"go.uber.org/zap"
)

const (
	defaultShopifyAPIVersion = "2024-01"
	etsyBaseURL              = "https://openapi.etsy.com/v3/application"
	faireBaseURL             = "https://www.faire.com/external-api/v2"
)

// Requester 平台请求接口，执行引擎与测试替身都依赖它
type Requester interface {
	Request(ctx context.Context, p *Platform, method, endpoint string, body any) (json.RawMessage, error)
}

// Adapter 统一的平台请求封装：注入鉴权头、序列化请求体、规范化错误
// 不做重试与限流退避
type Adapter struct {
	client    *httputil.Client
	sealer    *Sealer
	baseURLs  map[Type]string
	batchSize int
	interval  time.Duration
	logger    *zap.Logger
}

// AdapterOption 适配器选项
type AdapterOption func(*Adapter)

// WithHTTPClient 替换 HTTP 客户端
func WithHTTPClient(c *httputil.Client) AdapterOption {
	return func(a *Adapter) { a.client = c }
}

// WithSealer 设置令牌解密器
func WithSealer(s *Sealer) AdapterOption {
	return func(a *Adapter) { a.sealer = s }
}

// WithBaseURL 覆盖某类平台的 API 根地址
func WithBaseURL(t Type, baseURL string) AdapterOption {
	return func(a *Adapter) { a.baseURLs[t] = strings.TrimRight(baseURL, "/") }
}

// WithBatching 设置批量操作的批大小与批间隔
func WithBatching(size int, interval time.Duration) AdapterOption {
	return func(a *Adapter) {
		a.batchSize = size
		a.interval = interval
	}
}

// NewAdapter 创建平台适配器
func NewAdapter(opts ...AdapterOption) *Adapter {
	a := &Adapter{
		client:    httputil.NewClient(),
		baseURLs:  make(map[Type]string),
		batchSize: 10,
		logger:    logger.Named("platform"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewAdapterFromConfig 按配置创建适配器
func NewAdapterFromConfig(cfg config.PlatformConfig) (*Adapter, error) {
	sealer, err := NewSealer(cfg.CredentialKey)
	if err != nil {
		return nil, err
	}
	headers := map[string]string{}
	if cfg.UserAgent != "" {
		headers["User-Agent"] = cfg.UserAgent
	}
	client := httputil.NewClient(httputil.WithTimeout(cfg.RequestTimeout), httputil.WithHeaders(headers))
	return NewAdapter(
		WithHTTPClient(client),
		WithSealer(sealer),
		WithBatching(cfg.BatchSize, cfg.BatchInterval),
	), nil
}

// Batches 返回按配置限速的批量迭代器
func (a *Adapter) Batches() *BatchIterator {
	return NewBatchIterator(a.batchSize, a.interval)
}

// BaseURL 平台 API 根地址
func (a *Adapter) BaseURL(p *Platform) (string, error) {
	if override, ok := a.baseURLs[p.PlatformType]; ok && override != "" {
		return override, nil
	}
	switch p.PlatformType {
	case TypeShopify:
		if p.ShopDomain == "" {
			return "", fmt.Errorf("%w: shopify shop_domain", ErrMissingCredentials)
		}
		creds, _ := p.ParseCredentials()
		version := creds.APIVersion
		if version == "" {
			version = defaultShopifyAPIVersion
		}
		return withScheme(p.ShopDomain) + "/admin/api/" + version, nil
	case TypeWooCommerce:
		if p.StoreURL == "" {
			return "", fmt.Errorf("%w: woocommerce store_url", ErrMissingCredentials)
		}
		return withScheme(p.StoreURL) + "/wp-json/wc/v3", nil
	case TypeEtsy:
		return etsyBaseURL, nil
	case TypeFaire:
		return faireBaseURL, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownPlatform, p.PlatformType)
	}
}

// Request 调用平台 REST API
// endpoint 为相对 API 根地址的路径（可带查询串）；body 非 nil 时序列化为 JSON
// 非 2xx 返回 *APIError，其中包含状态码与原始响应体
func (a *Adapter) Request(ctx context.Context, p *Platform, method, endpoint string, body any) (json.RawMessage, error) {
	base, err := a.BaseURL(p)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}

	var reader io.Reader
	if body != nil {
		var payload []byte
		switch b := body.(type) {
		case json.RawMessage:
			payload = b
		case []byte:
			payload = b
		default:
			payload, err = json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("序列化请求体失败: %w", err)
			}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := a.client.NewRequest(ctx, method, base+endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := a.authorize(req, p); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := a.client.Do(req)
	metrics.PlatformRequestDuration.WithLabelValues(string(p.PlatformType)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PlatformRequestsTotal.WithLabelValues(string(p.PlatformType), method, "error").Inc()
		return nil, fmt.Errorf("%s %s %s: %w", p.PlatformType, method, endpoint, err)
	}
	defer resp.Body.Close()
	metrics.PlatformRequestsTotal.WithLabelValues(string(p.PlatformType), method, strconv.Itoa(resp.StatusCode)).Inc()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取平台响应失败: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		a.logger.Warn("平台请求失败",
			zap.String("platform_id", p.ID),
			zap.String("platform_type", string(p.PlatformType)),
			zap.String("method", method),
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
		)
		return nil, &APIError{
			Platform: p.PlatformType,
			Method:   method,
			Endpoint: endpoint,
			Status:   resp.StatusCode,
			Body:     string(raw),
		}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("{}"), nil
	}
	return json.RawMessage(raw), nil
}

func (a *Adapter) authorize(req *http.Request, p *Platform) error {
	token, err := a.sealer.Open(p.AccessToken)
	if err != nil {
		return err
	}
	creds, err := p.ParseCredentials()
	if err != nil {
		return err
	}

	switch p.PlatformType {
	case TypeShopify:
		if token == "" {
			return fmt.Errorf("%w: shopify access_token", ErrMissingCredentials)
		}
		req.Header.Set("X-Shopify-Access-Token", token)
	case TypeWooCommerce:
		if creds.ConsumerKey == "" || creds.ConsumerSecret == "" {
			return fmt.Errorf("%w: woocommerce consumer_key/consumer_secret", ErrMissingCredentials)
		}
		secret, err := a.sealer.Open(creds.ConsumerSecret)
		if err != nil {
			return err
		}
		req.SetBasicAuth(creds.ConsumerKey, secret)
	case TypeEtsy:
		if creds.APIKey == "" || token == "" {
			return fmt.Errorf("%w: etsy api_key/access_token", ErrMissingCredentials)
		}
		req.Header.Set("x-api-key", creds.APIKey)
		req.Header.Set("Authorization", "Bearer "+token)
	case TypeFaire:
		if token == "" {
			return fmt.Errorf("%w: faire access_token", ErrMissingCredentials)
		}
		req.Header.Set("X-FAIRE-ACCESS-TOKEN", token)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownPlatform, p.PlatformType)
	}
	return nil
}
