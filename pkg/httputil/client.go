package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client HTTP 客户端包装器：统一超时与默认请求头，不做重试
type Client struct {
	httpClient *http.Client
	headers    map[string]string
}

// ClientOption 客户端配置选项
type ClientOption func(*Client)

// WithTimeout 设置请求超时时间
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithHeaders 设置默认请求头
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.headers[k] = v
		}
	}
}

// WithTransport 替换底层 Transport（测试或代理）
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.httpClient.Transport = rt
	}
}

// NewClient 创建 HTTP 客户端
func NewClient(opts ...ClientOption) *Client {
	client := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		headers:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(client)
	}
	if _, ok := client.headers["User-Agent"]; !ok {
		client.headers["User-Agent"] = "storepilot/1.0"
	}
	return client
}

// Timeout 返回请求超时时间
func (c *Client) Timeout() time.Duration {
	return c.httpClient.Timeout
}

// NewRequest 创建带默认请求头的请求
func (c *Client) NewRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("创建 %s 请求失败: %w", method, err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// Do 执行 HTTP 请求
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

// Close 释放空闲连接
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
