// Package anthropic Claude Messages API 客户端
package anthropic

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

	"storepilot/pkg/aiinterface"
	"storepilot/pkg/httputil"
)

const (
	apiVersion     = "2023-06-01"
	defaultBaseURL = "https://api.anthropic.com"
	defaultModel   = "claude-3-5-sonnet-latest"
)

// Client Anthropic Claude 客户端适配器
type Client struct {
	http       *httputil.Client
	endpoint   string
	modelID    string
	maxRetries int
	sleep      aiinterface.SleepFunc
}

// NewClient 创建 Anthropic 客户端
func NewClient(config *aiinterface.ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, &aiinterface.ClientError{Type: aiinterface.ErrorTypeAuth, Message: "Anthropic API Key 不能为空"}
	}

	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	modelID := config.Model
	if modelID == "" {
		modelID = defaultModel
	}
	maxRetries := config.MaxRetries
	if maxRetries == 0 {
		maxRetries = 2
	}
	timeout := time.Duration(config.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		http: httputil.NewClient(
			httputil.WithTimeout(timeout),
			httputil.WithHeaders(map[string]string{
				"Content-Type":      "application/json",
				"x-api-key":         config.APIKey,
				"anthropic-version": apiVersion,
			}),
		),
		endpoint:   baseURL + "/v1/messages",
		modelID:    modelID,
		maxRetries: maxRetries,
		sleep:      aiinterface.SleepContext,
	}, nil
}

type messagesRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"top_p,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// ChatCompletion 对话补全；role=system 的消息合并进 system 字段
func (c *Client) ChatCompletion(ctx context.Context, req *aiinterface.ChatCompletionRequest) (*aiinterface.ChatCompletionResponse, error) {
	body := messagesRequest{
		Model:       c.modelID,
		System:      req.System,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = 2048
	}
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			if body.System != "" {
				body.System += "\n\n"
			}
			body.System += msg.Content
			continue
		}
		body.Messages = append(body.Messages, message{Role: msg.Role, Content: msg.Content})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &aiinterface.ClientError{Type: aiinterface.ErrorTypeInvalidParams, Message: "序列化请求失败", Err: err}
	}

	var resp *messagesResponse
	err = aiinterface.Retry(ctx, c.maxRetries, c.sleep, func() error {
		var sendErr error
		resp, sendErr = c.send(ctx, payload)
		return sendErr
	})
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &aiinterface.ChatCompletionResponse{
		ID:      resp.ID,
		Model:   resp.Model,
		Content: text.String(),
		Usage: aiinterface.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}

func (c *Client) Name() string { return "anthropic" }

func (c *Client) Close() error { return c.http.Close() }

func (c *Client) send(ctx context.Context, payload []byte) (*messagesResponse, error) {
	httpReq, err := c.http.NewRequest(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &aiinterface.ClientError{Type: aiinterface.ErrorTypeInvalidParams, Message: "创建请求失败", Err: err}
	}
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &aiinterface.ClientError{Type: aiinterface.ErrorTypeNetwork, Message: "请求 Anthropic 失败", Err: err}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &aiinterface.ClientError{Type: aiinterface.ErrorTypeNetwork, Message: "读取响应失败", Err: err}
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, apiError(httpResp, raw)
	}

	var out messagesResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &aiinterface.ClientError{Type: aiinterface.ErrorTypeServerError, Message: "解析响应失败", Err: err}
	}
	return &out, nil
}

// apiError 按状态码归类；529 为 Anthropic 过载
func apiError(resp *http.Response, raw []byte) *aiinterface.ClientError {
	detail := strings.TrimSpace(string(raw))
	var parsed errorResponse
	if json.Unmarshal(raw, &parsed) == nil && parsed.Error.Message != "" {
		detail = parsed.Error.Type + ": " + parsed.Error.Message
	}

	e := &aiinterface.ClientError{
		Type:       aiinterface.ClassifyStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("Anthropic API 错误 (HTTP %d): %s", resp.StatusCode, detail),
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		e.RetryAfter = time.Duration(secs) * time.Second
	}
	return e
}
