package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"storepilot/pkg/aiinterface"

	openai "github.com/sashabaranov/go-openai"
)

// Client OpenAI 客户端适配器
type Client struct {
	client     *openai.Client
	modelID    string
	maxRetries int
	sleep      aiinterface.SleepFunc
}

// NewClient 创建 OpenAI 客户端
func NewClient(config *aiinterface.ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, &aiinterface.ClientError{
			Type:    aiinterface.ErrorTypeAuth,
			Message: "OpenAI API Key 不能为空",
		}
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if config.OrgID != "" {
		clientConfig.OrgID = config.OrgID
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 60
	}
	clientConfig.HTTPClient = &http.Client{Timeout: time.Duration(timeout) * time.Second}

	maxRetries := config.MaxRetries
	if maxRetries == 0 {
		maxRetries = 2
	}

	modelID := config.Model
	if modelID == "" {
		modelID = openai.GPT4oMini
	}

	return &Client{
		client:     openai.NewClientWithConfig(clientConfig),
		modelID:    modelID,
		maxRetries: maxRetries,
		sleep:      aiinterface.SleepContext,
	}, nil
}

// ChatCompletion 对话补全，要求模型返回 JSON 对象
func (c *Client) ChatCompletion(ctx context.Context, req *aiinterface.ChatCompletionRequest) (*aiinterface.ChatCompletionResponse, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	openaiReq := openai.ChatCompletionRequest{
		Model:       c.modelID,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		TopP:        float32(req.TopP),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	var resp openai.ChatCompletionResponse
	err := aiinterface.Retry(ctx, c.maxRetries, c.sleep, func() error {
		var callErr error
		resp, callErr = c.client.CreateChatCompletion(ctx, openaiReq)
		if callErr != nil {
			return wrapError(callErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, &aiinterface.ClientError{
			Type:    aiinterface.ErrorTypeServerError,
			Message: "API 返回空响应",
		}
	}

	return &aiinterface.ChatCompletionResponse{
		ID:      resp.ID,
		Model:   resp.Model,
		Content: resp.Choices[0].Message.Content,
		Usage: aiinterface.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// Name 返回客户端名称
func (c *Client) Name() string {
	return "openai"
}

// Close 关闭客户端
func (c *Client) Close() error {
	return nil
}

// wrapError 将 SDK 错误归类为统一的 ClientError
func wrapError(err error) *aiinterface.ClientError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &aiinterface.ClientError{
			Type:       aiinterface.ClassifyStatus(apiErr.HTTPStatusCode),
			StatusCode: apiErr.HTTPStatusCode,
			Message:    fmt.Sprintf("OpenAI API 错误 (HTTP %d): %s", apiErr.HTTPStatusCode, apiErr.Message),
			Err:        err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &aiinterface.ClientError{
			Type:       aiinterface.ClassifyStatus(reqErr.HTTPStatusCode),
			StatusCode: reqErr.HTTPStatusCode,
			Message:    "OpenAI 请求失败",
			Err:        err,
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &aiinterface.ClientError{Type: aiinterface.ErrorTypeUnknown, Message: "请求已取消", Err: err}
	}
	return &aiinterface.ClientError{Type: aiinterface.ErrorTypeNetwork, Message: "OpenAI 调用失败", Err: err}
}
