package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"storepilot/internal/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type countingClient struct {
	calls int
	err   error
}

func (c *countingClient) ChatCompletion(_ context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &ChatCompletionResponse{
		ID:      "msg_1",
		Model:   "test-model",
		Content: "echo: " + req.Messages[len(req.Messages)-1].Content,
		Usage:   Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func (c *countingClient) Name() string { return "fake" }
func (c *countingClient) Close() error { return nil }

func request(text string, temp float64) *ChatCompletionRequest {
	return &ChatCompletionRequest{
		System:      "system",
		Messages:    []Message{{Role: "user", Content: text}},
		Temperature: temp,
		MaxTokens:   256,
	}
}

func TestCachingClient_HitSkipsModel(t *testing.T) {
	inner := &countingClient{}
	c := NewCachingClient(inner, cache.NewLFUCache(8), time.Minute, 0, zaptest.NewLogger(t))
	ctx := context.Background()

	first, err := c.ChatCompletion(ctx, request("raise prices 10%", 0.1))
	require.NoError(t, err)
	assert.Equal(t, 15, first.Usage.TotalTokens)

	second, err := c.ChatCompletion(ctx, request("raise prices 10%", 0.1))
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, first.Content, second.Content)
	assert.Zero(t, second.Usage.TotalTokens)

	_, err = c.ChatCompletion(ctx, request("lower prices 10%", 0.1))
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachingClient_HighTemperatureBypasses(t *testing.T) {
	inner := &countingClient{}
	store := cache.NewLFUCache(8)
	c := NewCachingClient(inner, store, time.Minute, 0, zaptest.NewLogger(t))

	for i := 0; i < 2; i++ {
		_, err := c.ChatCompletion(context.Background(), request("same", 0.9))
		require.NoError(t, err)
	}
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 0, store.Len())
}

func TestCachingClient_ErrorsAreNotCached(t *testing.T) {
	inner := &countingClient{err: errors.New("upstream down")}
	store := cache.NewLFUCache(8)
	c := NewCachingClient(inner, store, time.Minute, 0, zaptest.NewLogger(t))

	_, err := c.ChatCompletion(context.Background(), request("x", 0))
	require.Error(t, err)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, "fake", c.Name())
}
