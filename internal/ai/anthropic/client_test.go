package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"storepilot/pkg/aiinterface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(&aiinterface.ClientConfig{APIKey: "sk-test", BaseURL: srv.URL, MaxRetries: 2})
	require.NoError(t, err)
	var waits []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return c, &waits
}

func TestChatCompletion(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))

		var body messagesRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "base\n\nextra", body.System)
		if assert.Len(t, body.Messages, 1) {
			assert.Equal(t, "user", body.Messages[0].Role)
		}

		_, _ = w.Write([]byte(`{"id":"msg_1","model":"claude","content":[{"type":"text","text":"{\"actions\":[]}"}],"usage":{"input_tokens":12,"output_tokens":4}}`))
	})

	resp, err := c.ChatCompletion(context.Background(), &aiinterface.ChatCompletionRequest{
		System:   "base",
		Messages: []aiinterface.Message{{Role: "system", Content: "extra"}, {Role: "user", Content: "raise prices"}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"actions":[]}`, resp.Content)
	assert.Equal(t, 16, resp.Usage.TotalTokens)
}

func TestChatCompletionRetriesWithRetryAfter(t *testing.T) {
	var calls atomic.Int32
	c, waits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"msg_2","content":[{"type":"text","text":"ok"}]}`))
	})

	resp, err := c.ChatCompletion(context.Background(), &aiinterface.ChatCompletionRequest{
		Messages: []aiinterface.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []time.Duration{3 * time.Second}, *waits)
}

func TestChatCompletionAuthErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	})

	_, err := c.ChatCompletion(context.Background(), &aiinterface.ChatCompletionRequest{
		Messages: []aiinterface.Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	var clientErr *aiinterface.ClientError
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, aiinterface.ErrorTypeAuth, clientErr.Type)
	assert.Equal(t, http.StatusUnauthorized, clientErr.StatusCode)
	assert.Contains(t, clientErr.Error(), "invalid x-api-key")
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(&aiinterface.ClientConfig{})
	require.Error(t, err)
}
