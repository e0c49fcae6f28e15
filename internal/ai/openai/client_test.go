package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
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

	c, err := NewClient(&aiinterface.ClientConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Model: "gpt-4o-mini", MaxRetries: 2})
	require.NoError(t, err)
	var waits []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return c, &waits
}

const completionBody = `{"id":"chatcmpl-1","object":"chat.completion","model":"gpt-4o-mini",
"choices":[{"index":0,"message":{"role":"assistant","content":"{\"actions\":[]}"},"finish_reason":"stop"}],
"usage":{"prompt_tokens":12,"completion_tokens":4,"total_tokens":16}}`

func TestChatCompletion(t *testing.T) {
	c, waits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		msgs, _ := body["messages"].([]any)
		if assert.Len(t, msgs, 2) {
			first, _ := msgs[0].(map[string]any)
			assert.Equal(t, "system", first["role"])
		}
		format, _ := body["response_format"].(map[string]any)
		assert.Equal(t, "json_object", format["type"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody))
	})

	resp, err := c.ChatCompletion(context.Background(), &aiinterface.ChatCompletionRequest{
		System:   "You translate commands.",
		Messages: []aiinterface.Message{{Role: "user", Content: "set price to 10"}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"actions":[]}`, resp.Content)
	assert.Equal(t, 16, resp.Usage.TotalTokens)
	assert.Empty(t, *waits)
}

func TestChatCompletionRetriesServerErrors(t *testing.T) {
	calls := 0
	c, waits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream","type":"server_error"}}`))
			return
		}
		_, _ = w.Write([]byte(completionBody))
	})

	_, err := c.ChatCompletion(context.Background(), &aiinterface.ChatCompletionRequest{
		Messages: []aiinterface.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{time.Second}, *waits)
}

func TestChatCompletionAuthErrorNotRetried(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	})

	_, err := c.ChatCompletion(context.Background(), &aiinterface.ChatCompletionRequest{
		Messages: []aiinterface.Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var clientErr *aiinterface.ClientError
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, aiinterface.ErrorTypeAuth, clientErr.Type)
	assert.Equal(t, http.StatusUnauthorized, clientErr.StatusCode)
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(&aiinterface.ClientConfig{})
	var clientErr *aiinterface.ClientError
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, aiinterface.ErrorTypeAuth, clientErr.Type)
}
