package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storepilot/internal/auth"
	"storepilot/internal/automation"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mode   string
	userID string
}

func (f *fakeRunner) ExecutePending(_ context.Context, userID string, _ time.Time) ([]automation.PendingResult, error) {
	f.mode, f.userID = "execute_pending", userID
	return []automation.PendingResult{{AutomationID: "a1", Outcome: automation.OutcomeExecuted}}, nil
}

func (f *fakeRunner) Analyze(_ context.Context, userID string, _ time.Time) ([]automation.AnalysisResult, error) {
	f.mode, f.userID = "analyze", userID
	return []automation.AnalysisResult{{AutomationID: "a1", Applied: true}}, nil
}

type fakeQueue struct{ mode, userID string }

func (f *fakeQueue) EnqueueScheduler(_ context.Context, mode, userID string) (string, error) {
	f.mode, f.userID = mode, userID
	return "task-1", nil
}

func post(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(auth.UserIDKey, "u1") })
	r.POST("/scheduler", h.Run)
	req := httptest.NewRequest(http.MethodPost, "/scheduler", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRunModesForCaller(t *testing.T) {
	runner := &fakeRunner{}
	h := NewHandler(runner, nil)

	w := post(t, h, `{"mode":"execute_pending"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "execute_pending", runner.mode)
	assert.Equal(t, "u1", runner.userID)
	assert.Contains(t, w.Body.String(), `"outcome":"executed"`)

	w = post(t, h, `{"mode":"analyze"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "analyze", runner.mode)

	w = post(t, h, `{"mode":"purge"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(t, h, `{"mode":"analyze","async":true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunAsync(t *testing.T) {
	queue := &fakeQueue{}
	h := NewHandler(&fakeRunner{}, queue)

	w := post(t, h, `{"mode":"analyze","async":true}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	var env struct {
		Success bool              `json:"success"`
		Data    map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "task-1", env.Data["task_id"])
	assert.Equal(t, "analyze", queue.mode)
	assert.Equal(t, "u1", queue.userID)
}
