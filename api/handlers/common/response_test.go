package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"storepilot/internal/action"
	"storepilot/internal/ai"
	"storepilot/internal/automation"
	"storepilot/internal/command"
	"storepilot/internal/execution"
	"storepilot/internal/interpreter"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{command.ErrNotFound, http.StatusNotFound},
		{automation.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", command.ErrInvalidTransition), http.StatusConflict},
		{command.ErrCommandImmutable, http.StatusConflict},
		{command.ErrConfirmationRequired, http.StatusConflict},
		{command.ErrTooManyInFlight, http.StatusTooManyRequests},
		{execution.ErrNoConnectedPlatform, http.StatusUnprocessableEntity},
		{execution.ErrNothingToUndo, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: empty", interpreter.ErrUnableToInterpret), http.StatusUnprocessableEntity},
		{&ai.ConfigurationError{Feature: "x", Setting: "y"}, http.StatusServiceUnavailable},
		{fmt.Errorf("invalid action plan: %w", &action.ParamError{}), http.StatusBadRequest},
		{automation.ErrInvalidAutomation, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}

func TestFailHidesInternalErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	Fail(c, errors.New("pq: connection refused"), nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "internal server error", resp.Error)
}

func TestNewPagination(t *testing.T) {
	meta := NewPagination(2, 20, 45)
	assert.Equal(t, 3, meta.TotalPage)
	assert.Equal(t, 0, NewPagination(1, 20, 0).TotalPage)
}
