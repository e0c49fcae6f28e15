package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storepilot/internal/auth"
	"storepilot/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "router-secret"

func newTestApp(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Database.AutoMigrate = true
	cfg.Auth.JWTSecret = testSecret
	cfg.Auth.Issuer = "storepilot"
	cfg.Auth.InterpretPerMinute = 2
	cfg.Platform.Concurrency = 1

	container, err := NewAppContainer(cfg, db, nil)
	require.NoError(t, err)
	t.Cleanup(container.Close)
	assert.Nil(t, container.Queue)

	return SetupRouter(container)
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	now := time.Now()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.TokenClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    "storepilot",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + tok
}

func serve(r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_HealthAndReady(t *testing.T) {
	r := newTestApp(t)

	w := serve(r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = serve(r, http.MethodGet, "/ready", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"disabled"`)
}

func TestRouter_RequiresToken(t *testing.T) {
	r := newTestApp(t)

	w := serve(r, http.MethodGet, "/api/v1/commands", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
}

func TestRouter_InterpretAndList(t *testing.T) {
	r := newTestApp(t)
	token := bearer(t, "user-1")

	w := serve(r, http.MethodPost, "/api/v1/commands/interpret", token, gin.H{
		"command_text": "restock Blue Widget to 50 units",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			CommandID string `json:"command_id"`
			Status    string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Data.CommandID)

	w = serve(r, http.MethodGet, "/api/v1/commands/"+resp.Data.CommandID, token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// 其他用户看不到该命令
	w = serve(r, http.MethodGet, "/api/v1/commands/"+resp.Data.CommandID, bearer(t, "user-2"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(r, http.MethodGet, "/api/v1/commands", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), resp.Data.CommandID)
}

func TestRouter_InterpretRateLimited(t *testing.T) {
	r := newTestApp(t)
	token := bearer(t, "user-1")

	body := gin.H{"command_text": "restock Blue Widget to 50 units"}
	var last int
	for i := 0; i < 3; i++ {
		last = serve(r, http.MethodPost, "/api/v1/commands/interpret", token, body).Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestRouter_CORSPreflight(t *testing.T) {
	r := newTestApp(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/commands/interpret", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch)
}
