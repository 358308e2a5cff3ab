package routes

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/warden/internal/config"
	"github.com/Wikid82/warden/internal/database"
	"github.com/Wikid82/warden/internal/models"
)

func setupRouter(t *testing.T) (*gin.Engine, *Services) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := database.Open(":memory:")
	require.NoError(t, err)

	cfg := config.Defaults()
	cfg.Security.TimeZone = "UTC"
	cfg.Sweeper.Enabled = false

	router := gin.New()
	svc, err := Register(router, db, cfg)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return router, svc
}

func login(t *testing.T, router *gin.Engine, email, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

func do(router *gin.Engine, method, path, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRegister_Routes(t *testing.T) {
	router, _ := setupRouter(t)

	routes := router.Routes()
	seen := make(map[string]bool, len(routes))
	for _, r := range routes {
		seen[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /api/v1/health",
		"GET /metrics",
		"POST /api/v1/auth/login",
		"GET /api/v1/auth/me",
		"POST /api/v1/access/check",
		"GET /api/v1/presence",
		"POST /api/v1/presence",
		"GET /api/v1/security/events",
		"GET /api/v1/security/blocks",
		"POST /api/v1/security/blocks",
		"GET /api/v1/security/rules",
		"POST /api/v1/security/rules",
	} {
		assert.True(t, seen[want], "missing route %s", want)
	}
}

func TestRegister_InvalidTimeZone(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	cfg := config.Defaults()
	cfg.Security.TimeZone = "Not/AZone"
	_, err = Register(gin.New(), db, cfg)
	assert.Error(t, err)
}

func TestEmployeeFlow(t *testing.T) {
	router, svc := setupRouter(t)
	ctx := context.Background()
	_, err := svc.Auth.Register(ctx, "emp@example.com", "password123", "Emp", models.RoleEmployee)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, do(router, http.MethodGet, "/api/v1/presence", "", nil).Code)

	token := login(t, router, "emp@example.com", "password123")

	w := do(router, http.MethodPost, "/api/v1/presence", token, []byte(`{"status":"in"}`))
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(router, http.MethodGet, "/api/v1/presence", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodGet, "/api/v1/security/events", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminBlocksAddress(t *testing.T) {
	router, svc := setupRouter(t)
	ctx := context.Background()
	_, err := svc.Auth.Register(ctx, "admin@example.com", "password123", "Admin", models.RoleAdmin)
	require.NoError(t, err)
	token := login(t, router, "admin@example.com", "password123")

	w := do(router, http.MethodPost, "/api/v1/security/blocks", token, []byte(`{"ip_address":"203.0.113.7","minutes":30}`))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	blocked, err := svc.Blocks.IsBlocked(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, blocked)

	w = do(router, http.MethodGet, "/api/v1/security/blocks", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "203.0.113.7")
}
