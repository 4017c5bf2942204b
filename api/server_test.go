package api_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astranetix/bms/api"
	"github.com/astranetix/bms/internal/infrastructure/ratelimit"
	"github.com/astranetix/bms/internal/infrastructure/ws"
	"github.com/astranetix/bms/internal/reporting/store"
	"github.com/astranetix/bms/testutil"
)

func setupServer(t *testing.T, opts ...func(*api.Dependencies)) (*testutil.Env, *api.Server) {
	env := testutil.NewEnv(t)
	artifacts, err := store.Open("", true)
	require.NoError(t, err)
	hub := ws.NewHub(16, env.Logger)
	t.Cleanup(func() {
		_ = hub.Shutdown()
		_ = artifacts.Close()
	})
	deps := api.Dependencies{
		DB:             env.DB,
		Logger:         env.Logger,
		Auth:           env.AuthCfg,
		Revoked:        env.Revoked,
		LoginLimiter:   ratelimit.NewMemoryLimiter(10, time.Minute),
		Publisher:      env.Publisher,
		Hub:            hub,
		Artifacts:      artifacts,
		Sealer:         env.Sealer,
		AppName:        "AstraNetix",
		PlatformDomain: "astranetix.com",
	}
	for _, opt := range opts {
		opt(&deps)
	}
	return env, api.NewServer(deps)
}

func TestRoot(t *testing.T) {
	_, srv := setupServer(t)
	w := testutil.Do(t, srv.Router(), http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Message  string   `json:"message"`
		Version  string   `json:"version"`
		Features []string `json:"features"`
	}
	testutil.Decode(t, w, &resp)
	assert.Equal(t, "AstraNetix BMS API", resp.Message)
	assert.Equal(t, api.Version, resp.Version)
	assert.NotEmpty(t, resp.Features)
}

func TestHealthCheck(t *testing.T) {
	env, srv := setupServer(t)
	w := testutil.Do(t, srv.Router(), http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	testutil.Decode(t, w, &resp)
	assert.Equal(t, "healthy", resp["status"])

	sqlDB, err := env.DB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	w = testutil.Do(t, srv.Router(), http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	testutil.Decode(t, w, &resp)
	assert.Equal(t, "unhealthy", resp["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	_, srv := setupServer(t)
	testutil.Do(t, srv.Router(), http.MethodGet, "/", "", nil)

	w := testutil.Do(t, srv.Router(), http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestModulesMounted(t *testing.T) {
	env, srv := setupServer(t)
	h := env.Hierarchy(t)
	ispToken := env.Token(t, h.ISP.ID, "isp")
	isp := h.ISP.ID.String()

	paths := []string{
		"/api/v1/auth/me",
		"/api/v1/isp/dashboard",
		"/api/v1/noc/" + isp + "/dashboard",
		"/api/v1/crm/" + isp + "/analytics",
		"/api/v1/reporting/" + isp + "/templates",
		"/api/v1/sustainability/" + isp + "/dashboard",
		"/api/v1/support/" + isp + "/analytics",
	}
	for _, p := range paths {
		w := testutil.Do(t, srv.Router(), http.MethodGet, p, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, p)

		w = testutil.Do(t, srv.Router(), http.MethodGet, p, ispToken, nil)
		assert.Equal(t, http.StatusOK, w.Code, "%s: %s", p, w.Body.String())
	}

	w := testutil.Do(t, srv.Router(), http.MethodGet, "/api/v1/founder/dashboard", ispToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLogin_ThroughServer(t *testing.T) {
	env, srv := setupServer(t)
	h := env.Hierarchy(t)

	w := testutil.Do(t, srv.Router(), http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"email":    h.ISP.Email,
		"password": testutil.Password,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp map[string]interface{}
	testutil.Decode(t, w, &resp)
	assert.NotEmpty(t, resp["access_token"])
}

func login(srv *api.Server, forwardedFor string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"email":"nobody@example.com","password":"wrong-password"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", forwardedFor)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w.Code
}

func TestLoginLimit_IgnoresForwardedFor(t *testing.T) {
	_, srv := setupServer(t)
	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusUnauthorized, login(srv, fmt.Sprintf("10.0.0.%d", i)))
	}
	assert.Equal(t, http.StatusTooManyRequests, login(srv, "10.0.0.200"))
}

func TestLoginLimit_TrustedProxy(t *testing.T) {
	// httptest requests arrive from 192.0.2.1.
	_, srv := setupServer(t, func(d *api.Dependencies) {
		d.TrustedProxies = []string{"192.0.2.0/24"}
	})
	for i := 0; i < 12; i++ {
		require.Equal(t, http.StatusUnauthorized, login(srv, fmt.Sprintf("203.0.113.%d", i)))
	}
	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusUnauthorized, login(srv, "203.0.113.50"))
	}
	assert.Equal(t, http.StatusTooManyRequests, login(srv, "203.0.113.50"))
}

func TestCORSPreflight(t *testing.T) {
	_, srv := setupServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/auth/login", nil)
	req.Header.Set("Origin", "https://portal.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://portal.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSwaggerDoc(t *testing.T) {
	_, srv := setupServer(t)
	w := testutil.Do(t, srv.Router(), http.MethodGet, "/swagger/doc.json", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "AstraNetix BMS API")
}
