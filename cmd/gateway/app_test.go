package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradepulse/gateway/internal/config"
	"github.com/tradepulse/gateway/internal/observability"
)

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("GATEWAY_TEST_KEY", "from-env")

	assert.Equal(t, "from-env", getEnvOrDefault("GATEWAY_TEST_KEY", "fallback"))
	assert.Equal(t, "fallback", getEnvOrDefault("GATEWAY_TEST_MISSING", "fallback"))
}

func TestNewApplication_WiresRoutes(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Services = map[string]string{
		"signal-service": "http://signal-service:8000",
	}
	require.NoError(t, cfg.Validate())

	app, err := newApplication(cfg, observability.NopLogger())
	require.NoError(t, err)

	w := httptest.NewRecorder()
	app.server.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	app.server.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	app.server.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ghost/x", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewApplication_RejectsInvalidServiceURL(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Services = map[string]string{"bad": "not a url"}

	_, err := newApplication(cfg, observability.NopLogger())
	assert.Error(t, err)
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: development
server:
  port: 9090
services:
  signal-service: http://signal-service:8000
`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "http://signal-service:8000", cfg.Services["signal-service"])
}
