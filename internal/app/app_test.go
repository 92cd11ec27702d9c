package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/artboard/server/internal/module/credits"
	"github.com/artboard/server/internal/module/generation"
	"github.com/artboard/server/internal/shared/config"
	"github.com/artboard/server/internal/shared/logger"
	"github.com/artboard/server/internal/utils/metrics"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	require.NoError(t, generation.RegisterValidators())

	cfg := &config.Config{
		Auth:      config.AuthConfig{JWTSecret: "test-secret", Issuer: "artboard"},
		RateLimit: config.RateLimitConfig{GenerationLimit: 5, GenerationWindow: time.Minute},
		Log:       config.LogConfig{Level: "error", Format: "json"},
	}
	a := &App{
		config:            cfg,
		logger:            logger.New(&logger.Config{Level: "error"}),
		zapLogger:         zap.NewNop(),
		metrics:           metrics.New("apptest", prometheus.NewRegistry()),
		creditsHandler:    credits.NewHandler(nil),
		generationHandler: generation.NewHandler(nil),
	}
	a.router = a.setupRouter()
	return a
}

func TestRouter_Health(t *testing.T) {
	a := newTestApp(t)

	w := httptest.NewRecorder()
	a.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouter_Metrics(t *testing.T) {
	a := newTestApp(t)

	w := httptest.NewRecorder()
	a.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRouter_ProtectedRoutesRequireToken(t *testing.T) {
	a := newTestApp(t)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/credits"},
		{http.MethodPost, "/api/v1/credits/sync"},
		{http.MethodPost, "/api/v1/projects/8d0c4a4e-8a3e-4a53-9d3b-3f1d2b6d7c11/generations"},
		{http.MethodGet, "/api/v1/generations/8d0c4a4e-8a3e-4a53-9d3b-3f1d2b6d7c11"},
		{http.MethodDelete, "/api/v1/generations/8d0c4a4e-8a3e-4a53-9d3b-3f1d2b6d7c11"},
	}
	for _, rt := range routes {
		w := httptest.NewRecorder()
		a.Router().ServeHTTP(w, httptest.NewRequest(rt.method, rt.path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", rt.method, rt.path)
	}
}

func TestRouter_RejectsForeignIssuer(t *testing.T) {
	a := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/credits", nil)
	req.Header.Set("Authorization", "Bearer not.a.jwt")
	w := httptest.NewRecorder()
	a.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProvideSealer(t *testing.T) {
	cfg := &config.Config{}
	sealer, err := ProvideSealer(cfg)
	require.NoError(t, err)
	assert.Nil(t, sealer)

	cfg.Credits.CredentialKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	sealer, err = ProvideSealer(cfg)
	require.NoError(t, err)
	assert.NotNil(t, sealer)

	cfg.Credits.CredentialKey = "zz"
	_, err = ProvideSealer(cfg)
	assert.Error(t, err)
}

func TestProvideAdapters(t *testing.T) {
	cfg := &config.Config{}
	cfg.Generation.BreakerFailures = 3

	adapters, err := ProvideAdapters(cfg, http.DefaultClient, metrics.New("apptest", prometheus.NewRegistry()), zap.NewNop())

	require.NoError(t, err)
	assert.Len(t, adapters, 2)
	assert.Contains(t, adapters, "replicate")
	assert.Contains(t, adapters, "fal")
}

func TestProvideRateLimiter_NoRedis(t *testing.T) {
	assert.Nil(t, ProvideRateLimiter(nil))
}
