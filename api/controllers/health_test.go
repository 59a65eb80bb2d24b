package controllers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthLive(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}

	rec := serve(HealthLive(cfg), newRequest(http.MethodGet, "/health/live", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dev", rec.Header().Get("X-Storefront-Env"))
}

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	rec := serve(HealthReady(cfg, nil, map[string]Pinger{"db": ok, "redis": ok}), newRequest(http.MethodGet, "/health/ready", ""))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(HealthReady(cfg, nil, map[string]Pinger{"db": ok, "redis": down}), newRequest(http.MethodGet, "/health/ready", ""))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	checks, _ := env.Error.Details["checks"].(map[string]any)
	assert.Equal(t, "down", checks["redis"])
}
