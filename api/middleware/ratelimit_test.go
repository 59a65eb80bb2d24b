package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/access"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

func TestRateLimiterSeparatesAnonymousAndUsers(t *testing.T) {
	limiter := NewRateLimiter(config.RateLimitConfig{
		AnonymousRPS:   0.001,
		AnonymousBurst: 1,
		UserRPS:        0.001,
		UserBurst:      2,
	}, nil)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	anon := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
		req.RemoteAddr = "9.9.9.9:1000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, anon())
	assert.Equal(t, http.StatusTooManyRequests, anon())

	caller := access.Caller{UserID: uuid.New(), Role: enums.RoleUser}
	user := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
		req.RemoteAddr = "9.9.9.9:1000"
		req = req.WithContext(WithCaller(req.Context(), caller))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, user())
	assert.Equal(t, http.StatusOK, user())
	assert.Equal(t, http.StatusTooManyRequests, user())
}

func TestRateLimiterDisabledWhenRateIsZero(t *testing.T) {
	limiter := NewRateLimiter(config.RateLimitConfig{}, nil)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimiterSweep(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(config.RateLimitConfig{AnonymousRPS: 1, AnonymousBurst: 1, VisitorTTL: time.Minute}, nil)
	limiter.now = func() time.Time { return clock }

	limiter.limiter("ip:a", 1, 1)
	clock = clock.Add(2 * time.Minute)
	limiter.limiter("ip:b", 1, 1)

	assert.Equal(t, 1, limiter.Sweep())
	_, stillThere := limiter.visitors["ip:b"]
	assert.True(t, stillThere)
}
