package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per caller (user id when authenticated, IP otherwise).
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	cfg      config.RateLimitConfig
	logg     *logger.Logger
	now      func() time.Time
}

// NewRateLimiter builds an in-process limiter from config.
func NewRateLimiter(cfg config.RateLimitConfig, logg *logger.Logger) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		cfg:      cfg,
		logg:     logg,
		now:      time.Now,
	}
}

// Middleware rejects requests once the caller's bucket is empty.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, limit, burst := l.resolve(r)
		if limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		if !l.limiter(key, limit, burst).Allow() {
			if l.logg != nil {
				l.logg.Warn(l.logg.WithField(r.Context(), "bucket", key), "rate_limit.blocked")
			}
			responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many requests"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) resolve(r *http.Request) (string, rate.Limit, int) {
	if caller, ok := CallerFromContext(r.Context()); ok {
		return "user:" + caller.UserID.String(), rate.Limit(l.cfg.UserRPS), l.cfg.UserBurst
	}
	return "ip:" + clientIP(r), rate.Limit(l.cfg.AnonymousRPS), l.cfg.AnonymousBurst
}

func (l *RateLimiter) limiter(key string, limit rate.Limit, burst int) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(limit, burst)}
		l.visitors[key] = v
	}
	v.lastSeen = l.now()
	return v.limiter
}

// Sweep drops buckets idle for longer than the configured visitor TTL.
func (l *RateLimiter) Sweep() int {
	ttl := l.cfg.VisitorTTL
	if ttl <= 0 {
		ttl = 3 * time.Minute
	}
	cutoff := l.now().Add(-ttl)

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, key)
			removed++
		}
	}
	return removed
}

// Run sweeps idle buckets every minute until ctx is done.
func (l *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
