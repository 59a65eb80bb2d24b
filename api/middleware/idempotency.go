package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"

	// inFlightTTL bounds how long a crashed request can block its key.
	inFlightTTL = 2 * time.Minute
)

// IdempotencyPolicy controls how long a key is honored and whether callers must send one.
type IdempotencyPolicy struct {
	TTL      time.Duration
	Required bool
}

var (
	// IdempotencyOptional covers catalog and cart writes.
	IdempotencyOptional = IdempotencyPolicy{TTL: 24 * time.Hour}
	// IdempotencyCritical covers order state changes a client may safely resend.
	IdempotencyCritical = IdempotencyPolicy{TTL: 7 * 24 * time.Hour}
	// IdempotencyRequired covers routes that move money or stock.
	IdempotencyRequired = IdempotencyPolicy{TTL: 7 * 24 * time.Hour, Required: true}
)

// IdempotencyStore is the redis surface the guard needs.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Idempotency replays the first completed response for a repeated Idempotency-Key.
type Idempotency struct {
	store IdempotencyStore
	logg  *logger.Logger
}

// NewIdempotency returns a guard factory. A nil store disables replay entirely.
func NewIdempotency(store IdempotencyStore, logg *logger.Logger) *Idempotency {
	return &Idempotency{store: store, logg: logg}
}

type storedResponse struct {
	InFlight    bool   `json:"in_flight,omitempty"`
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Guard wraps one route with the given policy.
func (i *Idempotency) Guard(policy IdempotencyPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if i == nil || i.store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" {
				if policy.Required {
					responses.WriteError(ctx, i.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, i.logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fingerprint := sha256.Sum256(body)
			hash := hex.EncodeToString(fingerprint[:])
			key := i.store.IdempotencyKey(strings.Join([]string{UserIDFromContext(ctx), r.Method, r.URL.Path}, "|"), clientKey)

			claimed, err := i.claim(ctx, key, hash)
			if err != nil {
				responses.WriteError(ctx, i.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				i.replay(ctx, w, key, hash)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)
			i.settle(ctx, key, hash, capture, policy.TTL)
		})
	}
}

func (i *Idempotency) claim(ctx context.Context, key, hash string) (bool, error) {
	marker, err := json.Marshal(storedResponse{InFlight: true, RequestHash: hash})
	if err != nil {
		return false, err
	}
	return i.store.SetNX(ctx, key, string(marker), inFlightTTL)
}

func (i *Idempotency) replay(ctx context.Context, w http.ResponseWriter, key, hash string) {
	raw, err := i.store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// the in-flight marker expired between SETNX and GET
		responses.WriteError(ctx, i.logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is still being processed"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, i.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency record"))
		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, i.logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotency record"))
		return
	}
	switch {
	case stored.RequestHash != hash:
		responses.WriteError(ctx, i.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case stored.InFlight:
		responses.WriteError(ctx, i.logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is still being processed"))
	default:
		if stored.ContentType != "" {
			w.Header().Set("Content-Type", stored.ContentType)
		}
		w.Header().Set(replayedHeader, "true")
		w.WriteHeader(stored.Status)
		_, _ = w.Write(stored.Body)
	}
}

// settle stores the final response, or frees the key when the server failed so the client can retry.
func (i *Idempotency) settle(ctx context.Context, key, hash string, capture *responseCapture, ttl time.Duration) {
	// the client may have gone away; the record must still land
	ctx = context.WithoutCancel(ctx)

	status := capture.statusOrOK()
	if status >= http.StatusInternalServerError {
		if err := i.store.Del(ctx, key); err != nil {
			i.logError(ctx, "release idempotency key", err)
		}
		return
	}

	payload, err := json.Marshal(storedResponse{
		RequestHash: hash,
		Status:      status,
		ContentType: capture.Header().Get("Content-Type"),
		Body:        capture.body.Bytes(),
	})
	if err != nil {
		i.logError(ctx, "encode idempotency record", err)
		return
	}
	if err := i.store.Set(ctx, key, string(payload), ttl); err != nil {
		i.logError(ctx, "persist idempotency record", err)
	}
}

func (i *Idempotency) logError(ctx context.Context, msg string, err error) {
	if i.logg != nil {
		i.logg.Error(ctx, msg, err)
	}
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusOrOK() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
