package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type fakeStore struct {
	data   map[string]string
	ttls   map[string]time.Duration
	setErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.data[key] = value.(string)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = value.(string)
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "fake:" + scope + ":" + id
}

func postWithKey(path, body, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return req
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestIdempotencyOptionalKeyPassesThrough(t *testing.T) {
	store := newFakeStore()
	var calls int
	handler := NewIdempotency(store, nil).Guard(IdempotencyOptional)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), postWithKey("/api/v1/cart/items", `{"quantity":1}`, ""))
	}
	assert.Equal(t, 2, calls)
	assert.Empty(t, store.data)
}

func TestIdempotencyRequiredKeyMissing(t *testing.T) {
	called := false
	handler := NewIdempotency(newFakeStore(), nil).Guard(IdempotencyRequired)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, postWithKey("/api/v1/orders", `{}`, ""))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.False(t, called)
}

func TestIdempotencyReplaysCompletedResponse(t *testing.T) {
	store := newFakeStore()
	var calls int
	handler := NewIdempotency(store, nil).Guard(IdempotencyRequired)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"orderNumber":"ORD-1"}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, postWithKey("/api/v1/orders", `{"a":1}`, "abc"))
	require.Equal(t, http.StatusCreated, first.Code)
	assert.Empty(t, first.Header().Get(replayedHeader))

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, postWithKey("/api/v1/orders", `{"a":1}`, "abc"))

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Equal(t, "true", second.Header().Get(replayedHeader))
	assert.JSONEq(t, `{"orderNumber":"ORD-1"}`, second.Body.String())
	for _, ttl := range store.ttls {
		assert.Equal(t, IdempotencyRequired.TTL, ttl)
	}
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	store := newFakeStore()
	handler := NewIdempotency(store, nil).Guard(IdempotencyRequired)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), postWithKey("/api/v1/orders", `{"a":1}`, "xyz"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, postWithKey("/api/v1/orders", `{"a":2}`, "xyz"))

	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, resp))
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	store := newFakeStore()
	guard := NewIdempotency(store, nil).Guard(IdempotencyRequired)

	var inner *httptest.ResponseRecorder
	handler := guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// a second delivery arrives while the first is still running
		inner = httptest.NewRecorder()
		guard(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("duplicate must not reach the handler")
		})).ServeHTTP(inner, postWithKey("/api/v1/payments", `{"a":1}`, "dup"))
		w.WriteHeader(http.StatusCreated)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), postWithKey("/api/v1/payments", `{"a":1}`, "dup"))

	require.NotNil(t, inner)
	assert.Equal(t, http.StatusConflict, inner.Code)
	assert.Equal(t, string(pkgerrors.CodeConflict), errorCode(t, inner))
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	store := newFakeStore()
	status := http.StatusServiceUnavailable
	var calls int
	handler := NewIdempotency(store, nil).Guard(IdempotencyRequired)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), postWithKey("/api/v1/orders", `{}`, "retry-me"))
	assert.Empty(t, store.data)

	status = http.StatusCreated
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, postWithKey("/api/v1/orders", `{}`, "retry-me"))
	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, 2, calls)
}

func TestIdempotencyScopesKeysPerPath(t *testing.T) {
	store := newFakeStore()
	handler := NewIdempotency(store, nil).Guard(IdempotencyOptional)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), postWithKey("/api/v1/orders/1/cancel", `{}`, "k"))
	handler.ServeHTTP(httptest.NewRecorder(), postWithKey("/api/v1/orders/2/cancel", `{}`, "k"))
	assert.Len(t, store.data, 2)
}

func TestIdempotencyPersistFailureStillServesResponse(t *testing.T) {
	store := newFakeStore()
	store.setErr = errors.New("redis down")
	handler := NewIdempotency(store, nil).Guard(IdempotencyOptional)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, postWithKey("/api/v1/cart/items", `{}`, "k"))
	assert.Equal(t, http.StatusAccepted, resp.Code)
}

func TestIdempotencyNilStoreDisablesGuard(t *testing.T) {
	called := false
	handler := NewIdempotency(nil, nil).Guard(IdempotencyRequired)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	handler.ServeHTTP(httptest.NewRecorder(), postWithKey("/api/v1/orders", `{}`, ""))
	assert.True(t, called)
}
