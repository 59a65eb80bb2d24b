package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var body Envelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]string{"hello": "world"})

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.True(t, body.Success)
	assert.Nil(t, body.Error)
	assert.False(t, body.Timestamp.IsZero())
	assert.Equal(t, "world", body.Data.(map[string]any)["hello"])
}

func TestWriteMessage(t *testing.T) {
	w := httptest.NewRecorder()
	WriteMessage(w, http.StatusCreated, "Order created successfully", nil)

	require.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.True(t, body.Success)
	assert.Equal(t, "Order created successfully", body.Message)
}

func TestWriteErrorMapsTypedError(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "bad input").
		WithDetails(map[string]string{"field": "demo"})
	WriteError(context.Background(), nil, w, err)

	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.False(t, body.Success)
	require.NotNil(t, body.Error)
	assert.Equal(t, string(pkgerrors.CodeValidation), body.Error.Code)
	assert.Equal(t, "bad input", body.Error.Message)
	assert.NotNil(t, body.Error.Details)
}

func TestWriteErrorStatusMapping(t *testing.T) {
	cases := map[pkgerrors.Code]int{
		pkgerrors.CodeNotFound:          http.StatusNotFound,
		pkgerrors.CodeConflict:          http.StatusConflict,
		pkgerrors.CodeInvalidTransition: http.StatusUnprocessableEntity,
		pkgerrors.CodeInsufficientStock: http.StatusConflict,
		pkgerrors.CodeUnauthorized:      http.StatusUnauthorized,
		pkgerrors.CodeForbidden:         http.StatusForbidden,
	}
	for code, status := range cases {
		w := httptest.NewRecorder()
		WriteError(context.Background(), nil, w, pkgerrors.New(code, "nope"))
		assert.Equal(t, status, w.Code, code)
		assert.Equal(t, "nope", decode(t, w).Error.Message, code)
	}
}

func TestWriteErrorDefaultsToInternalForUntrustedErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("pq: relation missing"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	require.NotNil(t, body.Error)
	assert.Equal(t, string(pkgerrors.CodeInternal), body.Error.Code)
	assert.Equal(t, "internal server error", body.Error.Message)
	assert.Nil(t, body.Error.Details)
}

func TestTimestampUsesClock(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	prev := now
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = prev })

	w := httptest.NewRecorder()
	WriteSuccess(w, nil)
	assert.True(t, decode(t, w).Timestamp.Equal(fixed))
}

func TestWriteErrorHidesDependencyMessageButMarksRetryable(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("dial tcp 10.0.0.3:6379"), "redis down").
		WithDetails(map[string]string{"dependency": "cache"})
	WriteError(context.Background(), nil, w, err)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)
	require.NotNil(t, body.Error)
	assert.Equal(t, "dependency unavailable", body.Error.Message)
	assert.True(t, body.Error.Retryable)
	assert.NotNil(t, body.Error.Details)
}
