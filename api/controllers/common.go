package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/access"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// requireCaller writes 401 and reports false when Auth did not run.
func requireCaller(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (access.Caller, bool) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
		return access.Caller{}, false
	}
	return caller, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, logg *logger.Logger, param, field string) (uuid.UUID, bool) {
	id, err := validators.ParsePathUUID(chi.URLParam(r, param), field)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, false
	}
	return id, true
}

func serviceUnavailable(w http.ResponseWriter, r *http.Request, logg *logger.Logger, name string) {
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, name+" service unavailable"))
}

// optionalEnum parses a query value with parse, returning nil when absent.
func optionalEnum[T any](r *http.Request, key string, parse func(string) (T, error)) (*T, error) {
	raw := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get(key)))
	if raw == "" {
		return nil, nil
	}
	value, err := parse(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+key).
			WithDetails(map[string]any{"field": key})
	}
	return &value, nil
}
