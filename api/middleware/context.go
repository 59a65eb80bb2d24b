package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/access"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

type contextKey string

const (
	ctxCaller   contextKey = "caller"
	ctxAccessID contextKey = "access_id"
)

// WithCaller injects the authenticated caller into the context.
func WithCaller(ctx context.Context, caller access.Caller) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxCaller, caller)
}

// CallerFromContext returns the caller seeded by Auth.
func CallerFromContext(ctx context.Context) (access.Caller, bool) {
	if ctx == nil {
		return access.Caller{}, false
	}
	caller, ok := ctx.Value(ctxCaller).(access.Caller)
	if !ok || caller.UserID == uuid.Nil {
		return access.Caller{}, false
	}
	return caller, true
}

func UserIDFromContext(ctx context.Context) string {
	if caller, ok := CallerFromContext(ctx); ok {
		return caller.UserID.String()
	}
	return ""
}

func RoleFromContext(ctx context.Context) enums.Role {
	if caller, ok := CallerFromContext(ctx); ok {
		return caller.Role
	}
	return ""
}

// AccessIDFromContext returns the jti of the access token, used to revoke the session on logout.
func AccessIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxAccessID).(string); ok {
		return v
	}
	return ""
}

func withAccessID(ctx context.Context, accessID string) context.Context {
	return context.WithValue(ctx, ctxAccessID, accessID)
}
