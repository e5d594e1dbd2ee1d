package auth

import (
	"context"
	"strings"
)

type contextKey string

const identityContextKey contextKey = "github.com/kaigo-note/api/internal/platform/auth/identity"

// Identity captures the authenticated API client resolved from its token.
type Identity struct {
	Name string
}

// WithIdentity stores the identity on the request context.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity injected by the middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// CallerName returns the authenticated client name or an empty string.
func CallerName(ctx context.Context) string {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return ""
	}
	return strings.TrimSpace(identity.Name)
}
