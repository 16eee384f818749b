// Package middleware contains HTTP middleware for the gateway API.
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"hpcgateway/internal/auth"
	"hpcgateway/internal/gateway"
	"hpcgateway/internal/logger"
)

// identityKey is the context key for the resolved caller.
type identityKey struct{}

// IdentityResolver turns a bearer token into a verified identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (auth.Identity, error)
}

// AuthMiddleware resolves the bearer token of every request and stores the
// caller's identity in the request context.
func AuthMiddleware(resolver IdentityResolver, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.TokenFromHeader(r.Header.Get("Authorization"))
			if err != nil {
				WriteError(w, gateway.FromAuth(err))
				return
			}

			id, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				logger.FromContext(r.Context(), log).Warn("authentication failed",
					"token", auth.Fingerprint(token),
					"error", err,
				)
				WriteError(w, gateway.FromAuth(err))
				return
			}

			ctx := logger.WithCaller(NewContextWithIdentity(r.Context(), id), id.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewContextWithIdentity returns a new context with the given identity.
func NewContextWithIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext extracts the caller's identity from the context.
func IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(auth.Identity)
	return id, ok
}
