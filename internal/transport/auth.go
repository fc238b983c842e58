package transport

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnauthorized indicates invalid or missing credentials.
var ErrUnauthorized = errors.New("unauthorized")

type principalKey struct{}

// Resolver resolves the caller behind a bearer token.
type Resolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// StaticTokens accepts a fixed set of bearer tokens.
type StaticTokens []string

// Resolve returns a stable, non-secret principal name for a known token.
func (s StaticTokens) Resolve(_ context.Context, token string) (string, error) {
	for i, known := range s {
		if known != "" && subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
			return fmt.Sprintf("token-%d", i+1), nil
		}
	}
	return "", ErrUnauthorized
}

// PrincipalFromContext returns the authenticated caller, if present.
func PrincipalFromContext(ctx context.Context) (string, bool) {
	principal, ok := ctx.Value(principalKey{}).(string)
	return principal, ok
}

// AuthMiddleware enforces bearer token authentication.
func AuthMiddleware(resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if token == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			principal, err := resolver.Resolve(r.Context(), token)
			if err != nil || principal == "" {
				http.Error(w, "invalid bearer token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), principalKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
