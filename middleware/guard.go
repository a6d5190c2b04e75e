package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/vitadrop/vitaauth"
)

// Authenticator is the part of [vitaauth.Engine] the guard needs.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*vitaauth.Principal, error)
}

type principalContextKey struct{}

// PrincipalFromContext returns the principal stored by [Guard].
func PrincipalFromContext(ctx context.Context) (vitaauth.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(vitaauth.Principal)
	return p, ok
}

// WithPrincipal stores p in ctx the way [Guard] does.
func WithPrincipal(ctx context.Context, p vitaauth.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// Guard authenticates every request from its Authorization header. Failures
// are written with [WriteError]; the handler is not called.
func Guard(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				WriteError(w, vitaauth.ErrEngineNotReady)
				return
			}

			p, err := auth.Authenticate(r.Context(), BearerToken(r))
			if err != nil {
				WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), *p)))
		})
	}
}

// RequireRole lets through only principals holding one of roles. It must be
// mounted behind [Guard].
func RequireRole(roles ...vitaauth.Role) func(http.Handler) http.Handler {
	allowed := make(map[vitaauth.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				WriteError(w, vitaauth.ErrNoToken)
				return
			}
			if _, ok := allowed[p.Role]; !ok {
				WriteError(w, vitaauth.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken extracts the access token from the Authorization header. The
// "Bearer" scheme is matched case-insensitively; a bare token is accepted
// as is. It returns "" when there is none.
func BearerToken(r *http.Request) string {
	value := strings.TrimSpace(r.Header.Get("Authorization"))
	if value == "" {
		return ""
	}

	scheme, token, found := strings.Cut(value, " ")
	if !found {
		if strings.EqualFold(value, "bearer") {
			return ""
		}
		return value
	}
	if !strings.EqualFold(scheme, "bearer") {
		return value
	}
	return strings.TrimSpace(token)
}
