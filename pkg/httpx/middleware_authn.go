package httpx

import (
	"context"
	"net/http"
	"strings"
)

// Identity is what a successful bearer authentication resolves to.
type Identity struct {
	UserID string
	Scopes []string
}

// Authenticator resolves an opaque bearer token to an identity. Any error
// means the request is rejected with a uniform 401; implementations must not
// leak why the token was invalid.
type Authenticator interface {
	AuthenticateToken(ctx context.Context, token string) (Identity, error)
}

// AuthnMiddleware authenticates requests via the Authorization header and
// injects the resolved identity into the request context.
func AuthnMiddleware(a Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			authz := r.Header.Get("Authorization")
			if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
				writeBearerError(w, "missing bearer token")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))

			ident, err := a.AuthenticateToken(ctx, raw)
			if err != nil {
				writeBearerError(w, "token verification failed")
				return
			}

			// Inject into context for downstream handlers.
			ctx = context.WithValue(ctx, CtxKeyUserID, ident.UserID)
			ctx = context.WithValue(ctx, CtxKeyScopes, ident.Scopes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	w.WriteHeader(http.StatusUnauthorized)
}
