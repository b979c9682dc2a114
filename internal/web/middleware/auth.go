package middleware

import (
	"context"
	"net/http"
	"strings"

	"trialdex/internal/auth"
	"trialdex/internal/logging"
)

type contextKey int

const principalKey contextKey = iota

// Principal is the authenticated admin attached to a request.
type Principal struct {
	ID    string
	Email string
	Role  auth.Role
}

// PrincipalFromContext returns the authenticated admin, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// Validator checks a bearer token and returns its session claims.
type Validator interface {
	Validate(token string) (*auth.Claims, error)
}

// RequireAuth rejects requests without a valid bearer token and
// attaches the session's principal to the request context.
func RequireAuth(v Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				unauthorized(w, "missing bearer token", "AUTH001")
				return
			}

			claims, err := v.Validate(token)
			if err != nil {
				logging.FromContext(r.Context()).Warn("rejected token",
					"path", r.URL.Path,
					"error", err,
				)
				unauthorized(w, "session is invalid or expired", "AUTH002")
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, Principal{
				ID:    claims.UserID,
				Email: claims.Email,
				Role:  claims.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCapability rejects authenticated requests whose role does not
// grant the capability. Must be mounted after RequireAuth.
func RequireCapability(c auth.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				unauthorized(w, "missing bearer token", "AUTH001")
				return
			}

			if !p.Role.Can(c) {
				logging.FromContext(r.Context()).Warn("capability denied",
					"path", r.URL.Path,
					"role", string(p.Role),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte(`{"error":"your role does not allow this action","code":"AUTH004"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken returns the request's bearer token, or "".
func BearerToken(r *http.Request) string {
	return bearerToken(r)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return h[len(prefix):]
	}
	return ""
}

func unauthorized(w http.ResponseWriter, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `","code":"` + code + `"}`))
}
