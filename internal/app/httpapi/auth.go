package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rafflehub/rewards/internal/httputil"
	"github.com/rafflehub/rewards/internal/middleware"
)

// WrapWithAuth requires a static bearer API token on every route except
// health, metrics and the admin subtree, which carries its own JWT auth. An
// optional rate limiter runs inside the auth check so throttling keys on
// the caller, not the anonymous connection.
func WrapWithAuth(next http.Handler, apiTokens []string, limiter *middleware.RateLimiter) http.Handler {
	inner := next
	if limiter != nil {
		inner = limiter.Handler(next)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/health", r.URL.Path == "/metrics":
			next.ServeHTTP(w, r)
			return
		case strings.HasPrefix(r.URL.Path, "/admin"):
			inner.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || !tokenAllowed(parts[1], apiTokens) {
			httputil.Unauthorized(w, "valid API token required")
			return
		}

		inner.ServeHTTP(w, r)
	})
}

func tokenAllowed(token string, allowed []string) bool {
	for _, candidate := range allowed {
		if subtle.ConstantTimeCompare([]byte(token), []byte(candidate)) == 1 {
			return true
		}
	}
	return false
}
