package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/alanyoungcy/predictledger/internal/auth"
)

// Auth maps API tokens to principals. The token comes from a Bearer
// Authorization header or X-API-Key; the matching principal is bound to the
// request context for the ledger's authorizer. With no tokens configured,
// authentication is disabled. Paths in public skip the check.
func Auth(tokens map[string]string, public ...string) func(http.Handler) http.Handler {
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(tokens) == 0 || open[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			token := extractToken(r)
			if token == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing authentication token")
				return
			}
			principal, ok := lookupToken(tokens, token)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "invalid authentication token")
				return
			}
			recordPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
		})
	}
}

// lookupToken compares against every configured token in constant time.
func lookupToken(tokens map[string]string, token string) (string, bool) {
	var found string
	ok := false
	for t, principal := range tokens {
		if subtle.ConstantTimeCompare([]byte(t), []byte(token)) == 1 {
			found, ok = principal, true
		}
	}
	return found, ok
}

// extractToken reads a Bearer token or the X-API-Key header. WebSocket
// upgrades may pass ?token= since browsers cannot set headers on them.
func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if k := strings.TrimSpace(r.Header.Get("X-API-Key")); k != "" {
		return k
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return strings.TrimSpace(r.URL.Query().Get("token"))
	}
	return ""
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
