package middleware

import (
	"net/http"
	"strings"
)

const (
	corsAllowMethods  = "GET, POST, OPTIONS"
	corsAllowHeaders  = "Content-Type, Authorization, X-API-Key"
	corsExposeHeaders = "Retry-After"
	corsMaxAge        = "86400"
)

// originPolicy decides which browser origins may call the API.
type originPolicy struct {
	any     bool
	origins map[string]struct{}
}

func newOriginPolicy(allowed []string) originPolicy {
	p := originPolicy{any: len(allowed) == 0, origins: make(map[string]struct{}, len(allowed))}
	for _, o := range allowed {
		o = strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
		if o == "*" {
			p.any = true
			continue
		}
		if o != "" {
			p.origins[o] = struct{}{}
		}
	}
	return p
}

func (p originPolicy) allows(origin string) bool {
	if p.any {
		return true
	}
	_, ok := p.origins[strings.ToLower(origin)]
	return ok
}

// CORS echoes allowed origins back to browsers and answers preflight
// requests directly. No origins, or "*", allows every origin.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	policy := newOriginPolicy(allowedOrigins)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")
			if origin := r.Header.Get("Origin"); origin != "" && policy.allows(origin) {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
				if r.Method == http.MethodOptions {
					h.Set("Access-Control-Allow-Methods", corsAllowMethods)
					h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
					h.Set("Access-Control-Max-Age", corsMaxAge)
				}
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
