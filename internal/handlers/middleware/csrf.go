package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/subtrackhq/subtrack/internal/handlers/render"
)

const csrfHeaderName = "X-CSRF-Token"

// CSRF enforces the double submit check on state-changing requests:
// the X-CSRF-Token header must equal the csrf cookie set at login.
// Safe methods pass through untouched.
func CSRF(cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get(csrfHeaderName)
			cookie, err := r.Cookie(cookieName)

			if header == "" || err != nil ||
				subtle.ConstantTimeCompare([]byte(header), []byte(cookie.Value)) != 1 {
				render.Detail(w, "Invalid CSRF token", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
