package security

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/noah-isme/storefront-checkout/internal/common"
)

// CSRF applies double-submit protection to requests authenticated by the session
// cookie. Bearer-token requests and requests without the session cookie pass through.
type CSRF struct {
	SessionCookie string
	Header        string
}

// Middleware enforces that unsafe cookie-authenticated requests echo the CSRF cookie in a header.
func (c CSRF) Middleware(next http.Handler) http.Handler {
	headerName := strings.TrimSpace(c.Header)
	if headerName == "" {
		headerName = "X-CSRF-Token"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.applies(r) {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimSpace(r.Header.Get(headerName))
		cookie, err := r.Cookie(headerName)
		if token == "" || err != nil || strings.TrimSpace(cookie.Value) == "" {
			common.JSONError(w, http.StatusForbidden, "CSRF_REQUIRED", "missing csrf token", nil)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(cookie.Value)) != 1 {
			common.JSONError(w, http.StatusForbidden, "CSRF_INVALID", "invalid csrf token", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c CSRF) applies(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	}
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(r.Header.Get("Authorization"))), "bearer ") {
		return false
	}
	if strings.TrimSpace(c.SessionCookie) == "" {
		return false
	}
	_, err := r.Cookie(c.SessionCookie)
	return err == nil
}
