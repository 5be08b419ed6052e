package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/alexedwards/argon2id"

	"github.com/noah-isme/storefront-checkout/internal/common"
	"github.com/noah-isme/storefront-checkout/internal/obs"
)

var errNoToken = errors.New("auth: token missing")

// Middleware wires authentication context into HTTP handlers.
type Middleware struct {
	Verifier     Verifier
	AccessCookie string
}

// Authenticate attaches the identity to the request context when a valid token is present.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := m.authenticateRequest(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth enforces that a valid token is present before executing the next handler.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := m.authenticateRequest(r)
		if err != nil {
			var appErr *common.AppError
			if errors.As(err, &appErr) {
				status := appErr.HTTPStatus
				if status == 0 {
					status = http.StatusUnauthorized
				}
				common.JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
				return
			}
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireVerifiedEmail rejects callers whose identity provider has not verified their email.
// It must run after RequireAuth.
func RequireVerifiedEmail(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := common.IdentityFrom(r.Context())
		if !ok {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		if !id.EmailVerified {
			common.JSONError(w, http.StatusForbidden, "EMAIL_NOT_VERIFIED", "verify your email before checking out", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m Middleware) authenticateRequest(r *http.Request) (context.Context, error) {
	if m.Verifier == nil {
		return r.Context(), errors.New("auth: verifier not configured")
	}
	token := m.extractToken(r)
	if token == "" {
		return r.Context(), unauthorized(errNoToken)
	}
	id, err := m.Verifier.Verify(r.Context(), token)
	if err != nil {
		return r.Context(), err
	}
	obs.AnnotateUser(r.Context(), id.UserID)
	return common.WithIdentity(r.Context(), id), nil
}

func (m Middleware) extractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if m.AccessCookie != "" {
		if cookie, err := r.Cookie(m.AccessCookie); err == nil {
			if value := strings.TrimSpace(cookie.Value); value != "" {
				return value
			}
		}
	}
	return ""
}

// AdminBasicAuth guards operator endpoints with a username and an argon2id password hash.
// An empty User disables the admin surface entirely.
type AdminBasicAuth struct {
	User         string
	PasswordHash string
}

// Middleware implements the guard.
func (a AdminBasicAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(a.User) == "" || strings.TrimSpace(a.PasswordHash) == "" {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "not found", nil)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(a.User)) != 1 {
			a.deny(w)
			return
		}
		match, err := argon2id.ComparePasswordAndHash(p, a.PasswordHash)
		if err != nil || !match {
			a.deny(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (AdminBasicAuth) deny(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
	common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorised", nil)
}

// HashPassword produces an argon2id hash suitable for AdminBasicAuth.PasswordHash.
func HashPassword(password string) (string, error) {
	return argon2id.CreateHash(password, argon2id.DefaultParams)
}
