package security

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestHeadersMiddleware(t *testing.T) {
	handler := Headers{Enable: true, EnableHSTS: true, HSTSIncludeSubdomains: true}.Middleware(okHandler)
	req := httptest.NewRequest(http.MethodGet, "https://example.com", nil)
	req.TLS = &tls.ConnectionState{}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	require.Equal(t, "max-age=31536000; includeSubDomains", rec.Header().Get("Strict-Transport-Security"))
	require.Equal(t, "same-origin", rec.Header().Get("Cross-Origin-Resource-Policy"))

	proxied := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	proxied.Header.Set("X-Forwarded-Proto", "https")
	viaProxy := httptest.NewRecorder()
	handler.ServeHTTP(viaProxy, proxied)
	require.NotEmpty(t, viaProxy.Header().Get("Strict-Transport-Security"))

	plain := httptest.NewRecorder()
	handler.ServeHTTP(plain, httptest.NewRequest(http.MethodGet, "http://example.com", nil))
	require.Empty(t, plain.Header().Get("Strict-Transport-Security"))
}

func TestHeadersMiddlewareDisabled(t *testing.T) {
	rec := httptest.NewRecorder()
	Headers{EnableHSTS: true}.Middleware(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Empty(t, rec.Header().Get("X-Content-Type-Options"))
}

func TestBodyLimit(t *testing.T) {
	var captured string
	handler := BodyLimit{Max: 10}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		captured = string(data)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("hello")))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "hello", captured)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("far too long for ten")))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Contains(t, rec.Body.String(), "PAYLOAD_TOO_LARGE")

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("short"))
	req.ContentLength = 100
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestCSRF(t *testing.T) {
	handler := CSRF{SessionCookie: "sf_session"}.Middleware(okHandler)

	bearer := httptest.NewRequest(http.MethodPost, "/", nil)
	bearer.Header.Set("Authorization", "Bearer t")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, bearer)
	require.Equal(t, http.StatusOK, rec.Code)

	noCookie := httptest.NewRecorder()
	handler.ServeHTTP(noCookie, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusOK, noCookie.Code)

	missing := httptest.NewRequest(http.MethodPost, "/", nil)
	missing.AddCookie(&http.Cookie{Name: "sf_session", Value: "s"})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, missing)
	require.Equal(t, http.StatusForbidden, rec.Code)

	valid := httptest.NewRequest(http.MethodPost, "/", nil)
	valid.AddCookie(&http.Cookie{Name: "sf_session", Value: "s"})
	valid.AddCookie(&http.Cookie{Name: "X-CSRF-Token", Value: "tok"})
	valid.Header.Set("X-CSRF-Token", "tok")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, valid)
	require.Equal(t, http.StatusOK, rec.Code)

	wrong := httptest.NewRequest(http.MethodPost, "/", nil)
	wrong.AddCookie(&http.Cookie{Name: "sf_session", Value: "s"})
	wrong.AddCookie(&http.Cookie{Name: "X-CSRF-Token", Value: "tok"})
	wrong.Header.Set("X-CSRF-Token", "other")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, wrong)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "CSRF_INVALID")
}
