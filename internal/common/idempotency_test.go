package common

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestIdemRejectsReplayForSameCaller(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	calls := 0
	handler := Idem{R: client, TTL: time.Minute}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	newReq := func(user string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/order", nil)
		req.Header.Set("Idempotency-Key", "abc")
		return req.WithContext(WithIdentity(req.Context(), Identity{UserID: user}))
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newReq("u1"))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, newReq("u1"))
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, newReq("u2"))
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, 2, calls)
}

func TestIdemPassesThroughWithoutHeader(t *testing.T) {
	calls := 0
	handler := Idem{}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, 1, calls)
}

func TestIdemReleasesKeyAfterServerError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	status := http.StatusBadGateway
	handler := Idem{R: client}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/orders", nil)
		r.Header.Set("Idempotency-Key", "retry-me")
		return r
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req())
	require.Equal(t, http.StatusBadGateway, rr.Code)

	status = http.StatusCreated
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req())
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req())
	require.Equal(t, http.StatusConflict, rr.Code)
	require.JSONEq(t, `{"error":{"code":"IDEMPOTENT_REPLAY","message":"duplicate request"}}`, rr.Body.String())
}
