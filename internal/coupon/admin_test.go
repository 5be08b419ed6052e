package coupon_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-checkout/internal/coupon"
	"github.com/noah-isme/storefront-checkout/internal/store/memory"
)

func newAdminRouter(store *memory.Store) http.Handler {
	h := &coupon.AdminHandler{Repo: store}
	r := chi.NewRouter()
	r.Route("/admin/coupons", h.Routes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAdminListFallsBackToDefaults(t *testing.T) {
	rec := do(t, newAdminRouter(memory.New()), http.MethodGet, "/admin/coupons/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data   []map[string]any `json:"data"`
		Stored int              `json:"stored"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 3)
	require.Zero(t, body.Stored)
}

func TestAdminPutAndDelete(t *testing.T) {
	store := memory.New()
	router := newAdminRouter(store)

	rec := do(t, router, http.MethodPut, "/admin/coupons/flat100", `{"type":"fixed","value":100,"minOrder":999}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	list, err := store.ListCoupons(t.Context())
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "FLAT100", list[0].Code)
	require.Equal(t, 999.0, list[0].MinOrder)

	rec = do(t, router, http.MethodDelete, "/admin/coupons/FLAT100", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, router, http.MethodDelete, "/admin/coupons/FLAT100", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminPutValidation(t *testing.T) {
	router := newAdminRouter(memory.New())
	rec := do(t, router, http.MethodPut, "/admin/coupons/BAD", `{"type":"bogo","value":5}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "VALIDATION_FAILED")

	rec = do(t, router, http.MethodPut, "/admin/coupons/BIG", `{"type":"percentage","value":150}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminPreview(t *testing.T) {
	router := newAdminRouter(memory.New())
	rec := do(t, router, http.MethodPost, "/admin/coupons/preview", `{"code":"save50","subtotal":200}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data struct {
			Decision coupon.Decision `json:"decision"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, coupon.ReasonMinimumOrderNotMet, body.Data.Decision.Reason)
	require.Equal(t, 299.0, body.Data.Decision.Shortfall)

	rec = do(t, router, http.MethodPost, "/admin/coupons/preview", `{"code":"SAVE50","subtotal":600}`)
	require.Contains(t, rec.Body.String(), `"discountAmount":50`)

	rec = do(t, router, http.MethodPost, "/admin/coupons/preview", `{"code":"NOPE","subtotal":600}`)
	require.Contains(t, rec.Body.String(), "NOT_FOUND")
}
