package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-checkout/internal/resilience"
)

func TestClientCreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "rzp_key", user)
		require.Equal(t, "rzp_secret", pass)
		var req OrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, int64(57982), req.AmountMinor)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(GatewayOrder{ID: "order_abc", AmountMinor: req.AmountMinor, Currency: req.Currency, Receipt: req.Receipt, Status: "created"})
	}))
	defer srv.Close()

	c := Client{BaseURL: srv.URL, KeyID: "rzp_key", KeySecret: "rzp_secret", HTTP: resilience.NewTracedClient("gateway", time.Second, 1)}
	out, err := c.CreateOrder(context.Background(), OrderRequest{AmountMinor: 57982, Currency: "INR", Receipt: "o1"})
	require.NoError(t, err)
	require.Equal(t, "order_abc", out.ID)
	require.Equal(t, "o1", out.Receipt)
}

func TestClientCreateOrderRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"description":"amount too small"}}`))
	}))
	defer srv.Close()

	c := Client{BaseURL: srv.URL, HTTP: resilience.NewTracedClient("gateway", time.Second, 1)}
	_, err := c.CreateOrder(context.Background(), OrderRequest{AmountMinor: 1, Currency: "INR"})
	require.ErrorIs(t, err, ErrGatewayRejected)

	_, err = c.CreateOrder(context.Background(), OrderRequest{AmountMinor: 0})
	require.ErrorIs(t, err, ErrGatewayRejected)
}

func TestSandboxCreateOrder(t *testing.T) {
	out, err := Sandbox{}.CreateOrder(context.Background(), OrderRequest{AmountMinor: 100, Currency: "INR", Receipt: "o1"})
	require.NoError(t, err)
	require.Contains(t, out.ID, "order_")
	require.Equal(t, int64(100), out.AmountMinor)
}
