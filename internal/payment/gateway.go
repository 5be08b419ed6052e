package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/storefront-checkout/internal/resilience"
)

// ErrGatewayRejected is returned when the gateway answers with a 4xx.
var ErrGatewayRejected = errors.New("payment: gateway rejected request")

// OrderRequest asks the gateway to open an order for an amount in minor units.
type OrderRequest struct {
	AmountMinor int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Receipt     string            `json:"receipt"`
	Notes       map[string]string `json:"notes,omitempty"`
}

// GatewayOrder is the gateway's view of an opened order.
type GatewayOrder struct {
	ID          string `json:"id"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	Receipt     string `json:"receipt"`
	Status      string `json:"status"`
}

// Gateway abstracts the hosted payment provider.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error)
}

// Client talks to the gateway REST API using key id / secret basic auth.
type Client struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	HTTP      resilience.HTTPClient
}

// CreateOrder implements Gateway.
func (c Client) CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error) {
	if req.AmountMinor <= 0 {
		return GatewayOrder{}, fmt.Errorf("amount must be positive: %w", ErrGatewayRejected)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return GatewayOrder{}, err
	}
	endpoint := strings.TrimRight(c.BaseURL, "/") + "/v1/orders"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return GatewayOrder{}, err
	}
	httpReq.SetBasicAuth(c.KeyID, c.KeySecret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(ctx, httpReq)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("payment: create order: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return GatewayOrder{}, err
	}
	if resp.StatusCode >= 400 {
		return GatewayOrder{}, fmt.Errorf("%w: status %d: %s", ErrGatewayRejected, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out GatewayOrder
	if err := json.Unmarshal(raw, &out); err != nil {
		return GatewayOrder{}, fmt.Errorf("payment: decode gateway order: %w", err)
	}
	if out.ID == "" {
		return GatewayOrder{}, errors.New("payment: gateway order id missing")
	}
	return out, nil
}

// Sandbox fabricates gateway orders locally for development without gateway credentials.
type Sandbox struct{}

// CreateOrder implements Gateway.
func (Sandbox) CreateOrder(_ context.Context, req OrderRequest) (GatewayOrder, error) {
	if req.AmountMinor <= 0 {
		return GatewayOrder{}, fmt.Errorf("amount must be positive: %w", ErrGatewayRejected)
	}
	return GatewayOrder{
		ID:          "order_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14],
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
		Receipt:     req.Receipt,
		Status:      "created",
	}, nil
}
