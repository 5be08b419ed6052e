package payment

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-checkout/internal/checkout"
	"github.com/noah-isme/storefront-checkout/internal/common"
	"github.com/noah-isme/storefront-checkout/internal/obs"
)

// Orders is the slice of the checkout service payment needs.
type Orders interface {
	Order(ctx context.Context, userID, orderID string) (checkout.Order, error)
	AttachGatewayOrder(ctx context.Context, userID, orderID, gatewayOrderID string) error
	ConfirmPayment(ctx context.Context, userID, orderID, paymentID string) (checkout.Order, error)
}

// Handler serves the gateway order and verification endpoints.
type Handler struct {
	Orders  Orders
	Gateway Gateway
	KeyID   string
	Secret  string
	Logger  zerolog.Logger
}

type createOrderRequest struct {
	OrderID string `json:"orderId" validate:"required"`
}

type verifyRequest struct {
	OrderID        string `json:"orderId" validate:"required"`
	GatewayOrderID string `json:"gatewayOrderId" validate:"required"`
	PaymentID      string `json:"paymentId" validate:"required"`
	Signature      string `json:"signature" validate:"required"`
}

// Routes mounts the payment endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/order", h.CreateOrder)
	r.Post("/verify", h.Verify)
}

// CreateOrder opens a gateway order for the placed order's total in minor units.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var payload createOrderRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	ctx := r.Context()
	order, err := h.Orders.Order(ctx, userID, payload.OrderID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if order.Status != checkout.StatusPendingPayment {
		common.JSONError(w, http.StatusConflict, "ORDER_NOT_PENDING", "order is not awaiting payment", nil)
		return
	}
	gwOrder, err := h.Gateway.CreateOrder(ctx, OrderRequest{
		AmountMinor: order.AmountMinor,
		Currency:    order.Currency,
		Receipt:     order.ID,
		Notes:       map[string]string{"userId": userID},
	})
	if err != nil {
		obs.ObservePaymentOrder("error")
		h.Logger.Error().Err(err).Str("order_id", order.ID).Msg("gateway_order_failed")
		common.JSONError(w, http.StatusBadGateway, "GATEWAY_ERROR", "unable to start payment", nil)
		return
	}
	if err := h.Orders.AttachGatewayOrder(ctx, userID, order.ID, gwOrder.ID); err != nil {
		h.writeError(w, err)
		return
	}
	obs.ObservePaymentOrder("created")
	common.JSON(w, http.StatusCreated, map[string]any{
		"data": map[string]any{
			"orderId":        order.ID,
			"gatewayOrderId": gwOrder.ID,
			"amount":         gwOrder.AmountMinor,
			"currency":       gwOrder.Currency,
			"keyId":          h.KeyID,
		},
	})
}

// Verify checks the gateway signature and confirms the order on success.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var payload verifyRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	ctx := r.Context()
	order, err := h.Orders.Order(ctx, userID, payload.OrderID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	// The signature must cover the gateway order opened for this order, never an
	// id chosen by the client.
	if order.GatewayOrderID == "" || order.GatewayOrderID != payload.GatewayOrderID {
		obs.ObservePaymentVerification("order_mismatch")
		h.Logger.Warn().Str("order_id", order.ID).Str("gateway_order_id", payload.GatewayOrderID).Msg("payment_gateway_order_mismatch")
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "payment verification failed", nil)
		return
	}
	if !Verify(order.GatewayOrderID, payload.PaymentID, payload.Signature, h.Secret) {
		obs.ObservePaymentVerification("invalid_signature")
		h.Logger.Warn().Str("order_id", order.ID).Str("payment_id", payload.PaymentID).Msg("payment_signature_invalid")
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "payment verification failed", nil)
		return
	}
	paid, err := h.Orders.ConfirmPayment(ctx, userID, order.ID, payload.PaymentID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	obs.ObservePaymentVerification("verified")
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"verified": true,
		"order":    paid,
	}})
}

func (h *Handler) user(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.Orders == nil || h.Gateway == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "payment service not configured", nil)
		return "", false
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return "", false
	}
	return userID, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkout.ErrOrderNotFound), errors.Is(err, checkout.ErrForbidden):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
	case errors.Is(err, checkout.ErrOrderNotPending):
		common.JSONError(w, http.StatusConflict, "ORDER_NOT_PENDING", "order is not awaiting payment", nil)
	default:
		h.Logger.Error().Err(err).Msg("payment_handler_error")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
