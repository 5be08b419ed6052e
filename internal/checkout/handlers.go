package checkout

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/storefront-checkout/internal/common"
	"github.com/noah-isme/storefront-checkout/internal/coupon"
	"github.com/noah-isme/storefront-checkout/internal/lock"
	"github.com/noah-isme/storefront-checkout/internal/pricing"
)

// Handler exposes checkout operations over HTTP.
type Handler struct {
	Svc *Service
	// CouponLimit, when set, guards coupon apply attempts.
	CouponLimit func(http.Handler) http.Handler
}

type applyCouponRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

type placeOrderRequest struct {
	Address Address `json:"address"`
}

// Routes mounts checkout endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/summary", h.Summary)
	apply := http.Handler(http.HandlerFunc(h.ApplyCoupon))
	if h.CouponLimit != nil {
		apply = h.CouponLimit(apply)
	}
	r.Method(http.MethodPost, "/coupons", apply)
	r.Delete("/coupons/{code}", h.RemoveCoupon)
	r.Post("/orders", h.PlaceOrder)
	r.Get("/orders", h.ListOrders)
	r.Get("/orders/{id}", h.GetOrder)
}

// Summary returns the priced checkout view.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Summary(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

// ApplyCoupon validates and applies a coupon. Rejections are 422 with the reason code.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var payload applyCouponRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	view, decision, err := h.Svc.ApplyCoupon(r.Context(), userID, payload.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !decision.Accepted {
		writeRejection(w, decision, view.Summary)
		return
	}
	common.Data(w, http.StatusOK, view)
}

// RemoveCoupon removes a coupon code from the session.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.RemoveCoupon(r.Context(), userID, chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

// PlaceOrder snapshots the checkout into a pending order.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := common.IdentityFrom(r.Context())
	if !ok || h.Svc == nil {
		h.user(w, r)
		return
	}
	var payload placeOrderRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	order, err := h.Svc.PlaceOrder(r.Context(), id.UserID, id.Email, payload.Address)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, order)
}

// ListOrders returns the caller's order history.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	orders, err := h.Svc.ListOrders(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if orders == nil {
		orders = []Order{}
	}
	common.Data(w, http.StatusOK, orders)
}

// GetOrder returns a single order of the caller.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	order, err := h.Svc.Order(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, order)
}

func (h *Handler) user(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return "", false
	}
	userID, ok := common.UserID(r.Context())
	if !ok || strings.TrimSpace(userID) == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return "", false
	}
	return userID, true
}

func writeRejection(w http.ResponseWriter, d coupon.Decision, summary pricing.Summary) {
	details := map[string]any{"summary": summary}
	if d.Shortfall > 0 {
		details["shortfall"] = d.Shortfall
	}
	common.JSONError(w, http.StatusUnprocessableEntity, string(d.Reason), d.Message, details)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidCode):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, pricing.ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "INVALID_CART", "cart contents are malformed", nil)
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusUnprocessableEntity, "EMPTY_CART", "cart is empty", nil)
	case errors.Is(err, ErrOrderNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
	case errors.Is(err, ErrForbidden):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
	case errors.Is(err, ErrOrderNotPending):
		common.JSONError(w, http.StatusConflict, "ORDER_NOT_PENDING", err.Error(), nil)
	case errors.Is(err, lock.ErrNotAcquired):
		common.JSONError(w, http.StatusConflict, "CHECKOUT_BUSY", "another checkout request is in progress", nil)
	default:
		common.WriteError(w, err)
	}
}
