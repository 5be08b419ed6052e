package coupon

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/storefront-checkout/internal/common"
	"github.com/noah-isme/storefront-checkout/internal/pricing"
)

// Repository manages the stored coupon catalogue.
type Repository interface {
	ListCoupons(ctx context.Context) ([]pricing.Coupon, error)
	UpsertCoupon(ctx context.Context, c pricing.Coupon) error
	DeleteCoupon(ctx context.Context, code string) error
}

// AdminHandler exposes coupon management endpoints.
type AdminHandler struct {
	Repo      Repository
	Validator Validator
}

type couponPayload struct {
	Type           string     `json:"type" validate:"required,oneof=percentage fixed shipping"`
	Value          float64    `json:"value" validate:"gte=0"`
	MinOrder       float64    `json:"minOrder" validate:"gte=0"`
	FirstOrderOnly bool       `json:"firstOrderOnly"`
	ExpiryDate     *time.Time `json:"expiryDate"`
	UsageLimit     *int       `json:"usageLimit" validate:"omitempty,gte=0"`
	Description    string     `json:"description" validate:"max=200"`
}

type previewRequest struct {
	Code           string  `json:"code" validate:"required"`
	Subtotal       float64 `json:"subtotal" validate:"gte=0"`
	HasPriorOrders bool    `json:"hasPriorOrders"`
}

// Routes mounts the admin coupon endpoints.
func (h *AdminHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/preview", h.Preview)
	r.Put("/{code}", h.Put)
	r.Delete("/{code}", h.Delete)
}

// List returns the stored coupons, or the built-in promotions when none exist.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.Repo.ListCoupons(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list coupons", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": Catalog(coupons), "stored": len(coupons)})
}

// Put creates or replaces a coupon identified by code.
func (h *AdminHandler) Put(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "code")))
	if code == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "code is required", nil)
		return
	}
	var payload couponPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	if payload.Type == string(pricing.CouponPercentage) && payload.Value > 100 {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "validation failed", map[string]string{"value": "must be at most 100"})
		return
	}
	c := pricing.Coupon{
		Code:           code,
		Type:           pricing.ParseCouponType(payload.Type),
		Value:          payload.Value,
		MinOrder:       payload.MinOrder,
		FirstOrderOnly: payload.FirstOrderOnly,
		ExpiryDate:     payload.ExpiryDate,
		UsageLimit:     payload.UsageLimit,
		Description:    payload.Description,
	}
	if err := h.Repo.UpsertCoupon(r.Context(), c); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to save coupon", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

// Delete removes a stored coupon.
func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.Repo.DeleteCoupon(r.Context(), chi.URLParam(r, "code"))
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "coupon not found", nil)
	case err != nil:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to delete coupon", nil)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// Preview runs the validator for a code against a hypothetical subtotal with nothing applied.
func (h *AdminHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	coupons, err := h.Repo.ListCoupons(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list coupons", nil)
		return
	}
	candidate, ok := Find(Catalog(coupons), req.Code)
	if !ok {
		common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"decision": Rejected(ReasonNotFound)}})
		return
	}
	applied, decision := h.Validator.Apply(candidate, req.Subtotal, nil, req.HasPriorOrders)
	resp := map[string]any{"decision": decision}
	if decision.Accepted {
		resp["discountAmount"] = applied[0].DiscountAmount
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": resp})
}
