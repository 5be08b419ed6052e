package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/noah-isme/storefront-checkout/internal/pricing"
)

var (
	// ErrOrderNotFound indicates the requested order does not exist.
	ErrOrderNotFound = errors.New("order not found")
	// ErrEmptyCart is returned when placing an order without cart lines.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrOrderNotPending is returned when confirming an order that is no longer pending.
	ErrOrderNotPending = errors.New("order is not pending payment")
	// ErrForbidden is returned when a user touches another user's order.
	ErrForbidden = errors.New("order does not belong to user")
)

// Session holds the coupons a user has applied during checkout.
type Session struct {
	UserID    string                  `json:"userId"`
	Applied   []pricing.AppliedCoupon `json:"applied"`
	UpdatedAt time.Time               `json:"updatedAt"`
}

// Codes lists the applied coupon codes in application order.
func (s Session) Codes() []string {
	out := make([]string, 0, len(s.Applied))
	for _, ac := range s.Applied {
		out = append(out, ac.Code)
	}
	return out
}

// OrderStatus enumerates order lifecycle states.
type OrderStatus string

const (
	StatusPendingPayment OrderStatus = "PENDING_PAYMENT"
	StatusPaid           OrderStatus = "PAID"
)

// Address is the shipping destination captured at order time.
type Address struct {
	Name       string `json:"name" validate:"required"`
	Phone      string `json:"phone" validate:"required"`
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode" validate:"required"`
}

// Order is the immutable priced snapshot created when the customer starts payment.
type Order struct {
	ID             string             `json:"id"`
	UserID         string             `json:"userId"`
	Email          string             `json:"email,omitempty"`
	Status         OrderStatus        `json:"status"`
	Items          []pricing.LineItem `json:"items"`
	CouponCodes    []string           `json:"couponCodes"`
	Summary        pricing.Summary    `json:"summary"`
	Currency       string             `json:"currency"`
	AmountMinor    int64              `json:"amountMinor"`
	Address        Address            `json:"address"`
	GatewayOrderID string             `json:"gatewayOrderId,omitempty"`
	PaymentID      string             `json:"paymentId,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
	PaidAt         *time.Time         `json:"paidAt,omitempty"`
}

// View is what the checkout page renders.
type View struct {
	Summary  pricing.Summary         `json:"summary"`
	Applied  []pricing.AppliedCoupon `json:"applied"`
	Dropped  []string                `json:"dropped,omitempty"`
	Currency string                  `json:"currency"`
}

// CartSource supplies the user's cart lines and clears them after payment.
type CartSource interface {
	LineItems(ctx context.Context, userID string) ([]pricing.LineItem, error)
	Clear(ctx context.Context, userID string) error
}

// CouponSource lists available coupons and records redemptions.
type CouponSource interface {
	ListCoupons(ctx context.Context) ([]pricing.Coupon, error)
	IncrementUsage(ctx context.Context, code string) error
}

// OrderHistory answers whether the user already completed an order.
type OrderHistory interface {
	HasPriorOrders(ctx context.Context, userID string) (bool, error)
}

// SessionStore persists checkout sessions. Load returns an empty session when none exists.
type SessionStore interface {
	Load(ctx context.Context, userID string) (Session, error)
	Save(ctx context.Context, s Session) error
	Delete(ctx context.Context, userID string) error
}

// OrderStore persists placed orders.
type OrderStore interface {
	CreateOrder(ctx context.Context, o Order) error
	GetOrder(ctx context.Context, id string) (Order, error)
	ListOrders(ctx context.Context, userID string) ([]Order, error)
	SetGatewayOrder(ctx context.Context, id, gatewayOrderID string) error
	MarkPaid(ctx context.Context, id, paymentID string, paidAt time.Time) (Order, error)
}
