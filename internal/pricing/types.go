package pricing

import (
	"strings"
	"time"
)

// CouponType enumerates the supported discount kinds.
type CouponType string

const (
	// CouponPercentage discounts a percentage of the subtotal.
	CouponPercentage CouponType = "percentage"
	// CouponFixed discounts a fixed currency amount capped at the subtotal.
	CouponFixed CouponType = "fixed"
	// CouponShipping waives the base shipping fee.
	CouponShipping CouponType = "shipping"
)

// ParseCouponType normalises raw type strings. Unknown values are preserved so they
// can be reported back, but they never produce a discount.
func ParseCouponType(value string) CouponType {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	switch CouponType(trimmed) {
	case CouponPercentage, CouponFixed, CouponShipping:
		return CouponType(trimmed)
	}
	return CouponType(strings.TrimSpace(value))
}

// Known reports whether the type belongs to the closed enumeration.
func (t CouponType) Known() bool {
	switch t {
	case CouponPercentage, CouponFixed, CouponShipping:
		return true
	default:
		return false
	}
}

// LineItem describes one cart line used for pricing calculation.
type LineItem struct {
	ID        string  `json:"id"`
	UnitPrice float64 `json:"unitPrice"`
	Quantity  int     `json:"quantity"`
}

// Coupon captures an administrator defined promotion. The engine only reads coupons.
type Coupon struct {
	Code           string     `json:"code"`
	Type           CouponType `json:"type"`
	Value          float64    `json:"value"`
	MinOrder       float64    `json:"minOrder"`
	FirstOrderOnly bool       `json:"firstOrderOnly"`
	ExpiryDate     *time.Time `json:"expiryDate,omitempty"`
	UsageLimit     *int       `json:"usageLimit,omitempty"`
	UsedCount      int        `json:"usedCount"`
	Description    string     `json:"description,omitempty"`
}

// AppliedCoupon is a coupon accepted against the cart together with its computed discount.
type AppliedCoupon struct {
	Coupon
	DiscountAmount float64 `json:"discountAmount"`
}

// CouponResult is the per-coupon breakdown reported in a Summary.
type CouponResult struct {
	Code           string     `json:"code"`
	Type           CouponType `json:"type"`
	DiscountAmount float64    `json:"discountAmount"`
	ShippingWaived bool       `json:"shippingWaived"`
}

// Summary aggregates computed pricing components. Monetary fields carry at most two decimals.
type Summary struct {
	Subtotal        float64        `json:"subtotal"`
	Discount        float64        `json:"discount"`
	Shipping        float64        `json:"shipping"`
	Tax             float64        `json:"tax"`
	Total           float64        `json:"total"`
	ItemCount       int            `json:"itemCount"`
	TotalSavings    float64        `json:"totalSavings"`
	ShippingSavings float64        `json:"shippingSavings"`
	Coupons         []CouponResult `json:"couponResults"`
}
