package coupon

import "github.com/noah-isme/storefront-checkout/internal/pricing"

// Find looks up a coupon by code, ignoring case and surrounding whitespace.
func Find(coupons []pricing.Coupon, code string) (pricing.Coupon, bool) {
	for _, c := range coupons {
		if sameCode(c.Code, code) {
			return c, true
		}
	}
	return pricing.Coupon{}, false
}

// Catalog returns the configured coupons, substituting the default promotions when none exist.
func Catalog(coupons []pricing.Coupon) []pricing.Coupon {
	if len(coupons) == 0 {
		return DefaultPromotions()
	}
	return coupons
}

// DefaultPromotions is the built-in promotion set used when the store holds no coupons.
func DefaultPromotions() []pricing.Coupon {
	return []pricing.Coupon{
		{
			Code:           "WELCOME10",
			Type:           pricing.CouponPercentage,
			Value:          10,
			FirstOrderOnly: true,
			Description:    "10% off your first order",
		},
		{
			Code:        "SAVE50",
			Type:        pricing.CouponFixed,
			Value:       50,
			MinOrder:    499,
			Description: "Flat 50 off on orders above 499",
		},
		{
			Code:        "FREESHIP",
			Type:        pricing.CouponShipping,
			MinOrder:    299,
			Description: "Free shipping on orders above 299",
		},
	}
}
