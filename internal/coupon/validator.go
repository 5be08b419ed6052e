package coupon

import (
	"strings"
	"time"

	"github.com/noah-isme/storefront-checkout/internal/pricing"
)

// Validator decides whether a coupon may be applied to the current cart.
// It holds no state besides the clock and is safe for concurrent use.
type Validator struct {
	Now func() time.Time
}

func (v Validator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// Validate checks the candidate against the subtotal (pre-discount) and the applied set.
// Rules run in a fixed order and the first failure wins:
// duplicate, first-order-only, minimum order, expiry, usage limit, type exclusivity.
func (v Validator) Validate(candidate pricing.Coupon, subtotal float64, applied []pricing.AppliedCoupon, hasPriorOrders bool) Decision {
	for _, ac := range applied {
		if sameCode(ac.Code, candidate.Code) {
			return reject(ReasonAlreadyApplied)
		}
	}
	if candidate.FirstOrderOnly && hasPriorOrders {
		return reject(ReasonFirstOrderOnlyViolation)
	}
	if subtotal < candidate.MinOrder {
		d := reject(ReasonMinimumOrderNotMet)
		d.Shortfall = pricing.Round2(candidate.MinOrder - subtotal)
		return d
	}
	if candidate.ExpiryDate != nil && v.now().After(*candidate.ExpiryDate) {
		return reject(ReasonExpired)
	}
	if candidate.UsageLimit != nil && candidate.UsedCount >= *candidate.UsageLimit {
		return reject(ReasonUsageLimitReached)
	}
	for _, ac := range applied {
		if ac.Type == candidate.Type {
			return reject(ReasonTypeAlreadyStacked)
		}
	}
	return accept()
}

// Apply validates the candidate and, when accepted, returns a new applied list with the
// candidate appended and its discount computed against the subtotal. The input slice is
// never modified; on rejection it is returned as-is.
func (v Validator) Apply(candidate pricing.Coupon, subtotal float64, applied []pricing.AppliedCoupon, hasPriorOrders bool) ([]pricing.AppliedCoupon, Decision) {
	decision := v.Validate(candidate, subtotal, applied, hasPriorOrders)
	if !decision.Accepted {
		return applied, decision
	}
	out := make([]pricing.AppliedCoupon, 0, len(applied)+1)
	out = append(out, applied...)
	out = append(out, pricing.AppliedCoupon{
		Coupon:         candidate,
		DiscountAmount: pricing.Discount(candidate, subtotal),
	})
	return out, decision
}

// Remove returns a new applied list without the given code.
func Remove(applied []pricing.AppliedCoupon, code string) []pricing.AppliedCoupon {
	out := make([]pricing.AppliedCoupon, 0, len(applied))
	for _, ac := range applied {
		if sameCode(ac.Code, code) {
			continue
		}
		out = append(out, ac)
	}
	return out
}

// Revalidate drops applied coupons whose minimum order no longer holds for the subtotal
// and refreshes the stored discount of the remaining ones. Sessions are sticky by default;
// this is only used when re-validation is switched on.
func Revalidate(applied []pricing.AppliedCoupon, subtotal float64) ([]pricing.AppliedCoupon, []pricing.AppliedCoupon) {
	kept := make([]pricing.AppliedCoupon, 0, len(applied))
	var dropped []pricing.AppliedCoupon
	for _, ac := range applied {
		if subtotal < ac.MinOrder {
			dropped = append(dropped, ac)
			continue
		}
		ac.DiscountAmount = pricing.Discount(ac.Coupon, subtotal)
		kept = append(kept, ac)
	}
	return kept, dropped
}

func sameCode(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
