package coupon

import (
	"errors"
	"fmt"
)

// Reason identifies why a coupon was rejected.
type Reason string

const (
	ReasonNone                    Reason = ""
	ReasonAlreadyApplied          Reason = "ALREADY_APPLIED"
	ReasonFirstOrderOnlyViolation Reason = "FIRST_ORDER_ONLY"
	ReasonMinimumOrderNotMet      Reason = "MINIMUM_ORDER_NOT_MET"
	ReasonExpired                 Reason = "EXPIRED"
	ReasonUsageLimitReached       Reason = "USAGE_LIMIT_REACHED"
	ReasonTypeAlreadyStacked      Reason = "TYPE_ALREADY_STACKED"
	// ReasonNotFound is reported by callers when the code does not resolve to a coupon.
	ReasonNotFound Reason = "NOT_FOUND"
)

var (
	// ErrAlreadyApplied is returned when the same code is already on the cart.
	ErrAlreadyApplied = errors.New("coupon already applied")
	// ErrFirstOrderOnly indicates the coupon is reserved for a customer's first order.
	ErrFirstOrderOnly = errors.New("coupon valid on first order only")
	// ErrMinimumOrderNotMet indicates the subtotal did not reach the coupon minimum.
	ErrMinimumOrderNotMet = errors.New("coupon minimum order not met")
	// ErrExpired is returned when the coupon has already expired.
	ErrExpired = errors.New("coupon expired")
	// ErrUsageLimitReached indicates the coupon has exhausted its global usage quota.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrTypeAlreadyStacked indicates a coupon of the same type is already applied.
	ErrTypeAlreadyStacked = errors.New("coupon of this type already applied")
	// ErrNotFound is returned when a code does not match any coupon.
	ErrNotFound = errors.New("coupon not found")
)

// Err returns the sentinel error for the reason, or nil for ReasonNone.
func (r Reason) Err() error {
	switch r {
	case ReasonAlreadyApplied:
		return ErrAlreadyApplied
	case ReasonFirstOrderOnlyViolation:
		return ErrFirstOrderOnly
	case ReasonMinimumOrderNotMet:
		return ErrMinimumOrderNotMet
	case ReasonExpired:
		return ErrExpired
	case ReasonUsageLimitReached:
		return ErrUsageLimitReached
	case ReasonTypeAlreadyStacked:
		return ErrTypeAlreadyStacked
	case ReasonNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

// Message is the user facing text for the reason.
func (r Reason) Message() string {
	switch r {
	case ReasonAlreadyApplied:
		return "This coupon is already applied"
	case ReasonFirstOrderOnlyViolation:
		return "This coupon is only valid on your first order"
	case ReasonMinimumOrderNotMet:
		return "Your order does not meet the minimum amount for this coupon"
	case ReasonExpired:
		return "This coupon has expired"
	case ReasonUsageLimitReached:
		return "This coupon has reached its usage limit"
	case ReasonTypeAlreadyStacked:
		return "A coupon of this type is already applied"
	case ReasonNotFound:
		return "Invalid coupon code"
	default:
		return ""
	}
}

// Decision is the outcome of validating a candidate coupon.
type Decision struct {
	Accepted  bool    `json:"accepted"`
	Reason    Reason  `json:"reason,omitempty"`
	Message   string  `json:"message,omitempty"`
	// Shortfall is the amount missing to reach the minimum order, set for ReasonMinimumOrderNotMet.
	Shortfall float64 `json:"shortfall,omitempty"`
}

// Err converts a rejection into its sentinel error. Accepted decisions return nil.
func (d Decision) Err() error {
	if d.Accepted {
		return nil
	}
	err := d.Reason.Err()
	if err == nil {
		return nil
	}
	if d.Reason == ReasonMinimumOrderNotMet && d.Shortfall > 0 {
		return fmt.Errorf("add %.2f more: %w", d.Shortfall, err)
	}
	return err
}

func accept() Decision {
	return Decision{Accepted: true}
}

func reject(r Reason) Decision {
	return Decision{Reason: r, Message: r.Message()}
}

// Rejected builds a rejection for reasons decided outside Validate, such as ReasonNotFound.
func Rejected(r Reason) Decision {
	return reject(r)
}
