package pricing

import (
	"math"

	"github.com/shopspring/decimal"
)

const (
	// DefaultShippingFee is charged whenever no qualifying shipping coupon is applied.
	DefaultShippingFee = 50.0
	// DefaultTaxRate is the flat tax rate applied to the taxable amount.
	DefaultTaxRate = 0.18
)

// Engine computes order summaries. Fields are used as given, so a zero fee or
// rate disables shipping or tax. DefaultEngine carries the storefront defaults.
type Engine struct {
	ShippingFee float64
	TaxRate     float64
}

// DefaultEngine returns an engine configured with the storefront defaults.
func DefaultEngine() Engine {
	return Engine{ShippingFee: DefaultShippingFee, TaxRate: DefaultTaxRate}
}

func (e Engine) shippingFee() float64 {
	return nonNegative(e.ShippingFee)
}

func (e Engine) taxRate() float64 {
	return nonNegative(e.TaxRate)
}

// Compute calculates cart totals for the provided line items and applied coupons.
// It is a pure reducer: it does not re-validate coupons and never mutates its inputs.
func (e Engine) Compute(items []LineItem, applied []AppliedCoupon) Summary {
	subtotal := Subtotal(items)
	baseFee := e.shippingFee()

	shipping := baseFee
	var shippingSavings float64
	var discount float64
	results := make([]CouponResult, 0, len(applied))
	for _, ac := range applied {
		amount := Discount(ac.Coupon, subtotal)
		waived := false
		if WaivesShipping(ac.Coupon, subtotal) {
			waived = true
			shipping = 0
			shippingSavings = baseFee
		}
		discount = saturate(discount + amount)
		results = append(results, CouponResult{
			Code:           ac.Code,
			Type:           ac.Type,
			DiscountAmount: Round2(amount),
			ShippingWaived: waived,
		})
	}

	taxable := subtotal - discount
	if taxable < 0 {
		taxable = 0
	}
	tax := saturate(taxable * e.taxRate())
	total := saturate(taxable + tax + shipping)
	if total < 0 {
		total = 0
	}

	return Summary{
		Subtotal:        Round2(subtotal),
		Discount:        Round2(discount),
		Shipping:        Round2(shipping),
		Tax:             Round2(tax),
		Total:           Round2(total),
		ItemCount:       ItemCount(items),
		TotalSavings:    Round2(discount),
		ShippingSavings: Round2(shippingSavings),
		Coupons:         results,
	}
}

// Subtotal sums unit price times quantity across all lines at full precision.
// Negative prices or quantities contribute nothing.
func Subtotal(items []LineItem) float64 {
	var subtotal float64
	for _, it := range items {
		if it.UnitPrice <= 0 || it.Quantity <= 0 {
			continue
		}
		subtotal = saturate(subtotal + saturate(it.UnitPrice*float64(it.Quantity)))
	}
	return subtotal
}

// ItemCount sums the positive quantities of all lines, saturating at math.MaxInt.
func ItemCount(items []LineItem) int {
	var count int
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		if count > math.MaxInt-it.Quantity {
			return math.MaxInt
		}
		count += it.Quantity
	}
	return count
}

// Discount is the discount rule shared by the engine and the coupon validator.
// Shipping coupons and unknown types contribute nothing to the discount total.
func Discount(c Coupon, subtotal float64) float64 {
	var amount float64
	switch c.Type {
	case CouponPercentage:
		amount = saturate(saturate(subtotal*c.Value) / 100)
	case CouponFixed:
		amount = c.Value
		if amount > subtotal {
			amount = subtotal
		}
	default:
		return 0
	}
	if amount < 0 {
		return 0
	}
	return amount
}

// WaivesShipping reports whether the coupon zeroes the shipping fee for the subtotal.
func WaivesShipping(c Coupon, subtotal float64) bool {
	return c.Type == CouponShipping && subtotal >= c.MinOrder
}

// Round2 rounds half away from zero to two decimal places. Non-finite input is
// saturated first, so Round2 never panics.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(saturate(v)).Round(2).InexactFloat64()
}

// maxMinorUnits is the largest amount whose minor units fit in an int64.
var maxMinorUnits = decimal.NewFromInt(math.MaxInt64).Shift(-2)

// ToMinorUnits converts a currency amount to integer minor units (e.g. paise, cents),
// saturating at math.MaxInt64.
func ToMinorUnits(v float64) int64 {
	v = saturate(v)
	if v <= 0 {
		return 0
	}
	d := decimal.NewFromFloat(v).Round(2)
	if d.GreaterThanOrEqual(maxMinorUnits) {
		return math.MaxInt64
	}
	return d.Shift(2).IntPart()
}

// saturate is the overflow policy for every intermediate amount: NaN becomes 0
// and ±Inf is clamped to ±math.MaxFloat64.
func saturate(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	}
	return v
}

func nonNegative(v float64) float64 {
	if v = saturate(v); v < 0 {
		return 0
	}
	return v
}
