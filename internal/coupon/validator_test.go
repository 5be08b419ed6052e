package coupon

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-checkout/internal/pricing"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testValidator() Validator {
	return Validator{Now: func() time.Time { return fixedNow }}
}

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func TestValidateFirstOrderOnly(t *testing.T) {
	welcome := pricing.Coupon{Code: "WELCOME10", Type: pricing.CouponPercentage, Value: 10, FirstOrderOnly: true}
	d := testValidator().Validate(welcome, 499, nil, true)
	require.False(t, d.Accepted)
	require.Equal(t, ReasonFirstOrderOnlyViolation, d.Reason)
	require.ErrorIs(t, d.Err(), ErrFirstOrderOnly)

	d = testValidator().Validate(welcome, 499, nil, false)
	require.True(t, d.Accepted)
	require.NoError(t, d.Err())
}

func TestValidateSecondFixedCouponIsStacked(t *testing.T) {
	applied := []pricing.AppliedCoupon{{Coupon: pricing.Coupon{Code: "SAVE50", Type: pricing.CouponFixed, Value: 50}}}
	other := pricing.Coupon{Code: "FLAT100", Type: pricing.CouponFixed, Value: 100}
	d := testValidator().Validate(other, 1000, applied, false)
	require.Equal(t, ReasonTypeAlreadyStacked, d.Reason)
	require.ErrorIs(t, d.Err(), ErrTypeAlreadyStacked)
}

func TestValidateMinimumOrderShortfall(t *testing.T) {
	c := pricing.Coupon{Code: "SAVE50", Type: pricing.CouponFixed, Value: 50, MinOrder: 499}
	d := testValidator().Validate(c, 200, nil, false)
	require.False(t, d.Accepted)
	require.Equal(t, ReasonMinimumOrderNotMet, d.Reason)
	require.Equal(t, 299.0, d.Shortfall)
	require.True(t, errors.Is(d.Err(), ErrMinimumOrderNotMet))
	require.Contains(t, d.Err().Error(), "299.00")
}

func TestValidateMinimumOrderBoundaryAccepted(t *testing.T) {
	c := pricing.Coupon{Code: "SAVE50", Type: pricing.CouponFixed, Value: 50, MinOrder: 499}
	require.True(t, testValidator().Validate(c, 499, nil, false).Accepted)
}

func TestValidateExpiry(t *testing.T) {
	expired := pricing.Coupon{Code: "OLD", Type: pricing.CouponFixed, Value: 10, ExpiryDate: timePtr(fixedNow.Add(-time.Second))}
	require.Equal(t, ReasonExpired, testValidator().Validate(expired, 100, nil, false).Reason)

	atInstant := pricing.Coupon{Code: "EDGE", Type: pricing.CouponFixed, Value: 10, ExpiryDate: timePtr(fixedNow)}
	require.True(t, testValidator().Validate(atInstant, 100, nil, false).Accepted)
}

func TestValidateUsageLimit(t *testing.T) {
	c := pricing.Coupon{Code: "LIMITED", Type: pricing.CouponFixed, Value: 10, UsageLimit: intPtr(5), UsedCount: 5}
	require.Equal(t, ReasonUsageLimitReached, testValidator().Validate(c, 100, nil, false).Reason)

	c.UsedCount = 4
	require.True(t, testValidator().Validate(c, 100, nil, false).Accepted)

	c.UsageLimit = nil
	c.UsedCount = 1000
	require.True(t, testValidator().Validate(c, 100, nil, false).Accepted)
}

func TestValidateRuleOrderDuplicateWins(t *testing.T) {
	c := pricing.Coupon{
		Code:       "SAVE50",
		Type:       pricing.CouponFixed,
		Value:      50,
		ExpiryDate: timePtr(fixedNow.Add(-time.Hour)),
	}
	applied := []pricing.AppliedCoupon{{Coupon: pricing.Coupon{Code: "save50", Type: pricing.CouponFixed, Value: 50}}}
	d := testValidator().Validate(c, 1000, applied, false)
	require.Equal(t, ReasonAlreadyApplied, d.Reason)
}

func TestValidateRuleOrder(t *testing.T) {
	c := pricing.Coupon{
		Code:           "ALL",
		Type:           pricing.CouponPercentage,
		Value:          10,
		FirstOrderOnly: true,
		MinOrder:       500,
		ExpiryDate:     timePtr(fixedNow.Add(-time.Hour)),
		UsageLimit:     intPtr(1),
		UsedCount:      1,
	}
	applied := []pricing.AppliedCoupon{{Coupon: pricing.Coupon{Code: "OTHER", Type: pricing.CouponPercentage, Value: 5}}}
	v := testValidator()

	require.Equal(t, ReasonFirstOrderOnlyViolation, v.Validate(c, 100, applied, true).Reason)
	require.Equal(t, ReasonMinimumOrderNotMet, v.Validate(c, 100, applied, false).Reason)
	require.Equal(t, ReasonExpired, v.Validate(c, 600, applied, false).Reason)
	c.ExpiryDate = nil
	require.Equal(t, ReasonUsageLimitReached, v.Validate(c, 600, applied, false).Reason)
	c.UsageLimit = nil
	require.Equal(t, ReasonTypeAlreadyStacked, v.Validate(c, 600, applied, false).Reason)
	require.True(t, v.Validate(c, 600, nil, false).Accepted)
}

func TestTwoPercentageCouponsNeverBothAccepted(t *testing.T) {
	v := testValidator()
	first := pricing.Coupon{Code: "TEN", Type: pricing.CouponPercentage, Value: 10}
	second := pricing.Coupon{Code: "TWENTY", Type: pricing.CouponPercentage, Value: 20}

	applied, d := v.Apply(first, 1000, nil, false)
	require.True(t, d.Accepted)
	applied, d = v.Apply(second, 1000, applied, false)
	require.False(t, d.Accepted)
	require.Len(t, applied, 1)
	require.Equal(t, "TEN", applied[0].Code)
}

func TestApplyComputesDiscountWithoutMutatingInput(t *testing.T) {
	v := testValidator()
	original := make([]pricing.AppliedCoupon, 0, 4)
	original = append(original, pricing.AppliedCoupon{Coupon: pricing.Coupon{Code: "FREESHIP", Type: pricing.CouponShipping}})

	out, d := v.Apply(pricing.Coupon{Code: "SAVE50", Type: pricing.CouponFixed, Value: 50, MinOrder: 499}, 499, original, false)
	require.True(t, d.Accepted)
	require.Len(t, out, 2)
	require.Len(t, original, 1)
	require.Equal(t, 50.0, out[1].DiscountAmount)

	out2, _ := v.Apply(pricing.Coupon{Code: "TEN", Type: pricing.CouponPercentage, Value: 10}, 499, original, false)
	require.Equal(t, "SAVE50", out[1].Code)
	require.Equal(t, "TEN", out2[1].Code)
}

func TestRemove(t *testing.T) {
	applied := []pricing.AppliedCoupon{
		{Coupon: pricing.Coupon{Code: "SAVE50", Type: pricing.CouponFixed}},
		{Coupon: pricing.Coupon{Code: "FREESHIP", Type: pricing.CouponShipping}},
	}
	out := Remove(applied, " freeship ")
	require.Len(t, out, 1)
	require.Equal(t, "SAVE50", out[0].Code)
	require.Len(t, applied, 2)
}

func TestRevalidateDropsCouponsBelowMinimum(t *testing.T) {
	applied := []pricing.AppliedCoupon{
		{Coupon: pricing.Coupon{Code: "SAVE50", Type: pricing.CouponFixed, Value: 50, MinOrder: 499}, DiscountAmount: 50},
		{Coupon: pricing.Coupon{Code: "TEN", Type: pricing.CouponPercentage, Value: 10}, DiscountAmount: 49.9},
	}
	kept, dropped := Revalidate(applied, 200)
	require.Len(t, kept, 1)
	require.Equal(t, "TEN", kept[0].Code)
	require.Equal(t, 20.0, kept[0].DiscountAmount)
	require.Len(t, dropped, 1)
	require.Equal(t, "SAVE50", dropped[0].Code)
	require.Equal(t, 49.9, applied[1].DiscountAmount)
}

func TestFindIsCaseInsensitive(t *testing.T) {
	c, ok := Find(DefaultPromotions(), "welcome10")
	require.True(t, ok)
	require.Equal(t, "WELCOME10", c.Code)

	_, ok = Find(DefaultPromotions(), "NOPE")
	require.False(t, ok)
}

func TestCatalogFallsBackToDefaults(t *testing.T) {
	require.Len(t, Catalog(nil), 3)
	custom := []pricing.Coupon{{Code: "ONLY", Type: pricing.CouponFixed, Value: 1}}
	require.Equal(t, custom, Catalog(custom))
}

func TestRejectedNotFound(t *testing.T) {
	d := Rejected(ReasonNotFound)
	require.False(t, d.Accepted)
	require.Equal(t, "Invalid coupon code", d.Message)
	require.ErrorIs(t, d.Err(), ErrNotFound)
}
