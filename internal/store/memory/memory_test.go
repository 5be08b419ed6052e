package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-checkout/internal/cart"
	"github.com/noah-isme/storefront-checkout/internal/checkout"
	"github.com/noah-isme/storefront-checkout/internal/coupon"
	"github.com/noah-isme/storefront-checkout/internal/pricing"
)

func TestCartCopiesAreIsolated(t *testing.T) {
	s := New()
	ctx := context.Background()
	c := cart.Cart{UserID: "u1", Items: []cart.Item{{ID: "p1", UnitPrice: 10, Quantity: 1}}}
	require.NoError(t, s.SaveCart(ctx, c))
	c.Items[0].Quantity = 9

	got, err := s.GetCart(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, got.Items[0].Quantity)

	got.Items[0].Quantity = 5
	again, _ := s.GetCart(ctx, "u1")
	require.Equal(t, 1, again.Items[0].Quantity)

	require.NoError(t, s.DeleteCart(ctx, "u1"))
	empty, err := s.GetCart(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, empty.Items)
}

func TestProductLookup(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.GetProduct(ctx, "nope")
	require.ErrorIs(t, err, cart.ErrProductNotFound)

	require.NoError(t, s.PutProduct(ctx, cart.Product{ID: "p1", Price: 99}))
	p, err := s.GetProduct(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 99.0, p.Price)
}

func TestCouponUsage(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.UpsertCoupon(ctx, pricing.Coupon{Code: "save50", Type: pricing.CouponFixed, Value: 50}))
	require.NoError(t, s.IncrementUsage(ctx, "SAVE50"))
	require.NoError(t, s.IncrementUsage(ctx, "WELCOME10"))

	list, err := s.ListCoupons(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 1, list[0].UsedCount)

	require.NoError(t, s.DeleteCoupon(ctx, " Save50 "))
	require.ErrorIs(t, s.DeleteCoupon(ctx, "SAVE50"), coupon.ErrNotFound)
}

func TestSessionDefaults(t *testing.T) {
	s := New()
	ctx := context.Background()
	sess, err := s.Load(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "u1", sess.UserID)
	require.Empty(t, sess.Applied)

	sess.Applied = []pricing.AppliedCoupon{{Coupon: pricing.Coupon{Code: "FREESHIP", Type: pricing.CouponShipping}}}
	require.NoError(t, s.Save(ctx, sess))
	loaded, _ := s.Load(ctx, "u1")
	require.Equal(t, []string{"FREESHIP"}, loaded.Codes())

	require.NoError(t, s.Delete(ctx, "u1"))
	loaded, _ = s.Load(ctx, "u1")
	require.Empty(t, loaded.Applied)
}

func TestOrdersAndHistory(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateOrder(ctx, checkout.Order{ID: "o1", UserID: "u1", Status: checkout.StatusPendingPayment, CreatedAt: base}))
	require.NoError(t, s.CreateOrder(ctx, checkout.Order{ID: "o2", UserID: "u1", Status: checkout.StatusPendingPayment, CreatedAt: base.Add(time.Hour)}))
	require.Error(t, s.CreateOrder(ctx, checkout.Order{ID: "o1"}))

	prior, err := s.HasPriorOrders(ctx, "u1")
	require.NoError(t, err)
	require.False(t, prior)

	require.NoError(t, s.SetGatewayOrder(ctx, "o1", "order_x"))
	require.ErrorIs(t, s.SetGatewayOrder(ctx, "missing", "x"), checkout.ErrOrderNotFound)

	paid, err := s.MarkPaid(ctx, "o1", "pay_1", base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, checkout.StatusPaid, paid.Status)
	require.Equal(t, "order_x", paid.GatewayOrderID)

	prior, _ = s.HasPriorOrders(ctx, "u1")
	require.True(t, prior)

	list, err := s.ListOrders(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "o2", list[0].ID)

	_, err = s.GetOrder(ctx, "missing")
	require.ErrorIs(t, err, checkout.ErrOrderNotFound)
}
