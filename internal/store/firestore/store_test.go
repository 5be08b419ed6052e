package firestore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-checkout/internal/cart"
	"github.com/noah-isme/storefront-checkout/internal/checkout"
	"github.com/noah-isme/storefront-checkout/internal/coupon"
	"github.com/noah-isme/storefront-checkout/internal/pricing"
)

func newEmulatorStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv(envEmulatorHost) == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ctx := context.Background()
	client, err := NewClient(ctx, Config{ProjectID: "storefront-test"})
	require.NoError(t, err)
	s := New(client)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func uniq(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func TestCartRoundTrip(t *testing.T) {
	s := newEmulatorStore(t)
	ctx := context.Background()
	user := uniq("user")

	empty, err := s.GetCart(ctx, user)
	require.NoError(t, err)
	require.Empty(t, empty.Items)

	c := cart.Cart{UserID: user, UpdatedAt: time.Now().UTC().Truncate(time.Millisecond), Items: []cart.Item{
		{ID: "p1:red", ProductID: "p1", VariantID: "red", Name: "Mug", UnitPrice: 249.5, Quantity: 2},
	}}
	require.NoError(t, s.SaveCart(ctx, c))

	got, err := s.GetCart(ctx, user)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	require.Equal(t, "p1:red", got.Items[0].ID)
	require.Equal(t, "red", got.Items[0].VariantID)
	require.Equal(t, 249.5, got.Items[0].UnitPrice)
	require.Equal(t, 2, got.Items[0].Quantity)

	require.NoError(t, s.DeleteCart(ctx, user))
	require.NoError(t, s.DeleteCart(ctx, user))
}

func TestLegacyCartDocumentIsNormalized(t *testing.T) {
	s := newEmulatorStore(t)
	ctx := context.Background()
	user := uniq("legacy")
	_, err := s.Client.Collection(colCarts).Doc(user).Set(ctx, map[string]any{
		"items": []any{map[string]any{"id": "p9", "displayPrice": "1299.00", "quantity": "3"}},
	})
	require.NoError(t, err)

	got, err := s.GetCart(ctx, user)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	require.Equal(t, 1299.0, got.Items[0].UnitPrice)
	require.Equal(t, 3, got.Items[0].Quantity)
	require.Equal(t, "p9", got.Items[0].ProductID)
}

func TestCouponUsageAndDelete(t *testing.T) {
	s := newEmulatorStore(t)
	ctx := context.Background()
	code := uniq("PROMO")
	limit := 5
	require.NoError(t, s.UpsertCoupon(ctx, pricing.Coupon{Code: code, Type: pricing.CouponFixed, Value: 20, UsageLimit: &limit}))
	require.NoError(t, s.IncrementUsage(ctx, code))
	require.NoError(t, s.IncrementUsage(ctx, "DOES-NOT-EXIST"))

	list, err := s.ListCoupons(ctx)
	require.NoError(t, err)
	found, ok := coupon.Find(list, code)
	require.True(t, ok)
	require.Equal(t, 1, found.UsedCount)
	require.NotNil(t, found.UsageLimit)

	require.NoError(t, s.DeleteCoupon(ctx, code))
	require.ErrorIs(t, s.DeleteCoupon(ctx, code), coupon.ErrNotFound)
}

func TestOrderLifecycle(t *testing.T) {
	s := newEmulatorStore(t)
	ctx := context.Background()
	user := uniq("buyer")
	order := checkout.Order{
		ID:          uniq("ord"),
		UserID:      user,
		Status:      checkout.StatusPendingPayment,
		Items:       []pricing.LineItem{{ID: "p1", UnitPrice: 499, Quantity: 1}},
		AmountMinor: 63882,
		Currency:    "INR",
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, s.CreateOrder(ctx, order))
	require.Error(t, s.CreateOrder(ctx, order))

	prior, err := s.HasPriorOrders(ctx, user)
	require.NoError(t, err)
	require.False(t, prior)

	require.NoError(t, s.SetGatewayOrder(ctx, order.ID, "order_gw1"))
	paid, err := s.MarkPaid(ctx, order.ID, "pay_1", time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, checkout.StatusPaid, paid.Status)
	require.Equal(t, "order_gw1", paid.GatewayOrderID)

	prior, err = s.HasPriorOrders(ctx, user)
	require.NoError(t, err)
	require.True(t, prior)

	list, err := s.ListOrders(ctx, user)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, int64(63882), list[0].AmountMinor)

	_, err = s.GetOrder(ctx, "missing-"+order.ID)
	require.ErrorIs(t, err, checkout.ErrOrderNotFound)
}
