package firestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/noah-isme/storefront-checkout/internal/cart"
	"github.com/noah-isme/storefront-checkout/internal/checkout"
	"github.com/noah-isme/storefront-checkout/internal/coupon"
	"github.com/noah-isme/storefront-checkout/internal/events"
	"github.com/noah-isme/storefront-checkout/internal/pricing"
)

const (
	colCarts    = "carts"
	colProducts = "products"
	colCoupons  = "coupons"
	colOrders   = "orders"
	colEvents   = "events"
)

// Store implements the cart, catalog, coupon, order and event collaborators on Firestore.
type Store struct {
	Client *firestore.Client
}

// New wraps an existing client.
func New(client *firestore.Client) *Store {
	return &Store{Client: client}
}

// GetCart implements cart.Store. Stored line records are coerced through the pricing
// boundary so legacy documents with displayPrice or string quantities still load.
func (s *Store) GetCart(ctx context.Context, userID string) (cart.Cart, error) {
	snap, err := s.Client.Collection(colCarts).Doc(userID).Get(ctx)
	if isNotFound(err) {
		return cart.Cart{UserID: userID, Items: []cart.Item{}}, nil
	}
	if err != nil {
		return cart.Cart{}, wrapError("firestore.carts.get", err, nil)
	}
	data := snap.Data()
	c := cart.Cart{UserID: userID, Items: []cart.Item{}}
	if ts, ok := data["updatedAt"].(time.Time); ok {
		c.UpdatedAt = ts
	}
	raw, _ := data["items"].([]any)
	for _, entry := range raw {
		rec, ok := entry.(map[string]any)
		if !ok {
			return cart.Cart{}, fmt.Errorf("firestore.carts.get %s: %w", userID, pricing.ErrInvalidInput)
		}
		li := pricing.NormalizeLineItem(rec)
		c.Items = append(c.Items, cart.Item{
			ID:        li.ID,
			ProductID: firstString(rec, "productId", "id"),
			VariantID: firstString(rec, "variantId"),
			Name:      firstString(rec, "name", "title"),
			Image:     firstString(rec, "image"),
			UnitPrice: li.UnitPrice,
			Quantity:  li.Quantity,
		})
	}
	return c, nil
}

// SaveCart implements cart.Store.
func (s *Store) SaveCart(ctx context.Context, c cart.Cart) error {
	items := make([]map[string]any, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, map[string]any{
			"id":        it.ID,
			"productId": it.ProductID,
			"variantId": it.VariantID,
			"name":      it.Name,
			"image":     it.Image,
			"unitPrice": it.UnitPrice,
			"quantity":  it.Quantity,
		})
	}
	_, err := s.Client.Collection(colCarts).Doc(c.UserID).Set(ctx, map[string]any{
		"userId":    c.UserID,
		"items":     items,
		"updatedAt": c.UpdatedAt,
	})
	return wrapError("firestore.carts.set", err, nil)
}

// DeleteCart implements cart.Store.
func (s *Store) DeleteCart(ctx context.Context, userID string) error {
	_, err := s.Client.Collection(colCarts).Doc(userID).Delete(ctx)
	if isNotFound(err) {
		return nil
	}
	return wrapError("firestore.carts.delete", err, nil)
}

// PutProduct upserts a product document.
func (s *Store) PutProduct(ctx context.Context, p cart.Product) error {
	doc, err := toMap(p)
	if err != nil {
		return err
	}
	_, err = s.Client.Collection(colProducts).Doc(p.ID).Set(ctx, doc)
	return wrapError("firestore.products.set", err, nil)
}

// GetProduct implements cart.Catalog.
func (s *Store) GetProduct(ctx context.Context, id string) (cart.Product, error) {
	snap, err := s.Client.Collection(colProducts).Doc(id).Get(ctx)
	if err != nil {
		return cart.Product{}, wrapError("firestore.products.get", err, cart.ErrProductNotFound)
	}
	var p cart.Product
	if err := fromMap(snap.Data(), &p); err != nil {
		return cart.Product{}, err
	}
	if p.ID == "" {
		p.ID = snap.Ref.ID
	}
	return p, nil
}

// ListCoupons implements checkout.CouponSource.
func (s *Store) ListCoupons(ctx context.Context) ([]pricing.Coupon, error) {
	iter := s.Client.Collection(colCoupons).Documents(ctx)
	defer iter.Stop()
	var out []pricing.Coupon
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, wrapError("firestore.coupons.list", err, nil)
		}
		c := pricing.DecodeCoupon(snap.Data())
		if c.Code == "" {
			c.Code = snap.Ref.ID
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// UpsertCoupon implements coupon.Repository.
func (s *Store) UpsertCoupon(ctx context.Context, c pricing.Coupon) error {
	doc := map[string]any{
		"code":           c.Code,
		"type":           string(c.Type),
		"value":          c.Value,
		"minOrder":       c.MinOrder,
		"firstOrderOnly": c.FirstOrderOnly,
		"usedCount":      c.UsedCount,
		"description":    c.Description,
	}
	if c.ExpiryDate != nil {
		doc["expiryDate"] = *c.ExpiryDate
	}
	if c.UsageLimit != nil {
		doc["usageLimit"] = *c.UsageLimit
	}
	_, err := s.Client.Collection(colCoupons).Doc(couponDocID(c.Code)).Set(ctx, doc)
	return wrapError("firestore.coupons.set", err, nil)
}

// DeleteCoupon implements coupon.Repository.
func (s *Store) DeleteCoupon(ctx context.Context, code string) error {
	ref := s.Client.Collection(colCoupons).Doc(couponDocID(code))
	_, err := ref.Delete(ctx, firestore.Exists)
	return wrapError("firestore.coupons.delete", err, coupon.ErrNotFound)
}

// IncrementUsage implements checkout.CouponSource. Codes without a document are ignored.
func (s *Store) IncrementUsage(ctx context.Context, code string) error {
	_, err := s.Client.Collection(colCoupons).Doc(couponDocID(code)).Update(ctx, []firestore.Update{
		{Path: "usedCount", Value: firestore.Increment(1)},
	})
	if isNotFound(err) {
		return nil
	}
	return wrapError("firestore.coupons.increment", err, nil)
}

// CreateOrder implements checkout.OrderStore.
func (s *Store) CreateOrder(ctx context.Context, o checkout.Order) error {
	doc, err := toMap(o)
	if err != nil {
		return err
	}
	_, err = s.Client.Collection(colOrders).Doc(o.ID).Create(ctx, doc)
	if status.Code(err) == codes.AlreadyExists {
		return fmt.Errorf("firestore.orders.create: order %s already exists", o.ID)
	}
	return wrapError("firestore.orders.create", err, nil)
}

// GetOrder implements checkout.OrderStore.
func (s *Store) GetOrder(ctx context.Context, id string) (checkout.Order, error) {
	snap, err := s.Client.Collection(colOrders).Doc(id).Get(ctx)
	if err != nil {
		return checkout.Order{}, wrapError("firestore.orders.get", err, checkout.ErrOrderNotFound)
	}
	var o checkout.Order
	if err := fromMap(snap.Data(), &o); err != nil {
		return checkout.Order{}, err
	}
	return o, nil
}

// ListOrders implements checkout.OrderStore, newest first.
func (s *Store) ListOrders(ctx context.Context, userID string) ([]checkout.Order, error) {
	iter := s.Client.Collection(colOrders).Where("userId", "==", userID).Documents(ctx)
	defer iter.Stop()
	var out []checkout.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, wrapError("firestore.orders.list", err, nil)
		}
		var o checkout.Order
		if err := fromMap(snap.Data(), &o); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// SetGatewayOrder implements checkout.OrderStore.
func (s *Store) SetGatewayOrder(ctx context.Context, id, gatewayOrderID string) error {
	_, err := s.Client.Collection(colOrders).Doc(id).Update(ctx, []firestore.Update{
		{Path: "gatewayOrderId", Value: gatewayOrderID},
	})
	return wrapError("firestore.orders.gateway", err, checkout.ErrOrderNotFound)
}

// MarkPaid implements checkout.OrderStore inside a transaction.
func (s *Store) MarkPaid(ctx context.Context, id, paymentID string, paidAt time.Time) (checkout.Order, error) {
	ref := s.Client.Collection(colOrders).Doc(id)
	var out checkout.Order
	err := s.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var o checkout.Order
		if err := fromMap(snap.Data(), &o); err != nil {
			return err
		}
		o.Status = checkout.StatusPaid
		o.PaymentID = paymentID
		o.PaidAt = &paidAt
		out = o
		return tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(checkout.StatusPaid)},
			{Path: "paymentId", Value: paymentID},
			{Path: "paidAt", Value: paidAt.Format(time.RFC3339Nano)},
		})
	})
	if err != nil {
		return checkout.Order{}, wrapError("firestore.orders.paid", err, checkout.ErrOrderNotFound)
	}
	return out, nil
}

// HasPriorOrders implements checkout.OrderHistory.
func (s *Store) HasPriorOrders(ctx context.Context, userID string) (bool, error) {
	iter := s.Client.Collection(colOrders).
		Where("userId", "==", userID).
		Where("status", "==", string(checkout.StatusPaid)).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()
	_, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return false, nil
	}
	if err != nil {
		return false, wrapError("firestore.orders.history", err, nil)
	}
	return true, nil
}

// InsertEvent implements events.EventStore.
func (s *Store) InsertEvent(ctx context.Context, ev events.Event) error {
	_, err := s.Client.Collection(colEvents).Doc(ev.ID).Set(ctx, map[string]any{
		"topic":       ev.Topic,
		"aggregateId": ev.AggregateID,
		"payload":     string(ev.Payload),
		"occurredAt":  ev.OccurredAt,
	})
	return wrapError("firestore.events.insert", err, nil)
}

// Ping issues a cheap read to confirm connectivity.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.Client.Collection(colCoupons).Limit(1).Documents(ctx).GetAll()
	return wrapError("firestore.ping", err, nil)
}

// Close releases the client.
func (s *Store) Close() error {
	return s.Client.Close()
}

func couponDocID(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func firstString(rec map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := rec[k].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func fromMap(m map[string]any, dest any) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
