// Package memory keeps every collaborator document in process. It backs tests and
// STORE_DRIVER=memory for local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/storefront-checkout/internal/cart"
	"github.com/noah-isme/storefront-checkout/internal/checkout"
	"github.com/noah-isme/storefront-checkout/internal/coupon"
	"github.com/noah-isme/storefront-checkout/internal/pricing"
)

// Store is a mutex guarded set of maps.
type Store struct {
	mu       sync.RWMutex
	carts    map[string]cart.Cart
	products map[string]cart.Product
	coupons  map[string]pricing.Coupon
	orders   map[string]checkout.Order
	sessions map[string]checkout.Session
}

// New returns an empty store.
func New() *Store {
	return &Store{
		carts:    map[string]cart.Cart{},
		products: map[string]cart.Product{},
		coupons:  map[string]pricing.Coupon{},
		orders:   map[string]checkout.Order{},
		sessions: map[string]checkout.Session{},
	}
}

func couponKey(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// GetCart implements cart.Store.
func (s *Store) GetCart(_ context.Context, userID string) (cart.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.carts[userID]
	if !ok {
		return cart.Cart{UserID: userID, Items: []cart.Item{}}, nil
	}
	c.Items = append([]cart.Item(nil), c.Items...)
	return c, nil
}

// SaveCart implements cart.Store.
func (s *Store) SaveCart(_ context.Context, c cart.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Items = append([]cart.Item(nil), c.Items...)
	s.carts[c.UserID] = c
	return nil
}

// DeleteCart implements cart.Store.
func (s *Store) DeleteCart(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, userID)
	return nil
}

// PutProduct inserts or replaces a product.
func (s *Store) PutProduct(_ context.Context, p cart.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
	return nil
}

// GetProduct implements cart.Catalog.
func (s *Store) GetProduct(_ context.Context, id string) (cart.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return cart.Product{}, fmt.Errorf("%s: %w", id, cart.ErrProductNotFound)
	}
	return p, nil
}

// ListCoupons implements checkout.CouponSource. Results are sorted by code.
func (s *Store) ListCoupons(_ context.Context) ([]pricing.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]pricing.Coupon, 0, len(s.coupons))
	for _, c := range s.coupons {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// UpsertCoupon implements coupon.Repository.
func (s *Store) UpsertCoupon(_ context.Context, c pricing.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coupons[couponKey(c.Code)] = c
	return nil
}

// DeleteCoupon implements coupon.Repository.
func (s *Store) DeleteCoupon(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.coupons[couponKey(code)]; !ok {
		return coupon.ErrNotFound
	}
	delete(s.coupons, couponKey(code))
	return nil
}

// IncrementUsage implements checkout.CouponSource. Unknown codes, such as the
// built-in promotions, are ignored.
func (s *Store) IncrementUsage(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[couponKey(code)]
	if !ok {
		return nil
	}
	c.UsedCount++
	s.coupons[couponKey(code)] = c
	return nil
}

// Load implements checkout.SessionStore.
func (s *Store) Load(_ context.Context, userID string) (checkout.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return checkout.Session{UserID: userID}, nil
	}
	sess.Applied = append([]pricing.AppliedCoupon(nil), sess.Applied...)
	return sess, nil
}

// Save implements checkout.SessionStore.
func (s *Store) Save(_ context.Context, sess checkout.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.Applied = append([]pricing.AppliedCoupon(nil), sess.Applied...)
	s.sessions[sess.UserID] = sess
	return nil
}

// Delete implements checkout.SessionStore.
func (s *Store) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}

// CreateOrder implements checkout.OrderStore.
func (s *Store) CreateOrder(_ context.Context, o checkout.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[o.ID]; exists {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	s.orders[o.ID] = o
	return nil
}

// GetOrder implements checkout.OrderStore.
func (s *Store) GetOrder(_ context.Context, id string) (checkout.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return checkout.Order{}, checkout.ErrOrderNotFound
	}
	return o, nil
}

// ListOrders implements checkout.OrderStore, newest first.
func (s *Store) ListOrders(_ context.Context, userID string) ([]checkout.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []checkout.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// SetGatewayOrder implements checkout.OrderStore.
func (s *Store) SetGatewayOrder(_ context.Context, id, gatewayOrderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return checkout.ErrOrderNotFound
	}
	o.GatewayOrderID = gatewayOrderID
	s.orders[id] = o
	return nil
}

// MarkPaid implements checkout.OrderStore.
func (s *Store) MarkPaid(_ context.Context, id, paymentID string, paidAt time.Time) (checkout.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return checkout.Order{}, checkout.ErrOrderNotFound
	}
	o.Status = checkout.StatusPaid
	o.PaymentID = paymentID
	o.PaidAt = &paidAt
	s.orders[id] = o
	return o, nil
}

// HasPriorOrders implements checkout.OrderHistory. Only paid orders count.
func (s *Store) HasPriorOrders(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.orders {
		if o.UserID == userID && o.Status == checkout.StatusPaid {
			return true, nil
		}
	}
	return false, nil
}

// Ping reports readiness.
func (s *Store) Ping(context.Context) error { return nil }

// Close releases nothing.
func (s *Store) Close() error { return nil }
