package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/storefront-checkout/internal/coupon"
	"github.com/noah-isme/storefront-checkout/internal/events"
	"github.com/noah-isme/storefront-checkout/internal/obs"
	"github.com/noah-isme/storefront-checkout/internal/pricing"
)

// ErrInvalidCode is returned when an empty coupon code is submitted.
var ErrInvalidCode = errors.New("coupon code is required")

// Locker serialises session mutations for a user.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service orchestrates the checkout session: pricing, coupons and order placement.
type Service struct {
	Carts     CartSource
	Coupons   CouponSource
	History   OrderHistory
	Sessions  SessionStore
	Orders    OrderStore
	Engine    pricing.Engine
	Validator coupon.Validator
	Locker    Locker
	LockTTL   time.Duration
	Events    *events.Bus
	Logger    zerolog.Logger
	Currency  string
	// Revalidate drops applied coupons whose minimum order no longer holds.
	// When false applied coupons are sticky for the session.
	Revalidate bool
	Now        func() time.Time
	NewID      func() string
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *Service) currency() string {
	if s.Currency == "" {
		return "INR"
	}
	return s.Currency
}

func (s *Service) ready() error {
	if s == nil || s.Carts == nil || s.Sessions == nil {
		return errors.New("checkout service not configured")
	}
	return nil
}

func (s *Service) withUserLock(ctx context.Context, userID string, fn func(context.Context) error) error {
	if s.Locker == nil {
		return fn(ctx)
	}
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return s.Locker.WithLock(ctx, "checkout:lock:"+userID, ttl, fn)
}

// Summary prices the user's cart with the coupons in their session.
func (s *Service) Summary(ctx context.Context, userID string) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	items, err := s.Carts.LineItems(ctx, userID)
	if err != nil {
		return View{}, fmt.Errorf("load cart: %w", err)
	}
	sess, err := s.Sessions.Load(ctx, userID)
	if err != nil {
		return View{}, fmt.Errorf("load session: %w", err)
	}
	var dropped []string
	if s.Revalidate && len(sess.Applied) > 0 {
		kept, removed := coupon.Revalidate(sess.Applied, pricing.Subtotal(items))
		if len(removed) > 0 {
			sess.Applied = kept
			if err := s.saveSession(ctx, userID, sess); err != nil {
				return View{}, err
			}
			for _, ac := range removed {
				dropped = append(dropped, ac.Code)
			}
		}
	}
	view := s.view(items, sess.Applied)
	view.Dropped = dropped
	return view, nil
}

// ApplyCoupon validates the code against the cart and session and stores it when accepted.
// A rejection is reported through the Decision with a nil error.
func (s *Service) ApplyCoupon(ctx context.Context, userID, code string) (View, coupon.Decision, error) {
	if err := s.ready(); err != nil {
		return View{}, coupon.Decision{}, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return View{}, coupon.Decision{}, ErrInvalidCode
	}
	ctx, span := obs.StartSpan(ctx, "checkout.apply_coupon", attribute.String("coupon.code", strings.ToUpper(code)))
	var (
		view     View
		decision coupon.Decision
	)
	err := s.withUserLock(ctx, userID, func(ctx context.Context) error {
		items, err := s.Carts.LineItems(ctx, userID)
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}
		sess, err := s.Sessions.Load(ctx, userID)
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		candidate, found, err := s.lookupCoupon(ctx, code)
		if err != nil {
			return err
		}
		if !found {
			decision = coupon.Rejected(coupon.ReasonNotFound)
			obs.ObserveCouponDecision("unknown", string(decision.Reason))
			view = s.view(items, sess.Applied)
			return nil
		}
		hasPrior, err := s.hasPriorOrders(ctx, userID)
		if err != nil {
			return err
		}
		subtotal := pricing.Subtotal(items)
		applied, d := s.Validator.Apply(candidate, subtotal, sess.Applied, hasPrior)
		decision = d
		obs.ObserveCouponDecision(string(candidate.Type), string(d.Reason))
		if d.Accepted {
			sess.Applied = applied
			if err := s.saveSession(ctx, userID, sess); err != nil {
				return err
			}
			s.emit(ctx, events.TopicCouponApplied, userID, map[string]any{"userId": userID, "code": candidate.Code})
		}
		s.Logger.Debug().
			Str("user_id", userID).
			Str("code", candidate.Code).
			Bool("accepted", d.Accepted).
			Str("reason", string(d.Reason)).
			Msg("coupon_decision")
		view = s.view(items, sess.Applied)
		return nil
	})
	span.SetAttributes(attribute.Bool("coupon.accepted", decision.Accepted), attribute.String("coupon.reason", string(decision.Reason)))
	obs.EndSpan(span, err)
	if err != nil {
		return View{}, coupon.Decision{}, err
	}
	return view, decision, nil
}

// RemoveCoupon drops a code from the session. Removing an absent code is not an error.
func (s *Service) RemoveCoupon(ctx context.Context, userID, code string) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	var view View
	err := s.withUserLock(ctx, userID, func(ctx context.Context) error {
		items, err := s.Carts.LineItems(ctx, userID)
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}
		sess, err := s.Sessions.Load(ctx, userID)
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		remaining := coupon.Remove(sess.Applied, code)
		if len(remaining) != len(sess.Applied) {
			sess.Applied = remaining
			if err := s.saveSession(ctx, userID, sess); err != nil {
				return err
			}
			s.emit(ctx, events.TopicCouponRemoved, userID, map[string]any{"userId": userID, "code": strings.TrimSpace(code)})
		}
		view = s.view(items, sess.Applied)
		return nil
	})
	return view, err
}

// PlaceOrder snapshots the current summary into a pending order.
func (s *Service) PlaceOrder(ctx context.Context, userID, email string, addr Address) (Order, error) {
	if err := s.ready(); err != nil {
		return Order{}, err
	}
	if s.Orders == nil {
		return Order{}, errors.New("order store not configured")
	}
	ctx, span := obs.StartSpan(ctx, "checkout.place_order")
	var order Order
	err := s.withUserLock(ctx, userID, func(ctx context.Context) error {
		view, err := s.Summary(ctx, userID)
		if err != nil {
			return err
		}
		if view.Summary.ItemCount == 0 {
			return ErrEmptyCart
		}
		items, err := s.Carts.LineItems(ctx, userID)
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}
		codes := make([]string, 0, len(view.Applied))
		for _, ac := range view.Applied {
			codes = append(codes, ac.Code)
		}
		order = Order{
			ID:          s.newID(),
			UserID:      userID,
			Email:       email,
			Status:      StatusPendingPayment,
			Items:       items,
			CouponCodes: codes,
			Summary:     view.Summary,
			Currency:    s.currency(),
			AmountMinor: pricing.ToMinorUnits(view.Summary.Total),
			Address:     addr,
			CreatedAt:   s.now().UTC(),
		}
		if err := s.Orders.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		return nil
	})
	span.SetAttributes(attribute.String("order.id", order.ID), attribute.Int64("order.amount_minor", order.AmountMinor))
	obs.EndSpan(span, err)
	if err != nil {
		return Order{}, err
	}
	obs.ObserveOrderTotal(order.Summary.Total)
	s.emit(ctx, events.TopicOrderCreated, order.ID, map[string]any{
		"orderId": order.ID,
		"userId":  userID,
		"total":   order.Summary.Total,
	})
	return order, nil
}

// AttachGatewayOrder records the gateway order id created for a pending order.
func (s *Service) AttachGatewayOrder(ctx context.Context, userID, orderID, gatewayOrderID string) error {
	order, err := s.ownedOrder(ctx, userID, orderID)
	if err != nil {
		return err
	}
	if order.Status != StatusPendingPayment {
		return ErrOrderNotPending
	}
	return s.Orders.SetGatewayOrder(ctx, orderID, gatewayOrderID)
}

// Order returns an order owned by the user.
func (s *Service) Order(ctx context.Context, userID, orderID string) (Order, error) {
	return s.ownedOrder(ctx, userID, orderID)
}

// ListOrders lists the user's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, userID string) ([]Order, error) {
	if s == nil || s.Orders == nil {
		return nil, errors.New("checkout: order store not configured")
	}
	return s.Orders.ListOrders(ctx, userID)
}

// ConfirmPayment marks a pending order paid after the gateway signature was verified.
// It records coupon usage, clears the cart and session and emits order.paid.
func (s *Service) ConfirmPayment(ctx context.Context, userID, orderID, paymentID string) (Order, error) {
	if err := s.ready(); err != nil {
		return Order{}, err
	}
	ctx, span := obs.StartSpan(ctx, "checkout.confirm_payment", attribute.String("order.id", orderID))
	var (
		paid      Order
		confirmed bool
	)
	err := s.withUserLock(ctx, userID, func(ctx context.Context) error {
		order, err := s.ownedOrder(ctx, userID, orderID)
		if err != nil {
			return err
		}
		if order.Status == StatusPaid {
			paid = order
			return nil
		}
		if order.Status != StatusPendingPayment {
			return ErrOrderNotPending
		}
		paid, err = s.Orders.MarkPaid(ctx, orderID, paymentID, s.now().UTC())
		if err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}
		confirmed = true
		return nil
	})
	span.SetAttributes(attribute.Bool("order.confirmed", confirmed))
	obs.EndSpan(span, err)
	if err != nil {
		return Order{}, err
	}
	if !confirmed {
		return paid, nil
	}
	if s.Coupons != nil {
		for _, code := range paid.CouponCodes {
			if err := s.Coupons.IncrementUsage(ctx, code); err != nil {
				s.Logger.Warn().Err(err).Str("code", code).Msg("coupon_usage_increment_failed")
			}
		}
	}
	if err := s.Carts.Clear(ctx, userID); err != nil {
		s.Logger.Warn().Err(err).Str("user_id", userID).Msg("cart_clear_failed")
	}
	if err := s.Sessions.Delete(ctx, userID); err != nil {
		s.Logger.Warn().Err(err).Str("user_id", userID).Msg("session_clear_failed")
	}
	payload := map[string]any{
		"orderId":   paid.ID,
		"userId":    paid.UserID,
		"total":     paid.Summary.Total,
		"currency":  paid.Currency,
		"paymentId": paymentID,
	}
	if paid.Email != "" {
		payload["email"] = paid.Email
	}
	s.emit(ctx, events.TopicOrderPaid, paid.ID, payload)
	return paid, nil
}

func (s *Service) ownedOrder(ctx context.Context, userID, orderID string) (Order, error) {
	if s == nil || s.Orders == nil {
		return Order{}, errors.New("order store not configured")
	}
	order, err := s.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.UserID != userID {
		return Order{}, ErrForbidden
	}
	return order, nil
}

func (s *Service) lookupCoupon(ctx context.Context, code string) (pricing.Coupon, bool, error) {
	var stored []pricing.Coupon
	if s.Coupons != nil {
		list, err := s.Coupons.ListCoupons(ctx)
		if err != nil {
			return pricing.Coupon{}, false, fmt.Errorf("list coupons: %w", err)
		}
		stored = list
	}
	c, ok := coupon.Find(coupon.Catalog(stored), code)
	return c, ok, nil
}

func (s *Service) hasPriorOrders(ctx context.Context, userID string) (bool, error) {
	if s.History == nil {
		return false, nil
	}
	prior, err := s.History.HasPriorOrders(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("order history: %w", err)
	}
	return prior, nil
}

func (s *Service) saveSession(ctx context.Context, userID string, sess Session) error {
	sess.UserID = userID
	sess.UpdatedAt = s.now().UTC()
	if err := s.Sessions.Save(ctx, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *Service) view(items []pricing.LineItem, applied []pricing.AppliedCoupon) View {
	obs.ObserveSummary()
	summary := s.Engine.Compute(items, applied)
	// Applied mirrors the summary breakdown so both report the same amounts
	// for the current cart. The session copy is left untouched.
	shown := make([]pricing.AppliedCoupon, len(applied))
	for i, ac := range applied {
		shown[i] = ac
		if i < len(summary.Coupons) {
			shown[i].DiscountAmount = summary.Coupons[i].DiscountAmount
		}
	}
	return View{
		Summary:  summary,
		Applied:  shown,
		Currency: s.currency(),
	}
}

func (s *Service) emit(ctx context.Context, topic, aggregateID string, payload any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, aggregateID, payload); err != nil {
		s.Logger.Warn().Err(err).Str("topic", topic).Msg("event_emit_failed")
	}
}
