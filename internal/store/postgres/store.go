// Package postgres persists carts, products, coupons, orders and events in PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/storefront-checkout/internal/cart"
	"github.com/noah-isme/storefront-checkout/internal/checkout"
	"github.com/noah-isme/storefront-checkout/internal/coupon"
	"github.com/noah-isme/storefront-checkout/internal/events"
	"github.com/noah-isme/storefront-checkout/internal/obs"
	"github.com/noah-isme/storefront-checkout/internal/pricing"
)

// DB is the subset of pgxpool.Pool used by Store.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store implements the cart, catalog, coupon, order and event collaborators.
type Store struct {
	DB DB
}

// Open connects a traced pool and verifies it with a ping.
func Open(ctx context.Context, databaseURL, appName string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = appName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// GetCart implements cart.Store.
func (s *Store) GetCart(ctx context.Context, userID string) (cart.Cart, error) {
	var (
		raw       []byte
		updatedAt time.Time
	)
	err := s.DB.QueryRow(ctx, `SELECT items, updated_at FROM carts WHERE user_id = $1`, userID).Scan(&raw, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return cart.Cart{UserID: userID, Items: []cart.Item{}}, nil
	}
	if err != nil {
		return cart.Cart{}, fmt.Errorf("get cart: %w", err)
	}
	c := cart.Cart{UserID: userID, UpdatedAt: updatedAt, Items: []cart.Item{}}
	if err := json.Unmarshal(raw, &c.Items); err != nil {
		return cart.Cart{}, fmt.Errorf("decode cart %s: %v: %w", userID, err, pricing.ErrInvalidInput)
	}
	return c, nil
}

// SaveCart implements cart.Store.
func (s *Store) SaveCart(ctx context.Context, c cart.Cart) error {
	items := c.Items
	if items == nil {
		items = []cart.Item{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO carts (user_id, items, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET items = EXCLUDED.items, updated_at = EXCLUDED.updated_at`,
		c.UserID, raw, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

// DeleteCart implements cart.Store.
func (s *Store) DeleteCart(ctx context.Context, userID string) error {
	if _, err := s.DB.Exec(ctx, `DELETE FROM carts WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

// PutProduct upserts a product.
func (s *Store) PutProduct(ctx context.Context, p cart.Product) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO products (id, doc) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`, p.ID, raw)
	if err != nil {
		return fmt.Errorf("put product: %w", err)
	}
	return nil
}

// GetProduct implements cart.Catalog.
func (s *Store) GetProduct(ctx context.Context, id string) (cart.Product, error) {
	var raw []byte
	err := s.DB.QueryRow(ctx, `SELECT doc FROM products WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return cart.Product{}, fmt.Errorf("%s: %w", id, cart.ErrProductNotFound)
	}
	if err != nil {
		return cart.Product{}, fmt.Errorf("get product: %w", err)
	}
	var p cart.Product
	if err := json.Unmarshal(raw, &p); err != nil {
		return cart.Product{}, fmt.Errorf("decode product: %w", err)
	}
	return p, nil
}

const couponColumns = `code, type, value, min_order, first_order_only, expiry_date, usage_limit, used_count, description`

// ListCoupons implements checkout.CouponSource.
func (s *Store) ListCoupons(ctx context.Context) ([]pricing.Coupon, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+couponColumns+` FROM coupons ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	defer rows.Close()
	var out []pricing.Coupon
	for rows.Next() {
		var (
			c      pricing.Coupon
			typ    string
			expiry *time.Time
			limit  *int32
			used   int32
		)
		if err := rows.Scan(&c.Code, &typ, &c.Value, &c.MinOrder, &c.FirstOrderOnly, &expiry, &limit, &used, &c.Description); err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		c.Type = pricing.ParseCouponType(typ)
		c.ExpiryDate = expiry
		if limit != nil {
			v := int(*limit)
			c.UsageLimit = &v
		}
		c.UsedCount = int(used)
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertCoupon implements coupon.Repository. The stored usage count is preserved.
func (s *Store) UpsertCoupon(ctx context.Context, c pricing.Coupon) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO coupons (`+couponColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (code) DO UPDATE SET
			type = EXCLUDED.type,
			value = EXCLUDED.value,
			min_order = EXCLUDED.min_order,
			first_order_only = EXCLUDED.first_order_only,
			expiry_date = EXCLUDED.expiry_date,
			usage_limit = EXCLUDED.usage_limit,
			description = EXCLUDED.description`,
		couponKey(c.Code), string(c.Type), c.Value, c.MinOrder, c.FirstOrderOnly, c.ExpiryDate, c.UsageLimit, c.UsedCount, c.Description)
	if err != nil {
		return fmt.Errorf("upsert coupon: %w", err)
	}
	return nil
}

// DeleteCoupon implements coupon.Repository.
func (s *Store) DeleteCoupon(ctx context.Context, code string) error {
	tag, err := s.DB.Exec(ctx, `DELETE FROM coupons WHERE code = $1`, couponKey(code))
	if err != nil {
		return fmt.Errorf("delete coupon: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// IncrementUsage implements checkout.CouponSource. Unknown codes are ignored.
func (s *Store) IncrementUsage(ctx context.Context, code string) error {
	if _, err := s.DB.Exec(ctx, `UPDATE coupons SET used_count = used_count + 1 WHERE code = $1`, couponKey(code)); err != nil {
		return fmt.Errorf("increment coupon usage: %w", err)
	}
	return nil
}

// CreateOrder implements checkout.OrderStore.
func (s *Store) CreateOrder(ctx context.Context, o checkout.Order) error {
	raw, err := json.Marshal(o)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `INSERT INTO orders (id, user_id, status, doc, created_at) VALUES ($1, $2, $3, $4, $5)`,
		o.ID, o.UserID, string(o.Status), raw, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// GetOrder implements checkout.OrderStore.
func (s *Store) GetOrder(ctx context.Context, id string) (checkout.Order, error) {
	return scanOrder(s.DB.QueryRow(ctx, `SELECT doc FROM orders WHERE id = $1`, id))
}

// ListOrders implements checkout.OrderStore, newest first.
func (s *Store) ListOrders(ctx context.Context, userID string) ([]checkout.Order, error) {
	rows, err := s.DB.Query(ctx, `SELECT doc FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	var out []checkout.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// SetGatewayOrder implements checkout.OrderStore.
func (s *Store) SetGatewayOrder(ctx context.Context, id, gatewayOrderID string) error {
	tag, err := s.DB.Exec(ctx, `UPDATE orders SET doc = jsonb_set(doc, '{gatewayOrderId}', to_jsonb($2::text)) WHERE id = $1`, id, gatewayOrderID)
	if err != nil {
		return fmt.Errorf("set gateway order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return checkout.ErrOrderNotFound
	}
	return nil
}

// MarkPaid implements checkout.OrderStore. The row is locked while the document is rewritten.
func (s *Store) MarkPaid(ctx context.Context, id, paymentID string, paidAt time.Time) (checkout.Order, error) {
	var out checkout.Order
	err := pgx.BeginFunc(ctx, s.DB, func(tx pgx.Tx) error {
		o, err := scanOrder(tx.QueryRow(ctx, `SELECT doc FROM orders WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		o.Status = checkout.StatusPaid
		o.PaymentID = paymentID
		o.PaidAt = &paidAt
		raw, err := json.Marshal(o)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE orders SET status = $2, doc = $3 WHERE id = $1`, id, string(o.Status), raw); err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}
		out = o
		return nil
	})
	if err != nil {
		return checkout.Order{}, err
	}
	return out, nil
}

// HasPriorOrders implements checkout.OrderHistory. Only paid orders count.
func (s *Store) HasPriorOrders(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.DB.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE user_id = $1 AND status = $2)`,
		userID, string(checkout.StatusPaid)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("order history: %w", err)
	}
	return exists, nil
}

// InsertEvent implements events.EventStore.
func (s *Store) InsertEvent(ctx context.Context, ev events.Event) error {
	payload := ev.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO domain_events (id, topic, aggregate_id, payload, occurred_at) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.Topic, ev.AggregateID, []byte(payload), ev.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func scanOrder(row pgx.Row) (checkout.Order, error) {
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return checkout.Order{}, checkout.ErrOrderNotFound
		}
		return checkout.Order{}, fmt.Errorf("scan order: %w", err)
	}
	var o checkout.Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return checkout.Order{}, fmt.Errorf("decode order: %w", err)
	}
	return o, nil
}

func couponKey(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
