// Package store selects the persistence driver for carts, products, coupons and orders.
package store

import (
	"context"
	"fmt"

	"github.com/noah-isme/storefront-checkout/internal/cart"
	"github.com/noah-isme/storefront-checkout/internal/checkout"
	"github.com/noah-isme/storefront-checkout/internal/config"
	"github.com/noah-isme/storefront-checkout/internal/events"
	"github.com/noah-isme/storefront-checkout/internal/pricing"
	"github.com/noah-isme/storefront-checkout/internal/store/firestore"
	"github.com/noah-isme/storefront-checkout/internal/store/memory"
	"github.com/noah-isme/storefront-checkout/internal/store/postgres"
)

// Driver is implemented by every persistence backend.
type Driver interface {
	cart.Store
	cart.Catalog
	PutProduct(ctx context.Context, p cart.Product) error

	ListCoupons(ctx context.Context) ([]pricing.Coupon, error)
	UpsertCoupon(ctx context.Context, c pricing.Coupon) error
	DeleteCoupon(ctx context.Context, code string) error
	IncrementUsage(ctx context.Context, code string) error

	checkout.OrderStore
	checkout.OrderHistory

	Ping(ctx context.Context) error
	Close() error
}

// Backend is an opened driver plus the optional event journal.
type Backend struct {
	Driver
	Name string
	// Events is nil for the in-memory driver.
	Events events.EventStore
}

// Open connects the driver named by cfg.StoreDriver. Postgres migrations run before the pool opens.
func Open(ctx context.Context, cfg *config.Config, appName string) (*Backend, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory, "":
		return &Backend{Driver: memory.New(), Name: config.StoreMemory}, nil
	case config.StoreFirestore:
		client, err := firestore.NewClient(ctx, firestore.Config{
			ProjectID:       cfg.FirestoreProjectID,
			EmulatorHost:    cfg.FirestoreEmulatorHost,
			CredentialsFile: cfg.FirebaseCredentialsFile,
		})
		if err != nil {
			return nil, err
		}
		s := firestore.New(client)
		return &Backend{Driver: s, Name: config.StoreFirestore, Events: s}, nil
	case config.StorePostgres:
		if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		pool, err := postgres.Open(ctx, cfg.DatabaseURL, appName)
		if err != nil {
			return nil, err
		}
		s := &postgres.Store{DB: pool}
		return &Backend{Driver: pgDriver{Store: s, closeFn: pool.Close, ping: pool.Ping}, Name: config.StorePostgres, Events: s}, nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.StoreDriver)
	}
}

type pgDriver struct {
	*postgres.Store
	closeFn func()
	ping    func(context.Context) error
}

func (d pgDriver) Ping(ctx context.Context) error { return d.ping(ctx) }

func (d pgDriver) Close() error {
	d.closeFn()
	return nil
}
