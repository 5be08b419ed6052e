package main

import (
	"context"
	"log"
	"time"

	"github.com/noah-isme/storefront-checkout/internal/cart"
	"github.com/noah-isme/storefront-checkout/internal/config"
	"github.com/noah-isme/storefront-checkout/internal/coupon"
	"github.com/noah-isme/storefront-checkout/internal/pricing"
	"github.com/noah-isme/storefront-checkout/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.StoreDriver == config.StoreMemory {
		log.Fatal("STORE_DRIVER=memory keeps nothing between runs; choose firestore or postgres")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	backend, err := store.Open(ctx, cfg, "storefront-seeder")
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer backend.Close()

	log.Printf("Seeding %s store...", backend.Name)
	for _, p := range products() {
		if err := backend.PutProduct(ctx, p); err != nil {
			log.Fatalf("seed product %s: %v", p.ID, err)
		}
	}
	log.Printf("Seeded %d products", len(products()))

	for _, c := range coupons() {
		if err := backend.UpsertCoupon(ctx, c); err != nil {
			log.Fatalf("seed coupon %s: %v", c.Code, err)
		}
	}
	log.Printf("Seeded %d coupons", len(coupons()))
	log.Println("Seeding completed successfully!")
}

func products() []cart.Product {
	return []cart.Product{
		{ID: "tee-classic", Name: "Classic Cotton Tee", Price: 499, Variants: []cart.Variant{
			{ID: "tee-classic-s", Name: "S", Price: 499},
			{ID: "tee-classic-m", Name: "M", Price: 499},
			{ID: "tee-classic-xl", Name: "XL", Price: 549},
		}},
		{ID: "hoodie-zip", Name: "Zip Hoodie", Price: 1299, Variants: []cart.Variant{
			{ID: "hoodie-zip-m", Name: "M", Price: 1299},
			{ID: "hoodie-zip-l", Name: "L", Price: 1349},
		}},
		{ID: "cap-canvas", Name: "Canvas Cap", Price: 249},
		{ID: "socks-pack", Name: "Ankle Socks (3 pack)", Price: 199},
		{ID: "tote-bag", Name: "Organic Tote Bag", Price: 349.5},
	}
}

func coupons() []pricing.Coupon {
	limit := 100
	expiry := time.Now().AddDate(0, 3, 0).UTC().Truncate(time.Second)
	out := coupon.DefaultPromotions()
	out = append(out, pricing.Coupon{
		Code:        "FESTIVE20",
		Type:        pricing.CouponPercentage,
		Value:       20,
		MinOrder:    999,
		ExpiryDate:  &expiry,
		UsageLimit:  &limit,
		Description: "20% off festive orders above 999",
	})
	return out
}
