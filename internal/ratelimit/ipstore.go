package ratelimit

import (
	"net/http"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/noah-isme/storefront-checkout/internal/common"
)

// NewIPMiddleware builds a fixed-window per-IP limiter for the given formatted rate, e.g. "20-M".
// A nil client falls back to an in-process store.
func NewIPMiddleware(rdb *redis.Client, prefix, rate string) (func(http.Handler) http.Handler, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, err
	}
	var store limiter.Store
	if rdb != nil {
		store, err = limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
		if err != nil {
			return nil, err
		}
	} else {
		store = memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: prefix})
	}
	instance := limiter.New(store, parsed, limiter.WithTrustForwardHeader(true))
	mw := stdlib.NewMiddleware(instance, stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
		common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
	}))
	return mw.Handler, nil
}
