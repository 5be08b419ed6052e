package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/storefront-checkout/internal/common"
)

// Allower reports whether another event for key fits in the window.
type Allower interface {
	Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error)
}

// Config describes how to derive a rate limit key and thresholds.
type Config struct {
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// ByUser keys requests on the authenticated user, falling back to the client IP.
func ByUser(prefix string) func(*http.Request) string {
	return func(r *http.Request) string {
		if id, ok := common.UserID(r.Context()); ok {
			return prefix + "user:" + id
		}
		return prefix + "ip:" + common.ClientIP(r)
	}
}

// Handler enforces a Config with a sliding window Allower.
type Handler struct {
	Limiter Allower
	Config  Config
	// OnError observes limiter failures. The request is let through either way.
	OnError func(error)
	Now     func() time.Time
}

// Middleware sets the X-RateLimit-* headers on every response and answers
// 429 with Retry-After once the window is full.
func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Config.Key == nil || h.Limiter == nil {
		return next
	}
	limit := strconv.Itoa(max(h.Config.Max, 0))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, remaining, resetAt, err := h.Limiter.Allow(r.Context(), h.Config.Key(r), h.Config.Window, h.Config.Max)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", limit)
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
		if allowed {
			next.ServeHTTP(w, r)
			return
		}
		headers.Set("Retry-After", strconv.Itoa(h.retryAfter(resetAt)))
		common.WriteError(w, errRateLimited)
	})
}

var errRateLimited = common.NewAppError("RATE_LIMITED", "too many attempts, try again later", http.StatusTooManyRequests, nil)

// retryAfter rounds up to whole seconds so clients never retry early.
func (h Handler) retryAfter(resetAt time.Time) int {
	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	wait := resetAt.Sub(now)
	if wait <= 0 {
		return 0
	}
	return int(math.Ceil(wait.Seconds()))
}
