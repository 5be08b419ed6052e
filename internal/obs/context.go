package obs

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
)

type requestInfoKey struct{}

// requestInfo is filled in while a request travels down the handler chain so the
// outer middleware (metrics, tracing, access log) can read values that are only
// known after routing and authentication.
type requestInfo struct {
	mu      sync.Mutex
	pattern string
	userID  string
}

func infoFrom(ctx context.Context) *requestInfo {
	if ctx == nil {
		return nil
	}
	info, _ := ctx.Value(requestInfoKey{}).(*requestInfo)
	return info
}

// withRequestInfo attaches a fresh holder unless one is already present.
func withRequestInfo(ctx context.Context) (context.Context, *requestInfo) {
	if info := infoFrom(ctx); info != nil {
		return ctx, info
	}
	info := &requestInfo{}
	return context.WithValue(ctx, requestInfoKey{}, info), info
}

// WithRoutePattern stores the matched router pattern on the context.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, info := withRequestInfo(ctx)
	info.mu.Lock()
	info.pattern = pattern
	info.mu.Unlock()
	return ctx
}

// RoutePatternFromContext extracts the route pattern from context if present.
func RoutePatternFromContext(ctx context.Context) string {
	info := infoFrom(ctx)
	if info == nil {
		return ""
	}
	info.mu.Lock()
	defer info.mu.Unlock()
	return info.pattern
}

// AnnotateUser records the authenticated user for the access log and request span.
// It is a no-op outside RoutePatternMiddleware.
func AnnotateUser(ctx context.Context, userID string) {
	info := infoFrom(ctx)
	if info == nil {
		return
	}
	info.mu.Lock()
	info.userID = userID
	info.mu.Unlock()
}

// UserFromContext returns the user recorded by AnnotateUser.
func UserFromContext(ctx context.Context) string {
	info := infoFrom(ctx)
	if info == nil {
		return ""
	}
	info.mu.Lock()
	defer info.mu.Unlock()
	return info.userID
}

// routeFor resolves the route label for r after the handler chain ran.
func routeFor(r *http.Request, fallback string) string {
	if route := RoutePatternFromContext(r.Context()); route != "" {
		return route
	}
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if route := rc.RoutePattern(); route != "" {
			return route
		}
	}
	return fallback
}
