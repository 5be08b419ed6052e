package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestLimiterAllowSlidingWindow(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := Limiter{Client: client, Prefix: "coupon:", Now: func() time.Time { return now }}

	ctx := context.Background()
	window := time.Minute
	max := 2

	for i := 0; i < max; i++ {
		allowed, remaining, _, err := limiter.Allow(ctx, "user:u1", window, max)
		require.NoError(t, err)
		require.True(t, allowed, "attempt %d", i)
		require.Equal(t, max-(i+1), remaining)
	}

	allowed, remaining, resetAt, err := limiter.Allow(ctx, "user:u1", window, max)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Zero(t, remaining)
	require.Equal(t, now.Add(window), resetAt)

	allowed, _, _, err = limiter.Allow(ctx, "user:u2", window, max)
	require.NoError(t, err)
	require.True(t, allowed)

	now = now.Add(window + time.Second)
	allowed, _, _, err = limiter.Allow(ctx, "user:u1", window, max)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestLimiterWithoutClientAllows(t *testing.T) {
	allowed, remaining, _, err := Limiter{}.Allow(context.Background(), "k", time.Minute, 3)
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, 3, remaining)
}

func TestLimiterRejectedHitsDoNotExtendWindow(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := start
	limiter := Limiter{Client: client, Prefix: "rl:", Now: func() time.Time { return now }}
	ctx := context.Background()

	allowed, _, _, err := limiter.Allow(ctx, "ip:1", time.Minute, 1)
	require.NoError(t, err)
	require.True(t, allowed)

	for i := 0; i < 5; i++ {
		now = now.Add(10 * time.Second)
		allowed, _, reset, err := limiter.Allow(ctx, "ip:1", time.Minute, 1)
		require.NoError(t, err)
		require.False(t, allowed)
		require.Equal(t, start.Add(time.Minute), reset)
	}

	now = start.Add(time.Minute + time.Second)
	allowed, _, _, err = limiter.Allow(ctx, "ip:1", time.Minute, 1)
	require.NoError(t, err)
	require.True(t, allowed)
}
