// Package redisstore keeps checkout sessions in Redis as JSON documents with a TTL.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/storefront-checkout/internal/checkout"
)

// DefaultSessionTTL bounds how long an idle session keeps its coupons.
const DefaultSessionTTL = 7 * 24 * time.Hour

// Sessions implements checkout.SessionStore.
type Sessions struct {
	R      *redis.Client
	TTL    time.Duration
	Prefix string
}

func (s Sessions) key(userID string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "checkout:session:"
	}
	return prefix + userID
}

func (s Sessions) ttl() time.Duration {
	if s.TTL <= 0 {
		return DefaultSessionTTL
	}
	return s.TTL
}

// Load returns the stored session or an empty one when the key is missing.
func (s Sessions) Load(ctx context.Context, userID string) (checkout.Session, error) {
	if s.R == nil {
		return checkout.Session{}, errors.New("redisstore: client not configured")
	}
	raw, err := s.R.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return checkout.Session{UserID: userID}, nil
	}
	if err != nil {
		return checkout.Session{}, err
	}
	var sess checkout.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return checkout.Session{}, fmt.Errorf("redisstore: decode session: %w", err)
	}
	sess.UserID = userID
	return sess, nil
}

// Save writes the session and refreshes its TTL.
func (s Sessions) Save(ctx context.Context, sess checkout.Session) error {
	if s.R == nil {
		return errors.New("redisstore: client not configured")
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.R.Set(ctx, s.key(sess.UserID), raw, s.ttl()).Err()
}

// Delete removes the session.
func (s Sessions) Delete(ctx context.Context, userID string) error {
	if s.R == nil {
		return errors.New("redisstore: client not configured")
	}
	return s.R.Del(ctx, s.key(userID)).Err()
}
