package repository

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	suppressedKeyPrefix    = "push:token:suppressed:"
	defaultSuppressionTTL  = 24 * time.Hour
	suppressionMarkerValue = "1"
)

// RedisSuppression remembers tokens FCM reported as unregistered so the
// dispatcher can skip them without a database round trip. Entries expire
// after ttl; a later successful send or registration removes them early.
type RedisSuppression struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisSuppression(client redis.UniversalClient, ttl time.Duration) *RedisSuppression {
	if ttl <= 0 {
		ttl = defaultSuppressionTTL
	}
	return &RedisSuppression{
		client: client,
		ttl:    ttl,
	}
}

func suppressionKey(token string) string {
	return suppressedKeyPrefix + token
}

func (r *RedisSuppression) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisSuppression) Close() error {
	return r.client.Close()
}

func (r *RedisSuppression) IsTokenSuppressed(ctx context.Context, token string) (bool, error) {
	exists, err := r.client.Exists(ctx, suppressionKey(token)).Result()
	if err != nil {
		return false, err
	}
	return exists == 1, nil
}

// SuppressToken marks token for ttl, or the cache default when ttl is zero.
func (r *RedisSuppression) SuppressToken(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.ttl
	}
	return r.client.SetEX(ctx, suppressionKey(token), suppressionMarkerValue, ttl).Err()
}

func (r *RedisSuppression) ReleaseToken(ctx context.Context, token string) error {
	return r.client.Del(ctx, suppressionKey(token)).Err()
}
