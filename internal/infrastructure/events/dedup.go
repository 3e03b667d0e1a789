package events

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	dedupKeyPrefix  = "spamguard:event:"
	DefaultDedupTTL = 24 * time.Hour
)

// Deduplicator claims event ids so a redelivered event is handled once.
type Deduplicator interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type RedisDeduplicator struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDeduplicator(rdb *redis.Client, ttl time.Duration) *RedisDeduplicator {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &RedisDeduplicator{rdb: rdb, ttl: ttl}
}

// Claim reports true when this is the first time eventID was seen.
func (d *RedisDeduplicator) Claim(ctx context.Context, eventID string) (bool, error) {
	return d.rdb.SetNX(ctx, dedupKeyPrefix+eventID, time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
}

// Release forgets eventID so a later redelivery is handled again.
func (d *RedisDeduplicator) Release(ctx context.Context, eventID string) error {
	return d.rdb.Del(ctx, dedupKeyPrefix+eventID).Err()
}
