package notify

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/sla-engine/internal/clock"
)

// Deduper claims a logical alert so it reaches humans at most once.
type Deduper interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type setNXDeleter interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisDeduper claims keys with SETNX and a TTL.
type RedisDeduper struct {
	client setNXDeleter
	prefix string
	ttl    time.Duration
	clock  clock.Clock
}

// NewRedisDeduper builds a deduper. A non-positive ttl keeps claims forever.
// Claims are stamped with the clock's current instant.
func NewRedisDeduper(client setNXDeleter, prefix string, ttl time.Duration, clk clock.Clock) *RedisDeduper {
	if ttl < 0 {
		ttl = 0
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &RedisDeduper{client: client, prefix: prefix, ttl: ttl, clock: clk}
}

func (d *RedisDeduper) key(key string) string {
	if d.prefix == "" {
		return key
	}
	return d.prefix + ":" + key
}

// Acquire returns true when the key was not claimed before.
func (d *RedisDeduper) Acquire(ctx context.Context, key string) (bool, error) {
	return d.client.SetNX(ctx, d.key(key), d.clock.Now().UTC().Format(time.RFC3339), d.ttl).Result()
}

// Release drops a claim so a later delivery can retry.
func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	return d.client.Del(ctx, d.key(key)).Err()
}
