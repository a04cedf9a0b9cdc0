package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Ping(ctx context.Context, rdb *redis.Client) error {
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Dedup marks event ids as processed for one consumer.
type Dedup struct {
	RDB     *redis.Client
	Service string
	TTL     time.Duration
}

// FirstSeen atomically claims id. It returns false when the id was already
// claimed within the TTL.
func (d *Dedup) FirstSeen(ctx context.Context, id string) (bool, error) {
	ttl := d.TTL
	if ttl <= 0 {
		ttl = TTLDedup
	}
	return d.RDB.SetNX(ctx, fmt.Sprintf(KeyDedup, d.Service, id), "1", ttl).Result()
}

// Forget releases a claim so a failed event can be processed again.
func (d *Dedup) Forget(ctx context.Context, id string) error {
	return d.RDB.Del(ctx, fmt.Sprintf(KeyDedup, d.Service, id)).Err()
}
