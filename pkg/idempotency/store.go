package idempotency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a Redis-backed marker for already-settled gateway transactions,
// shared across service instances. Keys expire; the durable source of
// truth is the order row, the marker only saves the duplicate path a trip
// through the settlement lock.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Mark is called only after the settlement transaction committed, so a
// crash in between never hides an unapplied notification.
func (s *Store) Mark(ctx context.Context, key string) error {
	return s.rdb.Set(ctx, key, "1", s.ttl).Err()
}
