package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store wraps the shared redis client. It backs the progress pub/sub channel
// and the submission rate-limit counters; one client serves both, opened at
// process start and closed at shutdown.
type Store struct {
	Client *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{
		Client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func (s *Store) Close() error {
	return s.Client.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx).Err()
}

// AllowSubmission applies a fixed-window counter per client identity.
// The first increment in a window sets the expiry; the window never slides.
func (s *Store) AllowSubmission(ctx context.Context, identity string, limit int, window time.Duration) (bool, error) {
	key := "ratelimit:" + identity
	n, err := s.Client.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		if err := s.Client.Expire(ctx, key, window).Err(); err != nil {
			return false, err
		}
	}
	return n <= int64(limit), nil
}
