package progress

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fhuszti/assets-ms-go/internal/port"
	"github.com/redis/go-redis/v9"
)

// RedisStore shares transcoding progress between the worker and the API.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// compile-time check: *RedisStore must satisfy port.ProgressStore
var _ port.ProgressStore = (*RedisStore)(nil)

func NewRedisStore(addr, password string, ttl time.Duration) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	return &RedisStore{client: rdb, ttl: ttl}
}

func (s *RedisStore) Set(ctx context.Context, key string, value float64) error {
	if err := s.client.Set(ctx, getCacheKey(key), strconv.FormatFloat(value, 'f', -1, 64), s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (float64, bool, error) {
	v, err := s.client.Get(ctx, getCacheKey(key)).Float64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil // never enqueued, or expired
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get failed: %w", err)
	}
	return v, true, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func getCacheKey(output string) string {
	return "transcoding:progress:" + output
}
