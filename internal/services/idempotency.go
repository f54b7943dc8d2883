package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore remembers which comment a client request key produced,
// so a create retried after a timeout is not written twice.
type IdempotencyStore interface {
	// Reserve claims key. It returns the comment id if the key already
	// completed, or reserved=false with an empty id if another request holding
	// the key is still in flight.
	Reserve(ctx context.Context, key string) (existing string, reserved bool, err error)
	Complete(ctx context.Context, key, commentID string) error
	Release(ctx context.Context, key string) error
}

const pendingMarker = "pending"

func scopeKey(userID uint, key string) string {
	return strconv.FormatUint(uint64(userID), 10) + ":" + key
}

// RedisIdempotency implements IdempotencyStore with SETNX.
type RedisIdempotency struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisIdempotency(redisURL string, ttl time.Duration) (*RedisIdempotency, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisIdempotencyWithClient(client, ttl), nil
}

func NewRedisIdempotencyWithClient(client *redis.Client, ttl time.Duration) *RedisIdempotency {
	return &RedisIdempotency{client: client, prefix: "idem:comment:", ttl: ttl}
}

func (s *RedisIdempotency) key(k string) string {
	return s.prefix + k
}

func (s *RedisIdempotency) Reserve(ctx context.Context, key string) (string, bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(key), pendingMarker, s.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		return "", true, nil
	}

	val, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET, try once more
		ok, err = s.client.SetNX(ctx, s.key(key), pendingMarker, s.ttl).Result()
		if err != nil {
			return "", false, fmt.Errorf("reserve idempotency key: %w", err)
		}
		return "", ok, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read idempotency key: %w", err)
	}
	if val == pendingMarker {
		return "", false, nil
	}
	return val, false, nil
}

func (s *RedisIdempotency) Complete(ctx context.Context, key, commentID string) error {
	if err := s.client.Set(ctx, s.key(key), commentID, s.ttl).Err(); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

func (s *RedisIdempotency) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

func (s *RedisIdempotency) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisIdempotency) Close() error {
	return s.client.Close()
}
