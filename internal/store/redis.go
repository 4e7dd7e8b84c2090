package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds configuration for the Redis-backed store.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	OpTimeout time.Duration
}

// DefaultRedisConfig returns default Redis store configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		OpTimeout: 2 * time.Second,
	}
}

var _ Store = (*RedisStore)(nil)

// RedisStore implements Store on top of Redis. TTL expiry is enforced by
// Redis itself. Every operation runs under a short timeout so a slow or
// unreachable backend fails the triggering action instead of hanging the
// room.
type RedisStore struct {
	client    *redis.Client
	opTimeout time.Duration
}

// NewRedisStore creates a store backed by the given Redis client.
func NewRedisStore(client *redis.Client, opTimeout time.Duration) *RedisStore {
	if opTimeout <= 0 {
		opTimeout = DefaultRedisConfig().OpTimeout
	}
	return &RedisStore{client: client, opTimeout: opTimeout}
}

// NewRedisStoreFromConfig dials Redis and verifies connectivity.
func NewRedisStoreFromConfig(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, cfg.OpTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.Addr, err)
	}
	return NewRedisStore(client, cfg.OpTimeout), nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) HGet(ctx context.Context, key, field string) (string, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	val, err := s.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("hget %s %s: %w", key, field, err)
	}
	return val, true, nil
}

func (s *RedisStore) HSet(ctx context.Context, key, field, value string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.HSet(ctx, key, field, value).Err(); err != nil {
		return fmt.Errorf("hset %s %s: %w", key, field, err)
	}
	return nil
}

func (s *RedisStore) HDel(ctx context.Context, key, field string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.HDel(ctx, key, field).Err(); err != nil {
		return fmt.Errorf("hdel %s %s: %w", key, field, err)
	}
	return nil
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", key, err)
	}
	return fields, nil
}

func (s *RedisStore) PushFront(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	if err := s.client.LPush(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) PopFront(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	val, err := s.client.LPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lpop %s: %w", key, err)
	}
	return val, true, nil
}

func (s *RedisStore) Range(ctx context.Context, key string, start, stop int64) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	vals, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", key, err)
	}
	return vals, nil
}

func (s *RedisStore) Len(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", key, err)
	}
	return n, nil
}

func (s *RedisStore) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.client.SAdd(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("sadd %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.client.SRem(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("srem %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", key, err)
	}
	return members, nil
}

func (s *RedisStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ok, err := s.client.SIsMember(ctx, key, member).Result()
	if err != nil {
		return false, fmt.Errorf("sismember %s: %w", key, err)
	}
	return ok, nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("expire %s: %w", key, err)
	}
	return nil
}
