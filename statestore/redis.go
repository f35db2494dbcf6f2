package statestore

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/rivalapexmediation/auction-server/config"
)

const defaultRedisTimeout = 20 * time.Millisecond

// RedisStore shares state across processes through Redis. Every call is bounded by a short
// timeout so a slow Redis cannot stall an auction.
type RedisStore struct {
	client  redis.UniversalClient
	timeout time.Duration
	prefix  string
}

// NewRedisStore builds a Redis-backed Store.
func NewRedisStore(cfg config.Redis, prefix string) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("state_store.redis.addr is required")
	}

	opts := &redis.Options{
		Addr:         cfg.Addr,
		DB:           cfg.DB,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DialTimeout:  time.Second,
		ReadTimeout:  cfg.Timeout(),
		WriteTimeout: cfg.Timeout(),
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdle,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return newRedisStore(redis.NewClient(opts), cfg.Timeout(), prefix), nil
}

func newRedisStore(client redis.UniversalClient, timeout time.Duration, prefix string) *RedisStore {
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}
	return &RedisStore{
		client:  client,
		timeout: timeout,
		prefix:  prefix,
	}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *RedisStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ok, err := s.client.SetNX(ctx, s.key(key), value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, s.key(key))
		pipe.Expire(ctx, s.key(key), ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis incr failed: %w", err)
	}
	return incr.Val(), nil
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.key(k)
	}
	if err := s.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

// Close releases Redis resources.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
