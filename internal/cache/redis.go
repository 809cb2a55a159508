package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opensource-finance/fuzzyprice/internal/domain"
)

const redisNamespace = "fuzzyprice:"

// redisTier shares cached estimates between API replicas.
type redisTier struct {
	client *redis.Client
}

func newRedisTier(cfg domain.CacheConfig) (*redisTier, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis at %s unreachable: %w", addr, err)
	}
	return &redisTier{client: client}, nil
}

// NewRedis returns a cache backed only by Redis.
func NewRedis(cfg domain.CacheConfig) (*Cache, error) {
	remote, err := newRedisTier(cfg)
	if err != nil {
		return nil, err
	}
	return &Cache{tiers: []tier{remote}}, nil
}

func (t *redisTier) name() string { return "redis" }

func (t *redisTier) fetch(ctx context.Context, key string) ([]byte, error) {
	raw, err := t.client.Get(ctx, redisNamespace+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return raw, err
}

// store with a non-positive ttl keeps the entry until Redis evicts it.
func (t *redisTier) store(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return t.client.Set(ctx, redisNamespace+key, value, ttl).Err()
}

func (t *redisTier) drop(ctx context.Context, key string) error {
	return t.client.Del(ctx, redisNamespace+key).Err()
}

func (t *redisTier) ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

func (t *redisTier) close() error {
	return t.client.Close()
}
