package domain

import (
	"context"
	"time"
)

// Cache remembers estimate results so that a repeated query against the same
// model version skips inference. Entries are scoped by tenant and a miss is
// reported as (nil, nil).
type Cache interface {
	GetEstimate(ctx context.Context, tenantID string, key string) (*CachedEstimate, error)
	SetEstimate(ctx context.Context, tenantID string, key string, data *CachedEstimate, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}

// CachedEstimate is the reusable part of an estimate: everything that depends
// only on the model version and the inputs.
type CachedEstimate struct {
	ModelVersion string       `json:"mv"`
	Price        float64      `json:"price"`
	Category     string       `json:"cat"`
	Activations  []Activation `json:"act"`
}

// CacheConfig selects the cache tiers.
//
//	memory            in-process LRU only
//	redis             Redis only
//	redis + TwoPhase  in-process LRU in front of Redis
type CacheConfig struct {
	Type string `json:"type" yaml:"type" validate:"oneof=memory redis"`

	// LocalMaxSize bounds the in-process tier. LocalTTL (seconds) caps how
	// long that tier keeps an entry; zero leaves the caller's TTL alone.
	LocalMaxSize int `json:"localMaxSize" yaml:"localMaxSize"`
	LocalTTL     int `json:"localTtl" yaml:"localTtl"`

	RedisAddr     string `json:"redisAddr" yaml:"redisAddr"`
	RedisPassword string `json:"-" yaml:"redisPassword"`
	RedisDB       int    `json:"redisDb" yaml:"redisDb"`

	EnableTwoPhase bool `json:"enableTwoPhase" yaml:"enableTwoPhase"`
}
