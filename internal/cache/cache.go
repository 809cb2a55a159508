// Package cache remembers estimate results for repeated queries.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/fuzzyprice/internal/domain"
)

var errNoTenant = errors.New("cache: tenant ID is required")

// tier is one storage level of a Cache. A miss is (nil, nil).
type tier interface {
	name() string
	fetch(ctx context.Context, key string) ([]byte, error)
	store(ctx context.Context, key string, value []byte, ttl time.Duration) error
	drop(ctx context.Context, key string) error
	ping(ctx context.Context) error
	close() error
}

// Cache is a stack of tiers ordered fastest first. A hit in a slower tier is
// copied into the faster ones; writes go to every tier.
type Cache struct {
	tiers []tier
	local *localTier
}

// New builds the tiers named by cfg.
func New(cfg domain.CacheConfig) (*Cache, error) {
	localTTL := time.Duration(cfg.LocalTTL) * time.Second

	switch cfg.Type {
	case "memory":
		local := newLocalTier(cfg.LocalMaxSize, localTTL)
		return &Cache{tiers: []tier{local}, local: local}, nil

	case "redis":
		remote, err := newRedisTier(cfg)
		if err != nil {
			return nil, err
		}
		if !cfg.EnableTwoPhase {
			return &Cache{tiers: []tier{remote}}, nil
		}
		local := newLocalTier(cfg.LocalMaxSize, localTTL)
		return &Cache{tiers: []tier{local, remote}, local: local}, nil

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// EstimateKey identifies a query against one model version. Inputs are
// listed in name order so equal queries share a key. The model key and every
// name are quoted, so no name can forge the separators.
func EstimateKey(modelKey string, inputs map[string]float64) string {
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(strconv.Quote(modelKey))
	for _, name := range names {
		b.WriteByte('|')
		b.WriteString(strconv.Quote(name))
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(inputs[name], 'g', -1, 64))
	}
	return b.String()
}

func scopedKey(tenantID, key string) (string, error) {
	if tenantID == "" {
		return "", errNoTenant
	}
	return tenantID + ":est:" + key, nil
}

// GetEstimate looks the key up tier by tier. Undecodable entries count as
// misses and are removed.
func (c *Cache) GetEstimate(ctx context.Context, tenantID string, key string) (*domain.CachedEstimate, error) {
	k, err := scopedKey(tenantID, key)
	if err != nil {
		return nil, err
	}

	for i, t := range c.tiers {
		raw, err := t.fetch(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("%s cache: %w", t.name(), err)
		}
		if raw == nil {
			continue
		}

		var est domain.CachedEstimate
		if err := json.Unmarshal(raw, &est); err != nil {
			_ = t.drop(ctx, k)
			continue
		}
		for _, faster := range c.tiers[:i] {
			_ = faster.store(ctx, k, raw, 0)
		}
		return &est, nil
	}
	return nil, nil
}

// SetEstimate writes the estimate to every tier.
func (c *Cache) SetEstimate(ctx context.Context, tenantID string, key string, data *domain.CachedEstimate, ttl time.Duration) error {
	k, err := scopedKey(tenantID, key)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode cached estimate: %w", err)
	}

	for _, t := range c.tiers {
		if err := t.store(ctx, k, raw, ttl); err != nil {
			return fmt.Errorf("%s cache: %w", t.name(), err)
		}
	}
	return nil
}

// Ping reports the first unhealthy tier.
func (c *Cache) Ping(ctx context.Context) error {
	for _, t := range c.tiers {
		if err := t.ping(ctx); err != nil {
			return fmt.Errorf("%s cache: %w", t.name(), err)
		}
	}
	return nil
}

// Close releases every tier.
func (c *Cache) Close() error {
	var errs []error
	for _, t := range c.tiers {
		errs = append(errs, t.close())
	}
	return errors.Join(errs...)
}

// LocalLen is the number of entries held in process, zero without a local tier.
func (c *Cache) LocalLen() int {
	if c.local == nil {
		return 0
	}
	return c.local.entries.Len()
}
