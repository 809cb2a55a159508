package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultLocalSize is the in-process capacity used when none is configured.
const DefaultLocalSize = 10000

// defaultLocalTTL applies to entries copied up from a slower tier.
const defaultLocalTTL = 5 * time.Minute

type localEntry struct {
	value   []byte
	expires time.Time
}

// localTier keeps entries in process memory and evicts the least recently
// used one when full. Expired entries are removed on read.
type localTier struct {
	entries *lru.Cache[string, localEntry]
	maxTTL  time.Duration
	now     func() time.Time
}

func newLocalTier(size int, maxTTL time.Duration) *localTier {
	if size <= 0 {
		size = DefaultLocalSize
	}
	// lru.New only fails on a non-positive size.
	entries, _ := lru.New[string, localEntry](size)
	return &localTier{entries: entries, maxTTL: maxTTL, now: time.Now}
}

// NewLocal returns a cache held entirely in process memory.
func NewLocal(size int) *Cache {
	local := newLocalTier(size, 0)
	return &Cache{tiers: []tier{local}, local: local}
}

func (t *localTier) name() string { return "local" }

func (t *localTier) fetch(_ context.Context, key string) ([]byte, error) {
	e, ok := t.entries.Get(key)
	if !ok {
		return nil, nil
	}
	if !t.now().Before(e.expires) {
		t.entries.Remove(key)
		return nil, nil
	}
	return e.value, nil
}

func (t *localTier) store(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if t.maxTTL > 0 && (ttl <= 0 || ttl > t.maxTTL) {
		ttl = t.maxTTL
	}
	if ttl <= 0 {
		ttl = defaultLocalTTL
	}
	t.entries.Add(key, localEntry{value: value, expires: t.now().Add(ttl)})
	return nil
}

func (t *localTier) drop(_ context.Context, key string) error {
	t.entries.Remove(key)
	return nil
}

func (t *localTier) ping(context.Context) error { return nil }

func (t *localTier) close() error {
	t.entries.Purge()
	return nil
}
