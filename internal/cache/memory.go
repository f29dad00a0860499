package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
)

// MemoryProvider implements Provider backed by an in-process bigcache shard
// set. Entry lifetime is fixed at construction; per-call TTLs shorter than
// the configured lifetime are accepted but not enforced individually.
type MemoryProvider struct {
	cache *bigcache.BigCache
}

// NewMemoryProvider creates a Provider holding entries for the supplied TTL.
func NewMemoryProvider(ttl time.Duration) (*MemoryProvider, error) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	inner, err := bigcache.New(context.Background(), bigcache.DefaultConfig(ttl))
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}
	return &MemoryProvider{cache: inner}, nil
}

// Get fetches bytes by key, returning ErrCacheMiss when the key is absent.
func (p *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	value, err := p.cache.Get(key)
	if err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	return value, nil
}

// Set stores the value; the per-key ttl argument is ignored in favour of the
// cache-wide lifetime.
func (p *MemoryProvider) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	return p.cache.Set(key, value)
}

// Del removes a key; missing keys are not an error.
func (p *MemoryProvider) Del(_ context.Context, key string) error {
	if err := p.cache.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		return err
	}
	return nil
}

// Close releases the underlying shards.
func (p *MemoryProvider) Close() error {
	return p.cache.Close()
}
