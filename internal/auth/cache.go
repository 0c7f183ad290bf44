package auth

import (
	"sync"
	"sync/atomic"
	"time"
)

// KeyCache is a TTL-based in-memory cache of verified keys. Uses sync.Map for
// lock-free reads on the hot path.
//
// Stale-while-revalidate: an expired entry is still returned, with a signal
// that a background refresh is needed, so no request blocks on a DB lookup
// and bcrypt after the first one.
type KeyCache struct {
	store sync.Map // map[string]*cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	principal  *Principal
	expiresAt  time.Time
	refreshing atomic.Bool
}

// NewKeyCache creates a cache with the given TTL.
func NewKeyCache(ttl time.Duration) *KeyCache {
	return &KeyCache{ttl: ttl}
}

// GetResult holds the result of a cache lookup.
type GetResult struct {
	Principal    *Principal
	Hit          bool // a value was found, fresh or stale
	NeedsRefresh bool // the entry expired and this caller should refresh it
}

// Get looks up a key. On a stale hit only the first caller sees
// NeedsRefresh=true.
func (c *KeyCache) Get(apiKey string) GetResult {
	val, ok := c.store.Load(apiKey)
	if !ok {
		return GetResult{}
	}

	entry := val.(*cacheEntry)
	if time.Now().Before(entry.expiresAt) {
		return GetResult{Principal: entry.principal, Hit: true}
	}

	return GetResult{
		Principal:    entry.principal,
		Hit:          true,
		NeedsRefresh: entry.refreshing.CompareAndSwap(false, true),
	}
}

// Set stores a principal with the configured TTL.
func (c *KeyCache) Set(apiKey string, p *Principal) {
	c.store.Store(apiKey, &cacheEntry{
		principal: p,
		expiresAt: time.Now().Add(c.ttl),
	})
}

// Delete removes an entry.
func (c *KeyCache) Delete(apiKey string) {
	c.store.Delete(apiKey)
}
