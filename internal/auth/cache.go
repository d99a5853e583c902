package auth

import (
	"sync"
	"time"
)

// Cache is the optional short-TTL shortcut for credential resolution
// Keyed on the presented secret rather than a hash prefix —
// the secret never leaves process memory unencrypted on disk, and
// keying on the raw value (instead of a prefix) avoids false-positive
// collisions across different keys sharing a prefix. Its absence must
// never change correctness, only latency: Resolver falls back to the
// store on every miss.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	authCtx   Context
	expiresAt time.Time
}

// NewCache builds a Cache with the given entry lifetime.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, entries: make(map[string]cacheEntry)}
}

// Get returns the cached Context for secret, if present and unexpired.
func (c *Cache) Get(secret string) (Context, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[secret]
	if !ok || time.Now().After(entry.expiresAt) {
		return Context{}, false
	}
	return entry.authCtx, true
}

// Put stores authCtx under secret with the cache's configured TTL.
func (c *Cache) Put(secret string, authCtx Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[secret] = cacheEntry{authCtx: authCtx, expiresAt: time.Now().Add(c.ttl)}
}

// Invalidate removes any cached entry for secret. Nothing in this
// repository calls it; without a call, an entry lives until its TTL
// elapses.
func (c *Cache) Invalidate(secret string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, secret)
}

// InvalidateCredential removes every cached entry pointing at the
// given credential ID, for revoking by ID rather than by the secret
// that produced the entry. Nothing in this repository calls it.
func (c *Cache) InvalidateCredential(credentialID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for secret, entry := range c.entries {
		if entry.authCtx.Credential.ID.String() == credentialID {
			delete(c.entries, secret)
		}
	}
}
