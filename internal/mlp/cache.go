package mlp

import (
	"strings"
	"sync"
	"time"
)

// responseCache is a per-process cache of idempotent GET responses, keyed
// by endpoint+query, with a fixed TTL and a full flush on every mutation
// (spec §4.1's "per-process in-memory cache ... invalidated by any
// mutation affecting their keys").
type responseCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	body      []byte
	expiresAt time.Time
}

func newResponseCache(ttl time.Duration) *responseCache {
	return &responseCache{ttl: ttl, entries: make(map[string]cacheEntry)}
}

func (c *responseCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.body, true
}

func (c *responseCache) set(key string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{body: body, expiresAt: time.Now().Add(c.ttl)}
}

// invalidatePrefix drops every cached entry whose key starts with prefix.
func (c *responseCache) invalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

// flush drops every cached entry. Called after every mutating request,
// and by the resource guard's
// manage_memory hook (spec §4.8) when client-side caches should be
// released under memory pressure.
func (c *responseCache) flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
