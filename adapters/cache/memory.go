package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"chatintent/ports"
)

// Key builds the cache key for a decision. A decision depends on the model,
// the policy and the caller, so all of them are part of the key. Text is kept
// verbatim: scoring is case-insensitive but the response echoes the caller's
// text.
func Key(fingerprint, policy, userType, text string) string {
	return strings.Join([]string{fingerprint, policy, userType, text}, ":")
}

// MemoryCache is an in-process PredictionCache with per-entry expiry and a
// size bound. When full, the least recently used entry is evicted.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*entry
	maxSize int
	now     func() time.Time
}

type entry struct {
	value      []byte
	expireTime time.Time // zero means no expiry
	accessTime time.Time
}

var _ ports.PredictionCache = (*MemoryCache)(nil)

// NewMemoryCache creates a memory cache holding at most maxSize entries
// (maxSize <= 0 means unbounded).
func NewMemoryCache(maxSize int) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]*entry),
		maxSize: maxSize,
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	now := c.now()
	if !e.expireTime.IsZero() && now.After(e.expireTime) {
		delete(c.entries, key)
		return nil, false, nil
	}
	e.accessTime = now
	return append([]byte(nil), e.value...), true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e := &entry{value: append([]byte(nil), value...), accessTime: now}
	if ttl > 0 {
		e.expireTime = now.Add(ttl)
	}
	if _, exists := c.entries[key]; !exists && c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictLRU()
	}
	c.entries[key] = e
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) evictLRU() {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.accessTime.Before(oldest) {
			oldestKey, oldest = k, e.accessTime
		}
	}
	delete(c.entries, oldestKey)
}
