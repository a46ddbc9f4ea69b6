package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// InMemoryCache implements Cache and IdempotencyStore with a map. Suitable
// for single-instance deployments and tests; multi-instance deployments use
// the Redis-backed implementations.
type InMemoryCache struct {
	mu        sync.RWMutex
	entries   map[string]memoryEntry
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryCache creates an in-memory cache and starts a background
// goroutine that evicts expired entries.
func NewInMemoryCache() *InMemoryCache {
	c := &InMemoryCache{
		entries:  make(map[string]memoryEntry),
		stopChan: make(chan struct{}),
	}
	c.wg.Add(1)
	go c.cleanupLoop()
	return c
}

// Get returns the value for key if present and unexpired.
func (c *InMemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || e.expired(time.Now()) {
		return "", false, nil
	}
	return e.value, true, nil
}

// Set stores a value with a TTL.
func (c *InMemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

// Invalidate removes a key.
func (c *InMemoryCache) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// MarkProcessed records an event id, returning false on duplicates.
func (c *InMemoryCache) MarkProcessed(_ context.Context, eventID string, ttl time.Duration) (bool, error) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[eventID]; ok && !e.expired(now) {
		return false, nil
	}

	e := memoryEntry{}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	c.entries[eventID] = e
	return true, nil
}

// Forget releases a claimed event id.
func (c *InMemoryCache) Forget(_ context.Context, eventID string) error {
	c.mu.Lock()
	delete(c.entries, eventID)
	c.mu.Unlock()
	return nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (c *InMemoryCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
	})
	return nil
}

func (c *InMemoryCache) cleanupLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, e := range c.entries {
				if e.expired(now) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

var (
	_ Cache            = (*InMemoryCache)(nil)
	_ IdempotencyStore = (*InMemoryCache)(nil)
)
