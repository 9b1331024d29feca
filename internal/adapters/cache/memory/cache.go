// Package memory provides an in-process TTL cache for resolved published
// payloads. It is an accelerator only: dropping it degrades every lookup to
// a store read, never to wrong data.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/SakenW/transhub/internal/ports"
)

type entry struct {
	payload   map[string]any
	expiresAt time.Time
}

type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
}

var _ ports.Cache = (*Cache)(nil)

func New() *Cache {
	return &Cache{entries: make(map[string]entry)}
}

func (c *Cache) Get(_ context.Context, key string) (map[string]any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return e.payload, true
}

func (c *Cache) Set(_ context.Context, key string, payload map[string]any, ttl time.Duration) {
	e := entry{payload: payload}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

func (c *Cache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}
