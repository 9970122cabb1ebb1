// Package memcache is the in-process cache used when no Redis is configured.
package memcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"refuge_map/internal/adapters/observability"
)

type entry struct {
	b   []byte
	exp time.Time
}

// Cache keeps JSON-encoded values so callers never share memory with it.
// The LRU TTL bounds every entry; Set can only shorten it.
type Cache struct {
	lru *expirable.LRU[string, entry]
	now func() time.Time
}

func New(size int, maxTTL time.Duration) *Cache {
	if size <= 0 {
		size = 512
	}
	return &Cache{lru: expirable.NewLRU[string, entry](size, nil, maxTTL), now: time.Now}
}

func (c *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	e, ok := c.lru.Get(key)
	if !ok || (!e.exp.IsZero() && c.now().After(e.exp)) {
		if ok {
			c.lru.Remove(key)
		}
		observability.ObserveCache("memory", "miss")
		return false, nil
	}
	observability.ObserveCache("memory", "hit")
	return true, json.Unmarshal(e.b, dst)
}

func (c *Cache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("memcache set %s: %w", key, err)
	}
	e := entry{b: b}
	if ttlSec > 0 {
		e.exp = c.now().Add(time.Duration(ttlSec) * time.Second)
	}
	c.lru.Add(key, e)
	observability.ObserveCache("memory", "set")
	return nil
}

func (c *Cache) Del(ctx context.Context, key string) error {
	c.lru.Remove(key)
	observability.ObserveCache("memory", "del")
	return nil
}
