package portlet

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache stores rendered portlet HTML by cache key. Entries are never
// invalidated explicitly: a content change produces a new key and the stale
// entry ages out of the LRU.
type Cache struct {
	lru *lru.Cache[string, string]
}

// NewCache constructs a cache holding at most size renders.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = 256
	}
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

// Get returns the cached HTML for key.
func (c *Cache) Get(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	return c.lru.Get(key)
}

// Add stores html under key. Concurrent adds for the same key are
// last-writer-wins; renders for one key are identical.
func (c *Cache) Add(key, html string) {
	if c == nil {
		return
	}
	c.lru.Add(key, html)
}

// Len returns the number of cached renders.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

// Purge drops every cached render.
func (c *Cache) Purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}
