package utils

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheItem[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache 本地 LRU 缓存，每个条目带过期时间
type TTLCache[V any] struct {
	lru *lru.Cache[string, cacheItem[V]]
	now func() time.Time
}

// NewTTLCache creates a cache holding at most size entries.
func NewTTLCache[V any](size int) (*TTLCache[V], error) {
	l, err := lru.New[string, cacheItem[V]](size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &TTLCache[V]{lru: l, now: time.Now}, nil
}

// Set 设置缓存，TTL 为过期时间
func (c *TTLCache[V]) Set(key string, value V, ttl time.Duration) {
	c.lru.Add(key, cacheItem[V]{
		value:     value,
		expiresAt: c.now().Add(ttl),
	})
}

// Get 获取缓存，不存在或已过期返回 false
func (c *TTLCache[V]) Get(key string) (V, bool) {
	item, ok := c.lru.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	if !c.now().Before(item.expiresAt) {
		c.lru.Remove(key)
		var zero V
		return zero, false
	}
	return item.value, true
}

// Delete 删除指定缓存
func (c *TTLCache[V]) Delete(key string) {
	c.lru.Remove(key)
}

func (c *TTLCache[V]) Len() int {
	return c.lru.Len()
}
