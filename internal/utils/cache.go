package utils

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheEntry 包装实际的数据，增加过期时间
type cacheEntry[V any] struct {
	value     V
	expiredAt time.Time
}

// TTLCache 带过期时间的 LRU 缓存，并发安全
type TTLCache[K comparable, V any] struct {
	storage *lru.Cache[K, cacheEntry[V]]
	ttl     time.Duration
}

// NewTTLCache size 是最大缓存条数，ttl 是数据有效期（<=0 表示不过期）
func NewTTLCache[K comparable, V any](size int, ttl time.Duration) *TTLCache[K, V] {
	c, _ := lru.New[K, cacheEntry[V]](size)
	return &TTLCache[K, V]{
		storage: c,
		ttl:     ttl,
	}
}

// Set 写入或覆盖
func (c *TTLCache[K, V]) Set(key K, value V) {
	entry := cacheEntry[V]{value: value}
	if c.ttl > 0 {
		entry.expiredAt = time.Now().Add(c.ttl)
	}
	c.storage.Add(key, entry)
}

// Get 读取，过期的条目会被顺手删除
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	var zero V
	entry, ok := c.storage.Get(key)
	if !ok {
		return zero, false
	}
	if !entry.expiredAt.IsZero() && time.Now().After(entry.expiredAt) {
		c.storage.Remove(key)
		return zero, false
	}
	return entry.value, true
}

// Lookup 批量读取，返回命中的结果和未命中的 key
func (c *TTLCache[K, V]) Lookup(keys []K) (map[K]V, []K) {
	hits := make(map[K]V, len(keys))
	var misses []K
	for _, k := range keys {
		if v, ok := c.Get(k); ok {
			hits[k] = v
			continue
		}
		misses = append(misses, k)
	}
	return hits, misses
}
