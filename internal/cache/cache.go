// Package cache 提供进程内、容量受限、按插入时间过期的键值缓存。
package cache

import (
	"container/list"
	"sync"
	"time"
)

// TTL 是并发安全的定长过期缓存。
// 同一 key 的并发写入按最后写入为准；缓存只应保存成功结果。
type TTL[V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	entries  map[string]*list.Element
	order    *list.List // 按插入时间排序，Front 最旧
}

type entry[V any] struct {
	key        string
	value      V
	insertedAt time.Time
}

// Option 配置 TTL 缓存。
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock 替换时间源，测试中用于注入假时钟。
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New 创建缓存。capacity <= 0 表示不限容量，ttl <= 0 表示永不过期。
func New[V any](capacity int, ttl time.Duration, opts ...Option) *TTL[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &TTL[V]{
		capacity: capacity,
		ttl:      ttl,
		now:      o.now,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get 返回未过期的值。过期条目会被顺带删除。
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[V])
	if c.expired(e, c.now()) {
		c.remove(el)
		return zero, false
	}
	return e.value, true
}

// Set 写入或覆盖 key，并刷新其插入时间。
// 超出容量时先清理过期条目，仍不足则淘汰最早插入的条目。
func (c *TTL[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.entries[key]; ok {
		c.remove(el)
	}

	if c.capacity > 0 && len(c.entries) >= c.capacity {
		c.purgeLocked(now)
		for len(c.entries) >= c.capacity {
			c.remove(c.order.Front())
		}
	}

	c.entries[key] = c.order.PushBack(&entry[V]{key: key, value: value, insertedAt: now})
}

// Delete 删除 key。
func (c *TTL[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.remove(el)
	}
}

// Len 返回当前条目数（可能包含尚未清理的过期条目）。
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge 删除所有过期条目，返回删除数量。
func (c *TTL[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeLocked(c.now())
}

func (c *TTL[V]) purgeLocked(now time.Time) int {
	removed := 0
	// 插入时间单调，遇到第一个未过期条目即可停止
	for el := c.order.Front(); el != nil; {
		e := el.Value.(*entry[V])
		if !c.expired(e, now) {
			break
		}
		next := el.Next()
		c.remove(el)
		removed++
		el = next
	}
	return removed
}

func (c *TTL[V]) expired(e *entry[V], now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.insertedAt) >= c.ttl
}

func (c *TTL[V]) remove(el *list.Element) {
	e := el.Value.(*entry[V])
	delete(c.entries, e.key)
	c.order.Remove(el)
}
