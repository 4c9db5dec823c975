package cache

import (
	"container/list"
	"sync"
	"time"
)

// DefaultTTL is the freshness window of cached documents
const DefaultTTL = 5 * time.Minute

// LRUCache is a size-bounded cache whose entries expire after a fixed TTL
type LRUCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	lru     *list.List
	now     func() time.Time
	gen     uint64
}

type cacheItem[T any] struct {
	key       string
	data      T
	expiresAt time.Time
	gen       uint64
}

// NewLRUCache creates a new LRU cache with TTL
func NewLRUCache[T any](maxSize int, ttl time.Duration) *LRUCache[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LRUCache[T]{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		now:     time.Now,
	}
}

// Get retrieves a value from the cache. Expired entries are misses.
func (c *LRUCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	elem, exists := c.items[key]
	if !exists {
		return zero, false
	}

	item := elem.Value.(*cacheItem[T])
	if !c.now().Before(item.expiresAt) {
		c.removeElement(elem)
		return zero, false
	}

	c.lru.MoveToFront(elem)
	return item.data, true
}

// Set stores a value in the cache
func (c *LRUCache[T]) Set(key string, data T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, data)
}

func (c *LRUCache[T]) setLocked(key string, data T) *cacheItem[T] {
	c.gen++
	item := &cacheItem[T]{
		key:       key,
		data:      data,
		expiresAt: c.now().Add(c.ttl),
		gen:       c.gen,
	}

	if elem, exists := c.items[key]; exists {
		elem.Value = item
		c.lru.MoveToFront(elem)
		return item
	}

	elem := c.lru.PushFront(item)
	c.items[key] = elem

	if c.maxSize > 0 && c.lru.Len() > c.maxSize {
		if oldest := c.lru.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
	return item
}

// Delete removes a key from the cache
func (c *LRUCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		c.removeElement(elem)
	}
}

func (c *LRUCache[T]) removeElement(elem *list.Element) {
	item := elem.Value.(*cacheItem[T])
	delete(c.items, item.key)
	c.lru.Remove(elem)
}

// Undo restores the entry a tentative write replaced
type Undo[T any] struct {
	cache   *LRUCache[T]
	key     string
	prior   *cacheItem[T]
	written uint64
	once    sync.Once
}

// SetTentative stores a value optimistically and returns the record needed to undo it
func (c *LRUCache[T]) SetTentative(key string, data T) *Undo[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	var prior *cacheItem[T]
	if elem, exists := c.items[key]; exists {
		p := *elem.Value.(*cacheItem[T])
		prior = &p
	}
	item := c.setLocked(key, data)
	return &Undo[T]{cache: c, key: key, prior: prior, written: item.gen}
}

// Commit drops the undo record once the durable write succeeded
func (u *Undo[T]) Commit() {
	u.once.Do(func() { u.prior = nil })
}

// Rollback restores the prior entry, unless a later write already replaced the tentative one
func (u *Undo[T]) Rollback() {
	u.once.Do(func() {
		c := u.cache
		c.mu.Lock()
		defer c.mu.Unlock()

		elem, exists := c.items[u.key]
		if !exists || elem.Value.(*cacheItem[T]).gen != u.written {
			return
		}
		if u.prior == nil {
			c.removeElement(elem)
			return
		}
		restored := *u.prior
		elem.Value = &restored
	})
}

// CleanExpired removes all expired entries and returns count of removed items
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var toRemove []*list.Element
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		if !now.Before(elem.Value.(*cacheItem[T]).expiresAt) {
			toRemove = append(toRemove, elem)
		}
	}
	for _, elem := range toRemove {
		c.removeElement(elem)
	}
	return len(toRemove)
}

// Size returns the current number of items in the cache
func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
