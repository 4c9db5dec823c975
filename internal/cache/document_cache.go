package cache

import (
	"time"

	"github.com/dafibh/envelope/envelope-backend/internal/domain"
)

// DocumentCache is the domain.LocalCache used by the document repositories
type DocumentCache struct {
	lru *LRUCache[*domain.Document]
}

// NewDocumentCache creates a document cache holding at most maxEntries documents
func NewDocumentCache(maxEntries int, ttl time.Duration) *DocumentCache {
	return &DocumentCache{lru: NewLRUCache[*domain.Document](maxEntries, ttl)}
}

func (c *DocumentCache) Get(key string) (*domain.Document, bool) {
	return c.lru.Get(key)
}

func (c *DocumentCache) Set(key string, doc *domain.Document) {
	c.lru.Set(key, doc)
}

func (c *DocumentCache) Invalidate(key string) {
	c.lru.Delete(key)
}

func (c *DocumentCache) SetTentative(key string, doc *domain.Document) domain.CacheUndo {
	return c.lru.SetTentative(key, doc)
}

// CleanExpired lets a Manager purge the document cache
func (c *DocumentCache) CleanExpired() int {
	return c.lru.CleanExpired()
}

// Size returns the number of cached documents
func (c *DocumentCache) Size() int {
	return c.lru.Size()
}
