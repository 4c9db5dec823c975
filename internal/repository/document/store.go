package document

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dafibh/envelope/envelope-backend/internal/domain"
	"golang.org/x/sync/singleflight"
)

// cachedStore reads through and writes through the local cache.
// Concurrent misses for the same document share one store read.
type cachedStore struct {
	store domain.DocumentStore
	cache domain.LocalCache
	group singleflight.Group
	now   func() time.Time
}

func newCachedStore(store domain.DocumentStore, cache domain.LocalCache) *cachedStore {
	return &cachedStore{store: store, cache: cache, now: time.Now}
}

func cacheKey(collection, id string) string {
	return collection + "/" + id
}

func (s *cachedStore) read(ctx context.Context, collection, id string) (*domain.Document, error) {
	key := cacheKey(collection, id)
	if doc, ok := s.cache.Get(key); ok {
		return doc, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		doc, err := s.store.ReadDocument(ctx, collection, id)
		if err != nil {
			return nil, err
		}
		s.cache.Set(key, doc)
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Document), nil
}

// readFresh bypasses the cache. Used where a stale version would only cause a conflict.
func (s *cachedStore) readFresh(ctx context.Context, collection, id string) (*domain.Document, error) {
	doc, err := s.store.ReadDocument(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(cacheKey(collection, id), doc)
	return doc, nil
}

// write applies full optimistically to the cache, then writes fields to the store.
// A failed store write rolls the cache back to what it held before.
func (s *cachedStore) write(ctx context.Context, collection, id string, fields, full map[string]any, version int64, opts domain.WriteOptions) (*domain.Document, error) {
	key := cacheKey(collection, id)
	undo := s.cache.SetTentative(key, &domain.Document{ID: id, Data: full, Version: version, UpdatedAt: s.now()})

	doc, err := s.store.WriteDocument(ctx, collection, id, fields, opts)
	if err != nil {
		undo.Rollback()
		return nil, err
	}
	undo.Commit()
	s.cache.Set(key, doc)
	return doc, nil
}

func (s *cachedStore) delete(ctx context.Context, collection, id string) error {
	err := s.store.DeleteDocument(ctx, collection, id)
	s.cache.Invalidate(cacheKey(collection, id))
	return err
}

func (s *cachedStore) query(ctx context.Context, collection string, filters ...domain.QueryFilter) ([]*domain.Document, error) {
	docs, err := s.store.QueryDocuments(ctx, collection, filters...)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		s.cache.Set(cacheKey(collection, doc.ID), doc)
	}
	return docs, nil
}

// encode turns a value into the generic field map the stores accept
func encode(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return fields, nil
}

func decode(data map[string]any, v any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// pick returns the subset of fields with the given keys
func pick(fields map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			out[k] = v
		}
	}
	return out
}

func createOrMatch(version int64) int64 {
	if version == 0 {
		return domain.VersionMustNotExist
	}
	return version
}
