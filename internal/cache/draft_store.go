package cache

import (
	"context"
	"time"

	"github.com/dafibh/envelope/envelope-backend/internal/domain"
)

// DraftStore keeps allocation drafts in memory. Drafts expire with the cache
// TTL like any other unpersisted client state.
type DraftStore struct {
	lru *LRUCache[*domain.AllocationDraft]
}

// NewDraftStore creates a new in-memory draft store
func NewDraftStore(maxEntries int, ttl time.Duration) *DraftStore {
	return &DraftStore{lru: NewLRUCache[*domain.AllocationDraft](maxEntries, ttl)}
}

func draftKey(budgetID string, ym domain.YearMonth) string {
	return "draft/" + budgetID + "/" + ym.Key()
}

func (s *DraftStore) GetDraft(ctx context.Context, budgetID string, ym domain.YearMonth) (*domain.AllocationDraft, bool) {
	return s.lru.Get(draftKey(budgetID, ym))
}

func (s *DraftStore) SaveDraft(ctx context.Context, draft *domain.AllocationDraft) {
	s.lru.Set(draftKey(draft.BudgetID, draft.Month), draft)
}

func (s *DraftStore) DeleteDraft(ctx context.Context, budgetID string, ym domain.YearMonth) {
	s.lru.Delete(draftKey(budgetID, ym))
}

// CleanExpired lets a Manager purge expired drafts
func (s *DraftStore) CleanExpired() int {
	return s.lru.CleanExpired()
}
