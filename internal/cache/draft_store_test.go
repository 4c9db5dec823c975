package cache

import (
	"context"
	"testing"
	"time"

	"github.com/dafibh/envelope/envelope-backend/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraftStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewDraftStore(10, time.Minute)
	march := domain.YearMonth{Year: 2024, Month: 3}

	_, ok := store.GetDraft(ctx, "b1", march)
	assert.False(t, ok)

	store.SaveDraft(ctx, &domain.AllocationDraft{
		BudgetID: "b1",
		Month:    march,
		Amounts:  map[string]decimal.Decimal{"food": decimal.NewFromInt(200)},
	})

	draft, ok := store.GetDraft(ctx, "b1", march)
	require.True(t, ok)
	assert.True(t, draft.Amounts["food"].Equal(decimal.NewFromInt(200)))

	_, ok = store.GetDraft(ctx, "b2", march)
	assert.False(t, ok, "drafts are scoped per budget")

	store.DeleteDraft(ctx, "b1", march)
	_, ok = store.GetDraft(ctx, "b1", march)
	assert.False(t, ok)
}

func TestDocumentCache_SatisfiesLocalCache(t *testing.T) {
	var c domain.LocalCache = NewDocumentCache(10, time.Minute)

	c.Set("budgets/b1", &domain.Document{ID: "b1", Version: 1})
	undo := c.SetTentative("budgets/b1", &domain.Document{ID: "b1", Version: 2})
	undo.Rollback()

	doc, ok := c.Get("budgets/b1")
	require.True(t, ok)
	assert.Equal(t, int64(1), doc.Version)

	c.Invalidate("budgets/b1")
	_, ok = c.Get("budgets/b1")
	assert.False(t, ok)
}
