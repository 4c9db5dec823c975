package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/dafibh/envelope/envelope-backend/internal/domain"
)

// maxMonthMapRetries bounds retries of a flag-map write that lost a version race
const maxMonthMapRetries = 5

// RecalcTracker maintains the per-budget map of months needing recalculation.
// The map keys double as the budget's month index.
type RecalcTracker struct {
	budgetRepo domain.BudgetRepository
}

// NewRecalcTracker creates a new RecalcTracker
func NewRecalcTracker(budgetRepo domain.BudgetRepository) *RecalcTracker {
	return &RecalcTracker{budgetRepo: budgetRepo}
}

// update applies fn to the budget and saves the flag map, re-reading and
// re-applying on version conflicts. fn returns false when nothing changed.
func (t *RecalcTracker) update(ctx context.Context, budgetID string, fn func(b *domain.Budget) bool) (*domain.Budget, error) {
	get := t.budgetRepo.Get
	for attempt := 0; ; attempt++ {
		budget, err := get(ctx, budgetID)
		if err != nil {
			return nil, err
		}
		if !fn(budget) {
			return budget, nil
		}
		saved, err := t.budgetRepo.SaveMonthMap(ctx, budget)
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, domain.ErrConflict) || attempt >= maxMonthMapRetries {
			return nil, fmt.Errorf("save month map: %w", err)
		}
		get = t.budgetRepo.GetFresh
	}
}

// MarkDirty flags fromMonth and every later existing month. It never adds months to the index.
func (t *RecalcTracker) MarkDirty(ctx context.Context, budgetID string, from domain.YearMonth) (*domain.Budget, error) {
	return t.update(ctx, budgetID, func(b *domain.Budget) bool {
		return markFrom(b, from)
	})
}

// Register adds a newly created month to the index and flags it and every later month
func (t *RecalcTracker) Register(ctx context.Context, budgetID string, ym domain.YearMonth) (*domain.Budget, error) {
	return t.update(ctx, budgetID, func(b *domain.Budget) bool {
		changed := false
		if _, ok := b.MonthMap[ym.Key()]; !ok {
			b.MonthMap[ym.Key()] = true
			changed = true
		}
		return markFrom(b, ym) || changed
	})
}

// MarkMonths flags exactly the given months, ignoring any not in the index
func (t *RecalcTracker) MarkMonths(ctx context.Context, budgetID string, months ...domain.YearMonth) (*domain.Budget, error) {
	return t.update(ctx, budgetID, func(b *domain.Budget) bool {
		changed := false
		for _, ym := range months {
			if dirty, exists := b.MonthMap[ym.Key()]; exists && !dirty {
				b.MonthMap[ym.Key()] = true
				changed = true
			}
		}
		return changed
	})
}

// IsDirty reports whether a month needs recalculation. Months absent from the index are clean.
func (t *RecalcTracker) IsDirty(ctx context.Context, budgetID string, ym domain.YearMonth) (bool, error) {
	budget, err := t.budgetRepo.Get(ctx, budgetID)
	if err != nil {
		return false, err
	}
	return budget.MonthMap[ym.Key()], nil
}

// Clear marks a single month as recalculated
func (t *RecalcTracker) Clear(ctx context.Context, budgetID string, ym domain.YearMonth) (*domain.Budget, error) {
	return t.update(ctx, budgetID, func(b *domain.Budget) bool {
		if !b.MonthMap[ym.Key()] {
			return false
		}
		b.MonthMap[ym.Key()] = false
		return true
	})
}

// Advance clears done and, when markNext is set, flags the next existing month,
// plus any extra months whose inputs depend on done. It is a single write.
func (t *RecalcTracker) Advance(ctx context.Context, budgetID string, done domain.YearMonth, markNext bool, extra ...domain.YearMonth) (*domain.Budget, error) {
	return t.update(ctx, budgetID, func(b *domain.Budget) bool {
		changed := false
		if b.MonthMap[done.Key()] {
			b.MonthMap[done.Key()] = false
			changed = true
		}
		targets := extra
		if markNext {
			if next, ok := nextExisting(b, done); ok {
				targets = append([]domain.YearMonth{next}, extra...)
			}
		}
		for _, ym := range targets {
			if dirty, exists := b.MonthMap[ym.Key()]; exists && !dirty {
				b.MonthMap[ym.Key()] = true
				changed = true
			}
		}
		return changed
	})
}

// Reset replaces the index with exactly months, all flagged dirty
func (t *RecalcTracker) Reset(ctx context.Context, budgetID string, months []domain.YearMonth) (*domain.Budget, error) {
	return t.update(ctx, budgetID, func(b *domain.Budget) bool {
		b.MonthMap = make(map[string]bool, len(months))
		for _, ym := range months {
			b.MonthMap[ym.Key()] = true
		}
		return true
	})
}

// Remove drops months from the index
func (t *RecalcTracker) Remove(ctx context.Context, budgetID string, months []domain.YearMonth) (*domain.Budget, error) {
	return t.update(ctx, budgetID, func(b *domain.Budget) bool {
		changed := false
		for _, ym := range months {
			if _, ok := b.MonthMap[ym.Key()]; ok {
				delete(b.MonthMap, ym.Key())
				changed = true
			}
		}
		return changed
	})
}

func markFrom(b *domain.Budget, from domain.YearMonth) bool {
	changed := false
	for _, ym := range b.ExistingMonths() {
		if ym.Before(from) {
			continue
		}
		if !b.MonthMap[ym.Key()] {
			b.MonthMap[ym.Key()] = true
			changed = true
		}
	}
	return changed
}

func nextExisting(b *domain.Budget, after domain.YearMonth) (domain.YearMonth, bool) {
	for _, ym := range b.ExistingMonths() {
		if ym.After(after) {
			return ym, true
		}
	}
	return domain.YearMonth{}, false
}
