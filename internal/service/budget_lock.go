package service

import (
	"context"
	"sync"
)

// BudgetLocker serializes writers of one budget's month chain. Different
// budgets never contend.
type BudgetLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewBudgetLocker creates a new BudgetLocker
func NewBudgetLocker() *BudgetLocker {
	return &BudgetLocker{locks: make(map[string]chan struct{})}
}

func (l *BudgetLocker) slot(budgetID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.locks[budgetID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[budgetID] = ch
	}
	return ch
}

// Lock blocks until the budget is free or ctx is done
func (l *BudgetLocker) Lock(ctx context.Context, budgetID string) (func(), error) {
	ch := l.slot(budgetID)
	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
