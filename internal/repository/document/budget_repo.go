package document

import (
	"context"
	"errors"

	"github.com/dafibh/envelope/envelope-backend/internal/domain"
)

// BudgetRepository implements domain.BudgetRepository over a document store
type BudgetRepository struct {
	docs *cachedStore
}

// NewBudgetRepository creates a new BudgetRepository
func NewBudgetRepository(store domain.DocumentStore, cache domain.LocalCache) *BudgetRepository {
	return &BudgetRepository{docs: newCachedStore(store, cache)}
}

// Get retrieves a budget by id
func (r *BudgetRepository) Get(ctx context.Context, budgetID string) (*domain.Budget, error) {
	doc, err := r.docs.read(ctx, domain.CollectionBudgets, budgetID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrBudgetNotFound
		}
		return nil, err
	}
	return budgetFromDocument(doc)
}

// GetFresh retrieves a budget from the store, refreshing the cache
func (r *BudgetRepository) GetFresh(ctx context.Context, budgetID string) (*domain.Budget, error) {
	doc, err := r.docs.readFresh(ctx, domain.CollectionBudgets, budgetID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrBudgetNotFound
		}
		return nil, err
	}
	return budgetFromDocument(doc)
}

// Create stores a new budget. It fails with ErrConflict if the id is taken.
func (r *BudgetRepository) Create(ctx context.Context, budget *domain.Budget) (*domain.Budget, error) {
	fields, err := encode(budget)
	if err != nil {
		return nil, err
	}
	doc, err := r.docs.write(ctx, domain.CollectionBudgets, budget.ID, fields, fields, 0, domain.WriteOptions{
		Merge:     domain.ReplaceDocument,
		IfVersion: domain.VersionMustNotExist,
	})
	if err != nil {
		return nil, err
	}
	return budgetFromDocument(doc)
}

// ListNeedingRecalc returns ids of budgets with at least one dirty month
func (r *BudgetRepository) ListNeedingRecalc(ctx context.Context) ([]string, error) {
	docs, err := r.docs.query(ctx, domain.CollectionBudgets, domain.QueryFilter{Field: "needsRecalc", Op: "==", Value: true})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	return ids, nil
}

// SaveMonthMap writes the month index and its dirty flags
func (r *BudgetRepository) SaveMonthMap(ctx context.Context, budget *domain.Budget) (*domain.Budget, error) {
	budget.NeedsRecalc = len(budget.DirtyMonths()) > 0
	return r.save(ctx, budget, "monthMap", "needsRecalc")
}

// SaveBalances writes the denormalized account and category balances
func (r *BudgetRepository) SaveBalances(ctx context.Context, budget *domain.Budget) (*domain.Budget, error) {
	return r.save(ctx, budget, "accounts", "categories")
}

func (r *BudgetRepository) save(ctx context.Context, budget *domain.Budget, keys ...string) (*domain.Budget, error) {
	full, err := encode(budget)
	if err != nil {
		return nil, err
	}
	doc, err := r.docs.write(ctx, domain.CollectionBudgets, budget.ID, pick(full, keys...), full, budget.Version, domain.WriteOptions{
		Merge:     domain.MergeFields,
		IfVersion: createOrMatch(budget.Version),
	})
	if err != nil {
		return nil, err
	}
	return budgetFromDocument(doc)
}

func budgetFromDocument(doc *domain.Document) (*domain.Budget, error) {
	var b domain.Budget
	if err := decode(doc.Data, &b); err != nil {
		return nil, err
	}
	b.ID = doc.ID
	b.Version = doc.Version
	b.UpdatedAt = doc.UpdatedAt
	if b.Accounts == nil {
		b.Accounts = map[string]*domain.Account{}
	}
	if b.AccountGroups == nil {
		b.AccountGroups = map[string]*domain.AccountGroup{}
	}
	if b.Categories == nil {
		b.Categories = map[string]*domain.Category{}
	}
	if b.CategoryGroups == nil {
		b.CategoryGroups = map[string]*domain.CategoryGroup{}
	}
	if b.MonthMap == nil {
		b.MonthMap = map[string]bool{}
	}
	return &b, nil
}
