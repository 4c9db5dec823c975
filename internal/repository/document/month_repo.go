package document

import (
	"context"
	"errors"
	"sort"

	"github.com/dafibh/envelope/envelope-backend/internal/domain"
)

var (
	monthIdentityFields    = []string{"budgetId", "year", "month", "ordinal"}
	monthTransactionFields = []string{"income", "expenses", "transfers", "adjustments"}
	monthBalanceFields     = []string{
		"areAllocationsFinalized", "categoryBalances", "accountBalances", "totalIncome", "totalExpenses",
		"previousMonthIncome", "totalAllocated", "totalNewlyAvailable", "unassignedStart", "unassignedEnd",
		"offBudgetStart", "offBudgetEnd",
	}
)

// MonthRepository implements domain.MonthRepository over a document store
type MonthRepository struct {
	docs *cachedStore
}

// NewMonthRepository creates a new MonthRepository
func NewMonthRepository(store domain.DocumentStore, cache domain.LocalCache) *MonthRepository {
	return &MonthRepository{docs: newCachedStore(store, cache)}
}

// Get retrieves a month record, reading through the cache
func (r *MonthRepository) Get(ctx context.Context, budgetID string, ym domain.YearMonth) (*domain.MonthRecord, error) {
	doc, err := r.docs.read(ctx, domain.CollectionMonths, domain.MonthDocumentID(budgetID, ym))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrMonthNotFound
		}
		return nil, err
	}
	return monthFromDocument(doc)
}

// GetFresh retrieves a month record from the store, refreshing the cache
func (r *MonthRepository) GetFresh(ctx context.Context, budgetID string, ym domain.YearMonth) (*domain.MonthRecord, error) {
	doc, err := r.docs.readFresh(ctx, domain.CollectionMonths, domain.MonthDocumentID(budgetID, ym))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrMonthNotFound
		}
		return nil, err
	}
	return monthFromDocument(doc)
}

// ListByBudget returns every month record of a budget in chronological order
func (r *MonthRepository) ListByBudget(ctx context.Context, budgetID string) ([]*domain.MonthRecord, error) {
	docs, err := r.docs.query(ctx, domain.CollectionMonths, domain.QueryFilter{Field: "budgetId", Op: "==", Value: budgetID})
	if err != nil {
		return nil, err
	}
	months := make([]*domain.MonthRecord, 0, len(docs))
	for _, doc := range docs {
		m, err := monthFromDocument(doc)
		if err != nil {
			return nil, err
		}
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Ordinal < months[j].Ordinal })
	return months, nil
}

// SaveTransactions writes the raw transaction lists. A zero Version creates the record.
func (r *MonthRepository) SaveTransactions(ctx context.Context, month *domain.MonthRecord) (*domain.MonthRecord, error) {
	return r.save(ctx, month, append(append([]string{}, monthIdentityFields...), monthTransactionFields...))
}

// SaveBalances writes the derived balances and the finalized flag
func (r *MonthRepository) SaveBalances(ctx context.Context, month *domain.MonthRecord) (*domain.MonthRecord, error) {
	return r.save(ctx, month, append(append([]string{}, monthIdentityFields...), monthBalanceFields...))
}

// Delete removes a month record
func (r *MonthRepository) Delete(ctx context.Context, budgetID string, ym domain.YearMonth) error {
	return r.docs.delete(ctx, domain.CollectionMonths, domain.MonthDocumentID(budgetID, ym))
}

func (r *MonthRepository) save(ctx context.Context, month *domain.MonthRecord, keys []string) (*domain.MonthRecord, error) {
	month.Ordinal = month.YearMonth().Ordinal()
	full, err := encode(month)
	if err != nil {
		return nil, err
	}
	id := domain.MonthDocumentID(month.BudgetID, month.YearMonth())
	doc, err := r.docs.write(ctx, domain.CollectionMonths, id, pick(full, keys...), full, month.Version, domain.WriteOptions{
		Merge:     domain.MergeFields,
		IfVersion: createOrMatch(month.Version),
	})
	if err != nil {
		return nil, err
	}
	return monthFromDocument(doc)
}

func monthFromDocument(doc *domain.Document) (*domain.MonthRecord, error) {
	var m domain.MonthRecord
	if err := decode(doc.Data, &m); err != nil {
		return nil, err
	}
	m.Version = doc.Version
	m.UpdatedAt = doc.UpdatedAt
	m.SetTransactions(m.Transactions())
	return &m, nil
}
