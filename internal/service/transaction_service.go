package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/dafibh/envelope/envelope-backend/internal/domain"
	"github.com/dafibh/envelope/envelope-backend/internal/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TransactionService edits the raw transaction lists of a month. Every edit
// flags the month and everything after it for recalculation.
type TransactionService struct {
	budgetRepo     domain.BudgetRepository
	monthRepo      domain.MonthRepository
	tracker        *RecalcTracker
	locker         *BudgetLocker
	requester      domain.RecalcRequester
	logger         zerolog.Logger
	eventPublisher websocket.EventPublisher
}

// NewTransactionService creates a new TransactionService. A nil requester
// leaves recalculation to readers and the periodic sweep.
func NewTransactionService(
	budgetRepo domain.BudgetRepository,
	monthRepo domain.MonthRepository,
	tracker *RecalcTracker,
	locker *BudgetLocker,
	requester domain.RecalcRequester,
	logger zerolog.Logger,
) *TransactionService {
	if requester == nil {
		requester = domain.NoOpRequester{}
	}
	return &TransactionService{
		budgetRepo: budgetRepo,
		monthRepo:  monthRepo,
		tracker:    tracker,
		locker:     locker,
		requester:  requester,
		logger:     logger.With().Str("component", "transactions").Logger(),
	}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *TransactionService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

// GetTransactions returns the raw transactions of a month; a month without a record has none
func (s *TransactionService) GetTransactions(ctx context.Context, budgetID string, ym domain.YearMonth) (domain.MonthTransactions, error) {
	if _, err := s.budgetRepo.Get(ctx, budgetID); err != nil {
		return domain.MonthTransactions{}, err
	}
	month, err := s.monthRepo.Get(ctx, budgetID, ym)
	if errors.Is(err, domain.ErrMonthNotFound) {
		return domain.NewMonthRecord(budgetID, ym).Transactions(), nil
	}
	if err != nil {
		return domain.MonthTransactions{}, err
	}
	return month.Transactions(), nil
}

// ReplaceTransactions overwrites the month's transaction lists, creating the month if needed
func (s *TransactionService) ReplaceTransactions(ctx context.Context, budgetID string, ym domain.YearMonth, txs domain.MonthTransactions) (*domain.MonthRecord, error) {
	assignIDs(&txs)
	return s.edit(ctx, budgetID, ym, func(current domain.MonthTransactions) (domain.MonthTransactions, error) {
		return txs, nil
	})
}

// AddTransactions appends to the month's transaction lists, creating the month if needed
func (s *TransactionService) AddTransactions(ctx context.Context, budgetID string, ym domain.YearMonth, txs domain.MonthTransactions) (*domain.MonthRecord, error) {
	if txs.Count() == 0 {
		return nil, fmt.Errorf("%w: no transactions", domain.ErrInvalidInput)
	}
	assignIDs(&txs)
	return s.edit(ctx, budgetID, ym, func(current domain.MonthTransactions) (domain.MonthTransactions, error) {
		return current.Append(txs), nil
	})
}

// DeleteTransaction removes one transaction from the month
func (s *TransactionService) DeleteTransaction(ctx context.Context, budgetID string, ym domain.YearMonth, transactionID string) (*domain.MonthRecord, error) {
	return s.edit(ctx, budgetID, ym, func(current domain.MonthTransactions) (domain.MonthTransactions, error) {
		remaining, found := current.Remove(transactionID)
		if !found {
			return domain.MonthTransactions{}, domain.ErrTransactionNotFound
		}
		return remaining, nil
	})
}

// edit applies fn to the month's transactions under the budget lock. Existing
// months are flagged before the write so a failed write leaves at worst an
// unnecessary flag; new months are indexed after their record exists.
func (s *TransactionService) edit(ctx context.Context, budgetID string, ym domain.YearMonth, fn func(domain.MonthTransactions) (domain.MonthTransactions, error)) (*domain.MonthRecord, error) {
	unlock, err := s.locker.Lock(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	budget, err := s.budgetRepo.Get(ctx, budgetID)
	if err != nil {
		return nil, err
	}

	month, err := s.monthRepo.GetFresh(ctx, budgetID, ym)
	created := false
	if errors.Is(err, domain.ErrMonthNotFound) {
		month = domain.NewMonthRecord(budgetID, ym)
		created = true
	} else if err != nil {
		return nil, err
	}

	next, err := fn(month.Transactions())
	if err != nil {
		return nil, err
	}
	if err := next.Validate(ym, budget); err != nil {
		return nil, err
	}

	if !created {
		if budget, err = s.tracker.MarkDirty(ctx, budgetID, ym); err != nil {
			return nil, err
		}
	}

	month.SetTransactions(next)
	saved, err := s.monthRepo.SaveTransactions(ctx, month)
	if err != nil {
		return nil, err
	}

	if created {
		if budget, err = s.tracker.Register(ctx, budgetID, ym); err != nil {
			return nil, err
		}
	}

	s.logger.Debug().Str("budget_id", budgetID).Str("month", ym.Key()).Int("transactions", next.Count()).Bool("created", created).Msg("Transactions saved")
	s.publish(budgetID, websocket.TransactionsUpdated(map[string]interface{}{"month": ym.Key(), "count": next.Count()}))
	s.publish(budgetID, websocket.MonthsDirty(map[string]interface{}{"months": dirtyKeys(budget)}))
	s.requestRecalc(ctx, budgetID, ym)
	return saved, nil
}

func (s *TransactionService) requestRecalc(ctx context.Context, budgetID string, from domain.YearMonth) {
	req := domain.RecalcRequest{RequestID: uuid.New().String(), BudgetID: budgetID, Mode: domain.RecalcModeForward, From: &from}
	if err := s.requester.RequestRecalc(ctx, req); err != nil {
		// The flags are already set; readers and the sweep will catch up
		s.logger.Warn().Err(err).Str("budget_id", budgetID).Str("month", from.Key()).Msg("Failed to request recalculation")
	}
}

func (s *TransactionService) publish(budgetID string, event websocket.Event) {
	if s.eventPublisher != nil {
		s.eventPublisher.Publish(budgetID, event)
	}
}

// assignIDs gives every transaction without an id a new one
func assignIDs(txs *domain.MonthTransactions) {
	for i := range txs.Income {
		if txs.Income[i].ID == "" {
			txs.Income[i].ID = uuid.New().String()
		}
	}
	for i := range txs.Expenses {
		if txs.Expenses[i].ID == "" {
			txs.Expenses[i].ID = uuid.New().String()
		}
	}
	for i := range txs.Transfers {
		if txs.Transfers[i].ID == "" {
			txs.Transfers[i].ID = uuid.New().String()
		}
	}
	for i := range txs.Adjustments {
		if txs.Adjustments[i].ID == "" {
			txs.Adjustments[i].ID = uuid.New().String()
		}
	}
}

func dirtyKeys(budget *domain.Budget) []string {
	keys := []string{}
	for _, ym := range budget.DirtyMonths() {
		keys = append(keys, ym.Key())
	}
	return keys
}
