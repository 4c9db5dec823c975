package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/dafibh/envelope/envelope-backend/internal/domain"
	"github.com/dafibh/envelope/envelope-backend/internal/websocket"
	"github.com/rs/zerolog"
)

// MonthService serves month balances, recalculating stale months before they are read
type MonthService struct {
	budgetRepo     domain.BudgetRepository
	monthRepo      domain.MonthRepository
	tracker        *RecalcTracker
	cascade        *CascadeService
	locker         *BudgetLocker
	logger         zerolog.Logger
	eventPublisher websocket.EventPublisher
}

// NewMonthService creates a new MonthService
func NewMonthService(
	budgetRepo domain.BudgetRepository,
	monthRepo domain.MonthRepository,
	tracker *RecalcTracker,
	cascade *CascadeService,
	locker *BudgetLocker,
	logger zerolog.Logger,
) *MonthService {
	return &MonthService{
		budgetRepo: budgetRepo,
		monthRepo:  monthRepo,
		tracker:    tracker,
		cascade:    cascade,
		locker:     locker,
		logger:     logger.With().Str("component", "months").Logger(),
	}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *MonthService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

// ListMonths returns the budget's month index in chronological order
func (s *MonthService) ListMonths(ctx context.Context, budgetID string) ([]domain.MonthStatus, error) {
	budget, err := s.budgetRepo.Get(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	months := budget.ExistingMonths()
	out := make([]domain.MonthStatus, 0, len(months))
	for _, ym := range months {
		out = append(out, domain.MonthStatus{Month: ym, Key: ym.Key(), NeedsRecalc: budget.MonthMap[ym.Key()]})
	}
	return out, nil
}

// GetMonthBalances returns a month whose balances are up to date. When the
// month or any month before it needs recalculation, the chain is brought
// current first. Flags and balances are read past the local cache, since another
// process may have edited or recalculated the budget since they were cached.
func (s *MonthService) GetMonthBalances(ctx context.Context, budgetID string, ym domain.YearMonth) (*domain.MonthRecord, error) {
	budget, err := s.budgetRepo.GetFresh(ctx, budgetID)
	if err != nil {
		return nil, err
	}

	stale := budget.DirtyThrough(ym)
	if _, indexed := budget.MonthMap[ym.Key()]; !indexed {
		// A record written without reaching the index is adopted here
		if _, err := s.monthRepo.GetFresh(ctx, budgetID, ym); err != nil {
			return nil, err
		}
		s.logger.Warn().Str("budget_id", budgetID).Str("month", ym.Key()).Msg("Month record missing from index, registering")
		if _, err := s.tracker.Register(ctx, budgetID, ym); err != nil {
			return nil, fmt.Errorf("register month: %w", err)
		}
		stale = true
	}

	if stale {
		if _, err := s.cascade.RecalculateForward(ctx, budgetID, RecalcOptions{}); err != nil {
			return nil, err
		}
	}
	return s.monthRepo.GetFresh(ctx, budgetID, ym)
}

// MarkDirtyFrom flags ym and every later existing month for recalculation
func (s *MonthService) MarkDirtyFrom(ctx context.Context, budgetID string, ym domain.YearMonth) error {
	budget, err := s.tracker.MarkDirty(ctx, budgetID, ym)
	if err != nil {
		return err
	}
	s.publishDirty(budget)
	return nil
}

// DeleteMonthsAfter removes every month later than ym, including records the
// index lost track of, then rewrites the denormalized balances from what remains.
// It returns the removed months.
func (s *MonthService) DeleteMonthsAfter(ctx context.Context, budgetID string, ym domain.YearMonth) ([]domain.YearMonth, error) {
	removed, err := s.deleteAfter(ctx, budgetID, ym)
	if err != nil {
		return nil, err
	}
	if len(removed) == 0 {
		return removed, nil
	}
	if err := s.cascade.RefreshBalances(ctx, budgetID); err != nil {
		return nil, err
	}
	s.logger.Info().Str("budget_id", budgetID).Str("after", ym.Key()).Int("removed", len(removed)).Msg("Deleted future months")
	return removed, nil
}

func (s *MonthService) deleteAfter(ctx context.Context, budgetID string, ym domain.YearMonth) ([]domain.YearMonth, error) {
	unlock, err := s.locker.Lock(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	budget, err := s.budgetRepo.GetFresh(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	records, err := s.monthRepo.ListByBudget(ctx, budgetID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var removed []domain.YearMonth
	for _, m := range records {
		if m.YearMonth().After(ym) {
			seen[m.YearMonth().Key()] = true
			removed = append(removed, m.YearMonth())
		}
	}
	for _, indexed := range budget.ExistingMonths() {
		if indexed.After(ym) && !seen[indexed.Key()] {
			removed = append(removed, indexed)
		}
	}

	for _, m := range removed {
		if err := s.monthRepo.Delete(ctx, budgetID, m); err != nil && !errors.Is(err, domain.ErrMonthNotFound) {
			return nil, fmt.Errorf("delete month %s: %w", m, err)
		}
	}
	if _, err := s.tracker.Remove(ctx, budgetID, removed); err != nil {
		return nil, err
	}
	return removed, nil
}

func (s *MonthService) publishDirty(budget *domain.Budget) {
	if s.eventPublisher == nil {
		return
	}
	s.eventPublisher.Publish(budget.ID, websocket.MonthsDirty(map[string]interface{}{"months": dirtyKeys(budget)}))
}
