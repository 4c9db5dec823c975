package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dafibh/envelope/envelope-backend/internal/domain"
	"github.com/dafibh/envelope/envelope-backend/internal/util"
	"github.com/dafibh/envelope/envelope-backend/internal/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// AllocationService drives the per-month allocation state machine:
//
//	unset -> draft -> finalized -> editing_finalized -> finalized
//
// Drafts live outside the durable store; only finalized amounts are persisted.
type AllocationService struct {
	budgetRepo     domain.BudgetRepository
	monthRepo      domain.MonthRepository
	drafts         domain.DraftStore
	tracker        *RecalcTracker
	cascade        *CascadeService
	resolver       *AllocationResolver
	locker         *BudgetLocker
	logger         zerolog.Logger
	eventPublisher websocket.EventPublisher
	now            func() time.Time
}

// NewAllocationService creates a new AllocationService
func NewAllocationService(
	budgetRepo domain.BudgetRepository,
	monthRepo domain.MonthRepository,
	drafts domain.DraftStore,
	tracker *RecalcTracker,
	cascade *CascadeService,
	locker *BudgetLocker,
	logger zerolog.Logger,
) *AllocationService {
	return &AllocationService{
		budgetRepo: budgetRepo,
		monthRepo:  monthRepo,
		drafts:     drafts,
		tracker:    tracker,
		cascade:    cascade,
		resolver:   NewAllocationResolver(),
		locker:     locker,
		logger:     logger.With().Str("component", "allocations").Logger(),
		now:        time.Now,
	}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *AllocationService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

// GetAllocations returns the allocation state of a month with every category's
// persisted, draft and effective amounts
func (s *AllocationService) GetAllocations(ctx context.Context, budgetID string, ym domain.YearMonth) (*domain.MonthAllocationView, error) {
	budget, err := s.budgetRepo.GetFresh(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	if budget.DirtyThrough(ym) {
		if _, err := s.cascade.RecalculateForward(ctx, budgetID, RecalcOptions{}); err != nil {
			return nil, err
		}
		if budget, err = s.budgetRepo.GetFresh(ctx, budgetID); err != nil {
			return nil, err
		}
	}
	month, err := s.loadMonth(ctx, budgetID, ym)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, budget, ym, month)
}

// SaveDraft replaces the draft amounts of a month. A finalized month must be
// opened with BeginEdit first.
func (s *AllocationService) SaveDraft(ctx context.Context, budgetID string, ym domain.YearMonth, amounts map[string]decimal.Decimal) (*domain.MonthAllocationView, error) {
	budget, err := s.budgetRepo.Get(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	if err := validateAllocations(budget, amounts); err != nil {
		return nil, err
	}
	month, err := s.loadMonth(ctx, budgetID, ym)
	if err != nil {
		return nil, err
	}

	draft, _ := s.drafts.GetDraft(ctx, budgetID, ym)
	editing := false
	switch allocationState(month, draft) {
	case domain.AllocationStateFinalized:
		return nil, fmt.Errorf("%w: month %s is finalized, begin editing first", domain.ErrInvalidAllocationState, ym)
	case domain.AllocationStateEditingFinalized:
		editing = true
	}

	s.drafts.SaveDraft(ctx, &domain.AllocationDraft{
		BudgetID:  budgetID,
		Month:     ym,
		Amounts:   roundAmounts(amounts),
		Editing:   editing,
		UpdatedAt: s.now(),
	})
	return s.view(ctx, budget, ym, month)
}

// BeginEdit opens a finalized month for editing, seeding the draft with the persisted amounts
func (s *AllocationService) BeginEdit(ctx context.Context, budgetID string, ym domain.YearMonth) (*domain.MonthAllocationView, error) {
	budget, err := s.budgetRepo.Get(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	month, err := s.loadMonth(ctx, budgetID, ym)
	if err != nil {
		return nil, err
	}
	draft, _ := s.drafts.GetDraft(ctx, budgetID, ym)
	if state := allocationState(month, draft); state != domain.AllocationStateFinalized {
		return nil, fmt.Errorf("%w: cannot edit allocations in state %s", domain.ErrInvalidAllocationState, state)
	}

	persisted := month.Allocations()
	amounts := make(map[string]decimal.Decimal)
	for _, c := range budget.SortedCategories() {
		if c.IsPercentage() || c.IsHidden {
			continue
		}
		amounts[c.ID] = persisted.Amount(c.ID)
	}
	s.drafts.SaveDraft(ctx, &domain.AllocationDraft{BudgetID: budgetID, Month: ym, Amounts: amounts, Editing: true, UpdatedAt: s.now()})
	return s.view(ctx, budget, ym, month)
}

// Cancel discards the draft. A month being edited returns to its finalized amounts.
func (s *AllocationService) Cancel(ctx context.Context, budgetID string, ym domain.YearMonth) (*domain.MonthAllocationView, error) {
	budget, err := s.budgetRepo.Get(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	month, err := s.loadMonth(ctx, budgetID, ym)
	if err != nil {
		return nil, err
	}
	draft, _ := s.drafts.GetDraft(ctx, budgetID, ym)
	if draft == nil {
		return nil, fmt.Errorf("%w: no draft for %s", domain.ErrInvalidAllocationState, ym)
	}
	s.drafts.DeleteDraft(ctx, budgetID, ym)
	return s.view(ctx, budget, ym, month)
}

// Finalize persists the draft amounts. When every earlier month is current the
// month is recalculated immediately and only the next month is flagged;
// otherwise the month is flagged and left for the cascade.
func (s *AllocationService) Finalize(ctx context.Context, budgetID string, ym domain.YearMonth) (*domain.MonthAllocationView, error) {
	unlock, err := s.locker.Lock(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	draft, _ := s.drafts.GetDraft(ctx, budgetID, ym)
	if draft == nil {
		return nil, fmt.Errorf("%w: nothing to finalize for %s", domain.ErrInvalidAllocationState, ym)
	}

	budget, err := s.budgetRepo.GetFresh(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	if err := validateAllocations(budget, draft.Amounts); err != nil {
		return nil, err
	}

	month, err := s.monthRepo.GetFresh(ctx, budgetID, ym)
	if errors.Is(err, domain.ErrMonthNotFound) {
		if month, err = s.monthRepo.SaveTransactions(ctx, domain.NewMonthRecord(budgetID, ym)); err != nil {
			return nil, err
		}
		if budget, err = s.tracker.Register(ctx, budgetID, ym); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if budget, err = s.tracker.MarkMonths(ctx, budgetID, ym); err != nil {
		return nil, err
	}
	applyAllocations(budget, month, draft.Amounts)
	month.AreAllocationsFinalized = true
	if _, err := s.monthRepo.SaveBalances(ctx, month); err != nil {
		return nil, err
	}
	s.drafts.DeleteDraft(ctx, budgetID, ym)

	deferred := earlierDirty(budget, ym)
	if !deferred {
		if _, err := s.cascade.recalculateMonth(ctx, budgetID, ym); err != nil {
			return nil, err
		}
	}

	s.logger.Info().Str("budget_id", budgetID).Str("month", ym.Key()).Bool("deferred", deferred).Msg("Allocations finalized")
	s.publish(budgetID, websocket.AllocationsFinalized(map[string]interface{}{"month": ym.Key()}))
	return s.freshView(ctx, budgetID, ym)
}

// Delete clears every allocation of a finalized month as if nothing had been
// allocated, and flags the month and everything after it
func (s *AllocationService) Delete(ctx context.Context, budgetID string, ym domain.YearMonth) (*domain.MonthAllocationView, error) {
	unlock, err := s.locker.Lock(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	month, err := s.monthRepo.GetFresh(ctx, budgetID, ym)
	if err != nil {
		return nil, err
	}
	draft, _ := s.drafts.GetDraft(ctx, budgetID, ym)
	if state := allocationState(month, draft); state != domain.AllocationStateFinalized && state != domain.AllocationStateEditingFinalized {
		return nil, fmt.Errorf("%w: cannot delete allocations in state %s", domain.ErrInvalidAllocationState, state)
	}

	budget, err := s.tracker.MarkDirty(ctx, budgetID, ym)
	if err != nil {
		return nil, err
	}

	released := decimal.Zero
	for i := range month.CategoryBalances {
		row := &month.CategoryBalances[i]
		released = util.AddCents(released, row.Allocated)
		row.EndBalance = util.AddCents(row.EndBalance, row.Allocated.Neg())
		row.Allocated = decimal.Zero
	}
	month.TotalAllocated = decimal.Zero
	month.TotalNewlyAvailable = decimal.Zero
	month.UnassignedEnd = util.AddCents(month.UnassignedEnd, released)
	month.AreAllocationsFinalized = false
	if _, err := s.monthRepo.SaveBalances(ctx, month); err != nil {
		return nil, err
	}
	s.drafts.DeleteDraft(ctx, budgetID, ym)

	s.publish(budgetID, websocket.AllocationsDeleted(map[string]interface{}{"month": ym.Key()}))
	s.publish(budgetID, websocket.MonthsDirty(map[string]interface{}{"months": dirtyKeys(budget)}))
	return s.freshView(ctx, budgetID, ym)
}

func (s *AllocationService) freshView(ctx context.Context, budgetID string, ym domain.YearMonth) (*domain.MonthAllocationView, error) {
	budget, err := s.budgetRepo.GetFresh(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	month, err := s.monthRepo.GetFresh(ctx, budgetID, ym)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, budget, ym, month)
}

// loadMonth returns nil without error for a month that has no record yet
// loadMonth reads past the cache so state checks see other processes' writes.
// A missing month is returned as nil.
func (s *AllocationService) loadMonth(ctx context.Context, budgetID string, ym domain.YearMonth) (*domain.MonthRecord, error) {
	month, err := s.monthRepo.GetFresh(ctx, budgetID, ym)
	if errors.Is(err, domain.ErrMonthNotFound) {
		return nil, nil
	}
	return month, err
}

func (s *AllocationService) view(ctx context.Context, budget *domain.Budget, ym domain.YearMonth, month *domain.MonthRecord) (*domain.MonthAllocationView, error) {
	draft, _ := s.drafts.GetDraft(ctx, budget.ID, ym)

	var persisted domain.MonthAllocations
	prevIncome := decimal.Zero
	if month != nil {
		persisted = month.Allocations()
		prevIncome = month.PreviousMonthIncome
	} else {
		source := ym.AddMonths(-budget.IncomeMonthsBack())
		if m, err := s.loadMonth(ctx, budget.ID, source); err != nil {
			return nil, err
		} else if m != nil {
			prevIncome = m.TotalIncome
		}
	}

	out := &domain.MonthAllocationView{
		Month:               ym,
		State:               allocationState(month, draft),
		PreviousMonthIncome: prevIncome,
		Allocations:         make([]domain.ResolvedAllocation, 0, len(budget.Categories)),
	}
	for _, c := range budget.SortedCategories() {
		ra := domain.ResolvedAllocation{
			CategoryID: c.ID,
			Type:       c.DefaultMonthlyType,
			IsHidden:   c.IsHidden,
			Persisted:  persisted.Amount(c.ID),
			Effective:  s.resolver.Resolve(c, persisted, prevIncome),
		}
		if draft != nil && !c.IsPercentage() && !c.IsHidden {
			amount := draft.Amounts[c.ID]
			ra.Draft = &amount
		}
		out.Allocations = append(out.Allocations, ra)
	}
	return out, nil
}

func (s *AllocationService) publish(budgetID string, event websocket.Event) {
	if s.eventPublisher != nil {
		s.eventPublisher.Publish(budgetID, event)
	}
}

func allocationState(month *domain.MonthRecord, draft *domain.AllocationDraft) domain.AllocationState {
	finalized := month != nil && month.AreAllocationsFinalized
	switch {
	case draft != nil && draft.Editing && finalized:
		return domain.AllocationStateEditingFinalized
	case draft != nil:
		return domain.AllocationStateDraft
	case finalized:
		return domain.AllocationStateFinalized
	default:
		return domain.AllocationStateUnset
	}
}

// validateAllocations accepts non-negative amounts for visible fixed categories only
func validateAllocations(budget *domain.Budget, amounts map[string]decimal.Decimal) error {
	for id, amount := range amounts {
		c, ok := budget.Categories[id]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnknownCategory, id)
		}
		if amount.IsNegative() {
			return fmt.Errorf("%w: category %s", domain.ErrInvalidAmount, id)
		}
		if c.IsPercentage() {
			return fmt.Errorf("%w: category %s is allocated by percentage", domain.ErrInvalidInput, id)
		}
		if c.IsHidden && !amount.IsZero() {
			return fmt.Errorf("%w: category %s is hidden", domain.ErrInvalidInput, id)
		}
	}
	return nil
}

// applyAllocations writes the amounts of visible fixed categories into the
// month's rows. Missing amounts are zero. Other rows keep their values.
func applyAllocations(budget *domain.Budget, month *domain.MonthRecord, amounts map[string]decimal.Decimal) {
	rows := make(map[string]int, len(month.CategoryBalances))
	for i, row := range month.CategoryBalances {
		rows[row.CategoryID] = i
	}
	for _, c := range budget.SortedCategories() {
		if c.IsPercentage() || c.IsHidden {
			continue
		}
		amount := util.RoundCents(amounts[c.ID])
		if i, ok := rows[c.ID]; ok {
			month.CategoryBalances[i].Allocated = amount
			continue
		}
		month.CategoryBalances = append(month.CategoryBalances, domain.CategoryMonthBalance{CategoryID: c.ID, Allocated: amount})
	}
}

func roundAmounts(amounts map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(amounts))
	for id, amount := range amounts {
		out[id] = util.RoundCents(amount)
	}
	return out
}

func earlierDirty(budget *domain.Budget, ym domain.YearMonth) bool {
	for _, m := range budget.DirtyMonths() {
		if m.Before(ym) {
			return true
		}
	}
	return false
}
