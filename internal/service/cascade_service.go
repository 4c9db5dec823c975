package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/dafibh/envelope/envelope-backend/internal/domain"
	"github.com/dafibh/envelope/envelope-backend/internal/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// maxStepConflictRetries bounds how often one month step restarts from a fresh
// read after losing a version race with a concurrent writer
const maxStepConflictRetries = 3

// RecalcOptions tune a recalculation run
type RecalcOptions struct {
	// From forces recalculation to start no later than this month
	From     *domain.YearMonth
	Progress domain.ProgressFunc
}

// CascadeService recalculates a budget's month chain in chronological order
type CascadeService struct {
	budgetRepo     domain.BudgetRepository
	monthRepo      domain.MonthRepository
	tracker        *RecalcTracker
	calc           *CalculationService
	locker         *BudgetLocker
	logger         zerolog.Logger
	eventPublisher websocket.EventPublisher
}

// NewCascadeService creates a new CascadeService
func NewCascadeService(
	budgetRepo domain.BudgetRepository,
	monthRepo domain.MonthRepository,
	tracker *RecalcTracker,
	calc *CalculationService,
	locker *BudgetLocker,
	logger zerolog.Logger,
) *CascadeService {
	return &CascadeService{
		budgetRepo: budgetRepo,
		monthRepo:  monthRepo,
		tracker:    tracker,
		calc:       calc,
		locker:     locker,
		logger:     logger.With().Str("component", "cascade").Logger(),
	}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *CascadeService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

func (s *CascadeService) publish(budgetID string, event websocket.Event) {
	if s.eventPublisher != nil {
		s.eventPublisher.Publish(budgetID, event)
	}
}

// run holds the state of one recalculation pass
type run struct {
	budgetID   string
	budget     *domain.Budget
	months     []domain.YearMonth
	preloaded  map[string]*domain.MonthRecord
	incomes    map[int]decimal.Decimal
	progress   domain.ProgressFunc
	report     domain.RecalcProgress
	result     *domain.RecalcResult
	last       *domain.Snapshot
	lastOfRun  domain.YearMonth
	lookBack   int
	processedN int
}

func (r *run) emit(phase domain.RecalcPhase, current *domain.YearMonth) {
	r.report.Phase = phase
	r.report.MonthsProcessed = r.processedN
	if current != nil {
		r.report.CurrentMonth = current.Label()
	}
	if r.progress != nil {
		r.progress(r.report)
	}
}

// RecalculateForward recalculates from the first dirty month (or opts.From, if
// earlier) until a month's ending balances come out unchanged and nothing later
// is dirty. It returns the months it recalculated.
func (s *CascadeService) RecalculateForward(ctx context.Context, budgetID string, opts RecalcOptions) (*domain.RecalcResult, error) {
	unlock, err := s.locker.Lock(ctx, budgetID)
	if err != nil {
		return nil, &domain.RecalcError{BudgetID: budgetID, Phase: domain.RecalcPhaseFindingMonths, Err: err}
	}
	defer unlock()
	return s.recalculateForward(ctx, budgetID, opts)
}

// recalculateForward expects the caller to hold the budget lock
func (s *CascadeService) recalculateForward(ctx context.Context, budgetID string, opts RecalcOptions) (*domain.RecalcResult, error) {
	r := &run{budgetID: budgetID, progress: opts.Progress, result: &domain.RecalcResult{BudgetID: budgetID}}
	r.emit(domain.RecalcPhaseFindingMonths, nil)

	budget, err := s.budgetRepo.GetFresh(ctx, budgetID)
	if err != nil {
		return nil, &domain.RecalcError{BudgetID: budgetID, Phase: domain.RecalcPhaseFindingMonths, Err: err}
	}
	r.budget = budget
	r.months = budget.ExistingMonths()
	r.lookBack = budget.IncomeMonthsBack()

	start := -1
	for i, ym := range r.months {
		if budget.MonthMap[ym.Key()] || (opts.From != nil && !ym.Before(*opts.From)) {
			start = i
			break
		}
	}
	if start < 0 {
		r.emit(domain.RecalcPhaseComplete, nil)
		return r.result, nil
	}

	r.report.MonthsFound = len(r.months) - start
	if err := s.processChain(ctx, r, start, false); err != nil {
		return nil, err
	}
	if err := s.denormalize(ctx, r); err != nil {
		return nil, err
	}
	r.emit(domain.RecalcPhaseComplete, nil)
	return r.result, nil
}

// RecalculateAllHistory recalculates every month from a zero baseline, ignoring
// the dirty flags. All months are flagged first so a cancelled run resumes
// through RecalculateForward.
func (s *CascadeService) RecalculateAllHistory(ctx context.Context, budgetID string, opts RecalcOptions) (*domain.RecalcResult, error) {
	unlock, err := s.locker.Lock(ctx, budgetID)
	if err != nil {
		return nil, &domain.RecalcError{BudgetID: budgetID, Phase: domain.RecalcPhaseFindingMonths, Err: err}
	}
	defer unlock()

	r := &run{budgetID: budgetID, progress: opts.Progress, result: &domain.RecalcResult{BudgetID: budgetID}}
	r.emit(domain.RecalcPhaseFindingMonths, nil)

	records, err := s.monthRepo.ListByBudget(ctx, budgetID)
	if err != nil {
		return nil, &domain.RecalcError{BudgetID: budgetID, Phase: domain.RecalcPhaseFindingMonths, Err: err}
	}
	r.preloaded = make(map[string]*domain.MonthRecord, len(records))
	for _, m := range records {
		ym := m.YearMonth()
		r.months = append(r.months, ym)
		r.preloaded[ym.Key()] = m
	}

	budget, err := s.tracker.Reset(ctx, budgetID, r.months)
	if err != nil {
		return nil, &domain.RecalcError{BudgetID: budgetID, Phase: domain.RecalcPhaseFindingMonths, Err: err}
	}
	r.budget = budget
	r.lookBack = budget.IncomeMonthsBack()
	r.report.MonthsFound = len(r.months)

	s.logger.Info().Str("budget_id", budgetID).Int("months", len(r.months)).Msg("Starting full-history recalculation")

	if len(r.months) > 0 {
		if err := s.processChain(ctx, r, 0, true); err != nil {
			return nil, err
		}
	}
	if err := s.denormalize(ctx, r); err != nil {
		return nil, err
	}
	r.emit(domain.RecalcPhaseComplete, nil)
	return r.result, nil
}

// RefreshBalances rewrites the denormalized account and category balances from
// the latest existing month without recalculating anything
func (s *CascadeService) RefreshBalances(ctx context.Context, budgetID string) error {
	unlock, err := s.locker.Lock(ctx, budgetID)
	if err != nil {
		return &domain.RecalcError{BudgetID: budgetID, Phase: domain.RecalcPhaseSaving, Err: err}
	}
	defer unlock()

	budget, err := s.budgetRepo.GetFresh(ctx, budgetID)
	if err != nil {
		return &domain.RecalcError{BudgetID: budgetID, Phase: domain.RecalcPhaseSaving, Err: err}
	}
	r := &run{budgetID: budgetID, budget: budget, months: budget.ExistingMonths(), result: &domain.RecalcResult{BudgetID: budgetID}}
	return s.denormalize(ctx, r)
}

// recalculateMonth recomputes a single month whose predecessors are clean,
// clears its flag and flags the next month when its ending balances moved.
// The caller must hold the budget lock.
func (s *CascadeService) recalculateMonth(ctx context.Context, budgetID string, ym domain.YearMonth) (*domain.RecalcResult, error) {
	budget, err := s.budgetRepo.GetFresh(ctx, budgetID)
	if err != nil {
		return nil, &domain.RecalcError{BudgetID: budgetID, Month: ym, Phase: domain.RecalcPhaseProcessingMonths, Err: err}
	}
	r := &run{
		budgetID: budgetID,
		budget:   budget,
		months:   budget.ExistingMonths(),
		incomes:  make(map[int]decimal.Decimal),
		lookBack: budget.IncomeMonthsBack(),
		result:   &domain.RecalcResult{BudgetID: budgetID},
	}
	idx := -1
	for i, m := range r.months {
		if m == ym {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, &domain.RecalcError{BudgetID: budgetID, Month: ym, Phase: domain.RecalcPhaseProcessingMonths, Err: domain.ErrMonthNotFound}
	}

	prev, err := s.snapshotBefore(ctx, r, idx)
	if err != nil {
		return nil, err
	}
	_, changedEnds, incomeChanged, err := s.step(ctx, r, ym, prev)
	if err != nil {
		return nil, err
	}
	var extra []domain.YearMonth
	if incomeChanged && r.lookBack > 1 {
		extra = append(extra, ym.AddMonths(r.lookBack))
	}
	if _, err := s.tracker.Advance(ctx, budgetID, ym, changedEnds, extra...); err != nil {
		return nil, &domain.RecalcError{BudgetID: budgetID, Month: ym, Phase: domain.RecalcPhaseProcessingMonths, Err: err}
	}
	return r.result, nil
}

// processChain walks r.months from index start. With all set, every month is
// recomputed; otherwise the walk skips ahead over clean months whose inputs did
// not change.
func (s *CascadeService) processChain(ctx context.Context, r *run, start int, all bool) error {
	r.incomes = make(map[int]decimal.Decimal)

	var prev *domain.Snapshot
	if all {
		prev = domain.ZeroSnapshot()
	} else {
		var err error
		if prev, err = s.snapshotBefore(ctx, r, start); err != nil {
			return err
		}
	}

	for i := start; i < len(r.months); {
		ym := r.months[i]
		if err := ctx.Err(); err != nil {
			return &domain.RecalcError{BudgetID: r.budgetID, Month: ym, Phase: domain.RecalcPhaseProcessingMonths, Err: err}
		}

		r.report.CurrentIndex = i - start + 1
		r.emit(domain.RecalcPhaseProcessingMonths, &ym)

		snap, changedEnds, incomeChanged, err := s.step(ctx, r, ym, prev)
		if err != nil {
			return err
		}

		var extra []domain.YearMonth
		if incomeChanged && r.lookBack > 1 {
			extra = append(extra, ym.AddMonths(r.lookBack))
		}
		budget, err := s.tracker.Advance(ctx, r.budgetID, ym, changedEnds && !all, extra...)
		if err != nil {
			return &domain.RecalcError{BudgetID: r.budgetID, Month: ym, Phase: domain.RecalcPhaseProcessingMonths, Err: err}
		}
		r.budget = budget
		r.processedN++
		r.last, r.lastOfRun = snap, ym
		prev = snap
		i++

		if all || i >= len(r.months) || changedEnds || r.budget.MonthMap[r.months[i].Key()] {
			continue
		}

		// Nothing downstream of ym changed; jump to the next month still flagged
		next := -1
		for j := i; j < len(r.months); j++ {
			if r.budget.MonthMap[r.months[j].Key()] {
				next = j
				break
			}
		}
		if next < 0 {
			break
		}
		if prev, err = s.snapshotBefore(ctx, r, next); err != nil {
			return err
		}
		i = next
	}
	return nil
}

// step recomputes one month, retrying from a fresh read when a concurrent
// writer bumped the month's version. A missing month contributes no activity.
func (s *CascadeService) step(ctx context.Context, r *run, ym domain.YearMonth, prev *domain.Snapshot) (*domain.Snapshot, bool, bool, error) {
	for attempt := 0; ; attempt++ {
		month, err := s.loadForStep(ctx, r, ym, attempt)
		if errors.Is(err, domain.ErrMonthNotFound) {
			s.logger.Warn().Str("budget_id", r.budgetID).Str("month", ym.Key()).
				Msg("Month document missing mid-chain, carrying previous balances forward")
			r.result.Skipped = append(r.result.Skipped, ym)
			carried := *prev
			carried.Month = ym
			carried.TotalIncome = decimal.Zero
			r.incomes[ym.Ordinal()] = decimal.Zero
			return &carried, true, false, nil
		}
		if err != nil {
			return nil, false, false, &domain.RecalcError{BudgetID: r.budgetID, Month: ym, Phase: domain.RecalcPhaseProcessingMonths, Err: err}
		}

		prevIncome, err := s.previousMonthIncome(ctx, r, ym)
		if err != nil {
			return nil, false, false, &domain.RecalcError{BudgetID: r.budgetID, Month: ym, Phase: domain.RecalcPhaseProcessingMonths, Err: err}
		}

		in := InputFromBudget(r.budget, month)
		in.Previous = prev
		in.PreviousMonthIncome = prevIncome
		computed := s.calc.Compute(in)

		changedEnds := !month.MonthBalances.EndBalancesEqual(computed)
		incomeChanged := !month.TotalIncome.Equal(computed.TotalIncome)
		if !month.MonthBalances.Equal(computed) {
			month.MonthBalances = *computed
			if _, err := s.monthRepo.SaveBalances(ctx, month); err != nil {
				if errors.Is(err, domain.ErrConflict) && attempt < maxStepConflictRetries {
					s.logger.Warn().Str("budget_id", r.budgetID).Str("month", ym.Key()).Int("attempt", attempt+1).
						Msg("Month changed during recalculation, retrying from a fresh read")
					continue
				}
				return nil, false, false, &domain.RecalcError{BudgetID: r.budgetID, Month: ym, Phase: domain.RecalcPhaseProcessingMonths, Err: err}
			}
			r.result.Changed = append(r.result.Changed, ym)
		}

		r.result.Recalculated = append(r.result.Recalculated, ym)
		r.incomes[ym.Ordinal()] = computed.TotalIncome
		return domain.ExtractSnapshot(ym, computed), changedEnds, incomeChanged, nil
	}
}

func (s *CascadeService) loadForStep(ctx context.Context, r *run, ym domain.YearMonth, attempt int) (*domain.MonthRecord, error) {
	if attempt == 0 && r.preloaded != nil {
		if m, ok := r.preloaded[ym.Key()]; ok {
			return m, nil
		}
	}
	return s.monthRepo.GetFresh(ctx, r.budgetID, ym)
}

// snapshotBefore loads the carry-forward snapshot for months[idx]: the stored
// result of the closest earlier month that has a document, or the zero baseline.
// idx may equal len(months) to read the snapshot of the latest month. The read
// skips the local cache; another process may have rewritten that month.
func (s *CascadeService) snapshotBefore(ctx context.Context, r *run, idx int) (*domain.Snapshot, error) {
	target := r.months[len(r.months)-1].Next()
	if idx < len(r.months) {
		target = r.months[idx]
	}
	for j := idx - 1; j >= 0; j-- {
		ym := r.months[j]
		month, err := s.monthRepo.GetFresh(ctx, r.budgetID, ym)
		if errors.Is(err, domain.ErrMonthNotFound) {
			continue
		}
		if err != nil {
			return nil, &domain.RecalcError{BudgetID: r.budgetID, Month: target, Phase: domain.RecalcPhaseProcessingMonths, Err: err}
		}
		return domain.ExtractSnapshot(ym, &month.MonthBalances), nil
	}
	if idx > 0 {
		s.logger.Warn().Str("budget_id", r.budgetID).Str("month", target.Key()).
			Msg("No previous month document found, using zero baseline")
	}
	return domain.ZeroSnapshot(), nil
}

// previousMonthIncome returns the total income of the month lookBack months
// before ym, preferring values computed earlier in this run over a store read
func (s *CascadeService) previousMonthIncome(ctx context.Context, r *run, ym domain.YearMonth) (decimal.Decimal, error) {
	source := ym.AddMonths(-r.lookBack)
	if income, ok := r.incomes[source.Ordinal()]; ok {
		return income, nil
	}
	if _, exists := r.budget.MonthMap[source.Key()]; !exists {
		return decimal.Zero, nil
	}
	month, err := s.monthRepo.GetFresh(ctx, r.budgetID, source)
	if errors.Is(err, domain.ErrMonthNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return month.TotalIncome, nil
}

// denormalize copies the latest month's ending balances onto the budget's
// account and category definitions
func (s *CascadeService) denormalize(ctx context.Context, r *run) error {
	r.emit(domain.RecalcPhaseSaving, nil)

	latest := domain.ZeroSnapshot()
	if n := len(r.months); n > 0 {
		lastMonth := r.months[n-1]
		if r.last != nil && r.lastOfRun == lastMonth {
			latest = r.last
		} else {
			snap, err := s.snapshotBefore(ctx, r, n)
			if err != nil {
				return err
			}
			latest = snap
		}
	}

	for attempt := 0; ; attempt++ {
		budget := r.budget
		if attempt > 0 {
			fresh, err := s.budgetRepo.GetFresh(ctx, r.budgetID)
			if err != nil {
				return &domain.RecalcError{BudgetID: r.budgetID, Month: latest.Month, Phase: domain.RecalcPhaseSaving, Err: err}
			}
			budget = fresh
		}
		budget.ApplyBalances(latest)
		saved, err := s.budgetRepo.SaveBalances(ctx, budget)
		if err == nil {
			r.budget = saved
			break
		}
		if !errors.Is(err, domain.ErrConflict) || attempt >= maxStepConflictRetries {
			return &domain.RecalcError{BudgetID: r.budgetID, Month: latest.Month, Phase: domain.RecalcPhaseSaving,
				Err: fmt.Errorf("save denormalized balances: %w", err)}
		}
	}

	s.publish(r.budgetID, websocket.BudgetBalancesUpdated(r.result))
	s.logger.Debug().
		Str("budget_id", r.budgetID).
		Int("recalculated", len(r.result.Recalculated)).
		Int("changed", len(r.result.Changed)).
		Msg("Recalculation finished")
	return nil
}
