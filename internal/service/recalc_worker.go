package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dafibh/envelope/envelope-backend/internal/domain"
	"github.com/dafibh/envelope/envelope-backend/internal/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// RecalcWorker runs recalculation jobs in the background and periodically
// sweeps budgets that still have months flagged
type RecalcWorker struct {
	cascade        *CascadeService
	budgetRepo     domain.BudgetRepository
	logger         zerolog.Logger
	eventPublisher websocket.EventPublisher
	interval       time.Duration
	concurrency    int
	retention      time.Duration
	now            func() time.Time

	jobsMu sync.Mutex
	jobs   map[string]*recalcJob
	active map[string]string // budget id -> running job id

	baseCtx    context.Context
	cancelJobs context.CancelFunc
	jobsWG     sync.WaitGroup

	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

type recalcJob struct {
	job       domain.RecalcJob
	from      *domain.YearMonth
	cancel    context.CancelFunc
	cancelled bool
	done      chan struct{}
	seen      time.Time // last event of a remote job
}

// RecalcWorkerConfig holds configuration for the recalculation worker
type RecalcWorkerConfig struct {
	Interval    time.Duration // How often to sweep for budgets needing recalculation
	Concurrency int           // Budgets recalculated in parallel during a sweep
	Retention   time.Duration // How long finished jobs stay queryable
}

// DefaultRecalcWorkerConfig returns sensible defaults
func DefaultRecalcWorkerConfig() RecalcWorkerConfig {
	return RecalcWorkerConfig{
		Interval:    5 * time.Minute,
		Concurrency: 4,
		Retention:   1 * time.Hour,
	}
}

// NewRecalcWorker creates a new recalculation worker
func NewRecalcWorker(cascade *CascadeService, budgetRepo domain.BudgetRepository, logger zerolog.Logger, config RecalcWorkerConfig) *RecalcWorker {
	defaults := DefaultRecalcWorkerConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.Retention <= 0 {
		config.Retention = defaults.Retention
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	return &RecalcWorker{
		cascade:     cascade,
		budgetRepo:  budgetRepo,
		logger:      logger.With().Str("component", "recalc_worker").Logger(),
		interval:    config.Interval,
		concurrency: config.Concurrency,
		retention:   config.Retention,
		now:         time.Now,
		jobs:        make(map[string]*recalcJob),
		active:      make(map[string]string),
		baseCtx:     baseCtx,
		cancelJobs:  cancel,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// SetEventPublisher sets the event publisher for progress updates
func (w *RecalcWorker) SetEventPublisher(publisher websocket.EventPublisher) {
	w.eventPublisher = publisher
}

// Start begins the periodic sweep
func (w *RecalcWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info().
		Dur("interval", w.interval).
		Int("concurrency", w.concurrency).
		Msg("Starting recalculation worker")

	go w.run(ctx)
}

// Stop ends the sweep, cancels running jobs and waits for them. Cancelled jobs
// leave their months flagged, so the next sweep resumes them.
func (w *RecalcWorker) Stop() {
	w.mu.Lock()
	wasRunning := w.running
	w.mu.Unlock()

	w.logger.Info().Msg("Stopping recalculation worker")
	if wasRunning {
		close(w.stopCh)
		<-w.doneCh
	}
	w.cancelJobs()
	w.jobsWG.Wait()
	w.logger.Info().Msg("Recalculation worker stopped")
}

// IsRunning returns whether the sweep loop is running
func (w *RecalcWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *RecalcWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	w.Sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return
		case <-w.stopCh:
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep recalculates every budget with flagged months, a bounded number at a time.
// Budgets with a job already running are left to that job.
func (w *RecalcWorker) Sweep(ctx context.Context) {
	w.pruneFinished()

	budgetIDs, err := w.budgetRepo.ListNeedingRecalc(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to list budgets needing recalculation")
		return
	}
	if len(budgetIDs) == 0 {
		return
	}
	startTime := w.now()

	var g errgroup.Group
	g.SetLimit(w.concurrency)
	var (
		statsMu   sync.Mutex
		succeeded int
		failed    int
	)
	for _, budgetID := range budgetIDs {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Context cancelled, stopping sweep")
			_ = g.Wait()
			return
		case <-w.stopCh:
			w.logger.Info().Msg("Stop signal received, stopping sweep")
			_ = g.Wait()
			return
		default:
		}

		budgetID := budgetID
		g.Go(func() error {
			job, err := w.Run(ctx, domain.RecalcRequest{BudgetID: budgetID, Mode: domain.RecalcModeForward})
			statsMu.Lock()
			defer statsMu.Unlock()
			switch {
			case errors.Is(err, domain.ErrRecalcInProgress):
			case err != nil || job.Status != domain.RecalcJobSucceeded:
				failed++
			default:
				succeeded++
			}
			return nil
		})
	}
	_ = g.Wait()

	w.logger.Info().
		Int("budgets", len(budgetIDs)).
		Int("succeeded", succeeded).
		Int("failed", failed).
		Dur("elapsed", w.now().Sub(startTime)).
		Msg("Completed recalculation sweep")
}

// Submit starts a job in the background and returns it immediately
func (w *RecalcWorker) Submit(req domain.RecalcRequest) (*domain.RecalcJob, error) {
	j, err := w.register(req)
	if err != nil {
		return nil, err
	}
	snapshot := j.job
	w.jobsWG.Add(1)
	go func() {
		defer w.jobsWG.Done()
		w.execute(w.baseCtx, j)
	}()
	return &snapshot, nil
}

// Run executes a job on the caller's goroutine and returns its final state.
// A failed or cancelled job is reported through its status, not the error.
func (w *RecalcWorker) Run(ctx context.Context, req domain.RecalcRequest) (*domain.RecalcJob, error) {
	w.pruneFinished()
	j, err := w.register(req)
	if err != nil {
		return nil, err
	}
	w.jobsWG.Add(1)
	defer w.jobsWG.Done()
	w.execute(ctx, j)
	return w.Job(j.job.ID)
}

// Job returns a copy of a job's current state
func (w *RecalcWorker) Job(id string) (*domain.RecalcJob, error) {
	w.jobsMu.Lock()
	defer w.jobsMu.Unlock()
	j, ok := w.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	snapshot := j.job
	return &snapshot, nil
}

// ActiveJob returns the running job of a budget, if any
func (w *RecalcWorker) ActiveJob(budgetID string) (*domain.RecalcJob, bool) {
	w.jobsMu.Lock()
	id, ok := w.active[budgetID]
	w.jobsMu.Unlock()
	if !ok {
		return nil, false
	}
	job, err := w.Job(id)
	return job, err == nil
}

// Cancel stops a running job between months. Months it did not reach stay flagged.
func (w *RecalcWorker) Cancel(id string) error {
	w.jobsMu.Lock()
	defer w.jobsMu.Unlock()
	j, ok := w.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	j.cancelled = true
	j.cancel()
	return nil
}

// Wait blocks until a job finishes or ctx is done
func (w *RecalcWorker) Wait(ctx context.Context, id string) (*domain.RecalcJob, error) {
	w.jobsMu.Lock()
	j, ok := w.jobs[id]
	w.jobsMu.Unlock()
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	select {
	case <-j.done:
		return w.Job(id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TrackQueued records a request handed to another process so its job can be
// queried here. The returned job stays pending until Observe reports on it.
func (w *RecalcWorker) TrackQueued(req domain.RecalcRequest) *domain.RecalcJob {
	mode := req.Mode
	if mode == "" {
		mode = domain.RecalcModeForward
	}
	now := w.now()

	w.jobsMu.Lock()
	defer w.jobsMu.Unlock()
	j := &recalcJob{
		job: domain.RecalcJob{
			ID:        req.RequestID,
			BudgetID:  req.BudgetID,
			Mode:      mode,
			Status:    domain.RecalcJobPending,
			StartedAt: now,
			Remote:    true,
		},
		cancel: func() {},
		done:   make(chan struct{}),
		seen:   now,
	}
	w.jobs[req.RequestID] = j
	snapshot := j.job
	return &snapshot
}

// Observe applies the state of a job reported by another process. Jobs run
// here are never overwritten, and a finished job ignores late reports.
func (w *RecalcWorker) Observe(job domain.RecalcJob) {
	if job.ID == "" {
		return
	}
	w.jobsMu.Lock()
	defer w.jobsMu.Unlock()

	j, ok := w.jobs[job.ID]
	switch {
	case !ok:
		j = &recalcJob{cancel: func() {}, done: make(chan struct{})}
		w.jobs[job.ID] = j
	case !j.job.Remote, j.job.FinishedAt != nil:
		return
	}
	job.Remote = true
	j.job = job
	j.seen = w.now()
	if job.FinishedAt != nil {
		close(j.done)
	}
}

func (w *RecalcWorker) register(req domain.RecalcRequest) (*recalcJob, error) {
	if req.BudgetID == "" {
		return nil, fmt.Errorf("%w: budget id is required", domain.ErrInvalidInput)
	}
	mode := req.Mode
	if mode == "" {
		mode = domain.RecalcModeForward
	}
	if mode != domain.RecalcModeForward && mode != domain.RecalcModeAll {
		return nil, fmt.Errorf("%w: unknown recalculation mode %q", domain.ErrInvalidInput, mode)
	}

	w.jobsMu.Lock()
	defer w.jobsMu.Unlock()
	if id, busy := w.active[req.BudgetID]; busy {
		return nil, fmt.Errorf("%w: job %s", domain.ErrRecalcInProgress, id)
	}

	id := req.RequestID
	if _, taken := w.jobs[id]; id == "" || taken {
		id = uuid.New().String()
	}
	j := &recalcJob{
		job: domain.RecalcJob{
			ID:        id,
			BudgetID:  req.BudgetID,
			Mode:      mode,
			Status:    domain.RecalcJobPending,
			StartedAt: w.now(),
		},
		from:   req.From,
		cancel: func() {},
		done:   make(chan struct{}),
	}
	w.jobs[id] = j
	w.active[req.BudgetID] = id
	return j, nil
}

func (w *RecalcWorker) execute(parent context.Context, j *recalcJob) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	w.jobsMu.Lock()
	j.cancel = cancel
	if j.cancelled {
		cancel()
	}
	j.job.Status = domain.RecalcJobRunning
	budgetID, mode := j.job.BudgetID, j.job.Mode
	w.jobsMu.Unlock()

	logger := w.logger.With().Str("budget_id", budgetID).Str("job_id", j.job.ID).Str("mode", string(mode)).Logger()
	logger.Debug().Msg("Recalculation job started")

	opts := RecalcOptions{From: j.from, Progress: func(p domain.RecalcProgress) {
		w.jobsMu.Lock()
		j.job.Progress = p
		snapshot := j.job
		w.jobsMu.Unlock()
		w.publish(budgetID, websocket.RecalcProgress(snapshot))
	}}

	var (
		result *domain.RecalcResult
		err    error
	)
	if mode == domain.RecalcModeAll {
		result, err = w.cascade.RecalculateAllHistory(ctx, budgetID, opts)
	} else {
		result, err = w.cascade.RecalculateForward(ctx, budgetID, opts)
	}

	finished := w.now()
	w.jobsMu.Lock()
	j.job.FinishedAt = &finished
	switch {
	case err == nil:
		j.job.Status = domain.RecalcJobSucceeded
	case errors.Is(err, context.Canceled):
		j.job.Status = domain.RecalcJobCancelled
		j.job.Error = err.Error()
	default:
		j.job.Status = domain.RecalcJobFailed
		j.job.Error = err.Error()
	}
	delete(w.active, budgetID)
	snapshot := j.job
	w.jobsMu.Unlock()
	close(j.done)

	switch snapshot.Status {
	case domain.RecalcJobSucceeded:
		logger.Info().
			Int("recalculated", len(result.Recalculated)).
			Int("changed", len(result.Changed)).
			Int("skipped", len(result.Skipped)).
			Dur("elapsed", finished.Sub(snapshot.StartedAt)).
			Msg("Recalculation job completed")
		w.publish(budgetID, websocket.RecalcCompleted(map[string]interface{}{"job": snapshot, "result": result}))
	default:
		logger.Error().Err(err).Str("status", string(snapshot.Status)).Msg("Recalculation job did not complete")
		w.publish(budgetID, websocket.RecalcFailed(snapshot))
	}
}

func (w *RecalcWorker) pruneFinished() {
	cutoff := w.now().Add(-w.retention)
	w.jobsMu.Lock()
	defer w.jobsMu.Unlock()
	for id, j := range w.jobs {
		if j.job.FinishedAt != nil && j.job.FinishedAt.Before(cutoff) {
			delete(w.jobs, id)
			continue
		}
		// a remote job that went quiet lost its worker
		if j.job.Remote && j.seen.Before(cutoff) {
			delete(w.jobs, id)
		}
	}
}

func (w *RecalcWorker) publish(budgetID string, event websocket.Event) {
	if w.eventPublisher != nil {
		w.eventPublisher.Publish(budgetID, event)
	}
}
