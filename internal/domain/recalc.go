package domain

import (
	"context"
	"time"
)

// RecalcPhase is reported through progress callbacks and carried by RecalcError
type RecalcPhase string

const (
	RecalcPhaseFindingMonths    RecalcPhase = "finding-months"
	RecalcPhaseProcessingMonths RecalcPhase = "processing-months"
	RecalcPhaseSaving           RecalcPhase = "saving"
	RecalcPhaseComplete         RecalcPhase = "complete"
)

// RecalcProgress is an incremental progress report of a recalculation run
type RecalcProgress struct {
	Phase           RecalcPhase `json:"phase"`
	MonthsFound     int         `json:"monthsFound"`
	MonthsProcessed int         `json:"monthsProcessed"`
	CurrentIndex    int         `json:"currentIndex"`
	CurrentMonth    string      `json:"currentMonth,omitempty"`
}

// ProgressFunc receives progress reports. It is called synchronously from the run.
type ProgressFunc func(RecalcProgress)

// RecalcResult lists what a run touched
type RecalcResult struct {
	BudgetID     string      `json:"budgetId"`
	Recalculated []YearMonth `json:"recalculated"`
	Changed      []YearMonth `json:"changed"`
	Skipped      []YearMonth `json:"skipped"`
}

// RecalcMode selects forward or full-history recalculation
type RecalcMode string

const (
	RecalcModeForward RecalcMode = "forward"
	RecalcModeAll     RecalcMode = "all"
)

type RecalcJobStatus string

const (
	RecalcJobPending   RecalcJobStatus = "pending"
	RecalcJobRunning   RecalcJobStatus = "running"
	RecalcJobSucceeded RecalcJobStatus = "succeeded"
	RecalcJobFailed    RecalcJobStatus = "failed"
	RecalcJobCancelled RecalcJobStatus = "cancelled"
)

// RecalcJob is a background recalculation tracked by the worker
type RecalcJob struct {
	ID         string          `json:"id"`
	BudgetID   string          `json:"budgetId"`
	Mode       RecalcMode      `json:"mode"`
	Status     RecalcJobStatus `json:"status"`
	Progress   RecalcProgress  `json:"progress"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
	// Remote marks a job running in another process, known here from its events
	Remote bool `json:"remote,omitempty"`
}

// RecalcRequest asks for a recalculation to run out of process
type RecalcRequest struct {
	RequestID string     `json:"requestId"`
	BudgetID  string     `json:"budgetId"`
	Mode      RecalcMode `json:"mode"`
	From      *YearMonth `json:"from,omitempty"`
}

// RecalcRequester hands recalculation requests to a queue
type RecalcRequester interface {
	RequestRecalc(ctx context.Context, req RecalcRequest) error
}

// RecalcQueue is a RecalcRequester that can also ask whichever process runs
// a queued job to cancel it
type RecalcQueue interface {
	RecalcRequester
	CancelRecalc(ctx context.Context, budgetID, jobID string) error
}

// NoOpRequester drops every request
type NoOpRequester struct{}

func (NoOpRequester) RequestRecalc(ctx context.Context, req RecalcRequest) error { return nil }
