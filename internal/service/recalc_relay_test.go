package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dafibh/envelope/envelope-backend/internal/domain"
	"github.com/dafibh/envelope/envelope-backend/internal/testutil"
	"github.com/dafibh/envelope/envelope-backend/internal/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wireBridge hands events to a relay the way the broker would, as JSON
type wireBridge struct {
	t     *testing.T
	relay *RecalcRelay
}

func (b wireBridge) Publish(budgetID string, event websocket.Event) {
	raw, err := event.ToJSON()
	require.NoError(b.t, err)
	var decoded websocket.Event
	require.NoError(b.t, json.Unmarshal(raw, &decoded))
	b.relay.Relay(budgetID, decoded)
}

func newRelayPair(t *testing.T, h *harness) (api, remote *RecalcWorker, relay *RecalcRelay, hub *testutil.MockEventPublisher) {
	api = NewRecalcWorker(h.cascade, h.budgets, zerolog.Nop(), RecalcWorkerConfig{})
	remote = NewRecalcWorker(h.cascade, h.budgets, zerolog.Nop(), RecalcWorkerConfig{})
	t.Cleanup(api.Stop)
	t.Cleanup(remote.Stop)
	hub = testutil.NewMockEventPublisher()
	relay = NewRecalcRelay(api, hub, zerolog.Nop())
	remote.SetEventPublisher(wireBridge{t: t, relay: relay})
	return api, remote, relay, hub
}

func TestRecalcRelay_QueuedJobFollowsRemoteWorker(t *testing.T) {
	h := newHarness(t)
	seedChain(t, h)
	api, remote, _, hub := newRelayPair(t, h)
	req := domain.RecalcRequest{RequestID: "req-1", BudgetID: testBudgetID, Mode: domain.RecalcModeAll}

	queued := api.TrackQueued(req)
	assert.Equal(t, domain.RecalcJobPending, queued.Status)
	assert.True(t, queued.Remote)

	ran, err := remote.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "req-1", ran.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := api.Wait(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RecalcJobSucceeded, job.Status)
	assert.Equal(t, domain.RecalcPhaseComplete, job.Progress.Phase)
	assert.True(t, job.Remote)
	require.NotNil(t, job.FinishedAt)

	types := hub.Types(testBudgetID)
	assert.Contains(t, types, "recalc.progress")
	assert.Contains(t, types, "recalc.completed")
}

func TestRecalcRelay_JobsKnownOnlyFromEvents(t *testing.T) {
	h := newHarness(t)
	seedChain(t, h)
	api, remote, _, _ := newRelayPair(t, h)

	// a sweep in the worker process was never requested through this API
	ran, err := remote.Run(context.Background(), domain.RecalcRequest{BudgetID: testBudgetID, Mode: domain.RecalcModeForward})
	require.NoError(t, err)

	job, err := api.Job(ran.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RecalcJobSucceeded, job.Status)
	assert.True(t, job.Remote)
}

func TestRecalcRelay_IgnoresStaleAndForeignReports(t *testing.T) {
	h := newHarness(t)
	seedChain(t, h)
	api, _, relay, hub := newRelayPair(t, h)

	finished := time.Now()
	relay.Relay(testBudgetID, websocket.RecalcFailed(domain.RecalcJob{
		ID: "req-1", BudgetID: testBudgetID, Status: domain.RecalcJobCancelled, FinishedAt: &finished,
	}))
	// progress arriving after the terminal event
	relay.Relay(testBudgetID, websocket.RecalcProgress(domain.RecalcJob{ID: "req-1", BudgetID: testBudgetID, Status: domain.RecalcJobRunning}))
	job, err := api.Job("req-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RecalcJobCancelled, job.Status)

	relay.Relay(testBudgetID, websocket.RecalcProgress(domain.RecalcJob{ID: "req-2", BudgetID: "budget-2"}))
	_, err = api.Job("req-2")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	local, err := api.Run(context.Background(), domain.RecalcRequest{BudgetID: testBudgetID, Mode: domain.RecalcModeForward})
	require.NoError(t, err)
	relay.Relay(testBudgetID, websocket.RecalcProgress(domain.RecalcJob{ID: local.ID, BudgetID: testBudgetID, Status: domain.RecalcJobRunning}))
	job, err = api.Job(local.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RecalcJobSucceeded, job.Status)
	assert.False(t, job.Remote)

	// non-recalc events only reach websocket clients
	relay.Relay(testBudgetID, websocket.BudgetBalancesUpdated(map[string]string{"budgetId": testBudgetID}))
	assert.Contains(t, hub.Types(testBudgetID), "budget.updated")
}

func TestRecalcWorker_PrunesQuietRemoteJobs(t *testing.T) {
	worker, _ := setupRecalcWorker(t)
	base := time.Now()
	worker.now = func() time.Time { return base }
	worker.TrackQueued(domain.RecalcRequest{RequestID: "req-1", BudgetID: testBudgetID})

	worker.now = func() time.Time { return base.Add(2 * time.Hour) }
	worker.pruneFinished()

	_, err := worker.Job("req-1")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}
