package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	payload := map[string]interface{}{
		"budgetId": "b1",
		"month":    "2024-03",
	}

	before := time.Now()
	evt := NewEvent(EventTypeDirty, EntityTypeMonth, payload)
	after := time.Now()

	assert.Equal(t, "month.dirty", evt.Type)
	assert.Equal(t, EntityTypeMonth, evt.Entity)
	assert.Equal(t, payload, evt.Payload)
	assert.True(t, !evt.Timestamp.Before(before) && !evt.Timestamp.After(after))
}

func TestEvent_JSON_Serialization(t *testing.T) {
	fixedTime := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)
	evt := Event{
		Type:      "recalc.progress",
		Entity:    EntityTypeRecalc,
		Payload:   map[string]interface{}{"monthsProcessed": float64(3)},
		Timestamp: fixedTime,
	}

	data, err := evt.ToJSON()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "recalc.progress", decoded["type"])
	assert.Equal(t, "recalc", decoded["entity"])
	assert.Equal(t, "2025-01-15T10:30:00Z", decoded["timestamp"])
	assert.Equal(t, float64(3), decoded["payload"].(map[string]interface{})["monthsProcessed"])
}

func TestEventHelpers(t *testing.T) {
	tests := []struct {
		name     string
		event    Event
		expected string
	}{
		{"transactions updated", TransactionsUpdated(nil), "transactions.updated"},
		{"months dirty", MonthsDirty(nil), "month.dirty"},
		{"allocations finalized", AllocationsFinalized(nil), "allocations.finalized"},
		{"allocations deleted", AllocationsDeleted(nil), "allocations.deleted"},
		{"recalc progress", RecalcProgress(nil), "recalc.progress"},
		{"recalc completed", RecalcCompleted(nil), "recalc.completed"},
		{"recalc failed", RecalcFailed(nil), "recalc.failed"},
		{"budget balances", BudgetBalancesUpdated(nil), "budget.updated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.event.Type)
		})
	}
}
