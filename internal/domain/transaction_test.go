package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func march(day int) time.Time {
	return time.Date(2024, 3, day, 12, 0, 0, 0, time.UTC)
}

func testBudget() *Budget {
	return &Budget{
		ID:       "b1",
		Accounts: map[string]*Account{"checking": {ID: "checking"}, "savings": {ID: "savings"}},
		Categories: map[string]*Category{
			"food": {ID: "food"},
			"rent": {ID: "rent"},
		},
	}
}

func TestMonthTransactions_Validate(t *testing.T) {
	ym := YearMonth{Year: 2024, Month: 3}
	amt := decimal.NewFromInt(10)

	tests := []struct {
		name    string
		txs     MonthTransactions
		wantErr error
	}{
		{
			name: "valid mix",
			txs: MonthTransactions{
				Income:      []Income{{ID: "i1", Date: march(1), AccountID: "checking", Amount: amt}},
				Expenses:    []Expense{{ID: "e1", Date: march(2), AccountID: "checking", CategoryID: "food", Amount: amt}},
				Transfers:   []Transfer{{ID: "t1", Date: march(3), FromCategoryID: "food", ToCategoryID: "rent", Amount: amt}},
				Adjustments: []Adjustment{{ID: "a1", Date: march(31), AccountID: "savings", Amount: amt.Neg()}},
			},
		},
		{
			name:    "negative expense",
			txs:     MonthTransactions{Expenses: []Expense{{ID: "e1", Date: march(2), AccountID: "checking", Amount: amt.Neg()}}},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "unknown account",
			txs:     MonthTransactions{Income: []Income{{ID: "i1", Date: march(1), AccountID: "brokerage", Amount: amt}}},
			wantErr: ErrUnknownAccount,
		},
		{
			name:    "income without account",
			txs:     MonthTransactions{Income: []Income{{ID: "i1", Date: march(1), Amount: amt}}},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "unknown category",
			txs:     MonthTransactions{Expenses: []Expense{{ID: "e1", Date: march(2), AccountID: "checking", CategoryID: "fun", Amount: amt}}},
			wantErr: ErrUnknownCategory,
		},
		{
			name:    "dated outside month",
			txs:     MonthTransactions{Income: []Income{{ID: "i1", Date: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), AccountID: "checking", Amount: amt}}},
			wantErr: ErrInvalidInput,
		},
		{
			name: "duplicate id across kinds",
			txs: MonthTransactions{
				Income:   []Income{{ID: "x", Date: march(1), AccountID: "checking", Amount: amt}},
				Expenses: []Expense{{ID: "x", Date: march(2), AccountID: "checking", Amount: amt}},
			},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "empty transfer",
			txs:     MonthTransactions{Transfers: []Transfer{{ID: "t1", Date: march(3), Amount: amt}}},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "adjustment without target",
			txs:     MonthTransactions{Adjustments: []Adjustment{{ID: "a1", Date: march(3), Amount: amt}}},
			wantErr: ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.txs.Validate(ym, testBudget())
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestMonthTransactions_AppendAndRemove(t *testing.T) {
	base := MonthTransactions{
		Income:   []Income{{ID: "i1"}},
		Expenses: []Expense{{ID: "e1"}, {ID: "e2"}},
	}
	more := MonthTransactions{Transfers: []Transfer{{ID: "t1"}}, Adjustments: []Adjustment{{ID: "a1"}}}

	all := base.Append(more)
	assert.Equal(t, 5, all.Count())
	assert.Equal(t, 3, base.Count(), "append must not touch the receiver")

	removed, ok := all.Remove("e1")
	require.True(t, ok)
	assert.Equal(t, 4, removed.Count())
	assert.Equal(t, []Expense{{ID: "e2"}}, removed.Expenses)

	_, ok = all.Remove("missing")
	assert.False(t, ok)
}

func TestYearMonth(t *testing.T) {
	dec := YearMonth{Year: 2023, Month: 12}

	assert.Equal(t, YearMonth{Year: 2024, Month: 1}, dec.Next())
	assert.Equal(t, YearMonth{Year: 2023, Month: 11}, dec.Prev())
	assert.Equal(t, YearMonth{Year: 2024, Month: 2}, dec.AddMonths(2))
	assert.Equal(t, YearMonth{Year: 2022, Month: 12}, dec.AddMonths(-12))
	assert.Equal(t, dec, YearMonthFromOrdinal(dec.Ordinal()))
	assert.True(t, dec.Before(dec.Next()))
	assert.True(t, dec.After(dec.Prev()))
	assert.Equal(t, "2023-12", dec.Key())
	assert.Equal(t, "December 2023", dec.Label())

	parsed, err := ParseYearMonth("2024-03")
	require.NoError(t, err)
	assert.Equal(t, YearMonth{Year: 2024, Month: 3}, parsed)

	for _, bad := range []string{"2024-13", "1899-01", "march"} {
		_, err := ParseYearMonth(bad)
		assert.ErrorIs(t, err, ErrInvalidInput, bad)
	}

	assert.True(t, parsed.Contains(march(31)))
	assert.False(t, parsed.Contains(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)))
}

func TestBudget_MonthIndex(t *testing.T) {
	b := &Budget{MonthMap: map[string]bool{
		"2024-03": true,
		"2023-12": false,
		"2024-01": true,
		"garbage": true,
	}}

	assert.Equal(t, []YearMonth{{2023, 12}, {2024, 1}, {2024, 3}}, b.ExistingMonths())
	assert.Equal(t, []YearMonth{{2024, 1}, {2024, 3}}, b.DirtyMonths())
}

func TestBudget_HasUserAndLookBack(t *testing.T) {
	b := &Budget{UserIDs: []string{"auth0|alice"}}
	assert.True(t, b.HasUser("auth0|alice"))
	assert.False(t, b.HasUser("auth0|bob"))

	assert.Equal(t, DefaultPercentageIncomeMonthsBack, b.IncomeMonthsBack())
	b.PercentageIncomeMonthsBack = 3
	assert.Equal(t, 3, b.IncomeMonthsBack())
}
