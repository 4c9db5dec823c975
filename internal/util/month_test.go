package util

import (
	"testing"
	"time"
)

func TestPreviousMonth_SameYear(t *testing.T) {
	tests := []struct {
		year      int
		month     int
		wantYear  int
		wantMonth int
	}{
		{2026, 6, 2026, 5},   // June -> May
		{2026, 12, 2026, 11}, // Dec -> Nov
		{2026, 2, 2026, 1},   // Feb -> Jan
	}

	for _, tt := range tests {
		gotYear, gotMonth := PreviousMonth(tt.year, tt.month)
		if gotYear != tt.wantYear || gotMonth != tt.wantMonth {
			t.Errorf("PreviousMonth(%d, %d) = (%d, %d), want (%d, %d)",
				tt.year, tt.month, gotYear, gotMonth, tt.wantYear, tt.wantMonth)
		}
	}
}

func TestPreviousMonth_YearBoundary(t *testing.T) {
	// January -> December of previous year
	gotYear, gotMonth := PreviousMonth(2026, 1)
	if gotYear != 2025 || gotMonth != 12 {
		t.Errorf("PreviousMonth(2026, 1) = (%d, %d), want (2025, 12)", gotYear, gotMonth)
	}
}

func TestNextMonth_YearBoundary(t *testing.T) {
	gotYear, gotMonth := NextMonth(2025, 12)
	if gotYear != 2026 || gotMonth != 1 {
		t.Errorf("NextMonth(2025, 12) = (%d, %d), want (2026, 1)", gotYear, gotMonth)
	}

	gotYear, gotMonth = NextMonth(2025, 6)
	if gotYear != 2025 || gotMonth != 7 {
		t.Errorf("NextMonth(2025, 6) = (%d, %d), want (2025, 7)", gotYear, gotMonth)
	}
}

func TestMonthBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		year    int
		month   int
		wantEnd time.Time
	}{
		{"leap february", 2024, 2, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		{"non-leap february", 2025, 2, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)},
		{"december", 2025, 12, time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := MonthBoundaries(tt.year, tt.month)
			wantStart := time.Date(tt.year, time.Month(tt.month), 1, 0, 0, 0, 0, time.UTC)
			if !start.Equal(wantStart) {
				t.Errorf("start = %v, want %v", start, wantStart)
			}
			if !end.Equal(tt.wantEnd) {
				t.Errorf("end = %v, want %v", end, tt.wantEnd)
			}
		})
	}
}
