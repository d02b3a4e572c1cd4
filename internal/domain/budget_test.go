package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/vantage-api/internal/domain"
)

func TestBudget_EffectiveEndDate(t *testing.T) {
	start := domain.NewDate(2025, time.January, 31)
	explicit := domain.NewDate(2025, time.March, 1)

	tests := []struct {
		period domain.BudgetPeriod
		end    *domain.Date
		want   domain.Date
	}{
		{domain.PeriodWeekly, nil, domain.NewDate(2025, time.February, 7)},
		{domain.PeriodMonthly, nil, domain.NewDate(2025, time.February, 28)},
		{domain.PeriodQuarterly, nil, domain.NewDate(2025, time.April, 30)},
		{domain.PeriodYearly, nil, domain.NewDate(2026, time.January, 31)},
		{domain.PeriodCustom, nil, domain.NewDate(2025, time.February, 28)},
		{domain.PeriodWeekly, &explicit, explicit},
	}
	for _, tt := range tests {
		b := domain.Budget{Period: tt.period, StartDate: start, EndDate: tt.end}
		got, err := b.EffectiveEndDate()
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.period, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("%s: expected %s, got %s", tt.period, tt.want, got)
		}
	}
}

func TestBudget_EffectiveEndDateInvalidPeriod(t *testing.T) {
	b := domain.Budget{Period: "fortnightly", StartDate: domain.NewDate(2025, time.January, 1)}
	_, err := b.EffectiveEndDate()
	var perr *domain.ErrInvalidPeriod
	if !errors.As(err, &perr) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}
