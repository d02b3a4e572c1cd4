package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/vantage-api/internal/domain"

	"github.com/shopspring/decimal"
)

func TestSavingsGoal_AddAmountCompletesGoal(t *testing.T) {
	g := domain.SavingsGoal{
		TargetAmount:  decimal.NewFromInt(500),
		CurrentAmount: decimal.NewFromInt(480),
		Status:        domain.GoalActive,
	}
	if err := g.AddAmount(decimal.NewFromInt(20)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !g.CurrentAmount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("expected current 500, got %s", g.CurrentAmount)
	}
	if g.Status != domain.GoalCompleted {
		t.Errorf("expected completed, got %s", g.Status)
	}
}

func TestSavingsGoal_AddAmountRejectsNonPositive(t *testing.T) {
	g := domain.SavingsGoal{TargetAmount: decimal.NewFromInt(500), Status: domain.GoalActive}
	for _, amt := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
		err := g.AddAmount(amt)
		var verr *domain.ErrValidation
		if !errors.As(err, &verr) {
			t.Fatalf("expected ErrValidation for %s, got %v", amt, err)
		}
	}
	if !g.CurrentAmount.IsZero() {
		t.Errorf("expected no change, got %s", g.CurrentAmount)
	}
}

func TestSavingsGoal_DerivedFields(t *testing.T) {
	deadline := domain.NewDate(2025, time.June, 30)
	g := domain.SavingsGoal{
		TargetAmount:  decimal.NewFromInt(1000),
		CurrentAmount: decimal.NewFromInt(250),
		Deadline:      &deadline,
		Status:        domain.GoalActive,
	}

	v := domain.ViewOf(g, domain.NewDate(2025, time.July, 1))
	if !v.ProgressPercentage.Equal(decimal.NewFromInt(25)) {
		t.Errorf("expected 25%%, got %s", v.ProgressPercentage)
	}
	if !v.RemainingAmount.Equal(decimal.NewFromInt(750)) {
		t.Errorf("expected remaining 750, got %s", v.RemainingAmount)
	}
	if !v.IsOverdue {
		t.Error("expected goal to be overdue")
	}
	if domain.ViewOf(g, deadline).IsOverdue {
		t.Error("goal is not overdue on its deadline")
	}

	g.CurrentAmount = decimal.NewFromInt(1200)
	v = domain.ViewOf(g, domain.NewDate(2025, time.July, 1))
	if v.IsOverdue {
		t.Error("reached goal is never overdue")
	}
	if !v.RemainingAmount.IsZero() {
		t.Errorf("expected remaining 0, got %s", v.RemainingAmount)
	}
	if !v.ProgressPercentage.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected progress capped at 100, got %s", v.ProgressPercentage)
	}
}
