package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Savings goals
// ============================================================

// GoalStatus of a savings goal.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalPaused    GoalStatus = "paused"
)

// Valid reports whether s is one of the enumerated statuses.
func (s GoalStatus) Valid() bool {
	return s == GoalActive || s == GoalCompleted || s == GoalPaused
}

var hundred = decimal.NewFromInt(100)

// SavingsGoal tracks progress towards a target amount.
type SavingsGoal struct {
	ID            string          `json:"id" gorm:"primaryKey;size:36"`
	OwnerID       string          `json:"owner_id" gorm:"size:36;index"`
	Name          string          `json:"name" gorm:"size:100"`
	TargetAmount  decimal.Decimal `json:"target_amount" gorm:"type:decimal(15,2)"`
	CurrentAmount decimal.Decimal `json:"current_amount" gorm:"type:decimal(15,2)"`
	Deadline      *Date           `json:"deadline" gorm:"type:date"`
	Status        GoalStatus      `json:"status" gorm:"size:16"`
	Description   string          `json:"description" gorm:"size:500"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// AddAmount credits a positive amount and completes the goal once the
// target is reached.
func (g *SavingsGoal) AddAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &ErrValidation{Field: "amount", Message: "must be greater than 0"}
	}
	g.CurrentAmount = g.CurrentAmount.Add(amount)
	g.syncStatus()
	return nil
}

func (g *SavingsGoal) syncStatus() {
	if g.IsReached() {
		g.Status = GoalCompleted
	}
}

// Normalize applies derived state after a create or update.
func (g *SavingsGoal) Normalize() {
	if g.Status == "" {
		g.Status = GoalActive
	}
	g.syncStatus()
}

// IsReached reports whether the current amount covers the target.
func (g SavingsGoal) IsReached() bool {
	return g.CurrentAmount.GreaterThanOrEqual(g.TargetAmount)
}

// RemainingAmount never goes below zero.
func (g SavingsGoal) RemainingAmount() decimal.Decimal {
	rem := g.TargetAmount.Sub(g.CurrentAmount)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

// ProgressPercentage is current/target in percent, capped at 100.
func (g SavingsGoal) ProgressPercentage() decimal.Decimal {
	if g.TargetAmount.IsZero() {
		return decimal.Zero
	}
	pct := g.CurrentAmount.Div(g.TargetAmount).Mul(hundred).Round(2)
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}

// IsOverdue reports a passed deadline on an unreached goal.
func (g SavingsGoal) IsOverdue(today Date) bool {
	return g.Deadline != nil && !g.Deadline.IsZero() && g.Deadline.Before(today) && !g.IsReached()
}

// SavingsGoalInput is the create/update payload for a goal.
type SavingsGoalInput struct {
	Name          string          `json:"name" validate:"max=100"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	Deadline      *Date           `json:"deadline"`
	Status        string          `json:"status" validate:"omitempty,oneof=active completed paused"`
	Description   string          `json:"description" validate:"max=500"`
}

// AddAmountInput is the body of PATCH /savings_goals/{id}/add_amount.
type AddAmountInput struct {
	Amount decimal.Decimal `json:"amount"`
}

// SavingsGoalView is a goal with its derived progress fields.
type SavingsGoalView struct {
	SavingsGoal
	RemainingAmount    decimal.Decimal `json:"remaining_amount"`
	ProgressPercentage decimal.Decimal `json:"progress_percentage"`
	IsReached          bool            `json:"is_reached"`
	IsOverdue          bool            `json:"is_overdue"`
}

// ViewOf derives the serialized form of g as of today.
func ViewOf(g SavingsGoal, today Date) SavingsGoalView {
	return SavingsGoalView{
		SavingsGoal:        g,
		RemainingAmount:    g.RemainingAmount(),
		ProgressPercentage: g.ProgressPercentage(),
		IsReached:          g.IsReached(),
		IsOverdue:          g.IsOverdue(today),
	}
}

// SavingsSummary aggregates a user's goals.
type SavingsSummary struct {
	TotalTarget     decimal.Decimal `json:"total_target"`
	TotalSaved      decimal.Decimal `json:"total_saved"`
	TotalRemaining  decimal.Decimal `json:"total_remaining"`
	OverallProgress decimal.Decimal `json:"overall_progress"`
	GoalsCount      int             `json:"goals_count"`
	ActiveCount     int             `json:"active_count"`
	CompletedCount  int             `json:"completed_count"`
}
