package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Budgets & alerts
// ============================================================

// BudgetPeriod is the length of a budget window.
type BudgetPeriod string

const (
	PeriodWeekly    BudgetPeriod = "weekly"
	PeriodMonthly   BudgetPeriod = "monthly"
	PeriodQuarterly BudgetPeriod = "quarterly"
	PeriodYearly    BudgetPeriod = "yearly"
	PeriodCustom    BudgetPeriod = "custom"
)

// Valid reports whether p is one of the enumerated periods.
func (p BudgetPeriod) Valid() bool {
	switch p {
	case PeriodWeekly, PeriodMonthly, PeriodQuarterly, PeriodYearly, PeriodCustom:
		return true
	}
	return false
}

// Budget caps spending in one category over a period.
type Budget struct {
	ID             string          `json:"id" gorm:"primaryKey;size:36"`
	OwnerID        string          `json:"owner_id" gorm:"size:36;index"`
	Category       string          `json:"category" gorm:"size:100"`
	Amount         decimal.Decimal `json:"amount" gorm:"type:decimal(15,2)"`
	Period         BudgetPeriod    `json:"period" gorm:"size:16"`
	StartDate      Date            `json:"start_date" gorm:"type:date"`
	EndDate        *Date           `json:"end_date" gorm:"type:date"`
	AlertThreshold int             `json:"alert_threshold"`
	AlertEnabled   bool            `json:"alert_enabled"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// EffectiveEndDate is EndDate when set, else StartDate plus one period.
// Custom budgets without an end date last one month.
func (b Budget) EffectiveEndDate() (Date, error) {
	if b.EndDate != nil && !b.EndDate.IsZero() {
		return *b.EndDate, nil
	}
	switch b.Period {
	case PeriodWeekly:
		return b.StartDate.AddDays(7), nil
	case PeriodMonthly, PeriodCustom:
		return b.StartDate.AddMonths(1), nil
	case PeriodQuarterly:
		return b.StartDate.AddMonths(3), nil
	case PeriodYearly:
		return b.StartDate.AddYears(1), nil
	}
	return Date{}, &ErrInvalidPeriod{Value: string(b.Period)}
}

// BudgetInput is the create/update payload for a budget.
type BudgetInput struct {
	Category       string          `json:"category" validate:"max=100"`
	Amount         decimal.Decimal `json:"amount"`
	Period         string          `json:"period" validate:"omitempty,oneof=weekly monthly quarterly yearly custom"`
	StartDate      Date            `json:"start_date"`
	EndDate        *Date           `json:"end_date"`
	AlertThreshold *int            `json:"alert_threshold" validate:"omitempty,min=0,max=100"`
	AlertEnabled   *bool           `json:"alert_enabled"`
	IsActive       *bool           `json:"is_active"`
}

// BudgetFilter narrows a budget listing.
type BudgetFilter struct {
	Category string
	Period   BudgetPeriod
	IsActive *bool
}

// BudgetStatus is a budget together with its derived utilization.
type BudgetStatus struct {
	Budget
	EffectiveEndDate Date            `json:"effective_end_date"`
	Spent            decimal.Decimal `json:"spent"`
	Remaining        decimal.Decimal `json:"remaining"`
	PercentageUsed   decimal.Decimal `json:"percentage_used"`
	IsExceeded       bool            `json:"is_exceeded"`
}

// BudgetCategorySummary aggregates active budgets of one category.
type BudgetCategorySummary struct {
	Category         string          `json:"category"`
	Budgeted         decimal.Decimal `json:"budgeted"`
	Spent            decimal.Decimal `json:"spent"`
	TransactionCount int             `json:"transaction_count"`
}

// BudgetSummary aggregates all active budgets of a user.
type BudgetSummary struct {
	TotalBudgeted      decimal.Decimal         `json:"total_budgeted"`
	TotalSpent         decimal.Decimal         `json:"total_spent"`
	TotalRemaining     decimal.Decimal         `json:"total_remaining"`
	BudgetCount        int                     `json:"budget_count"`
	ExceededCount      int                     `json:"exceeded_count"`
	AverageUtilization decimal.Decimal         `json:"average_utilization"`
	ByCategory         []BudgetCategorySummary `json:"by_category"`
}

// AlertType enumerates budget alert kinds.
type AlertType string

const (
	AlertThresholdReached AlertType = "threshold_reached"
	AlertBudgetExceeded   AlertType = "budget_exceeded"
	AlertNearLimit        AlertType = "near_limit"
)

// Severity of a budget alert.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Valid reports whether s is one of the enumerated severities.
func (s Severity) Valid() bool {
	return s == SeverityInfo || s == SeverityWarning || s == SeverityError
}

// BudgetAlert is an append-only record of an alert decision.
type BudgetAlert struct {
	ID             string          `json:"id" gorm:"primaryKey;size:36"`
	BudgetID       string          `json:"budget_id" gorm:"size:36;index"`
	OwnerID        string          `json:"owner_id" gorm:"size:36;index"`
	AlertType      AlertType       `json:"alert_type" gorm:"size:32"`
	Severity       Severity        `json:"severity" gorm:"size:16"`
	Message        string          `json:"message" gorm:"size:255"`
	BudgetAmount   decimal.Decimal `json:"budget_amount" gorm:"type:decimal(15,2)"`
	SpentAmount    decimal.Decimal `json:"spent_amount" gorm:"type:decimal(15,2)"`
	PercentageUsed decimal.Decimal `json:"percentage_used" gorm:"type:decimal(7,2)"`
	IsRead         bool            `json:"is_read"`
	IsAcknowledged bool            `json:"is_acknowledged"`
	DayBucket      string          `json:"-" gorm:"size:10"`
	CreatedAt      time.Time       `json:"created_at"`
}

// AlertDecision is what the evaluator hands back to the caller to persist.
type AlertDecision struct {
	AlertType      AlertType
	Severity       Severity
	Message        string
	BudgetAmount   decimal.Decimal
	SpentAmount    decimal.Decimal
	PercentageUsed decimal.Decimal
}

// AlertFilter narrows an alert listing.
type AlertFilter struct {
	UnreadOnly bool
	Severity   Severity
}
