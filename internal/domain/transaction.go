package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Transactions
// ============================================================

// TransactionKind is the closed set of ledger entry kinds.
type TransactionKind string

const (
	KindIncome  TransactionKind = "income"
	KindExpense TransactionKind = "expense"
)

// Valid reports whether k is one of the enumerated kinds.
func (k TransactionKind) Valid() bool {
	return k == KindIncome || k == KindExpense
}

// Transaction is a single income or expense entry owned by one user.
type Transaction struct {
	ID            string          `json:"id" gorm:"primaryKey;size:36"`
	OwnerID       string          `json:"owner_id" gorm:"size:36;index"`
	Kind          TransactionKind `json:"kind" gorm:"size:16"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:decimal(15,2)"`
	Category      string          `json:"category" gorm:"size:100"`
	Description   string          `json:"description" gorm:"size:500"`
	OccurredOn    Date            `json:"occurred_on" gorm:"type:date"`
	PaymentMethod string          `json:"payment_method,omitempty" gorm:"size:50"`
	Metadata      map[string]any  `json:"metadata" gorm:"serializer:json"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TransactionInput is the create/update payload. On update, zero-valued
// fields leave the stored value unchanged.
type TransactionInput struct {
	Kind          string          `json:"kind" validate:"omitempty,oneof=income expense"`
	Amount        decimal.Decimal `json:"amount"`
	Category      string          `json:"category" validate:"max=100"`
	Description   string          `json:"description" validate:"max=500"`
	OccurredOn    Date            `json:"occurred_on"`
	PaymentMethod string          `json:"payment_method" validate:"max=50"`
	Metadata      map[string]any  `json:"metadata"`
}

// TransactionFilter narrows a transaction listing.
type TransactionFilter struct {
	Kind      TransactionKind
	Category  string
	StartDate *Date
	EndDate   *Date
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	Search    string
	Page      int
	PageSize  int
}

// CategoryTotal is one row of an aggregate grouped by category.
type CategoryTotal struct {
	Category         string          `json:"category"`
	Total            decimal.Decimal `json:"total"`
	TransactionCount int             `json:"transaction_count"`
}

// PeriodTotals sums a date range by kind.
type PeriodTotals struct {
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Net     decimal.Decimal `json:"net"`
}

// TransactionSummary compares the current month with the previous one.
type TransactionSummary struct {
	CurrentMonth      PeriodTotals    `json:"current_month"`
	PreviousMonth     PeriodTotals    `json:"previous_month"`
	IncomeByCategory  []CategoryTotal `json:"income_by_category"`
	ExpenseByCategory []CategoryTotal `json:"expense_by_category"`
	PeriodStart       Date            `json:"period_start"`
	PeriodEnd         Date            `json:"period_end"`
}
