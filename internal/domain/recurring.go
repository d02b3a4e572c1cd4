package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Recurring transactions
// ============================================================

// Frequency of a recurring template.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// Valid reports whether f is one of the enumerated frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

// SourceRecurringKey is the metadata key linking a fired transaction to its template.
const SourceRecurringKey = "source_recurring_id"

// RecurringTransaction is a template projecting future transactions.
type RecurringTransaction struct {
	ID             string          `json:"id" gorm:"primaryKey;size:36"`
	OwnerID        string          `json:"owner_id" gorm:"size:36;index"`
	Kind           TransactionKind `json:"kind" gorm:"size:16"`
	Amount         decimal.Decimal `json:"amount" gorm:"type:decimal(15,2)"`
	Category       string          `json:"category" gorm:"size:100"`
	Description    string          `json:"description" gorm:"size:500"`
	Frequency      Frequency       `json:"frequency" gorm:"size:16"`
	StartDate      Date            `json:"start_date" gorm:"type:date"`
	EndDate        *Date           `json:"end_date" gorm:"type:date"`
	NextOccurrence Date            `json:"next_occurrence" gorm:"type:date;index"`
	IsActive       bool            `json:"is_active"`
	Config         map[string]any  `json:"config" gorm:"serializer:json"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// RecurringInput is the create/update payload for a template.
type RecurringInput struct {
	Kind           string          `json:"kind" validate:"omitempty,oneof=income expense"`
	Amount         decimal.Decimal `json:"amount"`
	Category       string          `json:"category" validate:"max=100"`
	Description    string          `json:"description" validate:"max=500"`
	Frequency      string          `json:"frequency" validate:"omitempty,oneof=daily weekly monthly yearly"`
	StartDate      Date            `json:"start_date"`
	EndDate        *Date           `json:"end_date"`
	NextOccurrence Date            `json:"next_occurrence"`
	IsActive       *bool           `json:"is_active"`
	Config         map[string]any  `json:"config"`
}

// RecurringFilter narrows a template listing.
type RecurringFilter struct {
	IsActive *bool
	Kind     TransactionKind
}

// TransactionDraft is a transaction materialized from a template, not yet persisted.
type TransactionDraft struct {
	Kind        TransactionKind
	Amount      decimal.Decimal
	Category    string
	Description string
	OccurredOn  Date
	Metadata    map[string]any
}

// FiredTransaction reports one successful firing in a batch.
type FiredTransaction struct {
	RecurringID    string      `json:"recurring_transaction_id"`
	Transaction    Transaction `json:"transaction"`
	NextOccurrence Date        `json:"next_occurrence"`
	Deactivated    bool        `json:"deactivated"`
}

// FireFailure reports one failed firing in a batch.
type FireFailure struct {
	RecurringID string `json:"recurring_transaction_id"`
	Error       string `json:"error"`
}

// BatchResult aggregates a due-processing run; failures never abort the batch.
type BatchResult struct {
	Processed []FiredTransaction `json:"processed"`
	Errors    []FireFailure      `json:"errors"`
}

// UpcomingRecurring is an active template with its occurrences inside a window.
type UpcomingRecurring struct {
	RecurringTransaction
	Occurrences []Date `json:"occurrences"`
}
