package port

import (
	"context"
	"time"

	"github.com/boddenberg/vantage-api/internal/domain"

	"github.com/shopspring/decimal"
)

// Every method takes the owner id; rows of other owners behave as absent.

// TransactionStore persists income and expense entries.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, txn *domain.Transaction) error
	GetTransaction(ctx context.Context, ownerID, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, ownerID string, filter domain.TransactionFilter) ([]domain.Transaction, int, error)
	UpdateTransaction(ctx context.Context, txn *domain.Transaction) error
	DeleteTransaction(ctx context.Context, ownerID, id string) error

	// SumByCategory aggregates one kind over [from, to] grouped by category.
	SumByCategory(ctx context.Context, ownerID string, kind domain.TransactionKind, from, to domain.Date) ([]domain.CategoryTotal, error)
	// SumExpenses totals expenses of a category over [from, to].
	SumExpenses(ctx context.Context, ownerID, category string, from, to domain.Date) (decimal.Decimal, int, error)
}

// BudgetStore persists budgets and their alerts.
type BudgetStore interface {
	CreateBudget(ctx context.Context, budget *domain.Budget) error
	GetBudget(ctx context.Context, ownerID, id string) (*domain.Budget, error)
	ListBudgets(ctx context.Context, ownerID string, filter domain.BudgetFilter) ([]domain.Budget, error)
	UpdateBudget(ctx context.Context, budget *domain.Budget) error
	DeleteBudget(ctx context.Context, ownerID, id string) error

	// RecentAlertTypes returns the alert types raised for a budget after since.
	RecentAlertTypes(ctx context.Context, budgetID string, since time.Time) (map[domain.AlertType]bool, error)
	// CreateAlert inserts unless an alert with the same budget, type and day
	// bucket exists; it reports whether a row was written.
	CreateAlert(ctx context.Context, alert *domain.BudgetAlert) (bool, error)
	ListAlerts(ctx context.Context, ownerID string, filter domain.AlertFilter) ([]domain.BudgetAlert, error)
	MarkAlert(ctx context.Context, ownerID, budgetID, alertID string, acknowledge bool) (*domain.BudgetAlert, error)
}

// RecurringStore persists recurring templates and applies firings.
type RecurringStore interface {
	CreateRecurring(ctx context.Context, tpl *domain.RecurringTransaction) error
	GetRecurring(ctx context.Context, ownerID, id string) (*domain.RecurringTransaction, error)
	ListRecurring(ctx context.Context, ownerID string, filter domain.RecurringFilter) ([]domain.RecurringTransaction, error)
	UpdateRecurring(ctx context.Context, tpl *domain.RecurringTransaction) error
	DeleteRecurring(ctx context.Context, ownerID, id string) error

	// ListDueRecurring returns active templates with next_occurrence <= today.
	// An empty ownerID selects every owner.
	ListDueRecurring(ctx context.Context, ownerID string, today domain.Date) ([]domain.RecurringTransaction, error)
	// ApplyFiring inserts txn and writes tpl's schedule in one database
	// transaction, provided the stored next_occurrence still equals
	// expectedNext. A lost race yields ErrConflict and nothing is written.
	ApplyFiring(ctx context.Context, tpl *domain.RecurringTransaction, expectedNext domain.Date, txn *domain.Transaction) error
}

// SavingsGoalStore persists savings goals.
type SavingsGoalStore interface {
	CreateGoal(ctx context.Context, goal *domain.SavingsGoal) error
	GetGoal(ctx context.Context, ownerID, id string) (*domain.SavingsGoal, error)
	ListGoals(ctx context.Context, ownerID string, status domain.GoalStatus) ([]domain.SavingsGoal, error)
	UpdateGoal(ctx context.Context, goal *domain.SavingsGoal) error
	DeleteGoal(ctx context.Context, ownerID, id string) error
}
