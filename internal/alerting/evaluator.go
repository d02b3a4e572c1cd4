// Package alerting decides when a budget's utilization warrants a new alert.
//
// The evaluator is pure: callers compute the spend, look up the alert types
// already raised inside the dedup window, and persist whatever it returns.
package alerting

import (
	"fmt"

	"github.com/boddenberg/vantage-api/internal/domain"

	"github.com/shopspring/decimal"
)

var (
	hundred     = decimal.NewFromInt(100)
	warningFrom = decimal.NewFromInt(90)
)

// PercentageUsed returns spent/amount in percent rounded to 2 places, or 0
// when amount is zero.
func PercentageUsed(spent, amount decimal.Decimal) decimal.Decimal {
	if amount.IsZero() {
		return decimal.Zero
	}
	return spent.Div(amount).Mul(hundred).Round(2)
}

// Evaluate applies the alert policy to a budget snapshot. Exceeded is checked
// before threshold and at most one alert is returned. A nil result means no
// alert.
func Evaluate(b domain.Budget, spent decimal.Decimal, recent map[domain.AlertType]bool) *domain.AlertDecision {
	if !b.AlertEnabled {
		return nil
	}
	if spent.IsNegative() {
		spent = decimal.Zero
	}

	pct := PercentageUsed(spent, b.Amount)
	threshold := decimal.NewFromInt(int64(b.AlertThreshold))

	switch {
	case pct.GreaterThanOrEqual(hundred) && !recent[domain.AlertBudgetExceeded]:
		return &domain.AlertDecision{
			AlertType:      domain.AlertBudgetExceeded,
			Severity:       domain.SeverityError,
			Message:        fmt.Sprintf("Budget for %s exceeded! Spent %s of %s", b.Category, spent.StringFixed(2), b.Amount.StringFixed(2)),
			BudgetAmount:   b.Amount,
			SpentAmount:    spent,
			PercentageUsed: pct,
		}
	case pct.GreaterThanOrEqual(threshold) && !recent[domain.AlertThresholdReached]:
		severity := domain.SeverityInfo
		if pct.GreaterThanOrEqual(warningFrom) {
			severity = domain.SeverityWarning
		}
		return &domain.AlertDecision{
			AlertType:      domain.AlertThresholdReached,
			Severity:       severity,
			Message:        fmt.Sprintf("Budget for %s reached %s%% (spent %s of %s)", b.Category, pct.StringFixed(2), spent.StringFixed(2), b.Amount.StringFixed(2)),
			BudgetAmount:   b.Amount,
			SpentAmount:    spent,
			PercentageUsed: pct,
		}
	}
	return nil
}
