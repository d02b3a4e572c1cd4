// Package recurrence projects recurring transaction templates forward in time.
package recurrence

import (
	"github.com/boddenberg/vantage-api/internal/domain"
)

const recurringSuffix = " (Recurring)"

// Projection is a template's schedule state as of a given day.
type Projection struct {
	Due            bool
	Eligible       bool
	NextOccurrence domain.Date
	IsActive       bool
	Deactivated    bool
}

// NextDate advances current by one step of frequency.
func NextDate(current domain.Date, freq domain.Frequency) (domain.Date, error) {
	switch freq {
	case domain.FrequencyDaily:
		return current.AddDays(1), nil
	case domain.FrequencyWeekly:
		return current.AddDays(7), nil
	case domain.FrequencyMonthly:
		return current.AddMonths(1), nil
	case domain.FrequencyYearly:
		return current.AddYears(1), nil
	}
	return domain.Date{}, &domain.ErrInvalidFrequency{Value: string(freq)}
}

// Project reports whether the template is due and eligible to fire today.
func Project(tpl domain.RecurringTransaction, today domain.Date) Projection {
	due := !tpl.NextOccurrence.After(today)
	return Projection{
		Due:            due,
		Eligible:       due && tpl.IsActive,
		NextOccurrence: tpl.NextOccurrence,
		IsActive:       tpl.IsActive,
	}
}

// Fire materializes one transaction from an eligible template and returns
// the template's new schedule. When the following occurrence would land past
// the end date the template is deactivated and next_occurrence is kept.
func Fire(tpl domain.RecurringTransaction, today domain.Date) (domain.TransactionDraft, Projection, error) {
	p := Project(tpl, today)
	if !p.Eligible {
		return domain.TransactionDraft{}, p, &domain.ErrNotDue{ID: tpl.ID}
	}

	next, err := NextDate(tpl.NextOccurrence, tpl.Frequency)
	if err != nil {
		return domain.TransactionDraft{}, p, err
	}

	draft := domain.TransactionDraft{
		Kind:        tpl.Kind,
		Amount:      tpl.Amount,
		Category:    tpl.Category,
		Description: tpl.Description + recurringSuffix,
		OccurredOn:  today,
		Metadata:    map[string]any{domain.SourceRecurringKey: tpl.ID},
	}

	if tpl.EndDate != nil && !tpl.EndDate.IsZero() && next.After(*tpl.EndDate) {
		p.IsActive = false
		p.Deactivated = true
		return draft, p, nil
	}
	p.NextOccurrence = next
	return draft, p, nil
}

// Apply copies a projection's schedule fields onto the template.
func Apply(tpl *domain.RecurringTransaction, p Projection) {
	tpl.NextOccurrence = p.NextOccurrence
	tpl.IsActive = p.IsActive
}

// Upcoming lists the occurrence dates of tpl within [from, to], stopping at
// the end date. Inactive templates have none.
func Upcoming(tpl domain.RecurringTransaction, from, to domain.Date) ([]domain.Date, error) {
	if !tpl.IsActive {
		return nil, nil
	}
	var out []domain.Date
	d := tpl.NextOccurrence
	for !d.After(to) {
		if tpl.EndDate != nil && !tpl.EndDate.IsZero() && d.After(*tpl.EndDate) {
			break
		}
		if !d.Before(from) {
			out = append(out, d)
		}
		next, err := NextDate(d, tpl.Frequency)
		if err != nil {
			return nil, err
		}
		d = next
	}
	return out, nil
}
