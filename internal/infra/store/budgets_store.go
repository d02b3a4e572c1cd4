package store

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/vantage-api/internal/domain"

	"gorm.io/gorm/clause"
)

// ============================================================
// BudgetStore implementation
// ============================================================

func (s *Store) CreateBudget(ctx context.Context, budget *domain.Budget) error {
	ctx, span := tracer.Start(ctx, "Store.CreateBudget")
	defer span.End()

	if budget.ID == "" {
		budget.ID = newID()
	}
	if err := s.db.WithContext(ctx).Create(budget).Error; err != nil {
		return fmt.Errorf("insert budget: %w", err)
	}
	return nil
}

func (s *Store) GetBudget(ctx context.Context, ownerID, id string) (*domain.Budget, error) {
	ctx, span := tracer.Start(ctx, "Store.GetBudget")
	defer span.End()

	var budget domain.Budget
	if err := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&budget).Error; err != nil {
		return nil, notFound(err, "budget", id)
	}
	return &budget, nil
}

func (s *Store) ListBudgets(ctx context.Context, ownerID string, f domain.BudgetFilter) ([]domain.Budget, error) {
	ctx, span := tracer.Start(ctx, "Store.ListBudgets")
	defer span.End()

	q := s.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Period != "" {
		q = q.Where("period = ?", f.Period)
	}
	if f.IsActive != nil {
		q = q.Where("is_active = ?", *f.IsActive)
	}

	var rows []domain.Budget
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	return rows, nil
}

func (s *Store) UpdateBudget(ctx context.Context, budget *domain.Budget) error {
	ctx, span := tracer.Start(ctx, "Store.UpdateBudget")
	defer span.End()

	res := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", budget.ID, budget.OwnerID).
		Select("*").Omit("id", "owner_id", "created_at").
		Updates(budget)
	if res.Error != nil {
		return fmt.Errorf("update budget: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return &domain.ErrNotFound{Resource: "budget", ID: budget.ID}
	}
	return nil
}

func (s *Store) DeleteBudget(ctx context.Context, ownerID, id string) error {
	ctx, span := tracer.Start(ctx, "Store.DeleteBudget")
	defer span.End()

	res := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).Delete(&domain.Budget{})
	if res.Error != nil {
		return fmt.Errorf("delete budget: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return &domain.ErrNotFound{Resource: "budget", ID: id}
	}
	return nil
}

// --- Alerts ---

func (s *Store) RecentAlertTypes(ctx context.Context, budgetID string, since time.Time) (map[domain.AlertType]bool, error) {
	ctx, span := tracer.Start(ctx, "Store.RecentAlertTypes")
	defer span.End()

	var types []domain.AlertType
	err := s.db.WithContext(ctx).Model(&domain.BudgetAlert{}).
		Distinct("alert_type").
		Where("budget_id = ? AND created_at > ?", budgetID, since.UTC()).
		Pluck("alert_type", &types).Error
	if err != nil {
		return nil, fmt.Errorf("query recent alerts: %w", err)
	}

	recent := make(map[domain.AlertType]bool, len(types))
	for _, t := range types {
		recent[t] = true
	}
	return recent, nil
}

func (s *Store) CreateAlert(ctx context.Context, alert *domain.BudgetAlert) (bool, error) {
	ctx, span := tracer.Start(ctx, "Store.CreateAlert")
	defer span.End()

	if alert.ID == "" {
		alert.ID = newID()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	if alert.DayBucket == "" {
		alert.DayBucket = alert.CreatedAt.UTC().Format(domain.DateLayout)
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(alert)
	if res.Error != nil {
		return false, fmt.Errorf("insert alert: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) ListAlerts(ctx context.Context, ownerID string, f domain.AlertFilter) ([]domain.BudgetAlert, error) {
	ctx, span := tracer.Start(ctx, "Store.ListAlerts")
	defer span.End()

	q := s.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if f.UnreadOnly {
		q = q.Where("is_read = ?", false)
	}
	if f.Severity != "" {
		q = q.Where("severity = ?", f.Severity)
	}

	var rows []domain.BudgetAlert
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return rows, nil
}

func (s *Store) MarkAlert(ctx context.Context, ownerID, budgetID, alertID string, acknowledge bool) (*domain.BudgetAlert, error) {
	ctx, span := tracer.Start(ctx, "Store.MarkAlert")
	defer span.End()

	var alert domain.BudgetAlert
	err := s.db.WithContext(ctx).
		Where("id = ? AND budget_id = ? AND owner_id = ?", alertID, budgetID, ownerID).
		First(&alert).Error
	if err != nil {
		return nil, notFound(err, "budget alert", alertID)
	}

	updates := map[string]any{"is_read": true}
	if acknowledge {
		updates["is_acknowledged"] = true
	}
	if err := s.db.WithContext(ctx).Model(&alert).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update alert: %w", err)
	}
	alert.IsRead = true
	if acknowledge {
		alert.IsAcknowledged = true
	}
	return &alert, nil
}
