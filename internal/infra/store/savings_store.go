package store

import (
	"context"
	"fmt"

	"github.com/boddenberg/vantage-api/internal/domain"
)

// ============================================================
// SavingsGoalStore implementation
// ============================================================

func (s *Store) CreateGoal(ctx context.Context, goal *domain.SavingsGoal) error {
	ctx, span := tracer.Start(ctx, "Store.CreateGoal")
	defer span.End()

	if goal.ID == "" {
		goal.ID = newID()
	}
	if err := s.db.WithContext(ctx).Create(goal).Error; err != nil {
		return fmt.Errorf("insert savings goal: %w", err)
	}
	return nil
}

func (s *Store) GetGoal(ctx context.Context, ownerID, id string) (*domain.SavingsGoal, error) {
	ctx, span := tracer.Start(ctx, "Store.GetGoal")
	defer span.End()

	var goal domain.SavingsGoal
	if err := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&goal).Error; err != nil {
		return nil, notFound(err, "savings goal", id)
	}
	return &goal, nil
}

func (s *Store) ListGoals(ctx context.Context, ownerID string, status domain.GoalStatus) ([]domain.SavingsGoal, error) {
	ctx, span := tracer.Start(ctx, "Store.ListGoals")
	defer span.End()

	q := s.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var rows []domain.SavingsGoal
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list savings goals: %w", err)
	}
	return rows, nil
}

func (s *Store) UpdateGoal(ctx context.Context, goal *domain.SavingsGoal) error {
	ctx, span := tracer.Start(ctx, "Store.UpdateGoal")
	defer span.End()

	res := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", goal.ID, goal.OwnerID).
		Select("*").Omit("id", "owner_id", "created_at").
		Updates(goal)
	if res.Error != nil {
		return fmt.Errorf("update savings goal: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return &domain.ErrNotFound{Resource: "savings goal", ID: goal.ID}
	}
	return nil
}

func (s *Store) DeleteGoal(ctx context.Context, ownerID, id string) error {
	ctx, span := tracer.Start(ctx, "Store.DeleteGoal")
	defer span.End()

	res := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).Delete(&domain.SavingsGoal{})
	if res.Error != nil {
		return fmt.Errorf("delete savings goal: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return &domain.ErrNotFound{Resource: "savings goal", ID: id}
	}
	return nil
}
