package store

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/vantage-api/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// ============================================================
// RecurringStore implementation
// ============================================================

func (s *Store) CreateRecurring(ctx context.Context, tpl *domain.RecurringTransaction) error {
	ctx, span := tracer.Start(ctx, "Store.CreateRecurring")
	defer span.End()

	if tpl.ID == "" {
		tpl.ID = newID()
	}
	if err := s.db.WithContext(ctx).Create(tpl).Error; err != nil {
		return fmt.Errorf("insert recurring transaction: %w", err)
	}
	return nil
}

func (s *Store) GetRecurring(ctx context.Context, ownerID, id string) (*domain.RecurringTransaction, error) {
	ctx, span := tracer.Start(ctx, "Store.GetRecurring")
	defer span.End()

	var tpl domain.RecurringTransaction
	if err := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&tpl).Error; err != nil {
		return nil, notFound(err, "recurring transaction", id)
	}
	return &tpl, nil
}

func (s *Store) ListRecurring(ctx context.Context, ownerID string, f domain.RecurringFilter) ([]domain.RecurringTransaction, error) {
	ctx, span := tracer.Start(ctx, "Store.ListRecurring")
	defer span.End()

	q := s.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if f.IsActive != nil {
		q = q.Where("is_active = ?", *f.IsActive)
	}
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}

	var rows []domain.RecurringTransaction
	if err := q.Order("next_occurrence ASC").Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list recurring transactions: %w", err)
	}
	return rows, nil
}

func (s *Store) UpdateRecurring(ctx context.Context, tpl *domain.RecurringTransaction) error {
	ctx, span := tracer.Start(ctx, "Store.UpdateRecurring")
	defer span.End()

	res := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", tpl.ID, tpl.OwnerID).
		Select("*").Omit("id", "owner_id", "created_at").
		Updates(tpl)
	if res.Error != nil {
		return fmt.Errorf("update recurring transaction: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return &domain.ErrNotFound{Resource: "recurring transaction", ID: tpl.ID}
	}
	return nil
}

func (s *Store) DeleteRecurring(ctx context.Context, ownerID, id string) error {
	ctx, span := tracer.Start(ctx, "Store.DeleteRecurring")
	defer span.End()

	res := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).Delete(&domain.RecurringTransaction{})
	if res.Error != nil {
		return fmt.Errorf("delete recurring transaction: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return &domain.ErrNotFound{Resource: "recurring transaction", ID: id}
	}
	return nil
}

func (s *Store) ListDueRecurring(ctx context.Context, ownerID string, today domain.Date) ([]domain.RecurringTransaction, error) {
	ctx, span := tracer.Start(ctx, "Store.ListDueRecurring")
	defer span.End()
	span.SetAttributes(attribute.String("today", today.String()))

	q := s.db.WithContext(ctx).Where("is_active = ? AND next_occurrence <= ?", true, today)
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}

	var rows []domain.RecurringTransaction
	if err := q.Order("next_occurrence ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list due recurring transactions: %w", err)
	}
	return rows, nil
}

// ApplyFiring performs the compare-and-swap on next_occurrence and the
// transaction insert in the same database transaction.
func (s *Store) ApplyFiring(ctx context.Context, tpl *domain.RecurringTransaction, expectedNext domain.Date, txn *domain.Transaction) error {
	ctx, span := tracer.Start(ctx, "Store.ApplyFiring")
	defer span.End()
	span.SetAttributes(attribute.String("recurring.id", tpl.ID))

	if txn.ID == "" {
		txn.ID = newID()
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.RecurringTransaction{}).
			Where("id = ? AND owner_id = ? AND next_occurrence = ? AND is_active = ?",
				tpl.ID, tpl.OwnerID, expectedNext, true).
			Updates(map[string]any{
				"next_occurrence": tpl.NextOccurrence,
				"is_active":       tpl.IsActive,
				"updated_at":      time.Now().UTC(),
			})
		if res.Error != nil {
			return fmt.Errorf("advance recurring transaction: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return &domain.ErrConflict{Message: fmt.Sprintf("recurring transaction %s was already fired for %s", tpl.ID, expectedNext)}
		}
		if err := tx.Create(txn).Error; err != nil {
			return fmt.Errorf("insert fired transaction: %w", err)
		}
		return nil
	})
}
