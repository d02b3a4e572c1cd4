package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/boddenberg/vantage-api/internal/domain"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// ============================================================
// TransactionStore implementation
// ============================================================

func (s *Store) CreateTransaction(ctx context.Context, txn *domain.Transaction) error {
	ctx, span := tracer.Start(ctx, "Store.CreateTransaction")
	defer span.End()

	if txn.ID == "" {
		txn.ID = newID()
	}
	if err := s.db.WithContext(ctx).Create(txn).Error; err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, ownerID, id string) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Store.GetTransaction")
	defer span.End()

	var txn domain.Transaction
	err := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&txn).Error
	if err != nil {
		return nil, notFound(err, "transaction", id)
	}
	return &txn, nil
}

func (s *Store) ListTransactions(ctx context.Context, ownerID string, f domain.TransactionFilter) ([]domain.Transaction, int, error) {
	ctx, span := tracer.Start(ctx, "Store.ListTransactions")
	defer span.End()
	span.SetAttributes(attribute.String("owner.id", ownerID))

	q := applyTransactionFilter(s.db.WithContext(ctx).Model(&domain.Transaction{}), ownerID, f)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	q = q.Order("occurred_on DESC").Order("created_at DESC")
	if f.PageSize > 0 {
		q = q.Limit(f.PageSize).Offset(offset(f.Page, f.PageSize))
	}

	var rows []domain.Transaction
	if err := q.Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	return rows, int(total), nil
}

func applyTransactionFilter(q *gorm.DB, ownerID string, f domain.TransactionFilter) *gorm.DB {
	q = q.Where("owner_id = ?", ownerID)
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.StartDate != nil {
		q = q.Where("occurred_on >= ?", *f.StartDate)
	}
	if f.EndDate != nil {
		q = q.Where("occurred_on <= ?", *f.EndDate)
	}
	if f.MinAmount != nil {
		q = q.Where("amount >= ?", *f.MinAmount)
	}
	if f.MaxAmount != nil {
		q = q.Where("amount <= ?", *f.MaxAmount)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("(LOWER(description) LIKE ? OR LOWER(category) LIKE ?)", like, like)
	}
	return q
}

func (s *Store) UpdateTransaction(ctx context.Context, txn *domain.Transaction) error {
	ctx, span := tracer.Start(ctx, "Store.UpdateTransaction")
	defer span.End()

	res := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", txn.ID, txn.OwnerID).
		Select("*").Omit("id", "owner_id", "created_at").
		Updates(txn)
	if res.Error != nil {
		return fmt.Errorf("update transaction: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return &domain.ErrNotFound{Resource: "transaction", ID: txn.ID}
	}
	return nil
}

func (s *Store) DeleteTransaction(ctx context.Context, ownerID, id string) error {
	ctx, span := tracer.Start(ctx, "Store.DeleteTransaction")
	defer span.End()

	res := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).Delete(&domain.Transaction{})
	if res.Error != nil {
		return fmt.Errorf("delete transaction: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	return nil
}

// amountRow is the projection used by the aggregates; sums are computed in
// decimal on our side so SQLite's REAL arithmetic never leaks in.
type amountRow struct {
	Category string
	Amount   decimal.Decimal
}

func (s *Store) SumByCategory(ctx context.Context, ownerID string, kind domain.TransactionKind, from, to domain.Date) ([]domain.CategoryTotal, error) {
	ctx, span := tracer.Start(ctx, "Store.SumByCategory")
	defer span.End()

	var rows []amountRow
	err := s.db.WithContext(ctx).Model(&domain.Transaction{}).
		Select("category", "amount").
		Where("owner_id = ? AND kind = ? AND occurred_on >= ? AND occurred_on <= ?", ownerID, kind, from, to).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sum by category: %w", err)
	}

	index := map[string]int{}
	var totals []domain.CategoryTotal
	for _, r := range rows {
		i, ok := index[r.Category]
		if !ok {
			i = len(totals)
			index[r.Category] = i
			totals = append(totals, domain.CategoryTotal{Category: r.Category, Total: decimal.Zero})
		}
		totals[i].Total = totals[i].Total.Add(r.Amount)
		totals[i].TransactionCount++
	}
	sort.SliceStable(totals, func(a, b int) bool {
		if c := totals[a].Total.Cmp(totals[b].Total); c != 0 {
			return c > 0
		}
		return totals[a].Category < totals[b].Category
	})
	return totals, nil
}

// SumExpenses totals one category's expenses over [from, to]. Rows are summed
// in decimal here because SQLite's SUM over DECIMAL columns returns REAL.
func (s *Store) SumExpenses(ctx context.Context, ownerID, category string, from, to domain.Date) (decimal.Decimal, int, error) {
	ctx, span := tracer.Start(ctx, "Store.SumExpenses")
	defer span.End()
	span.SetAttributes(attribute.String("category", category))

	var rows []amountRow
	err := s.db.WithContext(ctx).Model(&domain.Transaction{}).
		Select("category", "amount").
		Where("owner_id = ? AND kind = ? AND category = ? AND occurred_on >= ? AND occurred_on <= ?",
			ownerID, domain.KindExpense, category, from, to).
		Scan(&rows).Error
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("sum expenses: %w", err)
	}

	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.Amount)
	}
	return total, len(rows), nil
}
