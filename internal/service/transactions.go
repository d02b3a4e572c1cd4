package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/boddenberg/vantage-api/internal/domain"
	"github.com/boddenberg/vantage-api/internal/infra/events"
	"github.com/boddenberg/vantage-api/internal/infra/export"
	"github.com/boddenberg/vantage-api/internal/infra/observability"
	"github.com/boddenberg/vantage-api/internal/infra/resilience"
	"github.com/boddenberg/vantage-api/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var txnTracer = otel.Tracer("service/transactions")

const summaryCacheName = "transaction_summary"

// AlertChecker re-evaluates budgets after spending in a category changes.
type AlertChecker interface {
	CheckCategory(ctx context.Context, ownerID, category string) error
}

// TransactionService manages the ledger of income and expense entries.
type TransactionService struct {
	store    port.TransactionStore
	alerts   AlertChecker
	cache    port.Cache[*domain.TransactionSummary]
	bulkhead *resilience.Bulkhead
	events   publisher
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      Clock
}

// NewTransactionService creates a new TransactionService. alerts may be nil.
func NewTransactionService(
	store port.TransactionStore,
	alerts AlertChecker,
	cache port.Cache[*domain.TransactionSummary],
	bulkhead *resilience.Bulkhead,
	eventPub port.EventPublisher,
	metrics *observability.Metrics,
	logger *zap.Logger,
	now Clock,
) *TransactionService {
	return &TransactionService{
		store:    store,
		alerts:   alerts,
		cache:    cache,
		bulkhead: bulkhead,
		events:   publisher{events: eventPub, metrics: metrics, logger: logger},
		metrics:  metrics,
		logger:   logger,
		now:      now,
	}
}

// ============================================================
// List / Get
// ============================================================

func (s *TransactionService) List(ctx context.Context, ownerID string, filter domain.TransactionFilter) (*domain.ListResponse[domain.Transaction], error) {
	ctx, span := txnTracer.Start(ctx, "TransactionService.List")
	defer span.End()

	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, &domain.ErrValidation{Field: "type", Message: "must be income or expense"}
	}
	filter.Page, filter.PageSize = normalizePage(filter.Page, filter.PageSize)

	rows, total, err := s.store.ListTransactions(ctx, ownerID, filter)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []domain.Transaction{}
	}
	return &domain.ListResponse[domain.Transaction]{
		Items:    rows,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
		HasMore:  filter.Page*filter.PageSize < total,
	}, nil
}

func (s *TransactionService) Get(ctx context.Context, ownerID, id string) (*domain.Transaction, error) {
	ctx, span := txnTracer.Start(ctx, "TransactionService.Get")
	defer span.End()

	return s.store.GetTransaction(ctx, ownerID, id)
}

// ============================================================
// Create / Update / Delete
// ============================================================

func (s *TransactionService) Create(ctx context.Context, ownerID string, in domain.TransactionInput) (*domain.Transaction, error) {
	ctx, span := txnTracer.Start(ctx, "TransactionService.Create")
	defer span.End()

	txn := &domain.Transaction{
		OwnerID:       ownerID,
		Kind:          domain.TransactionKind(in.Kind),
		Amount:        in.Amount,
		Category:      strings.TrimSpace(in.Category),
		Description:   in.Description,
		OccurredOn:    in.OccurredOn,
		PaymentMethod: in.PaymentMethod,
		Metadata:      in.Metadata,
	}
	if txn.OccurredOn.IsZero() {
		txn.OccurredOn = todayFrom(s.now)
	}
	if txn.Metadata == nil {
		txn.Metadata = map[string]any{}
	}
	if err := validateTransaction(txn); err != nil {
		return nil, err
	}

	if err := s.store.CreateTransaction(ctx, txn); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("transaction.id", txn.ID))

	s.Recorded(ctx, txn)

	s.logger.Info("transaction created",
		zap.String("owner_id", ownerID),
		zap.String("transaction_id", txn.ID),
		zap.String("kind", string(txn.Kind)),
	)
	return txn, nil
}

func (s *TransactionService) Update(ctx context.Context, ownerID, id string, in domain.TransactionInput) (*domain.Transaction, error) {
	ctx, span := txnTracer.Start(ctx, "TransactionService.Update")
	defer span.End()

	txn, err := s.store.GetTransaction(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	prevKind, prevCategory := txn.Kind, txn.Category

	if in.Kind != "" {
		txn.Kind = domain.TransactionKind(in.Kind)
	}
	if !in.Amount.IsZero() {
		txn.Amount = in.Amount
	}
	if c := strings.TrimSpace(in.Category); c != "" {
		txn.Category = c
	}
	if in.Description != "" {
		txn.Description = in.Description
	}
	if !in.OccurredOn.IsZero() {
		txn.OccurredOn = in.OccurredOn
	}
	if in.PaymentMethod != "" {
		txn.PaymentMethod = in.PaymentMethod
	}
	if in.Metadata != nil {
		txn.Metadata = in.Metadata
	}
	if err := validateTransaction(txn); err != nil {
		return nil, err
	}

	if err := s.store.UpdateTransaction(ctx, txn); err != nil {
		return nil, err
	}

	s.afterChange(ctx, ownerID, txn.Kind, txn.Category)
	if prevKind != txn.Kind || prevCategory != txn.Category {
		s.afterChange(ctx, ownerID, prevKind, prevCategory)
	}
	return txn, nil
}

func (s *TransactionService) Delete(ctx context.Context, ownerID, id string) error {
	ctx, span := txnTracer.Start(ctx, "TransactionService.Delete")
	defer span.End()

	txn, err := s.store.GetTransaction(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTransaction(ctx, ownerID, id); err != nil {
		return err
	}
	s.afterChange(ctx, ownerID, txn.Kind, txn.Category)
	return nil
}

// Recorded runs the follow-up of a newly persisted transaction. The
// recurring service calls it for fired templates.
func (s *TransactionService) Recorded(ctx context.Context, txn *domain.Transaction) {
	s.afterChange(ctx, txn.OwnerID, txn.Kind, txn.Category)
	s.events.publish(ctx, events.TransactionCreated, txn)
}

// afterChange drops the owner's cached summary and, for expenses,
// re-evaluates the budgets of the category.
func (s *TransactionService) afterChange(ctx context.Context, ownerID string, kind domain.TransactionKind, category string) {
	if s.cache != nil {
		s.cache.Delete(summaryKey(ownerID))
	}
	if kind != domain.KindExpense || s.alerts == nil {
		return
	}
	if err := s.alerts.CheckCategory(ctx, ownerID, category); err != nil {
		s.logger.Warn("budget alert check failed",
			zap.String("owner_id", ownerID),
			zap.String("category", category),
			zap.Error(err),
		)
	}
}

// ============================================================
// Summary: cached per owner
// ============================================================

// Summary compares the current calendar month with the previous one.
func (s *TransactionService) Summary(ctx context.Context, ownerID string) (*domain.TransactionSummary, error) {
	ctx, span := txnTracer.Start(ctx, "TransactionService.Summary")
	defer span.End()

	key := summaryKey(ownerID)
	if s.cache != nil {
		cached, ok := s.cache.Get(key)
		if s.metrics != nil {
			if ok {
				s.metrics.IncrCacheHit(summaryCacheName)
			} else {
				s.metrics.IncrCacheMiss(summaryCacheName)
			}
		}
		if ok {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return cached, nil
		}
	}

	today := todayFrom(s.now)
	curStart := today.MonthStart()
	curEnd := curStart.AddMonths(1).AddDays(-1)
	prevStart := curStart.AddMonths(-1)
	prevEnd := curStart.AddDays(-1)

	income, err := s.store.SumByCategory(ctx, ownerID, domain.KindIncome, curStart, curEnd)
	if err != nil {
		return nil, fmt.Errorf("sum income: %w", err)
	}
	expense, err := s.store.SumByCategory(ctx, ownerID, domain.KindExpense, curStart, curEnd)
	if err != nil {
		return nil, fmt.Errorf("sum expense: %w", err)
	}
	prevIncome, err := s.store.SumByCategory(ctx, ownerID, domain.KindIncome, prevStart, prevEnd)
	if err != nil {
		return nil, fmt.Errorf("sum previous income: %w", err)
	}
	prevExpense, err := s.store.SumByCategory(ctx, ownerID, domain.KindExpense, prevStart, prevEnd)
	if err != nil {
		return nil, fmt.Errorf("sum previous expense: %w", err)
	}

	summary := &domain.TransactionSummary{
		CurrentMonth:      periodTotals(income, expense),
		PreviousMonth:     periodTotals(prevIncome, prevExpense),
		IncomeByCategory:  nonNil(income),
		ExpenseByCategory: nonNil(expense),
		PeriodStart:       curStart,
		PeriodEnd:         curEnd,
	}
	if s.cache != nil {
		s.cache.Set(key, summary)
	}
	return summary, nil
}

// ============================================================
// Export: GET /api/v1/transactions/export
// ============================================================

// Export writes every transaction matching filter as an xlsx workbook.
// Exports share a bulkhead so a burst cannot exhaust the database pool.
func (s *TransactionService) Export(ctx context.Context, ownerID string, filter domain.TransactionFilter, w io.Writer) error {
	ctx, span := txnTracer.Start(ctx, "TransactionService.Export")
	defer span.End()

	run := func() error {
		filter.Page, filter.PageSize = 0, 0
		rows, _, err := s.store.ListTransactions(ctx, ownerID, filter)
		if err != nil {
			return err
		}
		span.SetAttributes(attribute.Int("export.rows", len(rows)))
		return export.TransactionsXLSX(w, rows)
	}
	if s.bulkhead == nil {
		return run()
	}
	return s.bulkhead.Do(ctx, run)
}

// ============================================================
// Helpers
// ============================================================

func validateTransaction(txn *domain.Transaction) error {
	if !txn.Kind.Valid() {
		return &domain.ErrValidation{Field: "type", Message: "must be income or expense"}
	}
	if !txn.Amount.IsPositive() {
		return &domain.ErrValidation{Field: "amount", Message: "must be greater than 0"}
	}
	if txn.Category == "" {
		return &domain.ErrValidation{Field: "category", Message: "is required"}
	}
	return nil
}

func periodTotals(income, expense []domain.CategoryTotal) domain.PeriodTotals {
	in, out := sumTotals(income), sumTotals(expense)
	return domain.PeriodTotals{Income: in, Expense: out, Net: in.Sub(out)}
}

func sumTotals(rows []domain.CategoryTotal) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.Total)
	}
	return total
}

func nonNil(rows []domain.CategoryTotal) []domain.CategoryTotal {
	if rows == nil {
		return []domain.CategoryTotal{}
	}
	return rows
}

func summaryKey(ownerID string) string {
	return "summary:" + ownerID
}
