package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/boddenberg/vantage-api/internal/alerting"
	"github.com/boddenberg/vantage-api/internal/domain"
	"github.com/boddenberg/vantage-api/internal/infra/events"
	"github.com/boddenberg/vantage-api/internal/infra/observability"
	"github.com/boddenberg/vantage-api/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var budgetTracer = otel.Tracer("service/budgets")

const (
	defaultAlertThreshold = 80
	alertLockTTL          = 10 * time.Second
	// concurrent spend queries per request
	spendFanOut = 8
)

// BudgetService manages budgets, their derived utilization and alerts.
type BudgetService struct {
	store       port.BudgetStore
	txns        port.TransactionStore
	locker      port.Locker
	dedupWindow time.Duration
	events      publisher
	metrics     *observability.Metrics
	logger      *zap.Logger
	now         Clock
}

// NewBudgetService creates a new BudgetService.
func NewBudgetService(
	store port.BudgetStore,
	txns port.TransactionStore,
	locker port.Locker,
	dedupWindow time.Duration,
	eventPub port.EventPublisher,
	metrics *observability.Metrics,
	logger *zap.Logger,
	now Clock,
) *BudgetService {
	return &BudgetService{
		store:       store,
		txns:        txns,
		locker:      locker,
		dedupWindow: dedupWindow,
		events:      publisher{events: eventPub, metrics: metrics, logger: logger},
		metrics:     metrics,
		logger:      logger,
		now:         now,
	}
}

// ============================================================
// CRUD
// ============================================================

func (s *BudgetService) List(ctx context.Context, ownerID string, filter domain.BudgetFilter) ([]domain.BudgetStatus, error) {
	ctx, span := budgetTracer.Start(ctx, "BudgetService.List")
	defer span.End()

	if filter.Period != "" && !filter.Period.Valid() {
		return nil, &domain.ErrValidation{Field: "period", Message: "is not a valid period"}
	}
	budgets, err := s.store.ListBudgets(ctx, ownerID, filter)
	if err != nil {
		return nil, err
	}
	return s.statuses(ctx, budgets)
}

func (s *BudgetService) Get(ctx context.Context, ownerID, id string) (*domain.BudgetStatus, error) {
	ctx, span := budgetTracer.Start(ctx, "BudgetService.Get")
	defer span.End()

	b, err := s.store.GetBudget(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	return s.status(ctx, *b)
}

func (s *BudgetService) Create(ctx context.Context, ownerID string, in domain.BudgetInput) (*domain.BudgetStatus, error) {
	ctx, span := budgetTracer.Start(ctx, "BudgetService.Create")
	defer span.End()

	b := &domain.Budget{
		OwnerID:        ownerID,
		Category:       strings.TrimSpace(in.Category),
		Amount:         in.Amount,
		Period:         domain.BudgetPeriod(in.Period),
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		AlertThreshold: defaultAlertThreshold,
		AlertEnabled:   true,
		IsActive:       true,
	}
	if b.Period == "" {
		b.Period = domain.PeriodMonthly
	}
	if b.StartDate.IsZero() {
		b.StartDate = todayFrom(s.now)
	}
	if in.AlertThreshold != nil {
		b.AlertThreshold = *in.AlertThreshold
	}
	if in.AlertEnabled != nil {
		b.AlertEnabled = *in.AlertEnabled
	}
	if in.IsActive != nil {
		b.IsActive = *in.IsActive
	}
	if err := validateBudget(b); err != nil {
		return nil, err
	}

	if err := s.store.CreateBudget(ctx, b); err != nil {
		return nil, err
	}
	s.logger.Info("budget created",
		zap.String("owner_id", ownerID),
		zap.String("budget_id", b.ID),
		zap.String("category", b.Category),
	)
	return s.status(ctx, *b)
}

// Update applies in and re-checks alerts on the updated budget.
func (s *BudgetService) Update(ctx context.Context, ownerID, id string, in domain.BudgetInput) (*domain.BudgetStatus, error) {
	ctx, span := budgetTracer.Start(ctx, "BudgetService.Update")
	defer span.End()

	b, err := s.store.GetBudget(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if c := strings.TrimSpace(in.Category); c != "" {
		b.Category = c
	}
	if !in.Amount.IsZero() {
		b.Amount = in.Amount
	}
	if in.Period != "" {
		b.Period = domain.BudgetPeriod(in.Period)
	}
	if !in.StartDate.IsZero() {
		b.StartDate = in.StartDate
	}
	if in.EndDate != nil {
		b.EndDate = in.EndDate
		if in.EndDate.IsZero() {
			b.EndDate = nil
		}
	}
	if in.AlertThreshold != nil {
		b.AlertThreshold = *in.AlertThreshold
	}
	if in.AlertEnabled != nil {
		b.AlertEnabled = *in.AlertEnabled
	}
	if in.IsActive != nil {
		b.IsActive = *in.IsActive
	}
	if err := validateBudget(b); err != nil {
		return nil, err
	}

	if err := s.store.UpdateBudget(ctx, b); err != nil {
		return nil, err
	}
	if _, err := s.checkAlert(ctx, *b); err != nil {
		s.logger.Warn("budget alert check failed", zap.String("budget_id", b.ID), zap.Error(err))
	}
	return s.status(ctx, *b)
}

func (s *BudgetService) Delete(ctx context.Context, ownerID, id string) error {
	ctx, span := budgetTracer.Start(ctx, "BudgetService.Delete")
	defer span.End()

	return s.store.DeleteBudget(ctx, ownerID, id)
}

// ============================================================
// Summary
// ============================================================

// Summary aggregates the owner's active budgets. Spend per budget is
// queried concurrently.
func (s *BudgetService) Summary(ctx context.Context, ownerID string) (*domain.BudgetSummary, error) {
	ctx, span := budgetTracer.Start(ctx, "BudgetService.Summary")
	defer span.End()

	active := true
	budgets, err := s.store.ListBudgets(ctx, ownerID, domain.BudgetFilter{IsActive: &active})
	if err != nil {
		return nil, err
	}

	type spend struct {
		status domain.BudgetStatus
		count  int
	}
	results := make([]spend, len(budgets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(spendFanOut)
	for i, b := range budgets {
		g.Go(func() error {
			st, count, err := s.compute(gctx, b)
			if err != nil {
				return err
			}
			results[i] = spend{status: *st, count: count}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := &domain.BudgetSummary{
		TotalBudgeted:      decimal.Zero,
		TotalSpent:         decimal.Zero,
		TotalRemaining:     decimal.Zero,
		AverageUtilization: decimal.Zero,
		BudgetCount:        len(results),
		ByCategory:         []domain.BudgetCategorySummary{},
	}
	byCategory := map[string]*domain.BudgetCategorySummary{}
	utilization := decimal.Zero
	for _, r := range results {
		st := r.status
		summary.TotalBudgeted = summary.TotalBudgeted.Add(st.Amount)
		summary.TotalSpent = summary.TotalSpent.Add(st.Spent)
		summary.TotalRemaining = summary.TotalRemaining.Add(st.Remaining)
		utilization = utilization.Add(st.PercentageUsed)
		if st.IsExceeded {
			summary.ExceededCount++
		}

		c, ok := byCategory[st.Category]
		if !ok {
			c = &domain.BudgetCategorySummary{Category: st.Category, Budgeted: decimal.Zero, Spent: decimal.Zero}
			byCategory[st.Category] = c
		}
		c.Budgeted = c.Budgeted.Add(st.Amount)
		c.Spent = c.Spent.Add(st.Spent)
		c.TransactionCount += r.count
	}
	if len(results) > 0 {
		summary.AverageUtilization = utilization.Div(decimal.NewFromInt(int64(len(results)))).Round(2)
	}
	for _, c := range byCategory {
		summary.ByCategory = append(summary.ByCategory, *c)
	}
	sort.Slice(summary.ByCategory, func(i, j int) bool {
		return summary.ByCategory[i].Category < summary.ByCategory[j].Category
	})
	return summary, nil
}

// ============================================================
// Alerts
// ============================================================

func (s *BudgetService) Alerts(ctx context.Context, ownerID string, filter domain.AlertFilter) ([]domain.BudgetAlert, error) {
	ctx, span := budgetTracer.Start(ctx, "BudgetService.Alerts")
	defer span.End()

	alerts, err := s.store.ListAlerts(ctx, ownerID, filter)
	if err != nil {
		return nil, err
	}
	if alerts == nil {
		alerts = []domain.BudgetAlert{}
	}
	return alerts, nil
}

// RefreshAlerts re-evaluates every active budget of the owner and returns
// the alerts raised by this run.
func (s *BudgetService) RefreshAlerts(ctx context.Context, ownerID string) ([]domain.BudgetAlert, error) {
	ctx, span := budgetTracer.Start(ctx, "BudgetService.RefreshAlerts")
	defer span.End()

	active := true
	budgets, err := s.store.ListBudgets(ctx, ownerID, domain.BudgetFilter{IsActive: &active})
	if err != nil {
		return nil, err
	}
	return s.checkAll(ctx, budgets)
}

// CheckCategory re-evaluates the owner's active budgets for category.
// It satisfies AlertChecker for the transaction service.
func (s *BudgetService) CheckCategory(ctx context.Context, ownerID, category string) error {
	ctx, span := budgetTracer.Start(ctx, "BudgetService.CheckCategory")
	defer span.End()
	span.SetAttributes(attribute.String("budget.category", category))

	active := true
	budgets, err := s.store.ListBudgets(ctx, ownerID, domain.BudgetFilter{Category: category, IsActive: &active})
	if err != nil {
		return err
	}
	_, err = s.checkAll(ctx, budgets)
	return err
}

func (s *BudgetService) MarkAlertRead(ctx context.Context, ownerID, budgetID, alertID string) (*domain.BudgetAlert, error) {
	ctx, span := budgetTracer.Start(ctx, "BudgetService.MarkAlertRead")
	defer span.End()

	return s.store.MarkAlert(ctx, ownerID, budgetID, alertID, false)
}

// AcknowledgeAlert marks the alert acknowledged and read.
func (s *BudgetService) AcknowledgeAlert(ctx context.Context, ownerID, budgetID, alertID string) (*domain.BudgetAlert, error) {
	ctx, span := budgetTracer.Start(ctx, "BudgetService.AcknowledgeAlert")
	defer span.End()

	return s.store.MarkAlert(ctx, ownerID, budgetID, alertID, true)
}

func (s *BudgetService) checkAll(ctx context.Context, budgets []domain.Budget) ([]domain.BudgetAlert, error) {
	raised := make([]*domain.BudgetAlert, len(budgets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(spendFanOut)
	for i, b := range budgets {
		g.Go(func() error {
			alert, err := s.checkAlert(gctx, b)
			if err != nil {
				return fmt.Errorf("check budget %s: %w", b.ID, err)
			}
			raised[i] = alert
			return nil
		})
	}
	err := g.Wait()

	out := []domain.BudgetAlert{}
	for _, a := range raised {
		if a != nil {
			out = append(out, *a)
		}
	}
	return out, err
}

// checkAlert evaluates one budget and persists the resulting alert, if any.
// Evaluation is serialized per budget, and the store's unique day bucket
// drops a duplicate that slips through anyway.
func (s *BudgetService) checkAlert(ctx context.Context, b domain.Budget) (*domain.BudgetAlert, error) {
	if !b.IsActive || !b.AlertEnabled {
		return nil, nil
	}

	lease, err := s.locker.Obtain(ctx, "budget-alert:"+b.ID, alertLockTTL)
	if err != nil {
		return nil, fmt.Errorf("lock budget: %w", err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("failed to release budget lock", zap.String("budget_id", b.ID), zap.Error(err))
		}
	}()

	status, _, err := s.compute(ctx, b)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	recent, err := s.store.RecentAlertTypes(ctx, b.ID, now.Add(-s.dedupWindow))
	if err != nil {
		return nil, fmt.Errorf("recent alerts: %w", err)
	}

	decision := alerting.Evaluate(b, status.Spent, recent)
	if decision == nil {
		return nil, nil
	}

	alert := &domain.BudgetAlert{
		BudgetID:       b.ID,
		OwnerID:        b.OwnerID,
		AlertType:      decision.AlertType,
		Severity:       decision.Severity,
		Message:        decision.Message,
		BudgetAmount:   decision.BudgetAmount,
		SpentAmount:    decision.SpentAmount,
		PercentageUsed: decision.PercentageUsed,
		DayBucket:      now.Format(domain.DateLayout),
		CreatedAt:      now,
	}
	created, err := s.store.CreateAlert(ctx, alert)
	if err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}
	if !created {
		return nil, nil
	}

	if s.metrics != nil {
		s.metrics.IncrAlert(string(alert.AlertType), string(alert.Severity))
	}
	s.events.publish(ctx, events.BudgetAlertRaised, alert)
	s.logger.Info("budget alert raised",
		zap.String("budget_id", b.ID),
		zap.String("alert_type", string(alert.AlertType)),
		zap.String("severity", string(alert.Severity)),
	)
	return alert, nil
}

// ============================================================
// Derived fields
// ============================================================

func (s *BudgetService) statuses(ctx context.Context, budgets []domain.Budget) ([]domain.BudgetStatus, error) {
	out := make([]domain.BudgetStatus, len(budgets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(spendFanOut)
	for i, b := range budgets {
		g.Go(func() error {
			st, _, err := s.compute(gctx, b)
			if err != nil {
				return err
			}
			out[i] = *st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BudgetService) status(ctx context.Context, b domain.Budget) (*domain.BudgetStatus, error) {
	st, _, err := s.compute(ctx, b)
	return st, err
}

// compute sums the category's expenses over [start_date, effective_end_date].
func (s *BudgetService) compute(ctx context.Context, b domain.Budget) (*domain.BudgetStatus, int, error) {
	end, err := b.EffectiveEndDate()
	if err != nil {
		return nil, 0, err
	}
	spent, count, err := s.txns.SumExpenses(ctx, b.OwnerID, b.Category, b.StartDate, end)
	if err != nil {
		return nil, 0, fmt.Errorf("sum expenses: %w", err)
	}
	if spent.IsNegative() {
		spent = decimal.Zero
	}
	remaining := b.Amount.Sub(spent)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return &domain.BudgetStatus{
		Budget:           b,
		EffectiveEndDate: end,
		Spent:            spent,
		Remaining:        remaining,
		PercentageUsed:   alerting.PercentageUsed(spent, b.Amount),
		IsExceeded:       spent.GreaterThan(b.Amount),
	}, count, nil
}

func validateBudget(b *domain.Budget) error {
	if b.Category == "" {
		return &domain.ErrValidation{Field: "category", Message: "is required"}
	}
	if !b.Amount.IsPositive() {
		return &domain.ErrValidation{Field: "amount", Message: "must be greater than 0"}
	}
	if !b.Period.Valid() {
		return &domain.ErrValidation{Field: "period", Message: "must be one of weekly, monthly, quarterly, yearly, custom"}
	}
	if b.AlertThreshold < 0 || b.AlertThreshold > 100 {
		return &domain.ErrValidation{Field: "alert_threshold", Message: "must be between 0 and 100"}
	}
	if b.EndDate != nil && !b.EndDate.After(b.StartDate) {
		return &domain.ErrValidation{Field: "end_date", Message: "must be after start date"}
	}
	return nil
}
