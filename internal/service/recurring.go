package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/vantage-api/internal/domain"
	"github.com/boddenberg/vantage-api/internal/infra/events"
	"github.com/boddenberg/vantage-api/internal/infra/lock"
	"github.com/boddenberg/vantage-api/internal/infra/observability"
	"github.com/boddenberg/vantage-api/internal/port"
	"github.com/boddenberg/vantage-api/internal/recurrence"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var recurringTracer = otel.Tracer("service/recurring")

const (
	defaultUpcomingDays = 30
	workerLockKey       = "recurring-worker"
	batchFanOut         = 4
)

// TransactionObserver is told about transactions created outside the
// transaction service.
type TransactionObserver interface {
	Recorded(ctx context.Context, txn *domain.Transaction)
}

// RecurringService manages recurring templates and fires them when due.
type RecurringService struct {
	store    port.RecurringStore
	observer TransactionObserver
	locker   port.Locker
	events   publisher
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      Clock
}

// NewRecurringService creates a new RecurringService. observer may be nil.
func NewRecurringService(
	store port.RecurringStore,
	observer TransactionObserver,
	locker port.Locker,
	eventPub port.EventPublisher,
	metrics *observability.Metrics,
	logger *zap.Logger,
	now Clock,
) *RecurringService {
	return &RecurringService{
		store:    store,
		observer: observer,
		locker:   locker,
		events:   publisher{events: eventPub, metrics: metrics, logger: logger},
		metrics:  metrics,
		logger:   logger,
		now:      now,
	}
}

// ============================================================
// CRUD
// ============================================================

func (s *RecurringService) List(ctx context.Context, ownerID string, filter domain.RecurringFilter) ([]domain.RecurringTransaction, error) {
	ctx, span := recurringTracer.Start(ctx, "RecurringService.List")
	defer span.End()

	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, &domain.ErrValidation{Field: "type", Message: "must be income or expense"}
	}
	rows, err := s.store.ListRecurring(ctx, ownerID, filter)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []domain.RecurringTransaction{}
	}
	return rows, nil
}

func (s *RecurringService) Get(ctx context.Context, ownerID, id string) (*domain.RecurringTransaction, error) {
	ctx, span := recurringTracer.Start(ctx, "RecurringService.Get")
	defer span.End()

	return s.store.GetRecurring(ctx, ownerID, id)
}

func (s *RecurringService) Create(ctx context.Context, ownerID string, in domain.RecurringInput) (*domain.RecurringTransaction, error) {
	ctx, span := recurringTracer.Start(ctx, "RecurringService.Create")
	defer span.End()

	tpl := &domain.RecurringTransaction{
		OwnerID:        ownerID,
		Kind:           domain.TransactionKind(in.Kind),
		Amount:         in.Amount,
		Category:       strings.TrimSpace(in.Category),
		Description:    in.Description,
		Frequency:      domain.Frequency(in.Frequency),
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		NextOccurrence: in.NextOccurrence,
		IsActive:       true,
		Config:         in.Config,
	}
	if tpl.StartDate.IsZero() {
		tpl.StartDate = todayFrom(s.now)
	}
	if tpl.NextOccurrence.IsZero() {
		tpl.NextOccurrence = tpl.StartDate
	}
	if in.IsActive != nil {
		tpl.IsActive = *in.IsActive
	}
	if tpl.Config == nil {
		tpl.Config = map[string]any{}
	}
	if err := validateRecurring(tpl); err != nil {
		return nil, err
	}

	if err := s.store.CreateRecurring(ctx, tpl); err != nil {
		return nil, err
	}
	s.logger.Info("recurring transaction created",
		zap.String("owner_id", ownerID),
		zap.String("recurring_id", tpl.ID),
		zap.String("frequency", string(tpl.Frequency)),
	)
	return tpl, nil
}

func (s *RecurringService) Update(ctx context.Context, ownerID, id string, in domain.RecurringInput) (*domain.RecurringTransaction, error) {
	ctx, span := recurringTracer.Start(ctx, "RecurringService.Update")
	defer span.End()

	tpl, err := s.store.GetRecurring(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if in.Kind != "" {
		tpl.Kind = domain.TransactionKind(in.Kind)
	}
	if !in.Amount.IsZero() {
		tpl.Amount = in.Amount
	}
	if c := strings.TrimSpace(in.Category); c != "" {
		tpl.Category = c
	}
	if in.Description != "" {
		tpl.Description = in.Description
	}
	if in.Frequency != "" {
		tpl.Frequency = domain.Frequency(in.Frequency)
	}
	if !in.StartDate.IsZero() {
		tpl.StartDate = in.StartDate
	}
	if in.EndDate != nil {
		tpl.EndDate = in.EndDate
		if in.EndDate.IsZero() {
			tpl.EndDate = nil
		}
	}
	if !in.NextOccurrence.IsZero() {
		tpl.NextOccurrence = in.NextOccurrence
	}
	if in.IsActive != nil {
		tpl.IsActive = *in.IsActive
	}
	if in.Config != nil {
		tpl.Config = in.Config
	}
	if err := validateRecurring(tpl); err != nil {
		return nil, err
	}

	if err := s.store.UpdateRecurring(ctx, tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

func (s *RecurringService) Delete(ctx context.Context, ownerID, id string) error {
	ctx, span := recurringTracer.Start(ctx, "RecurringService.Delete")
	defer span.End()

	return s.store.DeleteRecurring(ctx, ownerID, id)
}

// Toggle flips is_active. The schedule is left untouched.
func (s *RecurringService) Toggle(ctx context.Context, ownerID, id string) (*domain.RecurringTransaction, error) {
	ctx, span := recurringTracer.Start(ctx, "RecurringService.Toggle")
	defer span.End()

	tpl, err := s.store.GetRecurring(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	tpl.IsActive = !tpl.IsActive
	if err := s.store.UpdateRecurring(ctx, tpl); err != nil {
		return nil, err
	}
	s.logger.Info("recurring transaction toggled",
		zap.String("recurring_id", id),
		zap.Bool("is_active", tpl.IsActive),
	)
	return tpl, nil
}

// Upcoming lists active templates whose next occurrence falls within the
// next days days, with every occurrence in that window.
func (s *RecurringService) Upcoming(ctx context.Context, ownerID string, days int) ([]domain.UpcomingRecurring, error) {
	ctx, span := recurringTracer.Start(ctx, "RecurringService.Upcoming")
	defer span.End()

	if days <= 0 {
		days = defaultUpcomingDays
	}
	if days > 366 {
		return nil, &domain.ErrValidation{Field: "days", Message: "must be at most 366"}
	}

	active := true
	rows, err := s.store.ListRecurring(ctx, ownerID, domain.RecurringFilter{IsActive: &active})
	if err != nil {
		return nil, err
	}

	from := todayFrom(s.now)
	to := from.AddDays(days)
	out := []domain.UpcomingRecurring{}
	for _, tpl := range rows {
		if tpl.NextOccurrence.Before(from) || tpl.NextOccurrence.After(to) {
			continue
		}
		dates, err := recurrence.Upcoming(tpl, from, to)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.UpcomingRecurring{RecurringTransaction: tpl, Occurrences: dates})
	}
	return out, nil
}

// ============================================================
// Firing
// ============================================================

// ProcessDue fires every due template of one owner.
func (s *RecurringService) ProcessDue(ctx context.Context, ownerID string) (*domain.BatchResult, error) {
	ctx, span := recurringTracer.Start(ctx, "RecurringService.ProcessDue")
	defer span.End()

	return s.processDue(ctx, ownerID, todayFrom(s.now))
}

// ProcessAllDue fires due templates across all owners. Only one process
// runs a batch at a time; when another holds the run lock it returns
// ok=false and does nothing.
func (s *RecurringService) ProcessAllDue(ctx context.Context, lockTTL time.Duration) (result *domain.BatchResult, ok bool, err error) {
	ctx, span := recurringTracer.Start(ctx, "RecurringService.ProcessAllDue")
	defer span.End()

	lease, err := s.locker.Obtain(ctx, workerLockKey, lockTTL)
	if errors.Is(err, lock.ErrNotObtained) {
		s.logger.Info("recurring batch skipped: another worker holds the lock")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("obtain worker lock: %w", err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("failed to release worker lock", zap.Error(err))
		}
	}()

	result, err = s.processDue(ctx, "", todayFrom(s.now))
	return result, err == nil, err
}

func (s *RecurringService) processDue(ctx context.Context, ownerID string, today domain.Date) (*domain.BatchResult, error) {
	start := time.Now()
	due, err := s.store.ListDueRecurring(ctx, ownerID, today)
	if err != nil {
		return nil, fmt.Errorf("list due recurring: %w", err)
	}

	result := &domain.BatchResult{
		Processed: []domain.FiredTransaction{},
		Errors:    []domain.FireFailure{},
	}
	var mu sync.Mutex

	// Failures are collected per template; the group itself never errors.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchFanOut)
	for _, tpl := range due {
		g.Go(func() error {
			fired, err := s.fire(gctx, tpl, today)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, domain.FireFailure{RecurringID: tpl.ID, Error: err.Error()})
				return nil
			}
			result.Processed = append(result.Processed, *fired)
			return nil
		})
	}
	_ = g.Wait()

	if s.metrics != nil {
		s.metrics.ObserveBatch(time.Since(start))
	}
	s.logger.Info("recurring batch finished",
		zap.String("owner_id", ownerID),
		zap.String("today", today.String()),
		zap.Int("due", len(due)),
		zap.Int("processed", len(result.Processed)),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// fire materializes one transaction and advances the template in a single
// store transaction guarded by the template's current next_occurrence.
func (s *RecurringService) fire(ctx context.Context, tpl domain.RecurringTransaction, today domain.Date) (*domain.FiredTransaction, error) {
	ctx, span := recurringTracer.Start(ctx, "RecurringService.fire")
	defer span.End()
	span.SetAttributes(attribute.String("recurring.id", tpl.ID))

	draft, projection, err := recurrence.Fire(tpl, today)
	if err != nil {
		s.record(observability.OutcomeFailed)
		return nil, err
	}

	expected := tpl.NextOccurrence
	updated := tpl
	recurrence.Apply(&updated, projection)

	txn := &domain.Transaction{
		OwnerID:     tpl.OwnerID,
		Kind:        draft.Kind,
		Amount:      draft.Amount,
		Category:    draft.Category,
		Description: draft.Description,
		OccurredOn:  draft.OccurredOn,
		Metadata:    draft.Metadata,
	}
	if err := s.store.ApplyFiring(ctx, &updated, expected, txn); err != nil {
		var conflict *domain.ErrConflict
		if errors.As(err, &conflict) {
			s.record(observability.OutcomeConflict)
		} else {
			s.record(observability.OutcomeFailed)
		}
		s.logger.Warn("recurring firing failed",
			zap.String("recurring_id", tpl.ID),
			zap.Error(err),
		)
		return nil, err
	}

	if projection.Deactivated {
		s.record(observability.OutcomeDeactivated)
	} else {
		s.record(observability.OutcomeFired)
	}

	if s.observer != nil {
		s.observer.Recorded(ctx, txn)
	}
	fired := &domain.FiredTransaction{
		RecurringID:    tpl.ID,
		Transaction:    *txn,
		NextOccurrence: updated.NextOccurrence,
		Deactivated:    projection.Deactivated,
	}
	s.events.publish(ctx, events.RecurringFired, fired)
	return fired, nil
}

func (s *RecurringService) record(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrRecurring(outcome)
	}
}

func validateRecurring(tpl *domain.RecurringTransaction) error {
	if !tpl.Kind.Valid() {
		return &domain.ErrValidation{Field: "type", Message: "must be income or expense"}
	}
	if !tpl.Amount.IsPositive() {
		return &domain.ErrValidation{Field: "amount", Message: "must be greater than 0"}
	}
	if tpl.Category == "" {
		return &domain.ErrValidation{Field: "category", Message: "is required"}
	}
	if !tpl.Frequency.Valid() {
		return &domain.ErrValidation{Field: "frequency", Message: "must be one of daily, weekly, monthly, yearly"}
	}
	if tpl.EndDate != nil && !tpl.EndDate.After(tpl.StartDate) {
		return &domain.ErrValidation{Field: "end_date", Message: "must be after start date"}
	}
	if tpl.NextOccurrence.Before(tpl.StartDate) {
		return &domain.ErrValidation{Field: "next_occurrence", Message: "cannot be before start date"}
	}
	return nil
}
