package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/vantage-api/internal/domain"
	"github.com/boddenberg/vantage-api/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var savingsTracer = otel.Tracer("service/savings")

const goalLockTTL = 5 * time.Second

// SavingsService manages savings goals.
type SavingsService struct {
	store  port.SavingsGoalStore
	locker port.Locker
	logger *zap.Logger
	now    Clock
}

// NewSavingsService creates a new SavingsService.
func NewSavingsService(store port.SavingsGoalStore, locker port.Locker, logger *zap.Logger, now Clock) *SavingsService {
	return &SavingsService{store: store, locker: locker, logger: logger, now: now}
}

func (s *SavingsService) List(ctx context.Context, ownerID string, status domain.GoalStatus) ([]domain.SavingsGoalView, error) {
	ctx, span := savingsTracer.Start(ctx, "SavingsService.List")
	defer span.End()

	if status != "" && !status.Valid() {
		return nil, &domain.ErrValidation{Field: "status", Message: "must be one of active, completed, paused"}
	}
	goals, err := s.store.ListGoals(ctx, ownerID, status)
	if err != nil {
		return nil, err
	}
	today := todayFrom(s.now)
	out := make([]domain.SavingsGoalView, 0, len(goals))
	for _, g := range goals {
		out = append(out, domain.ViewOf(g, today))
	}
	return out, nil
}

func (s *SavingsService) Get(ctx context.Context, ownerID, id string) (*domain.SavingsGoalView, error) {
	ctx, span := savingsTracer.Start(ctx, "SavingsService.Get")
	defer span.End()

	g, err := s.store.GetGoal(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	return s.view(*g), nil
}

func (s *SavingsService) Create(ctx context.Context, ownerID string, in domain.SavingsGoalInput) (*domain.SavingsGoalView, error) {
	ctx, span := savingsTracer.Start(ctx, "SavingsService.Create")
	defer span.End()

	g := &domain.SavingsGoal{
		OwnerID:       ownerID,
		Name:          strings.TrimSpace(in.Name),
		TargetAmount:  in.TargetAmount,
		CurrentAmount: in.CurrentAmount,
		Deadline:      in.Deadline,
		Status:        domain.GoalStatus(in.Status),
		Description:   in.Description,
	}
	if err := validateGoal(g); err != nil {
		return nil, err
	}
	g.Normalize()

	if err := s.store.CreateGoal(ctx, g); err != nil {
		return nil, err
	}
	s.logger.Info("savings goal created", zap.String("owner_id", ownerID), zap.String("goal_id", g.ID))
	return s.view(*g), nil
}

func (s *SavingsService) Update(ctx context.Context, ownerID, id string, in domain.SavingsGoalInput) (*domain.SavingsGoalView, error) {
	ctx, span := savingsTracer.Start(ctx, "SavingsService.Update")
	defer span.End()

	var out *domain.SavingsGoalView
	err := s.withGoalLock(ctx, id, func() error {
		g, err := s.store.GetGoal(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if n := strings.TrimSpace(in.Name); n != "" {
			g.Name = n
		}
		if !in.TargetAmount.IsZero() {
			g.TargetAmount = in.TargetAmount
		}
		if !in.CurrentAmount.IsZero() {
			g.CurrentAmount = in.CurrentAmount
		}
		if in.Deadline != nil {
			g.Deadline = in.Deadline
			if in.Deadline.IsZero() {
				g.Deadline = nil
			}
		}
		if in.Status != "" {
			g.Status = domain.GoalStatus(in.Status)
		}
		if in.Description != "" {
			g.Description = in.Description
		}
		if err := validateGoal(g); err != nil {
			return err
		}
		g.Normalize()

		if err := s.store.UpdateGoal(ctx, g); err != nil {
			return err
		}
		out = s.view(*g)
		return nil
	})
	return out, err
}

func (s *SavingsService) Delete(ctx context.Context, ownerID, id string) error {
	ctx, span := savingsTracer.Start(ctx, "SavingsService.Delete")
	defer span.End()

	return s.store.DeleteGoal(ctx, ownerID, id)
}

// AddAmount credits amount to the goal under the goal's lock so concurrent
// deposits are not lost.
func (s *SavingsService) AddAmount(ctx context.Context, ownerID, id string, amount decimal.Decimal) (*domain.SavingsGoalView, error) {
	ctx, span := savingsTracer.Start(ctx, "SavingsService.AddAmount")
	defer span.End()

	if !amount.IsPositive() {
		return nil, &domain.ErrValidation{Field: "amount", Message: "must be greater than 0"}
	}

	var out *domain.SavingsGoalView
	err := s.withGoalLock(ctx, id, func() error {
		g, err := s.store.GetGoal(ctx, ownerID, id)
		if err != nil {
			return err
		}
		wasCompleted := g.Status == domain.GoalCompleted
		if err := g.AddAmount(amount); err != nil {
			return err
		}
		if err := s.store.UpdateGoal(ctx, g); err != nil {
			return err
		}
		if !wasCompleted && g.Status == domain.GoalCompleted {
			s.logger.Info("savings goal completed", zap.String("goal_id", g.ID))
		}
		out = s.view(*g)
		return nil
	})
	return out, err
}

// Summary aggregates all of the owner's goals.
func (s *SavingsService) Summary(ctx context.Context, ownerID string) (*domain.SavingsSummary, error) {
	ctx, span := savingsTracer.Start(ctx, "SavingsService.Summary")
	defer span.End()

	goals, err := s.store.ListGoals(ctx, ownerID, "")
	if err != nil {
		return nil, err
	}

	sum := &domain.SavingsSummary{
		TotalTarget:     decimal.Zero,
		TotalSaved:      decimal.Zero,
		TotalRemaining:  decimal.Zero,
		OverallProgress: decimal.Zero,
		GoalsCount:      len(goals),
	}
	for _, g := range goals {
		sum.TotalTarget = sum.TotalTarget.Add(g.TargetAmount)
		sum.TotalSaved = sum.TotalSaved.Add(g.CurrentAmount)
		sum.TotalRemaining = sum.TotalRemaining.Add(g.RemainingAmount())
		switch g.Status {
		case domain.GoalActive:
			sum.ActiveCount++
		case domain.GoalCompleted:
			sum.CompletedCount++
		}
	}
	if sum.TotalTarget.IsPositive() {
		sum.OverallProgress = sum.TotalSaved.Div(sum.TotalTarget).Mul(decimal.NewFromInt(100)).Round(2)
	}
	return sum, nil
}

func (s *SavingsService) withGoalLock(ctx context.Context, id string, fn func() error) error {
	lease, err := s.locker.Obtain(ctx, "savings-goal:"+id, goalLockTTL)
	if err != nil {
		return fmt.Errorf("lock savings goal: %w", err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("failed to release savings goal lock", zap.String("goal_id", id), zap.Error(err))
		}
	}()
	return fn()
}

func (s *SavingsService) view(g domain.SavingsGoal) *domain.SavingsGoalView {
	v := domain.ViewOf(g, todayFrom(s.now))
	return &v
}

func validateGoal(g *domain.SavingsGoal) error {
	if g.Name == "" {
		return &domain.ErrValidation{Field: "name", Message: "is required"}
	}
	if !g.TargetAmount.IsPositive() {
		return &domain.ErrValidation{Field: "target_amount", Message: "must be greater than 0"}
	}
	if g.CurrentAmount.IsNegative() {
		return &domain.ErrValidation{Field: "current_amount", Message: "cannot be negative"}
	}
	if g.Status != "" && !g.Status.Valid() {
		return &domain.ErrValidation{Field: "status", Message: "must be one of active, completed, paused"}
	}
	return nil
}
