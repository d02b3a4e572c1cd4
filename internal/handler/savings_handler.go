package handler

import (
	"net/http"

	"github.com/boddenberg/vantage-api/internal/domain"
	"github.com/boddenberg/vantage-api/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Savings goals: /api/v1/savings_goals
// ============================================================

func listGoalsHandler(svc *service.SavingsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/v1/savings_goals")
		defer span.End()

		goals, err := svc.List(ctx, ownerID(r), domain.GoalStatus(r.URL.Query().Get("status")))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusOK, "Savings goals retrieved", goals)
	}
}

func getGoalHandler(svc *service.SavingsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/v1/savings_goals/{id}")
		defer span.End()

		g, err := svc.Get(ctx, ownerID(r), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusOK, "Savings goal retrieved", g)
	}
}

func createGoalHandler(svc *service.SavingsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/v1/savings_goals")
		defer span.End()

		var in domain.SavingsGoalInput
		if !decodeBody(w, r, "savings_goal", &in) {
			return
		}

		g, err := svc.Create(ctx, ownerID(r), in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusCreated, "Savings goal created successfully", g)
	}
}

func updateGoalHandler(svc *service.SavingsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /api/v1/savings_goals/{id}")
		defer span.End()

		var in domain.SavingsGoalInput
		if !decodeBody(w, r, "savings_goal", &in) {
			return
		}

		g, err := svc.Update(ctx, ownerID(r), chi.URLParam(r, "id"), in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusOK, "Savings goal updated successfully", g)
	}
}

func deleteGoalHandler(svc *service.SavingsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /api/v1/savings_goals/{id}")
		defer span.End()

		if err := svc.Delete(ctx, ownerID(r), chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusOK, "Savings goal deleted successfully", nil)
	}
}

func addAmountHandler(svc *service.SavingsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /api/v1/savings_goals/{id}/add_amount")
		defer span.End()

		var in domain.AddAmountInput
		if !decodeBody(w, r, "savings_goal", &in) {
			return
		}

		g, err := svc.AddAmount(ctx, ownerID(r), chi.URLParam(r, "id"), in.Amount)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusOK, "Amount added to savings goal", g)
	}
}

func goalsSummaryHandler(svc *service.SavingsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/v1/savings_goals/summary")
		defer span.End()

		summary, err := svc.Summary(ctx, ownerID(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusOK, "Savings summary retrieved", summary)
	}
}
