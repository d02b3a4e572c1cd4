package handler

import (
	"net/http"

	"github.com/boddenberg/vantage-api/internal/domain"
	"github.com/boddenberg/vantage-api/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Budgets: /api/v1/budgets
// ============================================================

func listBudgetsHandler(svc *service.BudgetService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/v1/budgets")
		defer span.End()

		active, err := queryBool(r, "is_active")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		filter := domain.BudgetFilter{
			Category: r.URL.Query().Get("category"),
			Period:   domain.BudgetPeriod(r.URL.Query().Get("period")),
			IsActive: active,
		}

		budgets, err := svc.List(ctx, ownerID(r), filter)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusOK, "Budgets retrieved", budgets)
	}
}

func getBudgetHandler(svc *service.BudgetService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/v1/budgets/{id}")
		defer span.End()

		b, err := svc.Get(ctx, ownerID(r), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusOK, "Budget retrieved", b)
	}
}

func createBudgetHandler(svc *service.BudgetService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/v1/budgets")
		defer span.End()

		var in domain.BudgetInput
		if !decodeBody(w, r, "budget", &in) {
			return
		}

		b, err := svc.Create(ctx, ownerID(r), in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusCreated, "Budget created successfully", b)
	}
}

func updateBudgetHandler(svc *service.BudgetService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /api/v1/budgets/{id}")
		defer span.End()

		var in domain.BudgetInput
		if !decodeBody(w, r, "budget", &in) {
			return
		}

		b, err := svc.Update(ctx, ownerID(r), chi.URLParam(r, "id"), in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusOK, "Budget updated successfully", b)
	}
}

func deleteBudgetHandler(svc *service.BudgetService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /api/v1/budgets/{id}")
		defer span.End()

		if err := svc.Delete(ctx, ownerID(r), chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusOK, "Budget deleted successfully", nil)
	}
}

func budgetsSummaryHandler(svc *service.BudgetService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/v1/budgets/summary")
		defer span.End()

		summary, err := svc.Summary(ctx, ownerID(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusOK, "Budget summary retrieved", summary)
	}
}

// ============================================================
// Alerts
// ============================================================

// listAlertsHandler returns unread alerts unless all=true.
func listAlertsHandler(svc *service.BudgetService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/v1/budgets/alerts")
		defer span.End()

		all, err := queryBool(r, "all")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		severity := domain.Severity(r.URL.Query().Get("severity"))
		if severity != "" && !severity.Valid() {
			handleServiceError(w, &domain.ErrValidation{Field: "severity", Message: "must be one of info, warning, error"}, logger)
			return
		}

		alerts, err := svc.Alerts(ctx, ownerID(r), domain.AlertFilter{
			UnreadOnly: all == nil || !*all,
			Severity:   severity,
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int("alerts.count", len(alerts)))

		writeSuccess(w, http.StatusOK, "Alerts retrieved", alerts)
	}
}

func refreshAlertsHandler(svc *service.BudgetService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/v1/budgets/refresh")
		defer span.End()

		alerts, err := svc.RefreshAlerts(ctx, ownerID(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusOK, "Budget alerts refreshed", alerts)
	}
}

func markAlertReadHandler(svc *service.BudgetService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /api/v1/budgets/{id}/alerts/{alertId}/read")
		defer span.End()

		alert, err := svc.MarkAlertRead(ctx, ownerID(r), chi.URLParam(r, "id"), chi.URLParam(r, "alertId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusOK, "Alert marked as read", alert)
	}
}

func acknowledgeAlertHandler(svc *service.BudgetService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /api/v1/budgets/{id}/alerts/{alertId}/acknowledge")
		defer span.End()

		alert, err := svc.AcknowledgeAlert(ctx, ownerID(r), chi.URLParam(r, "id"), chi.URLParam(r, "alertId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusOK, "Alert acknowledged", alert)
	}
}
