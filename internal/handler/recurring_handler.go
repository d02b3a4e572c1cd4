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
// Recurring transactions: /api/v1/recurring_transactions
// ============================================================

func listRecurringHandler(svc *service.RecurringService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/v1/recurring_transactions")
		defer span.End()

		active, err := queryBool(r, "is_active")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		rows, err := svc.List(ctx, ownerID(r), domain.RecurringFilter{IsActive: active, Kind: queryKind(r)})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusOK, "Recurring transactions retrieved", rows)
	}
}

func upcomingRecurringHandler(svc *service.RecurringService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/v1/recurring_transactions/upcoming")
		defer span.End()

		days, err := queryInt(r, "days")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		rows, err := svc.Upcoming(ctx, ownerID(r), days)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusOK, "Upcoming recurring transactions retrieved", rows)
	}
}

func getRecurringHandler(svc *service.RecurringService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/v1/recurring_transactions/{id}")
		defer span.End()

		tpl, err := svc.Get(ctx, ownerID(r), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusOK, "Recurring transaction retrieved", tpl)
	}
}

func createRecurringHandler(svc *service.RecurringService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/v1/recurring_transactions")
		defer span.End()

		var in domain.RecurringInput
		if !decodeBody(w, r, "recurring_transaction", &in) {
			return
		}

		tpl, err := svc.Create(ctx, ownerID(r), in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusCreated, "Recurring transaction created successfully", tpl)
	}
}

func updateRecurringHandler(svc *service.RecurringService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /api/v1/recurring_transactions/{id}")
		defer span.End()

		var in domain.RecurringInput
		if !decodeBody(w, r, "recurring_transaction", &in) {
			return
		}

		tpl, err := svc.Update(ctx, ownerID(r), chi.URLParam(r, "id"), in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusOK, "Recurring transaction updated successfully", tpl)
	}
}

func deleteRecurringHandler(svc *service.RecurringService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /api/v1/recurring_transactions/{id}")
		defer span.End()

		if err := svc.Delete(ctx, ownerID(r), chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusOK, "Recurring transaction deleted successfully", nil)
	}
}

func toggleRecurringHandler(svc *service.RecurringService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /api/v1/recurring_transactions/{id}/toggle")
		defer span.End()

		tpl, err := svc.Toggle(ctx, ownerID(r), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		msg := "Recurring transaction paused"
		if tpl.IsActive {
			msg = "Recurring transaction activated"
		}
		writeSuccess(w, http.StatusOK, msg, tpl)
	}
}

func processDueHandler(svc *service.RecurringService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/v1/recurring_transactions/process_due")
		defer span.End()

		result, err := svc.ProcessDue(ctx, ownerID(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(
			attribute.Int("recurring.processed", len(result.Processed)),
			attribute.Int("recurring.errors", len(result.Errors)),
		)

		writeSuccess(w, http.StatusOK, "Due recurring transactions processed", result)
	}
}
