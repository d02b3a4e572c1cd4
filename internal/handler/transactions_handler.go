package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/boddenberg/vantage-api/internal/domain"
	"github.com/boddenberg/vantage-api/internal/infra/export"
	"github.com/boddenberg/vantage-api/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Transactions: /api/v1/transactions
// ============================================================

func transactionFilter(r *http.Request) (domain.TransactionFilter, error) {
	f := domain.TransactionFilter{
		Kind:     queryKind(r),
		Category: r.URL.Query().Get("category"),
		Search:   strings.TrimSpace(r.URL.Query().Get("search")),
	}
	var err error
	if f.StartDate, err = queryDate(r, "start_date"); err != nil {
		return f, err
	}
	if f.EndDate, err = queryDate(r, "end_date"); err != nil {
		return f, err
	}
	if f.MinAmount, err = queryDecimal(r, "min_amount"); err != nil {
		return f, err
	}
	if f.MaxAmount, err = queryDecimal(r, "max_amount"); err != nil {
		return f, err
	}
	f.Page, f.PageSize = parsePagination(r)
	return f, nil
}

func listTransactionsHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/v1/transactions")
		defer span.End()

		filter, err := transactionFilter(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		page, err := svc.List(ctx, ownerID(r), filter)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int("transactions.total", page.Total))

		writeSuccess(w, http.StatusOK, "Transactions retrieved", page)
	}
}

func getTransactionHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/v1/transactions/{id}")
		defer span.End()

		txn, err := svc.Get(ctx, ownerID(r), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusOK, "Transaction retrieved", txn)
	}
}

func createTransactionHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/v1/transactions")
		defer span.End()

		var in domain.TransactionInput
		if !decodeBody(w, r, "transaction", &in) {
			return
		}

		txn, err := svc.Create(ctx, ownerID(r), in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusCreated, "Transaction created successfully", txn)
	}
}

func updateTransactionHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /api/v1/transactions/{id}")
		defer span.End()

		var in domain.TransactionInput
		if !decodeBody(w, r, "transaction", &in) {
			return
		}

		txn, err := svc.Update(ctx, ownerID(r), chi.URLParam(r, "id"), in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusOK, "Transaction updated successfully", txn)
	}
}

func deleteTransactionHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /api/v1/transactions/{id}")
		defer span.End()

		if err := svc.Delete(ctx, ownerID(r), chi.URLParam(r, "id")); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusOK, "Transaction deleted successfully", nil)
	}
}

func transactionsSummaryHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/v1/transactions/summary")
		defer span.End()

		summary, err := svc.Summary(ctx, ownerID(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusOK, "Summary retrieved", summary)
	}
}

// exportTransactionsHandler renders the filtered transactions as a workbook.
// The file is buffered so a rendering error can still produce a JSON error.
func exportTransactionsHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/v1/transactions/export")
		defer span.End()

		filter, err := transactionFilter(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		var buf bytes.Buffer
		if err := svc.Export(ctx, ownerID(r), filter, &buf); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		filename := fmt.Sprintf("transactions-%s.xlsx", time.Now().UTC().Format(domain.DateLayout))
		w.Header().Set("Content-Type", export.ContentTypeXLSX)
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.WriteHeader(http.StatusOK)
		if _, err := buf.WriteTo(w); err != nil {
			logger.Warn("export: client write failed", zap.Error(err))
		}
	}
}
