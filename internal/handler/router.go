package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/vantage-api/internal/domain"
	"github.com/boddenberg/vantage-api/internal/infra/observability"
	"github.com/boddenberg/vantage-api/internal/port"
	"github.com/boddenberg/vantage-api/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

const (
	serviceName = "vantage-api"
	// Version is reported by / and /healthz.
	Version = "1.0.0"
)

// Services bundles everything the router dispatches to. A nil Auth disables
// the /api/v1 tree; a nil DB reports the database as unknown.
type Services struct {
	Auth         *service.AuthService
	Transactions *service.TransactionService
	Budgets      *service.BudgetService
	Recurring    *service.RecurringService
	Savings      *service.SavingsService
	DB           port.HealthChecker
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc Services, allowedOrigins []string, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger, metrics))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// --- Operational endpoints ---
	r.Get("/", rootHandler())
	r.Get("/healthz", healthzHandler(svc.DB, logger))
	r.Get("/readyz", readyzHandler(svc.DB))
	if metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	// --- API v1 ---
	r.Route("/api/v1", func(r chi.Router) {
		if svc.Auth == nil {
			r.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusServiceUnavailable, "api unavailable: auth service not configured")
			}))
			return
		}
		auth := JWTAuthMiddleware(svc.Auth, logger)

		// =============================================
		// Authentication
		// =============================================
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authRegisterHandler(svc.Auth, logger))
			r.Post("/login", authLoginHandler(svc.Auth, logger))
			r.Post("/refresh", authRefreshHandler(svc.Auth, logger))
			r.Post("/forgot_password", authForgotPasswordHandler(svc.Auth, logger))
			r.Put("/reset_password", authResetPasswordHandler(svc.Auth, logger))

			r.Group(func(r chi.Router) {
				r.Use(auth)
				r.Delete("/logout", authLogoutHandler(svc.Auth, logger))
				r.Get("/profile", authProfileHandler(svc.Auth, logger))
				r.Put("/profile", authUpdateProfileHandler(svc.Auth, logger))
				r.Put("/change_password", authChangePasswordHandler(svc.Auth, logger))
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(auth)

			// =============================================
			// Transactions
			// =============================================
			if svc.Transactions != nil {
				r.Route("/transactions", func(r chi.Router) {
					r.Get("/", listTransactionsHandler(svc.Transactions, logger))
					r.Post("/", createTransactionHandler(svc.Transactions, logger))
					r.Get("/summary", transactionsSummaryHandler(svc.Transactions, logger))
					r.Get("/export", exportTransactionsHandler(svc.Transactions, logger))
					r.Get("/{id}", getTransactionHandler(svc.Transactions, logger))
					r.Put("/{id}", updateTransactionHandler(svc.Transactions, logger))
					r.Patch("/{id}", updateTransactionHandler(svc.Transactions, logger))
					r.Delete("/{id}", deleteTransactionHandler(svc.Transactions, logger))
				})
			}

			// =============================================
			// Budgets & alerts
			// =============================================
			if svc.Budgets != nil {
				r.Route("/budgets", func(r chi.Router) {
					r.Get("/", listBudgetsHandler(svc.Budgets, logger))
					r.Post("/", createBudgetHandler(svc.Budgets, logger))
					r.Get("/summary", budgetsSummaryHandler(svc.Budgets, logger))
					r.Get("/alerts", listAlertsHandler(svc.Budgets, logger))
					r.Post("/refresh", refreshAlertsHandler(svc.Budgets, logger))
					r.Get("/{id}", getBudgetHandler(svc.Budgets, logger))
					r.Put("/{id}", updateBudgetHandler(svc.Budgets, logger))
					r.Patch("/{id}", updateBudgetHandler(svc.Budgets, logger))
					r.Delete("/{id}", deleteBudgetHandler(svc.Budgets, logger))
					r.Patch("/{id}/alerts/{alertId}/read", markAlertReadHandler(svc.Budgets, logger))
					r.Patch("/{id}/alerts/{alertId}/acknowledge", acknowledgeAlertHandler(svc.Budgets, logger))
				})
			}

			// =============================================
			// Recurring transactions
			// =============================================
			if svc.Recurring != nil {
				r.Route("/recurring_transactions", func(r chi.Router) {
					r.Get("/", listRecurringHandler(svc.Recurring, logger))
					r.Post("/", createRecurringHandler(svc.Recurring, logger))
					r.Get("/upcoming", upcomingRecurringHandler(svc.Recurring, logger))
					r.Post("/process_due", processDueHandler(svc.Recurring, logger))
					r.Get("/{id}", getRecurringHandler(svc.Recurring, logger))
					r.Put("/{id}", updateRecurringHandler(svc.Recurring, logger))
					r.Patch("/{id}", updateRecurringHandler(svc.Recurring, logger))
					r.Delete("/{id}", deleteRecurringHandler(svc.Recurring, logger))
					r.Patch("/{id}/toggle", toggleRecurringHandler(svc.Recurring, logger))
				})
			}

			// =============================================
			// Savings goals
			// =============================================
			if svc.Savings != nil {
				r.Route("/savings_goals", func(r chi.Router) {
					r.Get("/", listGoalsHandler(svc.Savings, logger))
					r.Post("/", createGoalHandler(svc.Savings, logger))
					r.Get("/summary", goalsSummaryHandler(svc.Savings, logger))
					r.Get("/{id}", getGoalHandler(svc.Savings, logger))
					r.Put("/{id}", updateGoalHandler(svc.Savings, logger))
					r.Patch("/{id}", updateGoalHandler(svc.Savings, logger))
					r.Delete("/{id}", deleteGoalHandler(svc.Savings, logger))
					r.Patch("/{id}/add_amount", addAmountHandler(svc.Savings, logger))
				})
			}
		})
	})

	return r
}

// ============================================================
// Operational handlers
// ============================================================

func rootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeSuccess(w, http.StatusOK, "Vantage API is running", map[string]string{
			"service": serviceName,
			"version": Version,
		})
	}
}

func healthzHandler(db port.HealthChecker, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := []domain.ServiceHealth{
			{Name: serviceName, Status: "healthy"},
		}

		dbHealth := domain.ServiceHealth{Name: "database", Status: "unknown"}
		if db != nil {
			start := time.Now()
			err := pingWithTimeout(r.Context(), db)
			dbHealth.LatencyMs = time.Since(start).Milliseconds()
			dbHealth.Status = "healthy"
			if err != nil {
				logger.Warn("health check: database ping failed", zap.Error(err))
				dbHealth.Status = "unhealthy"
				dbHealth.Error = err.Error()
			}
		}
		services = append(services, dbHealth)

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status != "healthy" {
				overallStatus = "degraded"
			}
		}

		status := http.StatusOK
		if overallStatus == "unhealthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, domain.HealthStatus{
			Status:    overallStatus,
			Service:   serviceName,
			Version:   Version,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Services:  services,
		})
	}
}

func readyzHandler(db port.HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := pingWithTimeout(r.Context(), db); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func pingWithTimeout(ctx context.Context, db port.HealthChecker) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.Ping(ctx)
}
