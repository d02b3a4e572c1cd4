package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/boddenberg/vantage-api/internal/domain"
	"github.com/boddenberg/vantage-api/internal/handler"
	"github.com/boddenberg/vantage-api/internal/infra/cache"
	"github.com/boddenberg/vantage-api/internal/infra/events"
	"github.com/boddenberg/vantage-api/internal/infra/export"
	"github.com/boddenberg/vantage-api/internal/infra/lock"
	"github.com/boddenberg/vantage-api/internal/infra/mailer"
	"github.com/boddenberg/vantage-api/internal/infra/observability"
	"github.com/boddenberg/vantage-api/internal/infra/resilience"
	"github.com/boddenberg/vantage-api/internal/infra/store"
	"github.com/boddenberg/vantage-api/internal/service"

	"go.uber.org/zap"
)

type apiResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    json.RawMessage   `json:"data"`
	Errors  []json.RawMessage `json:"errors"`
}

func newTestAPI(t *testing.T) http.Handler {
	t.Helper()
	path := filepath.Join(t.TempDir(), "api.db")
	if err := store.RunMigrations(store.DriverSQLite, path); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st, err := store.Open(context.Background(), store.Options{Driver: store.DriverSQLite, DSN: path}, resilience.Config{}, zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	locker := lock.NewLocal()
	pub := events.Noop{}
	now := service.Clock(time.Now)

	authSvc := service.NewAuthService(st, mailer.LogNotifier{Logger: logger}, service.AuthConfig{
		JWTSecret:        "test-secret",
		AccessTTL:        15 * time.Minute,
		RefreshTTL:       time.Hour,
		PasswordResetTTL: time.Hour,
		FrontendURL:      "http://localhost:3000",
	}, logger)
	t.Cleanup(authSvc.Wait)

	summaryCache := cache.New[*domain.TransactionSummary](time.Minute)
	t.Cleanup(summaryCache.Close)

	budgets := service.NewBudgetService(st, st, locker, 24*time.Hour, pub, metrics, logger, now)
	txns := service.NewTransactionService(st, budgets, summaryCache, resilience.NewBulkhead(2), pub, metrics, logger, now)
	recurring := service.NewRecurringService(st, txns, locker, pub, metrics, logger, now)
	savings := service.NewSavingsService(st, locker, logger, now)

	return handler.NewRouter(handler.Services{
		Auth:         authSvc,
		Transactions: txns,
		Budgets:      budgets,
		Recurring:    recurring,
		Savings:      savings,
		DB:           st,
	}, []string{"*"}, metrics, logger)
}

func call(t *testing.T, h http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp apiResponse
	if rec.Header().Get("Content-Type") == "application/json" {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, resp
}

func decodeData(t *testing.T, resp apiResponse, dst any) {
	t.Helper()
	if err := json.Unmarshal(resp.Data, dst); err != nil {
		t.Fatalf("decode data %s: %v", resp.Data, err)
	}
}

func register(t *testing.T, h http.Handler, email string) string {
	t.Helper()
	rec, resp := call(t, h, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"user": map[string]string{
			"email": email, "password": "secret123", "first_name": "Ada", "last_name": "Lovelace",
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	var auth struct {
		AccessToken string `json:"access_token"`
	}
	decodeData(t, resp, &auth)
	return auth.AccessToken
}

func TestAPI_AuthFlow(t *testing.T) {
	api := newTestAPI(t)
	token := register(t, api, " Ada@Example.com ")

	rec, resp := call(t, api, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "  ADA@example.com", "password": "secret123",
	})
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("login: expected 200, got %d %s", rec.Code, rec.Body.String())
	}

	rec, resp = call(t, api, http.MethodGet, "/api/v1/auth/profile", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("profile: expected 200, got %d", rec.Code)
	}
	var user domain.User
	decodeData(t, resp, &user)
	if user.Email != "ada@example.com" {
		t.Errorf("expected normalized email, got %q", user.Email)
	}

	rec, _ = call(t, api, http.MethodPost, "/api/v1/auth/forgot_password", "", map[string]string{"email": "nobody@example.com"})
	if rec.Code != http.StatusOK {
		t.Errorf("forgot_password: expected 200 for unknown email, got %d", rec.Code)
	}

	rec, _ = call(t, api, http.MethodDelete, "/api/v1/auth/logout", token, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("logout: expected 200, got %d", rec.Code)
	}
}

func TestAPI_AuthErrors(t *testing.T) {
	api := newTestAPI(t)
	register(t, api, "grace@example.com")

	rec, resp := call(t, api, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "not-an-email", "password": "123", "first_name": "G", "last_name": "H",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if len(resp.Errors) != 2 {
		t.Errorf("expected errors for email and password, got %d", len(resp.Errors))
	}

	rec, _ = call(t, api, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "grace@example.com", "password": "secret123", "first_name": "G", "last_name": "H",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate email, got %d", rec.Code)
	}

	for i := 0; i < 4; i++ {
		rec, _ = call(t, api, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "grace@example.com", "password": "wrong"})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rec.Code)
		}
	}
	rec, _ = call(t, api, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "grace@example.com", "password": "wrong"})
	if rec.Code != http.StatusLocked {
		t.Errorf("expected 423 on fifth failure, got %d", rec.Code)
	}

	rec, _ = call(t, api, http.MethodGet, "/api/v1/transactions", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}
	rec, _ = call(t, api, http.MethodGet, "/api/v1/transactions", "garbage", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with a bad token, got %d", rec.Code)
	}
}

func TestAPI_TransactionsAndOwnership(t *testing.T) {
	api := newTestAPI(t)
	alice := register(t, api, "alice@example.com")
	bob := register(t, api, "bob@example.com")

	rec, resp := call(t, api, http.MethodPost, "/api/v1/transactions", alice, map[string]any{
		"transaction": map[string]any{"kind": "expense", "amount": "42.50", "category": "food", "description": "Groceries"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	var txn domain.Transaction
	decodeData(t, resp, &txn)

	rec, _ = call(t, api, http.MethodPost, "/api/v1/transactions", alice, map[string]any{
		"kind": "income", "amount": 1000, "category": "salary",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("flat create: expected 201, got %d %s", rec.Code, rec.Body.String())
	}

	rec, resp = call(t, api, http.MethodGet, "/api/v1/transactions?type=expense", alice, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	var page domain.ListResponse[domain.Transaction]
	decodeData(t, resp, &page)
	if page.Total != 1 || page.Items[0].ID != txn.ID {
		t.Errorf("expected only the expense, got %+v", page)
	}

	rec, _ = call(t, api, http.MethodGet, "/api/v1/transactions/"+txn.ID, bob, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for another owner's transaction, got %d", rec.Code)
	}
	rec, _ = call(t, api, http.MethodDelete, "/api/v1/transactions/"+txn.ID, bob, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 deleting another owner's transaction, got %d", rec.Code)
	}

	rec, _ = call(t, api, http.MethodPost, "/api/v1/transactions", alice, map[string]any{"kind": "expense", "amount": "-3", "category": "x"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for negative amount, got %d", rec.Code)
	}
	rec, _ = call(t, api, http.MethodGet, "/api/v1/transactions?start_date=03/01/2026", alice, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for a malformed date, got %d", rec.Code)
	}

	rec, _ = call(t, api, http.MethodGet, "/api/v1/transactions/summary", alice, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("summary: expected 200, got %d", rec.Code)
	}

	rec, _ = call(t, api, http.MethodGet, "/api/v1/transactions/export", alice, nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != export.ContentTypeXLSX {
		t.Errorf("export: expected xlsx, got %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
}

func TestAPI_BudgetAlerts(t *testing.T) {
	api := newTestAPI(t)
	token := register(t, api, "carol@example.com")

	rec, resp := call(t, api, http.MethodPost, "/api/v1/budgets", token, map[string]any{
		"budget": map[string]any{"category": "food", "amount": "100", "period": "monthly"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create budget: expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	var budget domain.BudgetStatus
	decodeData(t, resp, &budget)

	call(t, api, http.MethodPost, "/api/v1/transactions", token, map[string]any{"kind": "expense", "amount": "120", "category": "food"})

	rec, resp = call(t, api, http.MethodGet, "/api/v1/budgets/alerts", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("alerts: expected 200, got %d", rec.Code)
	}
	var alerts []domain.BudgetAlert
	decodeData(t, resp, &alerts)
	if len(alerts) != 1 || alerts[0].AlertType != domain.AlertBudgetExceeded {
		t.Fatalf("expected one budget_exceeded alert, got %+v", alerts)
	}

	// The exceeded alert is already recent, so a refresh at 120% adds the
	// threshold alert and a second refresh adds nothing.
	rec, resp = call(t, api, http.MethodPost, "/api/v1/budgets/refresh", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d", rec.Code)
	}
	var raised []domain.BudgetAlert
	decodeData(t, resp, &raised)
	if len(raised) != 1 || raised[0].AlertType != domain.AlertThresholdReached || raised[0].Severity != domain.SeverityWarning {
		t.Fatalf("expected one threshold_reached/warning alert, got %+v", raised)
	}

	_, resp = call(t, api, http.MethodPost, "/api/v1/budgets/refresh", token, nil)
	raised = nil
	decodeData(t, resp, &raised)
	if len(raised) != 0 {
		t.Errorf("expected second refresh to raise nothing, got %+v", raised)
	}

	_, resp = call(t, api, http.MethodGet, "/api/v1/budgets/alerts?all=true", token, nil)
	alerts = nil
	decodeData(t, resp, &alerts)
	seen := map[domain.AlertType]int{}
	for _, a := range alerts {
		seen[a.AlertType]++
	}
	if len(alerts) != 2 || seen[domain.AlertBudgetExceeded] != 1 || seen[domain.AlertThresholdReached] != 1 {
		t.Fatalf("expected one alert per type, got %+v", alerts)
	}

	for _, a := range alerts {
		rec, _ = call(t, api, http.MethodPatch, "/api/v1/budgets/"+budget.ID+"/alerts/"+a.ID+"/acknowledge", token, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("acknowledge: expected 200, got %d", rec.Code)
		}
	}
	_, resp = call(t, api, http.MethodGet, "/api/v1/budgets/alerts", token, nil)
	alerts = nil
	decodeData(t, resp, &alerts)
	if len(alerts) != 0 {
		t.Errorf("expected no unread alerts, got %d", len(alerts))
	}

	rec, resp = call(t, api, http.MethodGet, "/api/v1/budgets/"+budget.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("show: expected 200, got %d", rec.Code)
	}
	decodeData(t, resp, &budget)
	if !budget.IsExceeded || budget.PercentageUsed.String() != "120" {
		t.Errorf("expected exceeded at 120%%, got %v %s", budget.IsExceeded, budget.PercentageUsed)
	}

	rec, _ = call(t, api, http.MethodGet, "/api/v1/budgets/alerts?severity=critical", token, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for unknown severity, got %d", rec.Code)
	}
}

func TestAPI_RecurringProcessDue(t *testing.T) {
	api := newTestAPI(t)
	token := register(t, api, "dan@example.com")
	today := domain.Today().String()

	rec, resp := call(t, api, http.MethodPost, "/api/v1/recurring_transactions", token, map[string]any{
		"recurring_transaction": map[string]any{
			"kind": "expense", "amount": "15", "category": "streaming", "description": "Music",
			"frequency": "monthly", "start_date": today,
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	var tpl domain.RecurringTransaction
	decodeData(t, resp, &tpl)

	rec, resp = call(t, api, http.MethodGet, "/api/v1/recurring_transactions/upcoming?days=7", token, nil)
	var upcoming []domain.UpcomingRecurring
	decodeData(t, resp, &upcoming)
	if rec.Code != http.StatusOK || len(upcoming) != 1 {
		t.Fatalf("upcoming: expected one template, got %d %d", rec.Code, len(upcoming))
	}

	rec, resp = call(t, api, http.MethodPost, "/api/v1/recurring_transactions/process_due", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("process_due: expected 200, got %d", rec.Code)
	}
	var batch domain.BatchResult
	decodeData(t, resp, &batch)
	if len(batch.Processed) != 1 || batch.Processed[0].Transaction.Description != "Music (Recurring)" {
		t.Fatalf("expected one firing, got %+v", batch)
	}

	_, resp = call(t, api, http.MethodPost, "/api/v1/recurring_transactions/process_due", token, nil)
	decodeData(t, resp, &batch)
	if len(batch.Processed) != 0 {
		t.Errorf("expected nothing due on the second run, got %d", len(batch.Processed))
	}

	rec, resp = call(t, api, http.MethodPatch, "/api/v1/recurring_transactions/"+tpl.ID+"/toggle", token, nil)
	decodeData(t, resp, &tpl)
	if rec.Code != http.StatusOK || tpl.IsActive {
		t.Errorf("toggle: expected paused template, got %d active=%v", rec.Code, tpl.IsActive)
	}

	rec, _ = call(t, api, http.MethodPost, "/api/v1/recurring_transactions", token, map[string]any{
		"kind": "expense", "amount": "1", "category": "x", "frequency": "hourly",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for unknown frequency, got %d", rec.Code)
	}
}

func TestAPI_SavingsGoals(t *testing.T) {
	api := newTestAPI(t)
	token := register(t, api, "erin@example.com")

	rec, resp := call(t, api, http.MethodPost, "/api/v1/savings_goals", token, map[string]any{
		"savings_goal": map[string]any{"name": "Bike", "target_amount": "500", "current_amount": "480"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	var goal domain.SavingsGoalView
	decodeData(t, resp, &goal)

	rec, resp = call(t, api, http.MethodPatch, "/api/v1/savings_goals/"+goal.ID+"/add_amount", token, map[string]any{"amount": "20"})
	if rec.Code != http.StatusOK {
		t.Fatalf("add_amount: expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	decodeData(t, resp, &goal)
	if goal.Status != domain.GoalCompleted || !goal.IsReached {
		t.Errorf("expected completed goal, got %s reached=%v", goal.Status, goal.IsReached)
	}

	rec, _ = call(t, api, http.MethodPatch, "/api/v1/savings_goals/"+goal.ID+"/add_amount", token, map[string]any{"amount": "0"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for zero amount, got %d", rec.Code)
	}

	rec, resp = call(t, api, http.MethodGet, "/api/v1/savings_goals/summary", token, nil)
	var sum domain.SavingsSummary
	decodeData(t, resp, &sum)
	if rec.Code != http.StatusOK || sum.CompletedCount != 1 || sum.OverallProgress.String() != "100" {
		t.Errorf("unexpected summary: %d %+v", rec.Code, sum)
	}
}
