package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/boddenberg/vantage-api/internal/handler"
	"github.com/boddenberg/vantage-api/internal/infra/observability"

	"go.uber.org/zap"
)

type fakeDB struct{ err error }

func (f fakeDB) Ping(context.Context) error { return f.err }

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	router := handler.NewRouter(handler.Services{DB: fakeDB{}}, []string{"*"}, observability.NewMetrics(), zap.NewNop())

	rec := serve(router, http.MethodGet, "/healthz")

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"healthy"`) {
		t.Errorf("expected healthy status, got %s", rec.Body.String())
	}
}

func TestHealthz_DatabaseDown(t *testing.T) {
	router := handler.NewRouter(handler.Services{DB: fakeDB{err: errors.New("connection refused")}}, []string{"*"}, observability.NewMetrics(), zap.NewNop())

	rec := serve(router, http.MethodGet, "/healthz")

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "connection refused") {
		t.Errorf("expected database error in body, got %s", rec.Body.String())
	}
}

func TestReadyz(t *testing.T) {
	router := handler.NewRouter(handler.Services{DB: fakeDB{}}, []string{"*"}, observability.NewMetrics(), zap.NewNop())

	rec := serve(router, http.MethodGet, "/readyz")

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	down := handler.NewRouter(handler.Services{DB: fakeDB{err: errors.New("down")}}, []string{"*"}, observability.NewMetrics(), zap.NewNop())
	if rec := serve(down, http.MethodGet, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	metrics := observability.NewMetrics()
	router := handler.NewRouter(handler.Services{}, []string{"*"}, metrics, zap.NewNop())

	serve(router, http.MethodGet, "/")
	rec := serve(router, http.MethodGet, "/metrics")

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "vantage_http_request_duration_seconds") {
		t.Errorf("expected http duration metric to be exported")
	}
}

func TestRootAndPing(t *testing.T) {
	router := handler.NewRouter(handler.Services{}, []string{"*"}, observability.NewMetrics(), zap.NewNop())

	rec := serve(router, http.MethodGet, "/")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"success":true`) {
		t.Errorf("expected success envelope, got %d %s", rec.Code, rec.Body.String())
	}
	if rec := serve(router, http.MethodGet, "/ping"); rec.Code != http.StatusOK {
		t.Errorf("expected 200 from /ping, got %d", rec.Code)
	}
}

func TestAPIUnavailableWithoutAuth(t *testing.T) {
	router := handler.NewRouter(handler.Services{}, []string{"*"}, observability.NewMetrics(), zap.NewNop())

	rec := serve(router, http.MethodGet, "/api/v1/transactions")

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := handler.NewRouter(handler.Services{}, []string{"https://app.example.com"}, observability.NewMetrics(), zap.NewNop())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/transactions", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("expected allowed origin header, got %q", got)
	}
}
