package mailer_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/vantage-api/internal/domain"
	"github.com/boddenberg/vantage-api/internal/infra/mailer"
	"github.com/boddenberg/vantage-api/internal/infra/observability"
	"github.com/boddenberg/vantage-api/internal/infra/resilience"

	"go.uber.org/zap"
)

func newNotifier(url string) *mailer.HTTPNotifier {
	return newNotifierWithMetrics(url, nil)
}

func newNotifierWithMetrics(url string, metrics *observability.Metrics) *mailer.HTTPNotifier {
	return mailer.NewHTTPNotifier(
		http.DefaultClient, url, "secret", "no-reply@vantage.test",
		resilience.NewCircuitBreaker("mail-test", zap.NewNop()),
		resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond},
		metrics,
	)
}

func TestHTTPNotifier_SendsResetLink(t *testing.T) {
	var got mailer.Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing api key header")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	user := domain.User{ID: "u1", Email: "ada@example.com", FirstName: "Ada"}
	link := "https://app.vantage.test/reset-password?token=abc"
	if err := newNotifier(srv.URL).SendPasswordReset(context.Background(), user, link); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.To != "ada@example.com" || got.Vars["reset_link"] != link {
		t.Errorf("unexpected message: %+v", got)
	}
}

func TestHTTPNotifier_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := newNotifier(srv.URL).SendPasswordReset(context.Background(), domain.User{Email: "a@b.c"}, "link")
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestHTTPNotifier_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	metrics := observability.NewMetrics()
	err := newNotifierWithMetrics(srv.URL, metrics).SendPasswordReset(context.Background(), domain.User{Email: "a@b.c"}, "link")
	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) || ext.Service != "mail" {
		t.Fatalf("expected ErrExternalService for mail, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single call, got %d", calls)
	}
	if got := metrics.CounterValue("external_errors", "mail"); got != 1 {
		t.Errorf("expected 1 external error, got %v", got)
	}
}
