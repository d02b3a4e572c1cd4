// Package mailer delivers transactional email through an HTTP mail API.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/boddenberg/vantage-api/internal/domain"
	"github.com/boddenberg/vantage-api/internal/infra/observability"
	"github.com/boddenberg/vantage-api/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("mailer")

// Message is the JSON body posted to the mail API.
type Message struct {
	From     string            `json:"from"`
	To       string            `json:"to"`
	Subject  string            `json:"subject"`
	Text     string            `json:"text"`
	Template string            `json:"template,omitempty"`
	Vars     map[string]string `json:"vars,omitempty"`
}

// HTTPNotifier posts messages to {baseURL}/v1/messages.
type HTTPNotifier struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	from       string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	metrics    *observability.Metrics
}

// NewHTTPNotifier creates a new HTTPNotifier.
func NewHTTPNotifier(httpClient *http.Client, baseURL, apiKey, from string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, metrics *observability.Metrics) *HTTPNotifier {
	return &HTTPNotifier{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		from:       from,
		cb:         cb,
		cfg:        cfg,
		metrics:    metrics,
	}
}

// SendPasswordReset implements port.Notifier.
func (n *HTTPNotifier) SendPasswordReset(ctx context.Context, user domain.User, resetLink string) error {
	ctx, span := tracer.Start(ctx, "HTTPNotifier.SendPasswordReset")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", user.ID))

	msg := Message{
		From:     n.from,
		To:       user.Email,
		Subject:  "Reset your password",
		Text:     fmt.Sprintf("Hi %s,\n\nUse the link below to choose a new password:\n%s\n\nIf you did not ask for this, ignore this email.", user.FirstName, resetLink),
		Template: "password_reset",
		Vars:     map[string]string{"first_name": user.FirstName, "reset_link": resetLink},
	}
	return n.send(ctx, msg)
}

func (n *HTTPNotifier) send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	_, err = n.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, n.cfg, func() error {
			url := fmt.Sprintf("%s/v1/messages", n.baseURL)
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return resilience.Permanent(err)
			}
			req.Header.Set("Content-Type", "application/json")
			if n.apiKey != "" {
				req.Header.Set("Authorization", "Bearer "+n.apiKey)
			}

			resp, err := n.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				return nil
			case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
				return resilience.Permanent(fmt.Errorf("mail API returned status %d", resp.StatusCode))
			default:
				return fmt.Errorf("mail API returned status %d", resp.StatusCode)
			}
		})
	})
	if err != nil {
		if n.metrics != nil {
			n.metrics.IncrExternalError("mail")
		}
		return &domain.ErrExternalService{Service: "mail", Err: err}
	}
	return nil
}

// LogNotifier writes the reset link to the log instead of sending mail.
// Intended for local development.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n LogNotifier) SendPasswordReset(_ context.Context, user domain.User, resetLink string) error {
	n.Logger.Info("password reset requested (mail disabled)",
		zap.String("user_id", user.ID),
		zap.String("reset_link", resetLink),
	)
	return nil
}
