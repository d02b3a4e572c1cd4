package service

import (
	"context"
	"time"

	"github.com/boddenberg/vantage-api/internal/domain"
	"github.com/boddenberg/vantage-api/internal/infra/observability"
	"github.com/boddenberg/vantage-api/internal/port"

	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Clock returns the current instant; services derive "today" from it.
type Clock func() time.Time

func todayFrom(now Clock) domain.Date {
	return domain.DateOf(now())
}

// publisher wraps an EventPublisher with metrics and logging. Publishing is
// best effort: failures are logged and counted, never returned.
type publisher struct {
	events  port.EventPublisher
	metrics *observability.Metrics
	logger  *zap.Logger
}

func (p publisher) publish(ctx context.Context, routingKey string, payload any) {
	if p.events == nil {
		return
	}
	err := p.events.Publish(ctx, routingKey, payload)
	if p.metrics != nil {
		p.metrics.IncrEvent(routingKey, err == nil)
	}
	if err != nil {
		p.logger.Warn("failed to publish event",
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
	}
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}
