// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/vantage-api/internal/domain"
)

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// Notifier delivers outbound user notifications.
type Notifier interface {
	SendPasswordReset(ctx context.Context, user domain.User, resetLink string) error
}

// EventPublisher emits domain events (transaction.created, budget.alert_raised, ...).
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker serializes work on a key across goroutines or processes.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// HealthChecker is implemented by dependencies reported on /healthz.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
