package port

import (
	"context"
	"time"

	"github.com/boddenberg/vantage-api/internal/domain"
)

// UserStore persists users and their credentials.
type UserStore interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	// GetUserByEmail returns nil, nil when no user has the email.
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateUser(ctx context.Context, id string, updates map[string]any) (*domain.User, error)
	UpdateLoginState(ctx context.Context, id string, failedAttempts int, lockedUntil, lastLoginAt *time.Time) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error

	SaveRefreshToken(ctx context.Context, token *domain.RefreshToken) error
	GetRefreshToken(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error

	SavePasswordResetToken(ctx context.Context, token *domain.PasswordResetToken) error
	// ConsumePasswordResetToken marks a valid token used and returns it;
	// unknown, used or expired tokens yield ErrInvalidToken.
	ConsumePasswordResetToken(ctx context.Context, tokenHash string, now time.Time) (*domain.PasswordResetToken, error)
}
