package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/vantage-api/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ============================================================
// Login: POST /api/v1/auth/login
// ============================================================

func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Login")
	defer span.End()

	user, err := s.store.GetUserByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid email or password"}
	}

	now := s.now()
	if user.LockedUntil != nil && user.LockedUntil.After(now) {
		s.logger.Warn("login: account temporarily locked",
			zap.String("user_id", user.ID),
			zap.Time("locked_until", *user.LockedUntil),
		)
		return nil, &domain.ErrAccountLocked{Until: *user.LockedUntil}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		attempts := user.FailedAttempts + 1
		var lockedUntil *time.Time
		if attempts >= maxFailedAttempts {
			until := now.Add(lockDuration).UTC()
			lockedUntil = &until
			attempts = 0
			s.logger.Warn("login: account locked after max attempts",
				zap.String("user_id", user.ID),
				zap.Duration("lock_duration", lockDuration),
			)
		} else {
			s.logger.Warn("login: failed password attempt",
				zap.String("user_id", user.ID),
				zap.Int("attempts", attempts),
				zap.Int("max", maxFailedAttempts),
			)
		}
		if err := s.store.UpdateLoginState(ctx, user.ID, attempts, lockedUntil, nil); err != nil {
			s.logger.Error("login: failed to record attempt", zap.String("user_id", user.ID), zap.Error(err))
		}
		if lockedUntil != nil {
			return nil, &domain.ErrAccountLocked{Until: *lockedUntil}
		}
		return nil, &domain.ErrUnauthorized{Message: "invalid email or password"}
	}

	loginAt := now.UTC()
	if err := s.store.UpdateLoginState(ctx, user.ID, 0, nil, &loginAt); err != nil {
		return nil, fmt.Errorf("update login state: %w", err)
	}
	user.FailedAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &loginAt

	s.logger.Info("user logged in", zap.String("user_id", user.ID))

	return s.issueTokens(ctx, user)
}

// ============================================================
// Refresh: POST /api/v1/auth/refresh
// ============================================================

// Refresh exchanges a refresh token for a new pair. The presented token is
// revoked, so each refresh token works once.
func (s *AuthService) Refresh(ctx context.Context, req *domain.RefreshRequest) (*domain.AuthResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Refresh")
	defer span.End()

	stored, err := s.store.GetRefreshToken(ctx, hashToken(req.RefreshToken))
	if err != nil {
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	if stored == nil {
		return nil, &domain.ErrInvalidToken{}
	}

	if err := s.store.RevokeRefreshToken(ctx, stored.ID); err != nil {
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}
	if !stored.ExpiresAt.After(s.now()) {
		s.logger.Warn("refresh: expired token used", zap.String("user_id", stored.UserID))
		return nil, &domain.ErrInvalidToken{}
	}

	user, err := s.store.GetUserByID(ctx, stored.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return s.issueTokens(ctx, user)
}

// ============================================================
// Logout: DELETE /api/v1/auth/logout
// ============================================================

func (s *AuthService) Logout(ctx context.Context, userID string) error {
	ctx, span := authTracer.Start(ctx, "AuthService.Logout")
	defer span.End()

	if err := s.store.RevokeUserRefreshTokens(ctx, userID); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}

	s.logger.Info("user logged out", zap.String("user_id", userID))
	return nil
}
