package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/boddenberg/vantage-api/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const notifyTimeout = 30 * time.Second

// ============================================================
// ForgotPassword: POST /api/v1/auth/forgot_password
// ============================================================

// ForgotPassword issues a reset token and mails the link in the background.
// It answers the same way whether or not the email is registered.
func (s *AuthService) ForgotPassword(ctx context.Context, req *domain.ForgotPasswordRequest) error {
	ctx, span := authTracer.Start(ctx, "AuthService.ForgotPassword")
	defer span.End()

	user, err := s.store.GetUserByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		s.logger.Info("forgot password: unknown email")
		return nil
	}

	raw, hashed, err := generateOpaqueToken()
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	if err := s.store.SavePasswordResetToken(ctx, &domain.PasswordResetToken{
		UserID:    user.ID,
		TokenHash: hashed,
		ExpiresAt: s.now().Add(s.cfg.PasswordResetTTL).UTC(),
	}); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	link := fmt.Sprintf("%s/reset-password?token=%s", s.cfg.FrontendURL, url.QueryEscape(raw))
	recipient := *user

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := s.notifier.SendPasswordReset(sendCtx, recipient, link); err != nil {
			s.logger.Error("forgot password: failed to send reset email",
				zap.String("user_id", recipient.ID),
				zap.Error(err),
			)
		}
	}()

	s.logger.Info("password reset requested", zap.String("user_id", user.ID))
	return nil
}

// ============================================================
// ResetPassword: PUT /api/v1/auth/reset_password
// ============================================================

func (s *AuthService) ResetPassword(ctx context.Context, req *domain.ResetPasswordRequest) error {
	ctx, span := authTracer.Start(ctx, "AuthService.ResetPassword")
	defer span.End()

	if err := checkNewPassword(req.Password, req.PasswordConfirmation); err != nil {
		return err
	}

	token, err := s.store.ConsumePasswordResetToken(ctx, hashToken(req.Token), s.now())
	if err != nil {
		var invalid *domain.ErrInvalidToken
		if errors.As(err, &invalid) {
			return err
		}
		return fmt.Errorf("consume reset token: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdatePasswordHash(ctx, token.UserID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	// Force re-login everywhere.
	if err := s.store.RevokeUserRefreshTokens(ctx, token.UserID); err != nil {
		s.logger.Warn("reset password: failed to revoke refresh tokens", zap.String("user_id", token.UserID), zap.Error(err))
	}

	s.logger.Info("password reset completed", zap.String("user_id", token.UserID))
	return nil
}

// ============================================================
// ChangePassword: PUT /api/v1/auth/change_password
// ============================================================

func (s *AuthService) ChangePassword(ctx context.Context, userID string, req *domain.ChangePasswordRequest) error {
	ctx, span := authTracer.Start(ctx, "AuthService.ChangePassword")
	defer span.End()

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		s.logger.Warn("password change: wrong current password", zap.String("user_id", userID))
		return &domain.ErrValidation{Field: "current_password", Message: "current password is incorrect"}
	}
	if err := checkNewPassword(req.Password, req.PasswordConfirmation); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdatePasswordHash(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	s.logger.Info("password changed", zap.String("user_id", userID))
	return nil
}

func checkNewPassword(password, confirmation string) error {
	if len(password) < 6 {
		return &domain.ErrValidation{Field: "password", Message: "password must have at least 6 characters"}
	}
	if password != confirmation {
		return &domain.ErrValidation{Field: "password_confirmation", Message: "password confirmation does not match"}
	}
	return nil
}
