package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/vantage-api/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ============================================================
// UserStore implementation
// ============================================================

func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	ctx, span := tracer.Start(ctx, "Store.CreateUser")
	defer span.End()

	if user.ID == "" {
		user.ID = newID()
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(user)
	if res.Error != nil {
		return fmt.Errorf("insert user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return &domain.ErrConflict{Message: "email already registered"}
	}
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Store.GetUserByID")
	defer span.End()

	var user domain.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, notFound(err, "user", id)
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Store.GetUserByEmail")
	defer span.End()

	var user domain.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // not found is not an error for auth lookup
	}
	if err != nil {
		return nil, fmt.Errorf("query user by email: %w", err)
	}
	return &user, nil
}

func (s *Store) UpdateUser(ctx context.Context, id string, updates map[string]any) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Store.UpdateUser")
	defer span.End()

	if email, ok := updates["email"]; ok {
		var clash int64
		if err := s.db.WithContext(ctx).Model(&domain.User{}).
			Where("email = ? AND id <> ?", email, id).Count(&clash).Error; err != nil {
			return nil, fmt.Errorf("check email: %w", err)
		}
		if clash > 0 {
			return nil, &domain.ErrConflict{Message: "email already registered"}
		}
	}

	if prefs, ok := updates["preferences"].(map[string]any); ok {
		raw, err := json.Marshal(prefs)
		if err != nil {
			return nil, fmt.Errorf("encode preferences: %w", err)
		}
		updates["preferences"] = string(raw)
	}

	res := s.db.WithContext(ctx).Model(&domain.User{ID: id}).Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("update user: %w", res.Error)
	}
	return s.GetUserByID(ctx, id)
}

func (s *Store) UpdateLoginState(ctx context.Context, id string, failedAttempts int, lockedUntil, lastLoginAt *time.Time) error {
	ctx, span := tracer.Start(ctx, "Store.UpdateLoginState")
	defer span.End()

	updates := map[string]any{
		"failed_attempts": failedAttempts,
		"locked_until":    lockedUntil,
	}
	if lastLoginAt != nil {
		updates["last_login_at"] = lastLoginAt
	}
	return s.db.WithContext(ctx).Model(&domain.User{ID: id}).Updates(updates).Error
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	ctx, span := tracer.Start(ctx, "Store.UpdatePasswordHash")
	defer span.End()

	return s.db.WithContext(ctx).Model(&domain.User{ID: id}).Updates(map[string]any{
		"password_hash":   hash,
		"failed_attempts": 0,
		"locked_until":    nil,
	}).Error
}

// --- Refresh tokens ---

func (s *Store) SaveRefreshToken(ctx context.Context, token *domain.RefreshToken) error {
	ctx, span := tracer.Start(ctx, "Store.SaveRefreshToken")
	defer span.End()

	if token.ID == "" {
		token.ID = newID()
	}
	return s.db.WithContext(ctx).Create(token).Error
}

func (s *Store) GetRefreshToken(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	ctx, span := tracer.Start(ctx, "Store.GetRefreshToken")
	defer span.End()

	var token domain.RefreshToken
	err := s.db.WithContext(ctx).
		Where("token_hash = ? AND revoked_at IS NULL", tokenHash).
		First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query refresh token: %w", err)
	}
	return &token, nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Store.RevokeRefreshToken")
	defer span.End()

	return s.db.WithContext(ctx).Model(&domain.RefreshToken{}).
		Where("id = ?", id).
		Update("revoked_at", time.Now().UTC()).Error
}

func (s *Store) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	ctx, span := tracer.Start(ctx, "Store.RevokeUserRefreshTokens")
	defer span.End()

	return s.db.WithContext(ctx).Model(&domain.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", time.Now().UTC()).Error
}

// --- Password reset tokens ---

func (s *Store) SavePasswordResetToken(ctx context.Context, token *domain.PasswordResetToken) error {
	ctx, span := tracer.Start(ctx, "Store.SavePasswordResetToken")
	defer span.End()

	if token.ID == "" {
		token.ID = newID()
	}
	return s.db.WithContext(ctx).Create(token).Error
}

func (s *Store) ConsumePasswordResetToken(ctx context.Context, tokenHash string, now time.Time) (*domain.PasswordResetToken, error) {
	ctx, span := tracer.Start(ctx, "Store.ConsumePasswordResetToken")
	defer span.End()

	var token domain.PasswordResetToken
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("token_hash = ? AND used_at IS NULL AND expires_at > ?", tokenHash, now.UTC()).
			First(&token).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &domain.ErrInvalidToken{}
		}
		if err != nil {
			return err
		}
		res := tx.Model(&domain.PasswordResetToken{}).
			Where("id = ? AND used_at IS NULL", token.ID).
			Update("used_at", now.UTC())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &domain.ErrInvalidToken{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &token, nil
}
