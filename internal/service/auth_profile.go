package service

import (
	"context"

	"github.com/boddenberg/vantage-api/internal/domain"
)

// ============================================================
// Profile: GET/PUT /api/v1/auth/profile
// ============================================================

func (s *AuthService) Profile(ctx context.Context, userID string) (*domain.User, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Profile")
	defer span.End()

	return s.store.GetUserByID(ctx, userID)
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID string, req *domain.UpdateProfileRequest) (*domain.User, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.UpdateProfile")
	defer span.End()

	updates := map[string]any{}
	if req.FirstName != "" {
		updates["first_name"] = req.FirstName
	}
	if req.LastName != "" {
		updates["last_name"] = req.LastName
	}
	if req.Email != "" {
		updates["email"] = normalizeEmail(req.Email)
	}
	if req.Preferences != nil {
		updates["preferences"] = req.Preferences
	}

	if len(updates) == 0 {
		return nil, &domain.ErrValidation{Field: "body", Message: "no fields to update"}
	}

	return s.store.UpdateUser(ctx, userID, updates)
}
