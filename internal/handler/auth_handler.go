package handler

import (
	"net/http"

	"github.com/boddenberg/vantage-api/internal/domain"
	"github.com/boddenberg/vantage-api/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Authentication: /api/v1/auth
// ============================================================

func authRegisterHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/v1/auth/register")
		defer span.End()

		var req domain.RegisterRequest
		if !decodeBody(w, r, "user", &req) {
			return
		}

		resp, err := authSvc.Register(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusCreated, "User registered successfully", resp)
	}
}

func authLoginHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/v1/auth/login")
		defer span.End()

		var req domain.LoginRequest
		if !decodeBody(w, r, "user", &req) {
			return
		}

		resp, err := authSvc.Login(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusOK, "Login successful", resp)
	}
}

func authRefreshHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/v1/auth/refresh")
		defer span.End()

		var req domain.RefreshRequest
		if !decodeBody(w, r, "", &req) {
			return
		}

		resp, err := authSvc.Refresh(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusOK, "Token refreshed", resp)
	}
}

func authLogoutHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /api/v1/auth/logout")
		defer span.End()

		if err := authSvc.Logout(ctx, ownerID(r)); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusOK, "Logged out successfully", nil)
	}
}

func authProfileHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/v1/auth/profile")
		defer span.End()

		user, err := authSvc.Profile(ctx, ownerID(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusOK, "Profile retrieved", user)
	}
}

func authUpdateProfileHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /api/v1/auth/profile")
		defer span.End()

		var req domain.UpdateProfileRequest
		if !decodeBody(w, r, "user", &req) {
			return
		}

		user, err := authSvc.UpdateProfile(ctx, ownerID(r), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusOK, "Profile updated", user)
	}
}

// authForgotPasswordHandler answers the same way whether or not the email
// belongs to an account.
func authForgotPasswordHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/v1/auth/forgot_password")
		defer span.End()

		var req domain.ForgotPasswordRequest
		if !decodeBody(w, r, "", &req) {
			return
		}

		if err := authSvc.ForgotPassword(ctx, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusOK, "If the email exists, password reset instructions have been sent", nil)
	}
}

func authResetPasswordHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /api/v1/auth/reset_password")
		defer span.End()

		var req domain.ResetPasswordRequest
		if !decodeBody(w, r, "", &req) {
			return
		}

		if err := authSvc.ResetPassword(ctx, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusOK, "Password has been reset", nil)
	}
}

func authChangePasswordHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /api/v1/auth/change_password")
		defer span.End()

		var req domain.ChangePasswordRequest
		if !decodeBody(w, r, "", &req) {
			return
		}

		if err := authSvc.ChangePassword(ctx, ownerID(r), &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeSuccess(w, http.StatusOK, "Password changed successfully", nil)
	}
}
