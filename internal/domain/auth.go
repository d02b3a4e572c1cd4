package domain

import (
	"strings"
	"time"
)

// ============================================================
// Users & credentials
// ============================================================

// User is an account holder. Every other entity is scoped by its ID.
type User struct {
	ID             string         `json:"id" gorm:"primaryKey;size:36"`
	Email          string         `json:"email" gorm:"size:255;uniqueIndex"`
	PasswordHash   string         `json:"-" gorm:"size:255"`
	FirstName      string         `json:"first_name" gorm:"size:100"`
	LastName       string         `json:"last_name" gorm:"size:100"`
	Preferences    map[string]any `json:"preferences" gorm:"serializer:json"`
	FailedAttempts int            `json:"-"`
	LockedUntil    *time.Time     `json:"-"`
	LastLoginAt    *time.Time     `json:"last_login_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Identity is the authenticated principal threaded through every call.
type Identity struct {
	UserID string
	Email  string
}

// RefreshToken is a stored (hashed) refresh token.
type RefreshToken struct {
	ID        string     `gorm:"primaryKey;size:36"`
	UserID    string     `gorm:"size:36;index"`
	TokenHash string     `gorm:"size:64;uniqueIndex"`
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// PasswordResetToken is a stored (hashed) single-use reset token.
type PasswordResetToken struct {
	ID        string     `gorm:"primaryKey;size:36"`
	UserID    string     `gorm:"size:36;index"`
	TokenHash string     `gorm:"size:64;uniqueIndex"`
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// ============================================================
// Auth: request / response types
// ============================================================

// RegisterRequest is the body for POST /api/v1/auth/register.
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required,min=6,max=72"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
}

// Normalize trims and lower-cases the email before validation.
func (r *RegisterRequest) Normalize() { r.Email = NormalizeEmail(r.Email) }

// LoginRequest is the body for POST /api/v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (r *LoginRequest) Normalize() { r.Email = NormalizeEmail(r.Email) }

// RefreshRequest is the body for POST /api/v1/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// AuthResponse is returned by register, login and refresh.
type AuthResponse struct {
	User         User   `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// UpdateProfileRequest is the body for PUT /api/v1/auth/profile.
type UpdateProfileRequest struct {
	FirstName   string         `json:"first_name" validate:"max=100"`
	LastName    string         `json:"last_name" validate:"max=100"`
	Email       string         `json:"email" validate:"omitempty,email,max=255"`
	Preferences map[string]any `json:"preferences"`
}

func (r *UpdateProfileRequest) Normalize() { r.Email = NormalizeEmail(r.Email) }

// ForgotPasswordRequest is the body for POST /api/v1/auth/forgot_password.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required"`
}

func (r *ForgotPasswordRequest) Normalize() { r.Email = NormalizeEmail(r.Email) }

// ResetPasswordRequest is the body for PUT /api/v1/auth/reset_password.
type ResetPasswordRequest struct {
	Token                string `json:"token" validate:"required"`
	Password             string `json:"password" validate:"required,min=6,max=72"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required"`
}

// ChangePasswordRequest is the body for PUT /api/v1/auth/change_password.
type ChangePasswordRequest struct {
	CurrentPassword      string `json:"current_password" validate:"required"`
	Password             string `json:"password" validate:"required,min=6,max=72"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required"`
}

// NormalizeEmail is the canonical form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
