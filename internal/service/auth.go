// Package service holds the application use cases. Each service orchestrates
// domain rules over the ports; transport and persistence live elsewhere.
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/boddenberg/vantage-api/internal/domain"
	"github.com/boddenberg/vantage-api/internal/port"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var authTracer = otel.Tracer("service/auth")

const (
	maxFailedAttempts = 5
	lockDuration      = 30 * time.Minute
	bcryptCost        = 12
	tokenIssuer       = "vantage-api"
)

// AuthConfig carries the token and link settings for AuthService.
type AuthConfig struct {
	JWTSecret        string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	PasswordResetTTL time.Duration
	FrontendURL      string
}

// AuthService orchestrates authentication flows.
type AuthService struct {
	store    port.UserStore
	notifier port.Notifier
	cfg      AuthConfig
	secret   []byte
	logger   *zap.Logger
	now      func() time.Time

	// pending tracks background notifications so shutdown can drain them.
	pending sync.WaitGroup
}

// NewAuthService creates a new auth service.
func NewAuthService(store port.UserStore, notifier port.Notifier, cfg AuthConfig, logger *zap.Logger) *AuthService {
	return &AuthService{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		secret:   []byte(cfg.JWTSecret),
		logger:   logger,
		now:      time.Now,
	}
}

// Wait blocks until background password-reset notifications have finished.
func (s *AuthService) Wait() {
	s.pending.Wait()
}

// ============================================================
// ValidateAccessToken: used by middleware
// ============================================================

// JWTClaims represents the custom claims in access tokens.
type JWTClaims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Type  string `json:"type"`
	jwt.RegisteredClaims
}

func (s *AuthService) ValidateAccessToken(tokenString string) (*domain.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	if claims.Type != "access" || claims.Sub == "" {
		return nil, &domain.ErrUnauthorized{Message: "invalid token type"}
	}
	return &domain.Identity{UserID: claims.Sub, Email: claims.Email}, nil
}

// ============================================================
// Internal helpers
// ============================================================

func (s *AuthService) signAccessToken(user *domain.User) (string, error) {
	now := s.now()
	claims := JWTClaims{
		Sub:   user.ID,
		Email: user.Email,
		Type:  "access",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
			Issuer:    tokenIssuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// issueTokens signs an access token and stores a fresh refresh token.
func (s *AuthService) issueTokens(ctx context.Context, user *domain.User) (*domain.AuthResponse, error) {
	accessToken, err := s.signAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	raw, hashed, err := generateOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	if err := s.store.SaveRefreshToken(ctx, &domain.RefreshToken{
		UserID:    user.ID,
		TokenHash: hashed,
		ExpiresAt: s.now().Add(s.cfg.RefreshTTL).UTC(),
	}); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &domain.AuthResponse{
		User:         *user,
		AccessToken:  accessToken,
		RefreshToken: raw,
		ExpiresIn:    int(s.cfg.AccessTTL.Seconds()),
	}, nil
}

// generateOpaqueToken returns a random hex token and its sha256 hash.
// Only the hash is persisted.
func generateOpaqueToken() (raw string, hashed string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(b)
	return raw, hashToken(raw), nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

func normalizeEmail(email string) string {
	return domain.NormalizeEmail(email)
}
