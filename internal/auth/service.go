package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/septivank/water-meter-agent/internal/apperror"
	"github.com/septivank/water-meter-agent/internal/backend"
	"github.com/septivank/water-meter-agent/internal/models"
	"github.com/septivank/water-meter-agent/internal/store"
)

// expirySkew refreshes tokens slightly before they actually expire
const expirySkew = 30 * time.Second

// API is the subset of the backend used for the session lifecycle
type API interface {
	Login(ctx context.Context, email, password string) (*backend.AuthResult, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*models.User, error)
	Refresh(ctx context.Context, refreshToken string) (*backend.AuthResult, error)
}

// SessionStore persists the authenticated session
type SessionStore interface {
	SaveAuth(ctx context.Context, token, refreshToken string, user models.User) error
	SaveTokens(ctx context.Context, token, refreshToken string) error
	SaveUser(ctx context.Context, user models.User) error
	Token(ctx context.Context) (string, error)
	RefreshToken(ctx context.Context) (string, error)
	User(ctx context.Context) (*models.User, error)
	ClearAuth(ctx context.Context) error
}

// Service owns the login/logout/refresh lifecycle and acts as the backend token source
type Service struct {
	api    API
	store  SessionStore
	logger *zap.Logger
	now    func() time.Time

	refreshMu sync.Mutex
}

func NewService(api API, st SessionStore, logger *zap.Logger) *Service {
	return &Service{
		api:    api,
		store:  st,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) Login(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperror.Validation("email and password are required")
	}

	result, err := s.api.Login(ctx, email, password)
	if err != nil {
		s.logger.Warn("login failed", zap.String("email", email), zap.Error(err))
		return nil, err
	}

	if err := s.store.SaveAuth(ctx, result.Token, result.RefreshToken, result.User); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	s.logger.Info("logged in", zap.String("user_id", result.User.ID.String()))
	return &result.User, nil
}

// Logout tells the backend (best effort) and always clears the local session
func (s *Service) Logout(ctx context.Context) error {
	if err := s.api.Logout(ctx); err != nil {
		s.logger.Warn("backend logout failed, clearing local session anyway", zap.Error(err))
	}
	if err := s.store.ClearAuth(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	s.logger.Info("logged out")
	return nil
}

// Me fetches the current user and refreshes the stored copy
func (s *Service) Me(ctx context.Context) (*models.User, error) {
	user, err := s.api.Me(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveUser(ctx, *user); err != nil {
		s.logger.Warn("failed to store user", zap.Error(err))
	}
	return user, nil
}

// CurrentUser returns the locally stored user without a network call
func (s *Service) CurrentUser(ctx context.Context) (*models.User, error) {
	user, err := s.store.User(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperror.Auth("you are not logged in", nil)
	}
	return user, err
}

// Refresh exchanges the stored refresh token for a new token pair
func (s *Service) Refresh(ctx context.Context) (string, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *Service) refreshLocked(ctx context.Context) (string, error) {
	refreshToken, err := s.store.RefreshToken(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return "", apperror.Auth("your session has expired, please log in again", nil)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read refresh token: %w", err)
	}

	result, err := s.api.Refresh(ctx, refreshToken)
	if err != nil {
		s.logger.Warn("token refresh failed", zap.Error(err))
		return "", apperror.Auth("your session has expired, please log in again", err)
	}

	if err := s.store.SaveTokens(ctx, result.Token, result.RefreshToken); err != nil {
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}
	s.logger.Debug("access token refreshed")
	return result.Token, nil
}

// Token returns a usable access token, refreshing it once when its exp claim has passed
func (s *Service) Token(ctx context.Context) (string, error) {
	token, err := s.store.Token(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return "", apperror.Auth("you are not logged in", nil)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}

	if !s.expired(token) {
		return token, nil
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	// another caller may have refreshed while we waited
	if current, err := s.store.Token(ctx); err == nil && current != token && !s.expired(current) {
		return current, nil
	}
	return s.refreshLocked(ctx)
}

// expired reads the exp claim without verifying the signature; opaque tokens never expire locally
func (s *Service) expired(token string) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !s.now().Add(expirySkew).Before(claims.ExpiresAt.Time)
}
