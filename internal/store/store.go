package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/septivank/water-meter-agent/internal/models"
)

// Fixed keys, relative to the configured prefix
const (
	KeyToken           = "auth:token"
	KeyRefreshToken    = "auth:refresh_token"
	KeyUser            = "auth:user"
	KeyCurrentCustomer = "session:current_customer"
)

// ErrNotFound is returned when a key holds no value
var ErrNotFound = errors.New("store: value not found")

// Store persists the authenticated session and the current customer snapshot
type Store struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewStore creates a store on an existing Redis client
func NewStore(client *redis.Client, prefix string, logger *zap.Logger) *Store {
	return &Store{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

// SaveAuth stores the token pair and the user atomically
func (s *Store) SaveAuth(ctx context.Context, token, refreshToken string, user models.User) error {
	userJSON, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(KeyToken), token, 0)
		if refreshToken != "" {
			pipe.Set(ctx, s.key(KeyRefreshToken), refreshToken, 0)
		} else {
			pipe.Del(ctx, s.key(KeyRefreshToken))
		}
		pipe.Set(ctx, s.key(KeyUser), userJSON, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save auth session: %w", err)
	}

	s.logger.Debug("auth session saved", zap.String("user_id", user.ID.String()))
	return nil
}

// SaveTokens replaces the token pair, keeping the stored user
func (s *Store) SaveTokens(ctx context.Context, token, refreshToken string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(KeyToken), token, 0)
		if refreshToken != "" {
			pipe.Set(ctx, s.key(KeyRefreshToken), refreshToken, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save tokens: %w", err)
	}
	return nil
}

// SaveUser replaces the stored user
func (s *Store) SaveUser(ctx context.Context, user models.User) error {
	return s.setJSON(ctx, KeyUser, user)
}

func (s *Store) Token(ctx context.Context) (string, error) {
	return s.get(ctx, KeyToken)
}

func (s *Store) RefreshToken(ctx context.Context) (string, error) {
	return s.get(ctx, KeyRefreshToken)
}

func (s *Store) User(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := s.getJSON(ctx, KeyUser, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ClearAuth removes the token pair, the user and the current customer
func (s *Store) ClearAuth(ctx context.Context) error {
	err := s.client.Del(ctx,
		s.key(KeyToken),
		s.key(KeyRefreshToken),
		s.key(KeyUser),
		s.key(KeyCurrentCustomer),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to clear auth session: %w", err)
	}
	return nil
}

func (s *Store) SaveCurrentCustomer(ctx context.Context, snapshot models.CustomerSnapshot) error {
	return s.setJSON(ctx, KeyCurrentCustomer, snapshot)
}

func (s *Store) CurrentCustomer(ctx context.Context) (*models.CustomerSnapshot, error) {
	var snapshot models.CustomerSnapshot
	if err := s.getJSON(ctx, KeyCurrentCustomer, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (s *Store) ClearCurrentCustomer(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key(KeyCurrentCustomer)).Err(); err != nil {
		return fmt.Errorf("failed to clear current customer: %w", err)
	}
	return nil
}

func (s *Store) key(name string) string {
	return s.prefix + name
}

func (s *Store) get(ctx context.Context, name string) (string, error) {
	val, err := s.client.Get(ctx, s.key(name)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get %s: %w", name, err)
	}
	return val, nil
}

func (s *Store) setJSON(ctx context.Context, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	if err := s.client.Set(ctx, s.key(name), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", name, err)
	}
	return nil
}

func (s *Store) getJSON(ctx context.Context, name string, v any) error {
	raw, err := s.get(ctx, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", name, err)
	}
	return nil
}
