package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/septivank/water-meter-agent/internal/models"
)

func setupTestStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewStore(client, "test:", zap.NewNop())
}

func TestStore_SaveAuthAndRead(t *testing.T) {
	mr, s := setupTestStore(t)
	ctx := context.Background()

	err := s.SaveAuth(ctx, "tok-1", "ref-1", models.User{ID: "7", Name: "Agent Smith"})
	require.NoError(t, err)

	token, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	refresh, err := s.RefreshToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ref-1", refresh)

	user, err := s.User(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ID("7"), user.ID)

	raw, err := mr.Get("test:auth:token")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", raw)
}

func TestStore_MissingKey(t *testing.T) {
	_, s := setupTestStore(t)

	_, err := s.Token(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.CurrentCustomer(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SaveTokensKeepsUser(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveAuth(ctx, "tok-1", "ref-1", models.User{ID: "7"}))

	require.NoError(t, s.SaveTokens(ctx, "tok-2", ""))

	token, _ := s.Token(ctx)
	refresh, _ := s.RefreshToken(ctx)
	user, err := s.User(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token)
	assert.Equal(t, "ref-1", refresh)
	assert.Equal(t, models.ID("7"), user.ID)
}

func TestStore_CurrentCustomerRoundTrip(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()
	snapshot := models.CustomerSnapshot{
		Customer:      models.Customer{ID: "c-1", Code: "CUST01"},
		Meter:         models.Meter{ID: "m-1"},
		PreviousIndex: decimal.RequireFromString("95.5"),
		ResolvedAt:    time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
	}

	require.NoError(t, s.SaveCurrentCustomer(ctx, snapshot))
	got, err := s.CurrentCustomer(ctx)

	require.NoError(t, err)
	assert.Equal(t, "CUST01", got.Customer.Code)
	assert.True(t, got.PreviousIndex.Equal(snapshot.PreviousIndex))

	require.NoError(t, s.ClearCurrentCustomer(ctx))
	_, err = s.CurrentCustomer(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ClearAuthRemovesEverything(t *testing.T) {
	mr, s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveAuth(ctx, "tok-1", "ref-1", models.User{ID: "7"}))
	require.NoError(t, s.SaveCurrentCustomer(ctx, models.CustomerSnapshot{}))

	require.NoError(t, s.ClearAuth(ctx))

	assert.False(t, mr.Exists("test:auth:token"))
	assert.False(t, mr.Exists("test:auth:refresh_token"))
	assert.False(t, mr.Exists("test:auth:user"))
	assert.False(t, mr.Exists("test:session:current_customer"))
}
