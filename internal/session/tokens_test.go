package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardfolio-api/internal/model"
	"cardfolio-api/pkg/apierror"
)

func newTestTokenStore(t *testing.T, ttl time.Duration) (*TokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTokenStore(client, ttl), mr
}

func TestTokenStore_GenerateValidate(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestTokenStore(t, time.Hour)

	token, data, err := s.Generate(ctx, model.Identity{UserID: "alice", Email: "a@example.com"})
	require.NoError(t, err)
	assert.Contains(t, token, TokenPrefix)
	assert.Equal(t, "alice", data.UserID)
	assert.True(t, mr.Exists(TokenKeyPrefix+token))

	got, err := s.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, "a@example.com", got.Email)
}

func TestTokenStore_RejectsBadTokens(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestTokenStore(t, time.Hour)

	for _, token := range []string{"", "nope", TokenPrefix + "unknown"} {
		_, err := s.Validate(ctx, token)
		require.Error(t, err)
		assert.Equal(t, apierror.KindAuthentication, apierror.Classify(err).Kind, token)
	}
}

func TestTokenStore_ExpiryAndRevoke(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestTokenStore(t, time.Minute)

	token, _, err := s.Generate(ctx, model.Identity{UserID: "alice"})
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)
	_, err = s.Validate(ctx, token)
	assert.Error(t, err)

	token, _, err = s.Generate(ctx, model.Identity{UserID: "alice"})
	require.NoError(t, err)
	require.NoError(t, s.Revoke(ctx, token))
	_, err = s.Validate(ctx, token)
	assert.Error(t, err)
}

func TestTokenStore_Refresh(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestTokenStore(t, time.Minute)

	token, first, err := s.Generate(ctx, model.Identity{UserID: "alice"})
	require.NoError(t, err)

	mr.FastForward(30 * time.Second)
	refreshed, err := s.Refresh(ctx, token)
	require.NoError(t, err)
	assert.True(t, refreshed.ExpiresAt.After(first.ExpiresAt) || refreshed.ExpiresAt.Equal(first.ExpiresAt))
	assert.Equal(t, time.Minute, mr.TTL(TokenKeyPrefix+token))
}
