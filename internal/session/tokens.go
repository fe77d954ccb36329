package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"cardfolio-api/internal/logger"
	"cardfolio-api/internal/model"
	"cardfolio-api/pkg/apierror"
)

const (
	// TokenPrefix is the prefix for all session tokens
	TokenPrefix = "cfs_"

	// DefaultTokenTTL is the default token lifetime
	DefaultTokenTTL = 24 * time.Hour

	// TokenKeyPrefix is the Redis key prefix for tokens
	TokenKeyPrefix = "cardfolio:session:"
)

// TokenStore issues opaque session tokens and keeps their data in Redis.
type TokenStore struct {
	redis *redis.Client
	ttl   time.Duration
	log   *zap.Logger
}

// NewTokenStore creates a token store. A non-positive ttl uses
// DefaultTokenTTL.
func NewTokenStore(client *redis.Client, ttl time.Duration) *TokenStore {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenStore{
		redis: client,
		ttl:   ttl,
		log:   logger.Named(nil, "TokenStore"),
	}
}

// Generate creates a new session token for identity.
func (s *TokenStore) Generate(ctx context.Context, identity model.Identity) (string, *model.TokenData, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", nil, fmt.Errorf("failed to generate token: %w", err)
	}
	token := TokenPrefix + hex.EncodeToString(tokenBytes)

	now := time.Now()
	data := &model.TokenData{
		Identity:  identity,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return "", nil, fmt.Errorf("failed to serialize token data: %w", err)
	}

	if err := s.redis.Set(ctx, TokenKeyPrefix+token, payload, s.ttl).Err(); err != nil {
		return "", nil, apierror.RemoteStore("failed to store session token", true, err)
	}

	s.log.Info("generated token", zap.String("user_id", identity.UserID), zap.Time("expires", data.ExpiresAt))
	return token, data, nil
}

// Validate checks a token and returns its data.
func (s *TokenStore) Validate(ctx context.Context, token string) (*model.TokenData, error) {
	if token == "" {
		return nil, apierror.Unauthorized("empty token")
	}
	if !strings.HasPrefix(token, TokenPrefix) {
		return nil, apierror.Unauthorized("invalid token format")
	}

	key := TokenKeyPrefix + token
	payload, err := s.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apierror.Unauthorized("token not found or expired")
	}
	if err != nil {
		return nil, apierror.RemoteStore("failed to read session token", true, err)
	}

	var data model.TokenData
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("failed to parse token data: %w", err)
	}

	if time.Now().After(data.ExpiresAt) {
		s.redis.Del(ctx, key)
		return nil, apierror.Unauthorized("token expired")
	}

	return &data, nil
}

// Revoke deletes a token.
func (s *TokenStore) Revoke(ctx context.Context, token string) error {
	return s.redis.Del(ctx, TokenKeyPrefix+token).Err()
}

// Refresh extends the lifetime of an existing token.
func (s *TokenStore) Refresh(ctx context.Context, token string) (*model.TokenData, error) {
	data, err := s.Validate(ctx, token)
	if err != nil {
		return nil, err
	}

	data.ExpiresAt = time.Now().Add(s.ttl)
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	if err := s.redis.Set(ctx, TokenKeyPrefix+token, payload, s.ttl).Err(); err != nil {
		return nil, apierror.RemoteStore("failed to refresh session token", true, err)
	}
	return data, nil
}
