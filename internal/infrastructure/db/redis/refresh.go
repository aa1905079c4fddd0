package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hospicore/auth-system/internal/core/domain"
)

// RefreshStore tracks issued refresh tokens in Redis.
// Key format: refresh:<token> -> account id, expiring with the token's TTL,
// so revocation and natural expiry are the same mechanism.
type RefreshStore struct {
	client *redis.Client
}

// NewRefreshStore creates a RefreshStore wrapping the given Redis client.
func NewRefreshStore(client *redis.Client) *RefreshStore {
	return &RefreshStore{client: client}
}

// Save records a token for its account.
func (s *RefreshStore) Save(ctx context.Context, token, accountID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(token), accountID, ttl).Err(); err != nil {
		return fmt.Errorf("refresh save: %w", err)
	}
	return nil
}

// Lookup resolves a token to its account id. Unknown, revoked, and expired
// tokens all come back as domain.ErrRefreshInvalid.
func (s *RefreshStore) Lookup(ctx context.Context, token string) (string, error) {
	accountID, err := s.client.Get(ctx, s.key(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrRefreshInvalid
	}
	if err != nil {
		return "", fmt.Errorf("refresh lookup: %w", err)
	}
	return accountID, nil
}

// Revoke deletes a token. Revoking an absent token is a no-op.
func (s *RefreshStore) Revoke(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("refresh revoke: %w", err)
	}
	return nil
}

func (s *RefreshStore) key(token string) string {
	return "refresh:" + token
}
