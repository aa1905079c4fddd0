package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hospicore/auth-system/internal/core/domain"
)

// OTPStore keeps pending activation codes in Redis, one live code per email.
// Key format: otp:<email>. Expiry is Redis TTL, so codes vanish on their own.
type OTPStore struct {
	client *redis.Client
}

// NewOTPStore creates an OTPStore wrapping the given Redis client.
func NewOTPStore(client *redis.Client) *OTPStore {
	return &OTPStore{client: client}
}

// Put stores a code, replacing any previous one for the address.
func (s *OTPStore) Put(ctx context.Context, email, code string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(email), code, ttl).Err(); err != nil {
		return fmt.Errorf("otp put: %w", err)
	}
	return nil
}

// Get returns the live code and its expiry. Returns domain.ErrOTPExpired when
// no code exists, whether it expired or was never issued.
func (s *OTPStore) Get(ctx context.Context, email string) (*domain.OTP, error) {
	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, s.key(email))
	ttlCmd := pipe.PTTL(ctx, s.key(email))
	if _, err := pipe.Exec(ctx); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrOTPExpired
		}
		return nil, fmt.Errorf("otp get: %w", err)
	}

	code := getCmd.Val()
	expiresAt := time.Now().Add(ttlCmd.Val()).UTC()
	return &domain.OTP{Code: code, ExpiresAt: expiresAt}, nil
}

// Delete removes the code after successful verification.
func (s *OTPStore) Delete(ctx context.Context, email string) error {
	if err := s.client.Del(ctx, s.key(email)).Err(); err != nil {
		return fmt.Errorf("otp delete: %w", err)
	}
	return nil
}

func (s *OTPStore) key(email string) string {
	return "otp:" + email
}
