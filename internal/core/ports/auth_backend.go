package ports

import (
	"context"
	"time"

	"github.com/hospicore/auth-system/internal/core/domain"
)

// Credentials is a freshly issued token pair with the account it belongs to.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	Account      *domain.Account
}

// AuthBackend is the server-side authentication service consumed by the HTTP
// handlers. Register, VerifyOTP and ResendOTP return the human-readable
// message the legacy endpoints answer with.
type AuthBackend interface {
	Register(ctx context.Context, reg Registration) (string, error)
	Login(ctx context.Context, identifier, password string) (*Credentials, error)
	Refresh(ctx context.Context, refreshToken string) (*Credentials, error)
	Logout(ctx context.Context, refreshToken string) error
	VerifyOTP(ctx context.Context, email, code string) (string, error)
	ResendOTP(ctx context.Context, email string) (string, error)
	DebugOTP(ctx context.Context, email string) (*domain.OTP, error)
}

// OTPStore holds pending activation codes. Get returns domain.ErrOTPExpired
// when no live code exists for the address.
type OTPStore interface {
	Put(ctx context.Context, email, code string, ttl time.Duration) error
	Get(ctx context.Context, email string) (*domain.OTP, error)
	Delete(ctx context.Context, email string) error
}

// RefreshStore tracks issued refresh tokens. Lookup returns
// domain.ErrRefreshInvalid for unknown or revoked tokens.
type RefreshStore interface {
	Save(ctx context.Context, token, accountID string, ttl time.Duration) error
	Lookup(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string) error
}

// MailJob is a queued OTP delivery.
type MailJob struct {
	Email string
	Code  string
}

// MailSender delivers OTP codes to users.
type MailSender interface {
	SendOTP(ctx context.Context, email, code string) error
}

// MailQueue accepts OTP deliveries for asynchronous dispatch.
type MailQueue interface {
	Enqueue(job MailJob)
}
