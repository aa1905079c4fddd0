package ports

import (
	"context"

	"github.com/hospicore/auth-system/internal/core/domain"
)

// WireUser is the loosely-typed user object the backend attaches to login
// responses. Name and Username vary by endpoint; Role carries the raw backend
// identifier.
type WireUser struct {
	ID          domain.FlexID `json:"id"`
	Name        string        `json:"name"`
	Username    string        `json:"username"`
	Email       string        `json:"email"`
	Phone       string        `json:"phone"`
	Role        string        `json:"role"`
	Permissions []string      `json:"permissions"`
}

// DisplayName prefers the human name over the login name.
func (w *WireUser) DisplayName() string {
	if w.Name != "" {
		return w.Name
	}
	return w.Username
}

// LoginResponse is the wire shape of the login endpoint. A missing
// AccessToken or RefreshToken signals failure regardless of HTTP status.
type LoginResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	User         *WireUser `json:"user,omitempty"`
}

// RefreshResponse is the wire shape of the refresh endpoint. A missing
// AccessToken signals failure.
type RefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Registration is the user-data payload for the register endpoint.
type Registration struct {
	Username string `json:"username"`
	FullName string `json:"fullName,omitempty"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// AuthAPI is the outbound port to the hospital authentication backend.
// Register and the OTP calls return the raw response body because the backend
// answers them with bare strings or loosely-typed objects; normalization is
// the session layer's job.
type AuthAPI interface {
	Login(ctx context.Context, identifier, password string) (*LoginResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*RefreshResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	Register(ctx context.Context, reg Registration) ([]byte, error)
	VerifyOTP(ctx context.Context, email, otp string) ([]byte, error)
	ResendOTP(ctx context.Context, email string) ([]byte, error)
	DebugOTP(ctx context.Context, email string) (*domain.OTP, error)
}
