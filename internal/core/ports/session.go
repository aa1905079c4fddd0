package ports

import (
	"context"

	"github.com/hospicore/auth-system/internal/core/domain"
)

// AuthResult is the uniform outcome of the session operations. User is only
// populated by a successful Login.
type AuthResult struct {
	Success bool
	Message string
	User    *domain.User
}

// UserPatch carries the fields of a shallow user update; nil fields are left
// untouched by the merge.
type UserPatch struct {
	Name        *string
	Email       *string
	Phone       *string
	Role        *string
	Permissions *[]string
}

// Session is the authentication session the host application consumes.
// Operations never return errors: failures surface as AuthResult values and
// startup failures degrade to a logged-out session.
type Session interface {
	Initialize(ctx context.Context)
	Login(ctx context.Context, identifier, password string) AuthResult
	Logout(ctx context.Context)
	Register(ctx context.Context, reg Registration) AuthResult
	VerifyOTP(ctx context.Context, email, otp string) AuthResult
	ResendOTP(ctx context.Context, email string) AuthResult
	UpdateUser(patch UserPatch)
	HasPermission(permission string) bool

	CurrentUser() *domain.User
	IsAuthenticated() bool
	Loading() bool
	BearerToken() string
	OnBearerChange(fn func(token string))
}
