package domain

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountExists      = errors.New("account already exists")
	ErrAccountInactive    = errors.New("account not activated")
	ErrAlreadyActivated   = errors.New("account already activated")
	ErrOTPInvalid         = errors.New("invalid otp code")
	ErrOTPExpired         = errors.New("otp code expired")
	ErrRefreshInvalid     = errors.New("invalid refresh token")
	ErrForbidden          = errors.New("access forbidden")

	// ErrKeyNotFound is returned by key-value stores for absent keys.
	ErrKeyNotFound = errors.New("key not found")
)
