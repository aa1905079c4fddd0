package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/hospicore/auth-system/internal/core/domain"
	"github.com/hospicore/auth-system/internal/core/ports"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
	defaultOTPTTL     = 10 * time.Minute

	defaultRole = "benhnhan"
)

// AuthService implements ports.AuthBackend: registration with OTP activation,
// credential login, and refresh-token rotation.
type AuthService struct {
	repo       ports.AccountRepository
	otp        ports.OTPStore
	refresh    ports.RefreshStore
	mail       ports.MailQueue
	jwtSecret  string
	accessTTL  time.Duration
	refreshTTL time.Duration
	otpTTL     time.Duration
}

func NewAuthService(repo ports.AccountRepository, otp ports.OTPStore, refresh ports.RefreshStore, mail ports.MailQueue, jwtSecret string, accessTTL, refreshTTL, otpTTL time.Duration) *AuthService {
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	if otpTTL <= 0 {
		otpTTL = defaultOTPTTL
	}
	return &AuthService{
		repo:       repo,
		otp:        otp,
		refresh:    refresh,
		mail:       mail,
		jwtSecret:  jwtSecret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		otpTTL:     otpTTL,
	}
}

// Register creates an inactive account and queues an activation code for
// delivery. The returned message is the exact sentinel legacy clients match
// against.
func (s *AuthService) Register(ctx context.Context, reg ports.Registration) (string, error) {
	if reg.Username == "" || reg.Password == "" || reg.Email == "" {
		return "", domain.ErrInvalidCredentials
	}
	role := reg.Role
	if role == "" {
		role = defaultRole
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	account := &domain.Account{
		Username:     reg.Username,
		FullName:     reg.FullName,
		Email:        reg.Email,
		Phone:        reg.Phone,
		PasswordHash: string(hash),
		Role:         role,
		Active:       false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := s.repo.Create(ctx, account); err != nil {
		return "", err
	}
	if err := s.issueOTP(ctx, reg.Email); err != nil {
		return "", err
	}
	return SentinelRegistered, nil
}

// Login resolves the identifier (username, email, or phone), checks the
// password, and issues a fresh token pair. Inactive accounts are rejected.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*ports.Credentials, error) {
	if identifier == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	account, err := s.repo.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if !account.Active {
		return nil, domain.ErrAccountInactive
	}

	return s.issueCredentials(ctx, account)
}

// Refresh rotates a refresh token: the old token is revoked and a new pair
// issued, so a leaked token is single-use at most.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*ports.Credentials, error) {
	accountID, err := s.refresh.Lookup(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	account, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := s.refresh.Revoke(ctx, refreshToken); err != nil {
		return nil, err
	}
	return s.issueCredentials(ctx, account)
}

// Logout revokes the refresh token when one is presented. Unknown tokens are
// not an error; the endpoint has no failure contract.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.refresh.Revoke(ctx, refreshToken)
}

// VerifyOTP activates the account when the live code matches.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) (string, error) {
	pending, err := s.otp.Get(ctx, email)
	if err != nil {
		return "", err
	}
	if pending.Code != code {
		return "", domain.ErrOTPInvalid
	}

	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if err := s.repo.Activate(ctx, account.ID); err != nil {
		return "", err
	}
	if err := s.otp.Delete(ctx, email); err != nil {
		return "", err
	}
	return SentinelOTPVerified, nil
}

// ResendOTP replaces any pending code for a not-yet-activated account.
func (s *AuthService) ResendOTP(ctx context.Context, email string) (string, error) {
	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if account.Active {
		return "", domain.ErrAlreadyActivated
	}
	if err := s.issueOTP(ctx, email); err != nil {
		return "", err
	}
	return SentinelOTPResent, nil
}

// DebugOTP exposes the pending code for development tooling. The router only
// mounts it outside production.
func (s *AuthService) DebugOTP(ctx context.Context, email string) (*domain.OTP, error) {
	return s.otp.Get(ctx, email)
}

func (s *AuthService) issueOTP(ctx context.Context, email string) error {
	code, err := generateOTP()
	if err != nil {
		return err
	}
	if err := s.otp.Put(ctx, email, code, s.otpTTL); err != nil {
		return err
	}
	s.mail.Enqueue(ports.MailJob{Email: email, Code: code})
	return nil
}

func (s *AuthService) issueCredentials(ctx context.Context, account *domain.Account) (*ports.Credentials, error) {
	access, err := s.generateAccessToken(account)
	if err != nil {
		return nil, err
	}
	refresh, err := generateRefreshToken()
	if err != nil {
		return nil, err
	}
	if err := s.refresh.Save(ctx, refresh, account.ID, s.refreshTTL); err != nil {
		return nil, err
	}
	return &ports.Credentials{
		AccessToken:  access,
		RefreshToken: refresh,
		Account:      account,
	}, nil
}

func (s *AuthService) generateAccessToken(account *domain.Account) (string, error) {
	claims := jwt.MapClaims{
		"sub":  account.ID,
		"name": account.FullName,
		"role": account.Role,
		"exp":  time.Now().Add(s.accessTTL).Unix(),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(s.jwtSecret))
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n), nil
}

func generateRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
