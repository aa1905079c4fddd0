package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hospicore/auth-system/internal/core/domain"
	"github.com/hospicore/auth-system/internal/core/ports"
)

type stubBackend struct {
	registerFn func(ctx context.Context, reg ports.Registration) (string, error)
	loginFn    func(ctx context.Context, identifier, password string) (*ports.Credentials, error)
	refreshFn  func(ctx context.Context, refreshToken string) (*ports.Credentials, error)
	logoutFn   func(ctx context.Context, refreshToken string) error
	verifyFn   func(ctx context.Context, email, code string) (string, error)
	resendFn   func(ctx context.Context, email string) (string, error)
	debugFn    func(ctx context.Context, email string) (*domain.OTP, error)
}

func (s *stubBackend) Register(ctx context.Context, reg ports.Registration) (string, error) {
	return s.registerFn(ctx, reg)
}

func (s *stubBackend) Login(ctx context.Context, identifier, password string) (*ports.Credentials, error) {
	return s.loginFn(ctx, identifier, password)
}

func (s *stubBackend) Refresh(ctx context.Context, refreshToken string) (*ports.Credentials, error) {
	return s.refreshFn(ctx, refreshToken)
}

func (s *stubBackend) Logout(ctx context.Context, refreshToken string) error {
	return s.logoutFn(ctx, refreshToken)
}

func (s *stubBackend) VerifyOTP(ctx context.Context, email, code string) (string, error) {
	return s.verifyFn(ctx, email, code)
}

func (s *stubBackend) ResendOTP(ctx context.Context, email string) (string, error) {
	return s.resendFn(ctx, email)
}

func (s *stubBackend) DebugOTP(ctx context.Context, email string) (*domain.OTP, error) {
	return s.debugFn(ctx, email)
}

func newTestContext(t *testing.T, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	e.Validator = NewValidator()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func httpStatus(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %T: %v", err, err)
	}
	return he.Code
}

func TestAuthHandler_Login_Success(t *testing.T) {
	stub := &stubBackend{
		loginFn: func(_ context.Context, identifier, password string) (*ports.Credentials, error) {
			if identifier != "minh" || password != "secret" {
				t.Fatalf("unexpected args: %s %s", identifier, password)
			}
			return &ports.Credentials{
				AccessToken:  "access-1",
				RefreshToken: "refresh-1",
				Account: &domain.Account{
					ID:       "7",
					Username: "minh",
					FullName: "Dr. Minh",
					Email:    "minh@example.com",
					Role:     "bacsi",
				},
			}, nil
		},
	}
	h := NewAuthHandler(stub)

	c, rec := newTestContext(t, http.MethodPost, "/api/auth/login", `{"identifier":"minh","password":"secret"}`)
	if err := h.Login(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["accessToken"] != "access-1" || resp["refreshToken"] != "refresh-1" {
		t.Fatalf("unexpected tokens: %+v", resp)
	}
	user, ok := resp["user"].(map[string]any)
	if !ok {
		t.Fatalf("expected user in response")
	}
	if user["name"] != "Dr. Minh" || user["role"] != "bacsi" {
		t.Fatalf("unexpected user payload: %+v", user)
	}
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	stub := &stubBackend{
		loginFn: func(context.Context, string, string) (*ports.Credentials, error) {
			return nil, domain.ErrInvalidCredentials
		},
	}
	h := NewAuthHandler(stub)

	c, _ := newTestContext(t, http.MethodPost, "/api/auth/login", `{"identifier":"minh","password":"bad"}`)
	if err := h.Login(c); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthHandler_Login_MissingFields(t *testing.T) {
	stub := &stubBackend{
		loginFn: func(context.Context, string, string) (*ports.Credentials, error) {
			t.Fatalf("should not be called")
			return nil, nil
		},
	}
	h := NewAuthHandler(stub)

	c, _ := newTestContext(t, http.MethodPost, "/api/auth/login", `{"identifier":"minh"}`)
	if code := httpStatus(t, h.Login(c)); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}

	c, _ = newTestContext(t, http.MethodPost, "/api/auth/login", "not-json")
	if code := httpStatus(t, h.Login(c)); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", code)
	}
}

func TestAuthHandler_Register_Success(t *testing.T) {
	stub := &stubBackend{
		registerFn: func(_ context.Context, reg ports.Registration) (string, error) {
			if reg.Username != "minh" || reg.Role != "bacsi" {
				t.Fatalf("unexpected registration: %+v", reg)
			}
			return "User registered successfully. Please check your email for OTP.", nil
		},
	}
	h := NewAuthHandler(stub)

	body := `{"username":"minh","email":"minh@example.com","password":"secret1","role":"bacsi"}`
	c, rec := newTestContext(t, http.MethodPost, "/api/auth/register", body)
	if err := h.Register(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	// Legacy contract: bare string body, not JSON.
	if got := rec.Body.String(); got != "User registered successfully. Please check your email for OTP." {
		t.Fatalf("unexpected body: %q", got)
	}
}

func TestAuthHandler_Register_Validation(t *testing.T) {
	stub := &stubBackend{
		registerFn: func(context.Context, ports.Registration) (string, error) {
			t.Fatalf("should not be called")
			return "", nil
		},
	}
	h := NewAuthHandler(stub)

	// Bad email.
	c, _ := newTestContext(t, http.MethodPost, "/api/auth/register", `{"username":"minh","email":"nope","password":"secret1"}`)
	if code := httpStatus(t, h.Register(c)); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}

	// Short password.
	c, _ = newTestContext(t, http.MethodPost, "/api/auth/register", `{"username":"minh","email":"minh@example.com","password":"abc"}`)
	if code := httpStatus(t, h.Register(c)); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestAuthHandler_Refresh(t *testing.T) {
	stub := &stubBackend{
		refreshFn: func(_ context.Context, token string) (*ports.Credentials, error) {
			if token != "refresh-1" {
				t.Fatalf("unexpected token: %s", token)
			}
			return &ports.Credentials{AccessToken: "access-2", RefreshToken: "refresh-2"}, nil
		},
	}
	h := NewAuthHandler(stub)

	c, rec := newTestContext(t, http.MethodPost, "/api/auth/refresh-token", `{"refreshToken":"refresh-1"}`)
	if err := h.Refresh(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["accessToken"] != "access-2" || resp["refreshToken"] != "refresh-2" {
		t.Fatalf("unexpected tokens: %+v", resp)
	}
}

func TestAuthHandler_Refresh_Invalid(t *testing.T) {
	stub := &stubBackend{
		refreshFn: func(context.Context, string) (*ports.Credentials, error) {
			return nil, domain.ErrRefreshInvalid
		},
	}
	h := NewAuthHandler(stub)

	c, _ := newTestContext(t, http.MethodPost, "/api/auth/refresh-token", `{"refreshToken":"stale"}`)
	if err := h.Refresh(c); !errors.Is(err, domain.ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid, got %v", err)
	}
}

func TestAuthHandler_Logout_AlwaysSucceeds(t *testing.T) {
	var revoked string
	stub := &stubBackend{
		logoutFn: func(_ context.Context, token string) error {
			revoked = token
			return nil
		},
	}
	h := NewAuthHandler(stub)

	c, rec := newTestContext(t, http.MethodPost, "/api/auth/logout", `{"refreshToken":"refresh-1"}`)
	if err := h.Logout(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if revoked != "refresh-1" {
		t.Fatalf("token not forwarded: %q", revoked)
	}

	// An empty body is fine too.
	c, rec = newTestContext(t, http.MethodPost, "/api/auth/logout", "")
	if err := h.Logout(c); err != nil {
		t.Fatalf("handler error on empty body: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for empty body, got %d", rec.Code)
	}
}

func TestAuthHandler_VerifyOTP(t *testing.T) {
	stub := &stubBackend{
		verifyFn: func(_ context.Context, email, code string) (string, error) {
			if email != "minh@example.com" || code != "123456" {
				t.Fatalf("unexpected args: %s %s", email, code)
			}
			return "Account activated successfully", nil
		},
	}
	h := NewAuthHandler(stub)

	c, rec := newTestContext(t, http.MethodPost, "/api/auth/verify-otp", `{"email":"minh@example.com","otp":"123456"}`)
	if err := h.VerifyOTP(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK || rec.Body.String() != "Account activated successfully" {
		t.Fatalf("unexpected response: %d %q", rec.Code, rec.Body.String())
	}
}

func TestAuthHandler_VerifyOTP_MalformedCode(t *testing.T) {
	stub := &stubBackend{
		verifyFn: func(context.Context, string, string) (string, error) {
			t.Fatalf("should not be called")
			return "", nil
		},
	}
	h := NewAuthHandler(stub)

	for _, otp := range []string{"12345", "abcdef", ""} {
		c, _ := newTestContext(t, http.MethodPost, "/api/auth/verify-otp", `{"email":"minh@example.com","otp":"`+otp+`"}`)
		if code := httpStatus(t, h.VerifyOTP(c)); code != http.StatusBadRequest {
			t.Fatalf("otp %q: expected 400, got %d", otp, code)
		}
	}
}

func TestAuthHandler_ResendOTP(t *testing.T) {
	stub := &stubBackend{
		resendFn: func(_ context.Context, email string) (string, error) {
			if email != "minh@example.com" {
				t.Fatalf("unexpected email: %s", email)
			}
			return "New OTP sent to your email", nil
		},
	}
	h := NewAuthHandler(stub)

	c, rec := newTestContext(t, http.MethodPost, "/api/auth/resend-otp", `{"email":"minh@example.com"}`)
	if err := h.ResendOTP(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK || rec.Body.String() != "New OTP sent to your email" {
		t.Fatalf("unexpected response: %d %q", rec.Code, rec.Body.String())
	}
}

func TestAuthHandler_DebugOTP(t *testing.T) {
	stub := &stubBackend{
		debugFn: func(_ context.Context, email string) (*domain.OTP, error) {
			return &domain.OTP{Code: "654321", ExpiresAt: time.Now().Add(time.Minute)}, nil
		},
	}
	h := NewAuthHandler(stub)

	c, rec := newTestContext(t, http.MethodGet, "/api/auth/debug-otp?email=minh@example.com", "")
	if err := h.DebugOTP(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["code"] != "654321" {
		t.Fatalf("unexpected payload: %+v", resp)
	}

	c, _ = newTestContext(t, http.MethodGet, "/api/auth/debug-otp", "")
	if code := httpStatus(t, h.DebugOTP(c)); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing email, got %d", code)
	}
}
