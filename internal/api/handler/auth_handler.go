package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hospicore/auth-system/internal/api/metrics"
	"github.com/hospicore/auth-system/internal/core/domain"
	"github.com/hospicore/auth-system/internal/core/ports"
)

type AuthHandler struct {
	service ports.AuthBackend
}

func NewAuthHandler(service ports.AuthBackend) *AuthHandler {
	return &AuthHandler{service: service}
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password"   validate:"required"`
}

type registerRequest struct {
	Username string `json:"username" validate:"required"`
	FullName string `json:"fullName"`
	Email    string `json:"email"    validate:"required,email"`
	Phone    string `json:"phone"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type verifyOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp"   validate:"required,len=6,numeric"`
}

type resendOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// accountResponse is the user object attached to token responses. Role is the
// raw backend identifier; clients map it to their own role tags.
type accountResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Role     string `json:"role"`
}

type tokenResponse struct {
	AccessToken  string           `json:"accessToken"`
	RefreshToken string           `json:"refreshToken"`
	User         *accountResponse `json:"user,omitempty"`
}

func toAccountResponse(a *domain.Account) *accountResponse {
	name := a.FullName
	if name == "" {
		name = a.Username
	}
	return &accountResponse{
		ID:       a.ID,
		Name:     name,
		Username: a.Username,
		Email:    a.Email,
		Phone:    a.Phone,
		Role:     a.Role,
	}
}

// Login authenticates by username, email, or phone and returns a token pair.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  tokenResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /api/auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	creds, err := h.service.Login(c.Request().Context(), req.Identifier, req.Password)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues(loginResult(err)).Inc()
		return err
	}
	metrics.LoginsTotal.WithLabelValues("success").Inc()

	return c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		User:         toAccountResponse(creds.Account),
	})
}

// Refresh rotates a refresh token into a new token pair.
//
// @Summary      Refresh tokens
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      refreshRequest  true  "Refresh token"
// @Success      200   {object}  tokenResponse
// @Failure      401   {object}  map[string]string
// @Router       /api/auth/refresh-token [post]
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	creds, err := h.service.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		result := "error"
		if errors.Is(err, domain.ErrRefreshInvalid) {
			result = "invalid"
		}
		metrics.RefreshesTotal.WithLabelValues(result).Inc()
		return err
	}
	metrics.RefreshesTotal.WithLabelValues("success").Inc()

	return c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
	})
}

// Logout revokes the presented refresh token. It never fails from the
// client's point of view: unknown tokens get the same answer.
//
// @Summary      Logout
// @Tags         auth
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /api/auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	var req logoutRequest
	_ = c.Bind(&req) // no required contract on this endpoint

	if err := h.service.Logout(c.Request().Context(), req.RefreshToken); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Logged out"})
}

// Register creates an inactive account and sends an activation code.
// The response body is the bare sentinel string legacy clients match on.
//
// @Summary      Register a new account
// @Tags         auth
// @Accept       json
// @Produce      plain
// @Param        body  body      registerRequest  true  "Registration details"
// @Success      201   {string}  string
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	msg, err := h.service.Register(c.Request().Context(), ports.Registration{
		Username: req.Username,
		FullName: req.FullName,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		return err
	}
	metrics.OTPIssuedTotal.Inc()

	return c.String(http.StatusCreated, msg)
}

// VerifyOTP activates an account with the emailed code. Bare-string response,
// same legacy contract as Register.
//
// @Summary      Verify activation code
// @Tags         auth
// @Accept       json
// @Produce      plain
// @Param        body  body      verifyOTPRequest  true  "Email and code"
// @Success      200   {string}  string
// @Failure      400   {object}  map[string]string
// @Router       /api/auth/verify-otp [post]
func (h *AuthHandler) VerifyOTP(c echo.Context) error {
	var req verifyOTPRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	msg, err := h.service.VerifyOTP(c.Request().Context(), req.Email, req.OTP)
	if err != nil {
		metrics.OTPVerifiedTotal.WithLabelValues(otpResult(err)).Inc()
		return err
	}
	metrics.OTPVerifiedTotal.WithLabelValues("success").Inc()

	return c.String(http.StatusOK, msg)
}

// ResendOTP issues a fresh activation code.
//
// @Summary      Resend activation code
// @Tags         auth
// @Accept       json
// @Produce      plain
// @Param        body  body      resendOTPRequest  true  "Email"
// @Success      200   {string}  string
// @Failure      404   {object}  map[string]string
// @Router       /api/auth/resend-otp [post]
func (h *AuthHandler) ResendOTP(c echo.Context) error {
	var req resendOTPRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	msg, err := h.service.ResendOTP(c.Request().Context(), req.Email)
	if err != nil {
		return err
	}
	metrics.OTPIssuedTotal.Inc()

	return c.String(http.StatusOK, msg)
}

// DebugOTP returns the pending code for an address. Mounted only outside
// production; used to prefill OTP inputs during development.
//
// @Summary      Peek at a pending activation code (dev only)
// @Tags         auth
// @Produce      json
// @Param        email  query     string  true  "Account email"
// @Success      200    {object}  domain.OTP
// @Failure      400    {object}  map[string]string
// @Router       /api/auth/debug-otp [get]
func (h *AuthHandler) DebugOTP(c echo.Context) error {
	email := c.QueryParam("email")
	if email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email is required")
	}

	otp, err := h.service.DebugOTP(c.Request().Context(), email)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, otp)
}

func loginResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, domain.ErrAccountNotFound):
		return "invalid_credentials"
	case errors.Is(err, domain.ErrAccountInactive):
		return "inactive"
	default:
		return "error"
	}
}

func otpResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrOTPInvalid):
		return "invalid"
	case errors.Is(err, domain.ErrOTPExpired):
		return "expired"
	default:
		return "error"
	}
}
