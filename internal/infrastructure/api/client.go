package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hospicore/auth-system/internal/core/domain"
	"github.com/hospicore/auth-system/internal/core/ports"
)

const defaultTimeout = 30 * time.Second

// Client talks to the hospital authentication backend. It implements
// ports.AuthAPI. The bearer token is mutable: wire SetToken to the session
// manager's OnBearerChange so every credential change propagates here.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// NewClient creates a client for the given base URL (no trailing slash).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// SetToken installs the bearer credential carried on subsequent requests.
// An empty token clears it.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Login exchanges credentials for a token pair.
func (c *Client) Login(ctx context.Context, identifier, password string) (*ports.LoginResponse, error) {
	body := map[string]string{"identifier": identifier, "password": password}
	var resp ports.LoginResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", body, &resp); err != nil {
		return nil, fmt.Errorf("api.Login: %w", err)
	}
	return &resp, nil
}

// Refresh trades a refresh token for a new pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*ports.RefreshResponse, error) {
	body := map[string]string{"refreshToken": refreshToken}
	var resp ports.RefreshResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/refresh-token", body, &resp); err != nil {
		return nil, fmt.Errorf("api.Refresh: %w", err)
	}
	return &resp, nil
}

// Logout notifies the server. The caller decides how much to care about the
// returned error.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	body := map[string]string{"refreshToken": refreshToken}
	if _, err := c.doRaw(ctx, http.MethodPost, "/api/auth/logout", body); err != nil {
		return fmt.Errorf("api.Logout: %w", err)
	}
	return nil
}

// Register submits user data. The response body is returned raw because the
// endpoint answers with a bare string or a loosely-typed object.
func (c *Client) Register(ctx context.Context, reg ports.Registration) ([]byte, error) {
	raw, err := c.doRaw(ctx, http.MethodPost, "/api/auth/register", reg)
	if err != nil {
		return nil, fmt.Errorf("api.Register: %w", err)
	}
	return raw, nil
}

// VerifyOTP submits an activation code; raw body, same contract as Register.
func (c *Client) VerifyOTP(ctx context.Context, email, otp string) ([]byte, error) {
	body := map[string]string{"email": email, "otp": otp}
	raw, err := c.doRaw(ctx, http.MethodPost, "/api/auth/verify-otp", body)
	if err != nil {
		return nil, fmt.Errorf("api.VerifyOTP: %w", err)
	}
	return raw, nil
}

// ResendOTP requests a fresh activation code; raw body.
func (c *Client) ResendOTP(ctx context.Context, email string) ([]byte, error) {
	body := map[string]string{"email": email}
	raw, err := c.doRaw(ctx, http.MethodPost, "/api/auth/resend-otp", body)
	if err != nil {
		return nil, fmt.Errorf("api.ResendOTP: %w", err)
	}
	return raw, nil
}

// DebugOTP fetches the pending code for an address. Development aid only; the
// backend refuses it in production.
func (c *Client) DebugOTP(ctx context.Context, email string) (*domain.OTP, error) {
	params := url.Values{}
	params.Set("email", email)

	raw, err := c.doRaw(ctx, http.MethodGet, "/api/auth/debug-otp?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("api.DebugOTP: %w", err)
	}
	var otp domain.OTP
	if err := json.Unmarshal(raw, &otp); err != nil {
		return nil, fmt.Errorf("api.DebugOTP: decode response: %w", err)
	}
	return &otp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	raw, err := c.doRaw(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.bearer(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB cap
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return nil, &HTTPError{StatusCode: resp.StatusCode, Message: apiErr.Error}
		}
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	return respBody, nil
}
