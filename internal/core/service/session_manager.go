package service

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/hospicore/auth-system/internal/core/domain"
	"github.com/hospicore/auth-system/internal/core/ports"
)

// Persisted store keys. Only the session manager reads or writes these.
const (
	keyAccessToken  = "token"
	keyRefreshToken = "refreshToken"
	keyUser         = "hospital_user"
)

const (
	msgLoginFailed  = "Đăng nhập thất bại"
	msgLoginPending = "Đăng nhập đang được xử lý"
	msgOTPMalformed = "Mã OTP phải gồm đúng 6 chữ số"
)

// SessionManager owns the client-side authentication session: the current
// user, the loading flag, and the access/refresh token pair persisted in a
// durable key-value store. It implements ports.Session.
//
// Startup deliberately fails open: when the stored access token has expired
// and the refresh call cannot produce a new one, the cached session is
// restored anyway and the stale token re-installed. The server's 401 on the
// next authenticated call is the authoritative rejection; a flaky refresh
// endpoint must not log users out.
type SessionManager struct {
	api      ports.AuthAPI
	store    ports.KVStore
	roles    domain.RoleMap
	log      zerolog.Logger
	validate *validator.Validate
	now      func() time.Time

	mu            sync.Mutex
	user          *domain.User
	loading       bool
	loginInFlight bool

	bearerMu  sync.Mutex
	bearer    string
	listeners []func(token string)
}

// NewSessionManager creates a manager in the pre-Initialize state
// (user=nil, loading=true). A nil roles map selects the default mapping.
func NewSessionManager(api ports.AuthAPI, store ports.KVStore, roles domain.RoleMap, log zerolog.Logger) *SessionManager {
	if roles == nil {
		roles = domain.DefaultRoleMap()
	}
	return &SessionManager{
		api:      api,
		store:    store,
		roles:    roles,
		log:      log,
		validate: validator.New(),
		now:      time.Now,
		loading:  true,
	}
}

// Initialize restores a previous session from the durable store. It contacts
// the server only when the stored access token is expired or undecodable, and
// it never leaves the session in a loading state, whatever branch is taken.
func (m *SessionManager) Initialize(ctx context.Context) {
	defer m.setLoading(false)

	access, errAccess := m.store.Get(ctx, keyAccessToken)
	refresh, errRefresh := m.store.Get(ctx, keyRefreshToken)
	storedUser, errUser := m.store.Get(ctx, keyUser)
	if errAccess != nil || errRefresh != nil || errUser != nil {
		m.log.Debug().Msg("no stored session, starting logged out")
		return
	}

	cached := &domain.User{}
	if err := json.Unmarshal([]byte(storedUser), cached); err != nil {
		m.log.Warn().Err(err).Msg("stored user record unreadable, starting logged out")
		return
	}

	if exp, ok := claimExpiry(tokenClaims(access)); ok && exp.After(m.now()) {
		// Token still valid: trust it without contacting the server.
		m.adopt(cached, access)
		return
	}

	resp, err := m.api.Refresh(ctx, refresh)
	if err != nil || resp == nil || resp.AccessToken == "" {
		// Fail open: keep the cached session alive with the stale token and
		// let the next authenticated call get the server's verdict.
		m.log.Warn().Err(err).Msg("silent refresh failed, restoring cached session")
		m.adopt(cached, access)
		return
	}

	if role := claimString(tokenClaims(resp.AccessToken), "role"); role != "" {
		cached.Role = m.roles.Map(role)
	}
	newRefresh := resp.RefreshToken
	if newRefresh == "" {
		newRefresh = refresh
	}
	m.persist(ctx, resp.AccessToken, newRefresh, cached)
	m.adopt(cached, resp.AccessToken)
}

// Login exchanges credentials for a session. The identifier may be a
// username, email, or phone number; its shape is the server's concern.
// A second call while one is in flight is rejected.
func (m *SessionManager) Login(ctx context.Context, identifier, password string) ports.AuthResult {
	m.mu.Lock()
	if m.loginInFlight {
		m.mu.Unlock()
		return ports.AuthResult{Message: msgLoginPending}
	}
	m.loginInFlight = true
	m.loading = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.loginInFlight = false
		m.loading = false
		m.mu.Unlock()
	}()

	resp, err := m.api.Login(ctx, identifier, password)
	if err != nil {
		return ports.AuthResult{Message: failureMessage(err, msgLoginFailed)}
	}
	if resp == nil || resp.AccessToken == "" || resp.RefreshToken == "" {
		// Persisted state is left untouched on a token-less response.
		return ports.AuthResult{Message: msgLoginFailed}
	}

	user := m.deriveUser(resp)
	m.persist(ctx, resp.AccessToken, resp.RefreshToken, user)
	m.adopt(user, resp.AccessToken)
	return ports.AuthResult{Success: true, User: user.Clone()}
}

// deriveUser prefers the server-supplied user object, mapping its raw role;
// token claims are only consulted when the server omitted the user.
func (m *SessionManager) deriveUser(resp *ports.LoginResponse) *domain.User {
	if resp.User != nil {
		return &domain.User{
			ID:          resp.User.ID,
			Name:        resp.User.DisplayName(),
			Email:       resp.User.Email,
			Phone:       resp.User.Phone,
			Role:        m.roles.Map(resp.User.Role),
			Permissions: slices.Clone(resp.User.Permissions),
		}
	}
	claims := tokenClaims(resp.AccessToken)
	return &domain.User{
		ID:   domain.FlexID(claimString(claims, "sub")),
		Role: m.roles.Map(claimString(claims, "role")),
	}
}

// Logout notifies the server best-effort and always tears the local session
// down. Calling it repeatedly, or while logged out, is harmless.
func (m *SessionManager) Logout(ctx context.Context) {
	refresh, _ := m.store.Get(ctx, keyRefreshToken)
	if err := m.api.Logout(ctx, refresh); err != nil {
		m.log.Warn().Err(err).Msg("logout call failed, clearing local session anyway")
	}

	m.mu.Lock()
	m.user = nil
	m.mu.Unlock()
	m.setBearer("")

	for _, key := range []string{keyAccessToken, keyRefreshToken, keyUser} {
		if err := m.store.Delete(ctx, key); err != nil {
			m.log.Warn().Err(err).Str("key", key).Msg("failed to clear stored key")
		}
	}
}

// Register submits user data to the registration endpoint and normalizes its
// loosely-typed response.
func (m *SessionManager) Register(ctx context.Context, reg ports.Registration) ports.AuthResult {
	m.setLoading(true)
	defer m.setLoading(false)

	raw, err := m.api.Register(ctx, reg)
	if err != nil {
		return ports.AuthResult{Message: failureMessage(err, msgRegisterFailed)}
	}
	return NormalizeRegister(raw)
}

// VerifyOTP submits a 6-digit activation code. Malformed codes are rejected
// locally without a network call.
func (m *SessionManager) VerifyOTP(ctx context.Context, email, otp string) ports.AuthResult {
	if err := m.validate.Var(otp, "required,len=6,numeric"); err != nil {
		return ports.AuthResult{Message: msgOTPMalformed}
	}

	m.setLoading(true)
	defer m.setLoading(false)

	raw, err := m.api.VerifyOTP(ctx, email, otp)
	if err != nil {
		return ports.AuthResult{Message: failureMessage(err, msgVerifyOTPFailed)}
	}
	return NormalizeVerifyOTP(raw)
}

// ResendOTP requests a fresh activation code for the address.
func (m *SessionManager) ResendOTP(ctx context.Context, email string) ports.AuthResult {
	m.setLoading(true)
	defer m.setLoading(false)

	raw, err := m.api.ResendOTP(ctx, email)
	if err != nil {
		return ports.AuthResult{Message: failureMessage(err, msgResendOTPFailed)}
	}
	return NormalizeResendOTP(raw)
}

// UpdateUser shallow-merges the patch into the current user and re-persists
// the merged record. A no-op while logged out.
func (m *SessionManager) UpdateUser(patch ports.UserPatch) {
	m.mu.Lock()
	if m.user == nil {
		m.mu.Unlock()
		return
	}
	if patch.Name != nil {
		m.user.Name = *patch.Name
	}
	if patch.Email != nil {
		m.user.Email = *patch.Email
	}
	if patch.Phone != nil {
		m.user.Phone = *patch.Phone
	}
	if patch.Role != nil {
		m.user.Role = *patch.Role
	}
	if patch.Permissions != nil {
		m.user.Permissions = slices.Clone(*patch.Permissions)
	}
	merged := m.user.Clone()
	m.mu.Unlock()

	data, err := json.Marshal(merged)
	if err != nil {
		m.log.Error().Err(err).Msg("failed to serialize user record")
		return
	}
	if err := m.store.Set(context.Background(), keyUser, string(data)); err != nil {
		m.log.Warn().Err(err).Msg("failed to persist user record")
	}
}

// HasPermission reports whether the current user may perform the operation.
// Admins hold every permission implicitly.
func (m *SessionManager) HasPermission(permission string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return false
	}
	if m.user.Role == domain.RoleAdmin {
		return true
	}
	return slices.Contains(m.user.Permissions, permission)
}

// CurrentUser returns a copy of the authenticated user, or nil.
func (m *SessionManager) CurrentUser() *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user.Clone()
}

// IsAuthenticated reports whether a user is present; there is no separate
// authenticated flag.
func (m *SessionManager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user != nil
}

// Loading reports whether the initial restore or an auth call is in flight.
func (m *SessionManager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// BearerToken returns the credential authenticated API calls should carry.
func (m *SessionManager) BearerToken() string {
	m.bearerMu.Lock()
	defer m.bearerMu.Unlock()
	return m.bearer
}

// OnBearerChange subscribes the HTTP layer to credential changes. The
// callback fires on every login, refresh, restore, and logout.
func (m *SessionManager) OnBearerChange(fn func(token string)) {
	m.bearerMu.Lock()
	defer m.bearerMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// adopt installs a user and its bearer credential as the live session.
func (m *SessionManager) adopt(user *domain.User, token string) {
	m.mu.Lock()
	m.user = user
	m.mu.Unlock()
	m.setBearer(token)
}

func (m *SessionManager) setBearer(token string) {
	m.bearerMu.Lock()
	m.bearer = token
	listeners := slices.Clone(m.listeners)
	m.bearerMu.Unlock()

	for _, fn := range listeners {
		fn(token)
	}
}

func (m *SessionManager) setLoading(v bool) {
	m.mu.Lock()
	m.loading = v
	m.mu.Unlock()
}

// persist writes the token pair and user record. Store failures are logged
// and otherwise ignored; the in-memory session stays authoritative.
func (m *SessionManager) persist(ctx context.Context, access, refresh string, user *domain.User) {
	if err := m.store.Set(ctx, keyAccessToken, access); err != nil {
		m.log.Warn().Err(err).Msg("failed to persist access token")
	}
	if err := m.store.Set(ctx, keyRefreshToken, refresh); err != nil {
		m.log.Warn().Err(err).Msg("failed to persist refresh token")
	}
	data, err := json.Marshal(user)
	if err != nil {
		m.log.Error().Err(err).Msg("failed to serialize user record")
		return
	}
	if err := m.store.Set(ctx, keyUser, string(data)); err != nil {
		m.log.Warn().Err(err).Msg("failed to persist user record")
	}
}

// tokenClaims decodes the JWT payload without verifying the signature; the
// client only inspects claims, it never trusts them for authorization.
// Malformed tokens yield nil.
func tokenClaims(token string) jwt.MapClaims {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	return claims
}

func claimExpiry(claims jwt.MapClaims) (time.Time, bool) {
	if claims == nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func claimString(claims jwt.MapClaims, name string) string {
	if claims == nil {
		return ""
	}
	s, _ := claims[name].(string)
	return s
}

func failureMessage(err error, fallback string) string {
	if err == nil || err.Error() == "" {
		return fallback
	}
	return err.Error()
}
