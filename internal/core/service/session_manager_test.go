package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/hospicore/auth-system/internal/core/domain"
	"github.com/hospicore/auth-system/internal/core/ports"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]string
	sets int
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (s *memStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", domain.ErrKeyNotFound
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	s.sets++
	return nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

type stubAPI struct {
	loginResp   *ports.LoginResponse
	loginErr    error
	loginGate   chan struct{} // when set, Login blocks until closed
	loginEnter  chan struct{} // when set, closed once Login is entered
	refreshResp *ports.RefreshResponse
	refreshErr  error
	logoutErr   error
	registerRaw []byte
	registerErr error
	verifyRaw   []byte
	verifyErr   error
	resendRaw   []byte
	resendErr   error

	mu           sync.Mutex
	loginCalls   int
	refreshCalls int
	logoutCalls  int
	verifyCalls  int
	logoutTokens []string
}

func (a *stubAPI) Login(_ context.Context, _, _ string) (*ports.LoginResponse, error) {
	a.mu.Lock()
	a.loginCalls++
	a.mu.Unlock()
	if a.loginEnter != nil {
		close(a.loginEnter)
		a.loginEnter = nil
	}
	if a.loginGate != nil {
		<-a.loginGate
	}
	return a.loginResp, a.loginErr
}

func (a *stubAPI) Refresh(_ context.Context, _ string) (*ports.RefreshResponse, error) {
	a.mu.Lock()
	a.refreshCalls++
	a.mu.Unlock()
	return a.refreshResp, a.refreshErr
}

func (a *stubAPI) Logout(_ context.Context, refreshToken string) error {
	a.mu.Lock()
	a.logoutCalls++
	a.logoutTokens = append(a.logoutTokens, refreshToken)
	a.mu.Unlock()
	return a.logoutErr
}

func (a *stubAPI) Register(_ context.Context, _ ports.Registration) ([]byte, error) {
	return a.registerRaw, a.registerErr
}

func (a *stubAPI) VerifyOTP(_ context.Context, _, _ string) ([]byte, error) {
	a.mu.Lock()
	a.verifyCalls++
	a.mu.Unlock()
	return a.verifyRaw, a.verifyErr
}

func (a *stubAPI) ResendOTP(_ context.Context, _ string) ([]byte, error) {
	return a.resendRaw, a.resendErr
}

func (a *stubAPI) DebugOTP(_ context.Context, _ string) (*domain.OTP, error) {
	return nil, errors.New("not implemented")
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newManager(api ports.AuthAPI, store ports.KVStore) *SessionManager {
	return NewSessionManager(api, store, nil, zerolog.Nop())
}

func seedSession(t *testing.T, store *memStore, access string, user *domain.User) {
	t.Helper()
	data, err := json.Marshal(user)
	if err != nil {
		t.Fatalf("marshal user: %v", err)
	}
	store.data[keyAccessToken] = access
	store.data[keyRefreshToken] = "refresh-1"
	store.data[keyUser] = string(data)
}

func TestSessionManager_Login_Success(t *testing.T) {
	api := &stubAPI{
		loginResp: &ports.LoginResponse{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			User: &ports.WireUser{
				ID:          "7",
				Name:        "Dr. Minh",
				Email:       "minh@example.com",
				Role:        "bacsi",
				Permissions: []string{"appointments.read"},
			},
		},
	}
	store := newMemStore()
	mgr := newManager(api, store)

	res := mgr.Login(context.Background(), "minh", "pass")
	if !res.Success {
		t.Fatalf("expected success, got message %q", res.Message)
	}
	if res.User == nil || res.User.Role != domain.RoleDoctor {
		t.Fatalf("expected mapped doctor role, got %+v", res.User)
	}
	if !mgr.IsAuthenticated() {
		t.Fatalf("expected authenticated session")
	}
	if mgr.BearerToken() != "access-1" {
		t.Fatalf("unexpected bearer: %q", mgr.BearerToken())
	}
	if store.data[keyAccessToken] != "access-1" || store.data[keyRefreshToken] != "refresh-1" {
		t.Fatalf("tokens not persisted: %+v", store.data)
	}

	var persisted domain.User
	if err := json.Unmarshal([]byte(store.data[keyUser]), &persisted); err != nil {
		t.Fatalf("persisted user unreadable: %v", err)
	}
	if persisted.Role != domain.RoleDoctor || persisted.Name != "Dr. Minh" {
		t.Fatalf("unexpected persisted user: %+v", persisted)
	}
}

func TestSessionManager_Login_RoleFromClaims(t *testing.T) {
	access := signToken(t, jwt.MapClaims{
		"sub":  "42",
		"role": "quantri",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	api := &stubAPI{
		loginResp: &ports.LoginResponse{AccessToken: access, RefreshToken: "r"},
	}
	mgr := newManager(api, newMemStore())

	res := mgr.Login(context.Background(), "root", "pass")
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Message)
	}
	if res.User.Role != domain.RoleAdmin {
		t.Fatalf("expected admin from token claims, got %q", res.User.Role)
	}
	if res.User.ID != "42" {
		t.Fatalf("expected id from sub claim, got %q", res.User.ID)
	}
}

func TestSessionManager_Login_Failure(t *testing.T) {
	api := &stubAPI{loginErr: errors.New("invalid credentials")}
	store := newMemStore()
	mgr := newManager(api, store)

	res := mgr.Login(context.Background(), "minh", "wrong")
	if res.Success {
		t.Fatalf("expected failure")
	}
	if res.Message != "invalid credentials" {
		t.Fatalf("unexpected message: %q", res.Message)
	}
	if mgr.IsAuthenticated() || mgr.Loading() {
		t.Fatalf("expected logged-out idle session")
	}
	if len(store.data) != 0 {
		t.Fatalf("store should be untouched: %+v", store.data)
	}
}

func TestSessionManager_Login_MissingTokens(t *testing.T) {
	api := &stubAPI{loginResp: &ports.LoginResponse{AccessToken: "only-access"}}
	store := newMemStore()
	mgr := newManager(api, store)

	res := mgr.Login(context.Background(), "minh", "pass")
	if res.Success {
		t.Fatalf("expected failure on missing refresh token")
	}
	if res.Message != msgLoginFailed {
		t.Fatalf("unexpected message: %q", res.Message)
	}
	if len(store.data) != 0 {
		t.Fatalf("store should be untouched: %+v", store.data)
	}
}

func TestSessionManager_Login_RejectsConcurrentCall(t *testing.T) {
	gate := make(chan struct{})
	entered := make(chan struct{})
	api := &stubAPI{
		loginResp:  &ports.LoginResponse{AccessToken: "a", RefreshToken: "r"},
		loginGate:  gate,
		loginEnter: entered,
	}
	mgr := newManager(api, newMemStore())

	done := make(chan ports.AuthResult, 1)
	go func() {
		done <- mgr.Login(context.Background(), "minh", "pass")
	}()

	<-entered
	second := mgr.Login(context.Background(), "minh", "pass")
	if second.Success || second.Message != msgLoginPending {
		t.Fatalf("expected pending rejection, got %+v", second)
	}

	close(gate)
	first := <-done
	if !first.Success {
		t.Fatalf("first login should have succeeded: %+v", first)
	}

	api.mu.Lock()
	calls := api.loginCalls
	api.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected exactly one network call, got %d", calls)
	}
}

func TestSessionManager_Initialize_ValidTokenSkipsRefresh(t *testing.T) {
	access := signToken(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	api := &stubAPI{refreshErr: errors.New("must not be called")}
	store := newMemStore()
	seedSession(t, store, access, &domain.User{ID: "7", Name: "Minh", Role: domain.RoleDoctor})
	mgr := newManager(api, store)

	mgr.Initialize(context.Background())

	if api.refreshCalls != 0 {
		t.Fatalf("refresh should not be called for a valid token")
	}
	if !mgr.IsAuthenticated() || mgr.Loading() {
		t.Fatalf("expected restored idle session")
	}
	if mgr.BearerToken() != access {
		t.Fatalf("expected stored token as bearer")
	}
	user := mgr.CurrentUser()
	if user == nil || user.Name != "Minh" {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestSessionManager_Initialize_ExpiredTokenRefreshes(t *testing.T) {
	stale := signToken(t, jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()})
	fresh := signToken(t, jwt.MapClaims{
		"role": "quantri",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	api := &stubAPI{
		refreshResp: &ports.RefreshResponse{AccessToken: fresh, RefreshToken: "refresh-2"},
	}
	store := newMemStore()
	seedSession(t, store, stale, &domain.User{ID: "7", Name: "Minh", Role: domain.RoleDoctor})
	mgr := newManager(api, store)

	mgr.Initialize(context.Background())

	if api.refreshCalls != 1 {
		t.Fatalf("expected one refresh call, got %d", api.refreshCalls)
	}
	if mgr.BearerToken() != fresh {
		t.Fatalf("expected refreshed bearer")
	}
	user := mgr.CurrentUser()
	if user == nil || user.Role != domain.RoleAdmin {
		t.Fatalf("expected role overwritten from new token claims, got %+v", user)
	}
	if store.data[keyAccessToken] != fresh || store.data[keyRefreshToken] != "refresh-2" {
		t.Fatalf("rotated tokens not persisted: %+v", store.data)
	}
}

func TestSessionManager_Initialize_RefreshFailureFailsOpen(t *testing.T) {
	stale := signToken(t, jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()})
	api := &stubAPI{refreshErr: errors.New("network down")}
	store := newMemStore()
	seedSession(t, store, stale, &domain.User{ID: "7", Name: "Minh", Role: domain.RoleDoctor})
	mgr := newManager(api, store)

	mgr.Initialize(context.Background())

	if !mgr.IsAuthenticated() {
		t.Fatalf("refresh failure must not log the user out")
	}
	if mgr.BearerToken() != stale {
		t.Fatalf("expected the stale token re-installed as bearer")
	}
	if store.data[keyAccessToken] != stale || store.data[keyRefreshToken] != "refresh-1" {
		t.Fatalf("stored tokens should be untouched: %+v", store.data)
	}
}

func TestSessionManager_Initialize_EmptyStore(t *testing.T) {
	mgr := newManager(&stubAPI{}, newMemStore())

	if !mgr.Loading() {
		t.Fatalf("expected loading before Initialize")
	}
	mgr.Initialize(context.Background())

	if mgr.IsAuthenticated() || mgr.Loading() {
		t.Fatalf("expected logged-out idle session")
	}
	if mgr.CurrentUser() != nil {
		t.Fatalf("expected nil user")
	}
}

func TestSessionManager_Initialize_CorruptUserRecord(t *testing.T) {
	store := newMemStore()
	store.data[keyAccessToken] = "access"
	store.data[keyRefreshToken] = "refresh"
	store.data[keyUser] = "{not json"
	mgr := newManager(&stubAPI{}, store)

	mgr.Initialize(context.Background())

	if mgr.IsAuthenticated() || mgr.Loading() {
		t.Fatalf("corrupt record should start a logged-out session")
	}
}

func TestSessionManager_Logout_Idempotent(t *testing.T) {
	api := &stubAPI{
		loginResp: &ports.LoginResponse{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			User:         &ports.WireUser{ID: "1", Name: "Minh", Role: "bacsi"},
		},
		logoutErr: errors.New("server unreachable"),
	}
	store := newMemStore()
	mgr := newManager(api, store)

	if res := mgr.Login(context.Background(), "minh", "pass"); !res.Success {
		t.Fatalf("login failed: %+v", res)
	}

	mgr.Logout(context.Background())
	mgr.Logout(context.Background())

	if mgr.IsAuthenticated() {
		t.Fatalf("expected logged-out session")
	}
	if mgr.BearerToken() != "" {
		t.Fatalf("expected cleared bearer")
	}
	if len(store.data) != 0 {
		t.Fatalf("expected cleared store, got %+v", store.data)
	}
	if api.logoutTokens[0] != "refresh-1" {
		t.Fatalf("expected stored refresh token sent to server, got %q", api.logoutTokens[0])
	}
}

func TestSessionManager_VerifyOTP_MalformedCode(t *testing.T) {
	api := &stubAPI{verifyRaw: []byte(SentinelOTPVerified)}
	mgr := newManager(api, newMemStore())

	for _, otp := range []string{"", "12345", "1234567", "12a456", "12 456"} {
		res := mgr.VerifyOTP(context.Background(), "minh@example.com", otp)
		if res.Success || res.Message != msgOTPMalformed {
			t.Fatalf("otp %q: expected local rejection, got %+v", otp, res)
		}
	}
	if api.verifyCalls != 0 {
		t.Fatalf("malformed codes must not reach the network, got %d calls", api.verifyCalls)
	}

	res := mgr.VerifyOTP(context.Background(), "minh@example.com", "123456")
	if !res.Success {
		t.Fatalf("well-formed code should pass through: %+v", res)
	}
}

func TestSessionManager_Register_FailurePropagatesMessage(t *testing.T) {
	mgr := newManager(&stubAPI{registerErr: errors.New("email already in use")}, newMemStore())

	res := mgr.Register(context.Background(), ports.Registration{Username: "minh"})
	if res.Success || res.Message != "email already in use" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestSessionManager_ResendOTP_Success(t *testing.T) {
	mgr := newManager(&stubAPI{resendRaw: []byte(SentinelOTPResent)}, newMemStore())

	res := mgr.ResendOTP(context.Background(), "minh@example.com")
	if !res.Success || res.Message != SentinelOTPResent {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestSessionManager_UpdateUser_Merge(t *testing.T) {
	api := &stubAPI{
		loginResp: &ports.LoginResponse{
			AccessToken:  "a",
			RefreshToken: "r",
			User: &ports.WireUser{
				ID:    "7",
				Name:  "Minh",
				Email: "old@example.com",
				Role:  "bacsi",
			},
		},
	}
	store := newMemStore()
	mgr := newManager(api, store)
	if res := mgr.Login(context.Background(), "minh", "pass"); !res.Success {
		t.Fatalf("login failed: %+v", res)
	}

	email := "new@example.com"
	perms := []string{"patients.read"}
	mgr.UpdateUser(ports.UserPatch{Email: &email, Permissions: &perms})

	user := mgr.CurrentUser()
	if user.Email != "new@example.com" {
		t.Fatalf("email not merged: %+v", user)
	}
	if user.Name != "Minh" || user.Role != domain.RoleDoctor {
		t.Fatalf("untouched fields changed: %+v", user)
	}
	if len(user.Permissions) != 1 || user.Permissions[0] != "patients.read" {
		t.Fatalf("permissions not merged: %+v", user.Permissions)
	}

	var persisted domain.User
	if err := json.Unmarshal([]byte(store.data[keyUser]), &persisted); err != nil {
		t.Fatalf("persisted record unreadable: %v", err)
	}
	if persisted.Email != user.Email || persisted.Role != user.Role {
		t.Fatalf("persisted record diverges from session: %+v vs %+v", persisted, user)
	}
}

func TestSessionManager_UpdateUser_LoggedOutNoop(t *testing.T) {
	store := newMemStore()
	mgr := newManager(&stubAPI{}, store)

	name := "ghost"
	mgr.UpdateUser(ports.UserPatch{Name: &name})

	if mgr.CurrentUser() != nil || len(store.data) != 0 {
		t.Fatalf("update while logged out must be a no-op")
	}
}

func TestSessionManager_HasPermission(t *testing.T) {
	mgr := newManager(&stubAPI{}, newMemStore())
	if mgr.HasPermission("anything") {
		t.Fatalf("logged-out session must hold no permissions")
	}

	api := &stubAPI{
		loginResp: &ports.LoginResponse{
			AccessToken:  "a",
			RefreshToken: "r",
			User: &ports.WireUser{
				ID:          "1",
				Role:        "yta",
				Permissions: []string{"vitals.write"},
			},
		},
	}
	mgr = newManager(api, newMemStore())
	if res := mgr.Login(context.Background(), "nurse", "pass"); !res.Success {
		t.Fatalf("login failed: %+v", res)
	}
	if !mgr.HasPermission("vitals.write") {
		t.Fatalf("granted permission denied")
	}
	if mgr.HasPermission("billing.write") {
		t.Fatalf("unlisted permission granted")
	}

	role := domain.RoleAdmin
	mgr.UpdateUser(ports.UserPatch{Role: &role})
	if !mgr.HasPermission("billing.write") {
		t.Fatalf("admin must hold every permission")
	}
}

func TestSessionManager_BearerListener(t *testing.T) {
	api := &stubAPI{
		loginResp: &ports.LoginResponse{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			User:         &ports.WireUser{ID: "1", Role: "bacsi"},
		},
	}
	mgr := newManager(api, newMemStore())

	var tokens []string
	mgr.OnBearerChange(func(token string) { tokens = append(tokens, token) })

	mgr.Login(context.Background(), "minh", "pass")
	mgr.Logout(context.Background())

	if len(tokens) != 2 || tokens[0] != "access-1" || tokens[1] != "" {
		t.Fatalf("unexpected bearer notifications: %v", tokens)
	}
}
