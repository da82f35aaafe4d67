// ABOUTME: HTTP API tests covering registration, login, sessions, token flows, and admin gates
// ABOUTME: Runs the full handler stack over httptest with a mock store and capturing mailer

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/asf-auth/internal/auth"
	"github.com/2389/asf-auth/internal/mailer"
	"github.com/2389/asf-auth/internal/password"
	"github.com/2389/asf-auth/internal/store"
	"github.com/2389/asf-auth/internal/token"
)

// captureMailer records rendered messages instead of sending them.
type captureMailer struct {
	mu       sync.Mutex
	messages []*mailer.Message
}

func (m *captureMailer) Send(ctx context.Context, msg *mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *captureMailer) last(t *testing.T) *mailer.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		t.Fatal("no mail captured")
	}
	return m.messages[len(m.messages)-1]
}

var tokenPattern = regexp.MustCompile(`token=([0-9a-f]+)`)

func (m *captureMailer) lastToken(t *testing.T) string {
	t.Helper()
	match := tokenPattern.FindStringSubmatch(m.last(t).TextBody)
	if match == nil {
		t.Fatalf("no token link in mail body:\n%s", m.last(t).TextBody)
	}
	return match[1]
}

type testEnv struct {
	ts   *httptest.Server
	st   *store.MockStore
	mail *captureMailer
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMockStore()
	hasher := password.NewHasher(bcrypt.MinCost, 6)
	issuer, err := token.NewIssuer([]byte("test-secret-0123456789abcdef0123456789"))
	require.NoError(t, err)

	authn := auth.NewLocalAuthenticator(st, hasher, 5, 30*time.Minute, false, logger)
	svc := auth.NewService(st, hasher, issuer, authn, auth.Config{}, logger)

	if cfg.AppName == "" {
		cfg.AppName = "ASF"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://app.example.com"
	}
	if cfg.LoginRatePerSecond == 0 {
		cfg.LoginRatePerSecond = 1000
		cfg.LoginBurst = 1000
	}
	if cfg.VerificationTTL == 0 {
		cfg.VerificationTTL = 24 * time.Hour
		cfg.ResetTTL = time.Hour
	}

	mail := &captureMailer{}
	srv := New(svc, st, mail, cfg, logger)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, st: st, mail: mail}
}

func (e *testEnv) do(t *testing.T, method, path, bearer string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.ts.URL+path, &buf)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (e *testEnv) register(t *testing.T, email string) UserResponse {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/v1/register", "", RegisterRequest{
		Email: email, Password: "pw123456", FullName: "Test User",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeBody[UserResponse](t, resp)
}

func (e *testEnv) login(t *testing.T, email string) LoginResponse {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/v1/login", "", LoginRequest{Email: email, Password: "pw123456"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decodeBody[LoginResponse](t, resp)
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t, Config{})

	user := env.register(t, "a@b.com")
	assert.Equal(t, "a@b.com", user.Email)
	assert.Equal(t, "user", user.Role)
	assert.False(t, user.EmailVerified)

	// Registration sent a verification mail with an action link.
	msg := env.mail.last(t)
	assert.Equal(t, "a@b.com", msg.To)
	assert.Contains(t, msg.TextBody, "https://app.example.com/verify-email?token=")

	login := env.login(t, "a@b.com")
	assert.NotEmpty(t, login.Token)
	assert.Equal(t, user.ID, login.User.ID)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.register(t, "a@b.com")

	tests := []struct {
		name   string
		body   RegisterRequest
		status int
	}{
		{"duplicate email", RegisterRequest{Email: "a@b.com", Password: "pw123456"}, http.StatusConflict},
		{"weak password", RegisterRequest{Email: "b@b.com", Password: "short"}, http.StatusBadRequest},
		{"missing email", RegisterRequest{Password: "pw123456"}, http.StatusBadRequest},
		{"missing password", RegisterRequest{Email: "c@b.com"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/v1/register", "", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestLoginFailuresIndistinguishable(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.register(t, "a@b.com")

	readError := func(resp *http.Response) string {
		body := decodeBody[map[string]string](t, resp)
		return body["error"]
	}

	// Wrong password for a real account.
	resp := env.do(t, http.MethodPost, "/v1/login", "", LoginRequest{Email: "a@b.com", Password: "wrong-pass"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	wrongPass := readError(resp)

	// Unknown address.
	resp = env.do(t, http.MethodPost, "/v1/login", "", LoginRequest{Email: "ghost@b.com", Password: "pw123456"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, wrongPass, readError(resp))

	// Locked account, correct password.
	for i := 0; i < 4; i++ {
		env.do(t, http.MethodPost, "/v1/login", "", LoginRequest{Email: "a@b.com", Password: "wrong-pass"})
	}
	resp = env.do(t, http.MethodPost, "/v1/login", "", LoginRequest{Email: "a@b.com", Password: "pw123456"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, wrongPass, readError(resp))
}

func TestUserGoneReadsAsBadLogin(t *testing.T) {
	// An account deleted between the credential check and the user lookup
	// must come back as the generic login failure, not a server error.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(nil, nil, nil, Config{}, logger)

	rec := httptest.NewRecorder()
	s.sendAuthError(rec, store.ErrUserNotFound)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid email or password", body["error"])
}

func TestSessionEndpoint(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.register(t, "a@b.com")
	login := env.login(t, "a@b.com")

	resp := env.do(t, http.MethodGet, "/v1/session", login.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sess := decodeBody[SessionResponse](t, resp)
	assert.Equal(t, "a@b.com", sess.Email)
	assert.Equal(t, "user", sess.Role)

	resp = env.do(t, http.MethodGet, "/v1/session", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/v1/session", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.register(t, "a@b.com")
	login := env.login(t, "a@b.com")

	resp := env.do(t, http.MethodPost, "/v1/logout", login.Token, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/v1/session", login.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.register(t, "a@b.com")

	resp := env.do(t, http.MethodPost, "/v1/password-reset/request", "", EmailRequest{Email: "a@b.com"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resetToken := env.mail.lastToken(t)

	resp = env.do(t, http.MethodPost, "/v1/password-reset/confirm", "", TokenConfirmRequest{
		Token: resetToken, NewPassword: "newpw12345",
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Old password is dead; new one works.
	resp = env.do(t, http.MethodPost, "/v1/login", "", LoginRequest{Email: "a@b.com", Password: "pw123456"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = env.do(t, http.MethodPost, "/v1/login", "", LoginRequest{Email: "a@b.com", Password: "newpw12345"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// The token is spent.
	resp = env.do(t, http.MethodPost, "/v1/password-reset/confirm", "", TokenConfirmRequest{
		Token: resetToken, NewPassword: "anotherpw1",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPasswordResetUnknownAddressAccepted(t *testing.T) {
	env := newTestEnv(t, Config{})

	resp := env.do(t, http.MethodPost, "/v1/password-reset/request", "", EmailRequest{Email: "ghost@b.com"})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Empty(t, env.mail.messages)
}

func TestVerifyEmailFlow(t *testing.T) {
	env := newTestEnv(t, Config{})
	user := env.register(t, "a@b.com")
	verifyToken := env.mail.lastToken(t)

	resp := env.do(t, http.MethodPost, "/v1/verify-email/confirm", "", TokenConfirmRequest{Token: verifyToken})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	got, err := env.st.GetUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, got.EmailVerified)

	// Second confirmation fails, single use.
	resp = env.do(t, http.MethodPost, "/v1/verify-email/confirm", "", TokenConfirmRequest{Token: verifyToken})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminEndpoints(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{})

	admin := env.register(t, "admin@b.com")
	require.NoError(t, env.st.SetUserRole(ctx, admin.ID, store.RoleAdmin))
	member := env.register(t, "member@b.com")

	memberLogin := env.login(t, "member@b.com")
	adminLogin := env.login(t, "admin@b.com")

	// Plain users are refused.
	resp := env.do(t, http.MethodGet, "/v1/admin/users", memberLogin.Token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/v1/admin/users", adminLogin.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[ListUsersResponse](t, resp)
	assert.Len(t, list.Users, 2)

	// Promote, then deactivate.
	resp = env.do(t, http.MethodPost, fmt.Sprintf("/v1/admin/users/%s/role", member.ID), adminLogin.Token,
		SetRoleRequest{Role: "manager"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/v1/admin/users/%s/role", member.ID), adminLogin.Token,
		SetRoleRequest{Role: "superuser"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/v1/admin/users/%s/deactivate", member.ID), adminLogin.Token, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Deactivation ended the member's session.
	resp = env.do(t, http.MethodGet, "/v1/session", memberLogin.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/v1/admin/users/nope/role", adminLogin.Token, SetRoleRequest{Role: "user"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLoginRateLimit(t *testing.T) {
	env := newTestEnv(t, Config{LoginRatePerSecond: 0.001, LoginBurst: 2})
	env.register(t, "a@b.com")

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp := env.do(t, http.MethodPost, "/v1/login", "", LoginRequest{Email: "a@b.com", Password: "pw123456"})
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, Config{})
	resp := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
