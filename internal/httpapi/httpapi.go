// ABOUTME: HTTP JSON API server for the auth engine
// ABOUTME: Provides routing, bearer-token middleware, rate limiting, and error mapping

package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/2389/asf-auth/internal/auth"
	"github.com/2389/asf-auth/internal/mailer"
	"github.com/2389/asf-auth/internal/store"
)

// Config holds the API server configuration.
type Config struct {
	// AppName appears in outgoing email subjects.
	AppName string
	// BaseURL is the external URL used to build action links in emails.
	BaseURL string
	// LoginRatePerSecond throttles login attempts per client IP.
	LoginRatePerSecond float64
	// LoginBurst is the burst allowance on top of the steady rate.
	LoginBurst int
	// VerificationTTL and ResetTTL appear in email copy.
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

// Server exposes the auth service over HTTP.
type Server struct {
	svc     *auth.Service
	users   store.Store
	mail    mailer.Mailer
	config  Config
	logger  *slog.Logger
	limiter *ipLimiter
}

// New creates the API server.
func New(svc *auth.Service, users store.Store, mail mailer.Mailer, cfg Config, logger *slog.Logger) *Server {
	if cfg.LoginRatePerSecond <= 0 {
		cfg.LoginRatePerSecond = 1
	}
	if cfg.LoginBurst <= 0 {
		cfg.LoginBurst = 5
	}
	return &Server{
		svc:     svc,
		users:   users,
		mail:    mail,
		config:  cfg,
		logger:  logger.With("component", "httpapi"),
		limiter: newIPLimiter(rate.Limit(cfg.LoginRatePerSecond), cfg.LoginBurst),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)

	// Public routes
	mux.HandleFunc("POST /v1/register", s.handleRegister)
	mux.HandleFunc("POST /v1/login", s.handleLogin)
	mux.HandleFunc("POST /v1/password-reset/request", s.handlePasswordResetRequest)
	mux.HandleFunc("POST /v1/password-reset/confirm", s.handlePasswordResetConfirm)
	mux.HandleFunc("POST /v1/verify-email/confirm", s.handleVerifyEmailConfirm)

	// Authenticated routes
	mux.HandleFunc("GET /v1/session", s.requireAuth(s.handleSession))
	mux.HandleFunc("POST /v1/logout", s.requireAuth(s.handleLogout))
	mux.HandleFunc("POST /v1/verify-email/request", s.requireAuth(s.handleVerifyEmailRequest))

	// Admin routes
	mux.HandleFunc("GET /v1/admin/users", s.requireAuth(s.requireRole(store.RoleAdmin, s.handleAdminListUsers)))
	mux.HandleFunc("POST /v1/admin/users/{id}/role", s.requireAuth(s.requireRole(store.RoleAdmin, s.handleAdminSetRole)))
	mux.HandleFunc("POST /v1/admin/users/{id}/deactivate", s.requireAuth(s.requireRole(store.RoleAdmin, s.handleAdminDeactivate)))
}

// requireAuth validates the bearer token and attaches the claims to the
// request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := bearerToken(r)
		if tok == "" {
			s.sendJSONError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := s.svc.ValidateSession(r.Context(), tok)
		if err != nil {
			s.sendAuthError(w, err)
			return
		}

		next(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
	}
}

// requireRole gates a handler on an already-authenticated role.
func (s *Server) requireRole(want store.Role, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := auth.MustFromContext(r.Context())
		if err := auth.RequireRole(claims, want); err != nil {
			s.sendAuthError(w, err)
			return
		}
		next(w, r)
	}
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

// clientIP returns the remote address without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// sendJSON writes a JSON response body.
func (s *Server) sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// sendAuthError maps a service error to an HTTP response. Invalid credentials
// and a locked account produce the same response so the API never confirms
// which addresses exist or which accounts are locked.
func (s *Server) sendAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrAccountLocked):
		s.sendJSONError(w, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, store.ErrUserNotFound):
		// The account vanished between the credential check and the lookup.
		// To the client it is just a failed login.
		s.sendJSONError(w, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, auth.ErrAccountInactive):
		s.sendJSONError(w, http.StatusForbidden, "account disabled")
	case errors.Is(err, auth.ErrEmailUnverified):
		s.sendJSONError(w, http.StatusForbidden, "email not verified")
	case errors.Is(err, auth.ErrEmailTaken):
		s.sendJSONError(w, http.StatusConflict, "email already registered")
	case errors.Is(err, auth.ErrWeakPassword):
		s.sendJSONError(w, http.StatusBadRequest, "password too short")
	case errors.Is(err, auth.ErrTokenNotFound),
		errors.Is(err, auth.ErrTokenAlreadyUsed),
		errors.Is(err, auth.ErrTokenExpired):
		s.sendJSONError(w, http.StatusBadRequest, "invalid or expired token")
	case errors.Is(err, auth.ErrSessionExpired):
		s.sendJSONError(w, http.StatusUnauthorized, "session expired")
	case errors.Is(err, auth.ErrSessionInvalid):
		s.sendJSONError(w, http.StatusUnauthorized, "invalid session")
	case errors.Is(err, auth.ErrForbidden):
		s.sendJSONError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrUnavailable):
		s.sendJSONError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		s.logger.Error("unhandled service error", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

// ipLimiter rate-limits by client IP. Entries idle past the stale window are
// dropped on the next sweep so the map does not grow without bound.
type ipLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*ipLimiterEntry
}

type ipLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const ipLimiterStale = 10 * time.Minute

func newIPLimiter(limit rate.Limit, burst int) *ipLimiter {
	return &ipLimiter{
		limit:   limit,
		burst:   burst,
		clients: make(map[string]*ipLimiterEntry),
	}
}

// allow reports whether the client may proceed, consuming one token.
func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	entry, ok := l.clients[ip]
	if !ok {
		if len(l.clients) > 1024 {
			l.sweepLocked(now)
		}
		entry = &ipLimiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.Allow()
}

func (l *ipLimiter) sweepLocked(now time.Time) {
	for ip, entry := range l.clients {
		if now.Sub(entry.lastSeen) > ipLimiterStale {
			delete(l.clients, ip)
		}
	}
}
