// ABOUTME: HTTP handlers for registration, login, session, and token flows
// ABOUTME: Request/response types and endpoint logic for the v1 JSON API

package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/2389/asf-auth/internal/auth"
	"github.com/2389/asf-auth/internal/mailer"
	"github.com/2389/asf-auth/internal/store"
)

// RegisterRequest is the JSON request body for POST /v1/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

// LoginRequest is the JSON request body for POST /v1/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the JSON response for POST /v1/login.
type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// UserResponse is the JSON shape of a user in API responses.
type UserResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	FullName      string `json:"full_name,omitempty"`
	Role          string `json:"role"`
	Active        bool   `json:"active"`
	EmailVerified bool   `json:"email_verified"`
	LastLogin     string `json:"last_login,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// SessionResponse is the JSON response for GET /v1/session.
type SessionResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// TokenConfirmRequest is the JSON request body for token confirmation
// endpoints.
type TokenConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password,omitempty"`
}

// EmailRequest is the JSON request body for endpoints keyed by address.
type EmailRequest struct {
	Email string `json:"email"`
}

// ListUsersResponse is the JSON response for GET /v1/admin/users.
type ListUsersResponse struct {
	Users []UserResponse `json:"users"`
}

// SetRoleRequest is the JSON request body for POST /v1/admin/users/{id}/role.
type SetRoleRequest struct {
	Role string `json:"role"`
}

func userResponse(u *store.User) UserResponse {
	resp := UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		FullName:      u.FullName,
		Role:          string(u.Role),
		Active:        u.Active,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt.UTC().Format(time.RFC3339),
	}
	if u.LastLogin != nil {
		resp.LastLogin = u.LastLogin.UTC().Format(time.RFC3339)
	}
	return resp
}

func decodeJSON(r io.Reader, dst any) error {
	if err := json.NewDecoder(r).Decode(dst); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		s.sendJSONError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := s.svc.Register(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		s.sendAuthError(w, err)
		return
	}

	// Verification mail failure does not roll back the account; the user
	// can request another token later.
	if err := s.sendVerificationMail(r, user); err != nil {
		s.logger.Warn("verification mail failed", "user_id", user.ID, "error", err)
	}

	s.sendJSON(w, http.StatusCreated, userResponse(user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.allow(clientIP(r)) {
		s.sendJSONError(w, http.StatusTooManyRequests, "too many login attempts")
		return
	}

	var req LoginRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	meta := auth.ClientMeta{IP: clientIP(r), UserAgent: r.UserAgent()}
	sess, err := s.svc.Authenticate(r.Context(), req.Email, req.Password, meta)
	if err != nil {
		s.sendAuthError(w, err)
		return
	}

	user, err := s.users.GetUser(r.Context(), sess.UserID)
	if err != nil {
		s.sendAuthError(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, LoginResponse{
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt.UTC().Format(time.RFC3339),
		User:      userResponse(user),
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	claims := auth.MustFromContext(r.Context())
	s.sendJSON(w, http.StatusOK, SessionResponse{
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   string(claims.Role),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Logout(r.Context(), bearerToken(r)); err != nil {
		s.sendAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	at, err := s.svc.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		s.sendAuthError(w, err)
		return
	}
	if at != nil {
		if err := s.sendResetMail(r, req.Email, at.Token); err != nil {
			s.logger.Warn("reset mail failed", "error", err)
			s.sendJSONError(w, http.StatusServiceUnavailable, "could not send email")
			return
		}
	}

	// 202 whether or not the address exists.
	s.sendJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req TokenConfirmRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Token == "" || req.NewPassword == "" {
		s.sendJSONError(w, http.StatusBadRequest, "token and new_password are required")
		return
	}

	if err := s.svc.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		s.sendAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVerifyEmailRequest(w http.ResponseWriter, r *http.Request) {
	claims := auth.MustFromContext(r.Context())

	user, err := s.users.GetUser(r.Context(), claims.UserID)
	if err != nil {
		s.sendAuthError(w, err)
		return
	}
	if err := s.sendVerificationMail(r, user); err != nil {
		s.logger.Warn("verification mail failed", "user_id", user.ID, "error", err)
		s.sendJSONError(w, http.StatusServiceUnavailable, "could not send email")
		return
	}
	s.sendJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleVerifyEmailConfirm(w http.ResponseWriter, r *http.Request) {
	var req TokenConfirmRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Token == "" {
		s.sendJSONError(w, http.StatusBadRequest, "token is required")
		return
	}

	if err := s.svc.VerifyEmail(r.Context(), req.Token); err != nil {
		s.sendAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.ListUsers(r.Context())
	if err != nil {
		s.sendAuthError(w, err)
		return
	}

	resp := ListUsersResponse{Users: make([]UserResponse, 0, len(users))}
	for _, u := range users {
		resp.Users = append(resp.Users, userResponse(u))
	}
	s.sendJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAdminSetRole(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req SetRoleRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	role := store.Role(req.Role)
	if !store.ValidRole(role) {
		s.sendJSONError(w, http.StatusBadRequest, "unknown role")
		return
	}

	if err := s.users.SetUserRole(r.Context(), id, role); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			s.sendJSONError(w, http.StatusNotFound, "user not found")
			return
		}
		s.sendAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminDeactivate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := s.users.SetUserActive(r.Context(), id, false); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			s.sendJSONError(w, http.StatusNotFound, "user not found")
			return
		}
		s.sendAuthError(w, err)
		return
	}
	// Deactivation also ends any live sessions.
	if err := s.users.RevokeUserSessions(r.Context(), id); err != nil {
		s.logger.Warn("failed to revoke sessions", "user_id", id, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// sendVerificationMail mints a verification token and emails the action link.
func (s *Server) sendVerificationMail(r *http.Request, user *store.User) error {
	at, err := s.svc.RequestEmailVerification(r.Context(), user.ID)
	if err != nil {
		return err
	}
	msg, err := mailer.Render(mailer.TemplateVerifyEmail, user.Email, mailer.Data{
		AppName:       s.config.AppName,
		RecipientName: user.FullName,
		ActionURL:     s.actionURL("/verify-email", at.Token),
		TTL:           s.config.VerificationTTL,
	})
	if err != nil {
		return err
	}
	return s.mail.Send(r.Context(), msg)
}

// sendResetMail emails a password-reset link.
func (s *Server) sendResetMail(r *http.Request, email, token string) error {
	msg, err := mailer.Render(mailer.TemplatePasswordReset, email, mailer.Data{
		AppName:   s.config.AppName,
		ActionURL: s.actionURL("/reset-password", token),
		TTL:       s.config.ResetTTL,
	})
	if err != nil {
		return err
	}
	return s.mail.Send(r.Context(), msg)
}

func (s *Server) actionURL(path, token string) string {
	return fmt.Sprintf("%s%s?token=%s", s.config.BaseURL, path, url.QueryEscape(token))
}
