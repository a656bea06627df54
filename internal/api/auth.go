package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/CodeWithZezo/mega-project/internal/audit"
	"github.com/CodeWithZezo/mega-project/internal/auth"
)

// registerRequest is the request body for POST /auth/register.
type registerRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	DeviceInfo string `json:"device_info"`
}

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceInfo string `json:"device_info"`
}

// tokenRequest carries a refresh token for refresh and logout calls.
type tokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// authResponse is the response body for register and login.
type authResponse struct {
	User   *auth.User      `json:"user"`
	Tokens *auth.TokenPair `json:"tokens"`
}

// handleRegister creates a new account and returns its first token pair.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	user, tokens, err := s.auth.Register(r.Context(), req.Email, req.Password, req.FullName, req.Phone, req.DeviceInfo)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.audit.Record(r.Context(), &audit.AuditLog{
		Action:     audit.ActionRegister,
		EntityType: "user",
		EntityID:   user.ID,
		UserID:     user.ID,
		Source:     "api",
	})

	writeJSON(w, http.StatusCreated, authResponse{User: user, Tokens: tokens})
}

// handleLogin authenticates credentials and returns a fresh token pair.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	user, tokens, err := s.auth.Login(r.Context(), req.Email, req.Password, req.DeviceInfo)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.audit.Record(r.Context(), &audit.AuditLog{
				Action:     audit.ActionLoginFailed,
				EntityType: "user",
				Source:     "api",
				Details:    map[string]any{"email": auth.NormalizeEmail(req.Email)},
			})
		}
		writeDomainError(w, err)
		return
	}

	s.audit.Record(r.Context(), &audit.AuditLog{
		Action:     audit.ActionLogin,
		EntityType: "user",
		EntityID:   user.ID,
		UserID:     user.ID,
		Source:     "api",
	})

	writeJSON(w, http.StatusOK, authResponse{User: user, Tokens: tokens})
}

// handleRefresh exchanges a valid refresh token for a new access token.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	tokens, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

// handleLogout revokes the session behind a refresh token. Idempotent:
// logging out an unknown or already revoked token still returns 204.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	if err := s.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		writeDomainError(w, err)
		return
	}

	s.audit.Record(r.Context(), &audit.AuditLog{
		Action:     audit.ActionLogout,
		EntityType: "session",
		Source:     "api",
	})

	w.WriteHeader(http.StatusNoContent)
}

// handleLogoutAll revokes every session the caller holds, across devices.
func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	if err := s.auth.LogoutAll(r.Context(), claims.Subject); err != nil {
		writeDomainError(w, err)
		return
	}

	s.audit.Record(r.Context(), &audit.AuditLog{
		Action:     audit.ActionLogout,
		EntityType: "session",
		UserID:     claims.Subject,
		Source:     "api",
		Details:    map[string]any{"scope": "all"},
	})

	w.WriteHeader(http.StatusNoContent)
}
