package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/CodeWithZezo/mega-project/internal/audit"
	"github.com/CodeWithZezo/mega-project/internal/auth"
)

// updateProfileRequest carries optional profile fields for PATCH /me.
// Absent fields are left unchanged.
type updateProfileRequest struct {
	FullName *string `json:"full_name"`
	Phone    *string `json:"phone"`
}

// changePasswordRequest is the request body for PUT /me/password.
type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// handleGetMe returns the caller's account.
func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	user, err := s.auth.GetUser(r.Context(), claims.Subject)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// handleUpdateMe patches the caller's profile.
func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	user, err := s.auth.UpdateProfile(r.Context(), claims.Subject, req.FullName, req.Phone)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// handleChangePassword rotates the caller's password. All their sessions
// are revoked on success; clients must log in again.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.auth.ChangePassword(r.Context(), claims.Subject, req.CurrentPassword, req.NewPassword); err != nil {
		writeDomainError(w, err)
		return
	}

	s.audit.Record(r.Context(), &audit.AuditLog{
		Action:     audit.ActionPasswordReset,
		EntityType: "user",
		EntityID:   claims.Subject,
		UserID:     claims.Subject,
		Source:     "api",
	})

	w.WriteHeader(http.StatusNoContent)
}

// handleVerifyEmail marks the caller's email as verified.
func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	user, err := s.auth.VerifyEmail(r.Context(), claims.Subject)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// handleDeleteMe deletes the caller's account and revokes all sessions.
func (s *Server) handleDeleteMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	if err := s.auth.DeleteAccount(r.Context(), claims.Subject); err != nil {
		writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListSessions lists the caller's active sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	sessions, err := s.auth.Sessions(r.Context(), claims.Subject)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// handleRevokeSession revokes one of the caller's sessions by ID.
func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	sessionID := chi.URLParam(r, "id")

	if err := s.auth.RevokeSession(r.Context(), claims.Subject, sessionID); err != nil {
		// Foreign and unknown sessions look identical from the outside.
		if errors.Is(err, auth.ErrSessionInvalid) {
			writeNotFound(w, "session not found")
			return
		}
		writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListMyOrgs lists the organizations the caller belongs to.
func (s *Server) handleListMyOrgs(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	orgs, err := s.orgs.OrgsForUser(r.Context(), claims.Subject)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"organizations": orgs})
}
