package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/CodeWithZezo/mega-project/internal/audit"
	"github.com/CodeWithZezo/mega-project/internal/org"
)

// addMemberRequest is the request body for POST /orgs/{orgID}/members.
type addMemberRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// updateRoleRequest is the request body for PATCH /orgs/{orgID}/members/{userID}.
type updateRoleRequest struct {
	Role string `json:"role"`
}

// handleListMembers lists the organization's members. An optional ?role=
// query filters by role.
func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	roleFilter := org.Role(r.URL.Query().Get("role"))

	members, err := s.orgs.Members(r.Context(), orgID, roleFilter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

// handleAddMember adds an existing account to the organization by email.
func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	orgID := chi.URLParam(r, "orgID")

	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Email == "" {
		writeBadRequest(w, "email is required")
		return
	}

	m, err := s.orgs.AddMember(r.Context(), orgID, req.Email, org.Role(req.Role))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.audit.Record(r.Context(), &audit.AuditLog{
		Action:     audit.ActionMemberAdd,
		EntityType: "membership",
		EntityID:   m.UserID,
		UserID:     claims.Subject,
		OrgID:      orgID,
		Source:     "api",
		Details:    map[string]any{"role": string(m.Role)},
	})

	writeJSON(w, http.StatusCreated, m)
}

// handleUpdateMemberRole changes a member's role. Demoting the last admin
// returns 409.
func (s *Server) handleUpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	orgID := chi.URLParam(r, "orgID")
	userID := chi.URLParam(r, "userID")

	var req updateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	m, err := s.orgs.UpdateRole(r.Context(), orgID, userID, org.Role(req.Role))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.audit.Record(r.Context(), &audit.AuditLog{
		Action:     audit.ActionMemberUpdate,
		EntityType: "membership",
		EntityID:   userID,
		UserID:     claims.Subject,
		OrgID:      orgID,
		Source:     "api",
		Details:    map[string]any{"role": string(m.Role)},
	})

	writeJSON(w, http.StatusOK, m)
}

// handleRemoveMember removes a member. Removing the last admin returns 409.
func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	orgID := chi.URLParam(r, "orgID")
	userID := chi.URLParam(r, "userID")

	if err := s.orgs.RemoveMember(r.Context(), orgID, userID); err != nil {
		writeDomainError(w, err)
		return
	}

	s.audit.Record(r.Context(), &audit.AuditLog{
		Action:     audit.ActionMemberRemove,
		EntityType: "membership",
		EntityID:   userID,
		UserID:     claims.Subject,
		OrgID:      orgID,
		Source:     "api",
	})

	w.WriteHeader(http.StatusNoContent)
}

// handleLeaveOrg removes the caller's own membership. A sole admin cannot
// leave; they must promote a replacement or delete the organization.
func (s *Server) handleLeaveOrg(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	orgID := chi.URLParam(r, "orgID")

	if err := s.orgs.Leave(r.Context(), orgID, claims.Subject); err != nil {
		writeDomainError(w, err)
		return
	}

	s.audit.Record(r.Context(), &audit.AuditLog{
		Action:     audit.ActionMemberRemove,
		EntityType: "membership",
		EntityID:   claims.Subject,
		UserID:     claims.Subject,
		OrgID:      orgID,
		Source:     "api",
		Details:    map[string]any{"left": true},
	})

	w.WriteHeader(http.StatusNoContent)
}
