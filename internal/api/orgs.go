package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/CodeWithZezo/mega-project/internal/audit"
	"github.com/CodeWithZezo/mega-project/internal/auth"
	"github.com/CodeWithZezo/mega-project/internal/org"
)

// createOrgRequest is the request body for POST /orgs.
type createOrgRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// updateOrgRequest carries optional settings for PATCH /orgs/{orgID}.
// Absent fields are left unchanged; the slug is immutable.
type updateOrgRequest struct {
	Name           *string      `json:"name"`
	PasswordPolicy *auth.Policy `json:"password_policy"`
	PhoneRequired  *bool        `json:"phone_required"`
}

// handleCreateOrg creates an organization with the caller as founding admin.
func (s *Server) handleCreateOrg(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req createOrgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	o, err := s.orgs.CreateOrg(r.Context(), claims.Subject, req.Name, req.Slug)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.audit.Record(r.Context(), &audit.AuditLog{
		Action:     audit.ActionOrgCreate,
		EntityType: "org",
		EntityID:   o.ID,
		UserID:     claims.Subject,
		OrgID:      o.ID,
		Source:     "api",
	})

	writeJSON(w, http.StatusCreated, o)
}

// handleGetOrg returns the routed organization.
func (s *Server) handleGetOrg(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	o, err := s.orgs.GetOrg(r.Context(), orgID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, o)
}

// handleUpdateOrg applies a partial settings update to the organization.
func (s *Server) handleUpdateOrg(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	orgID := chi.URLParam(r, "orgID")

	var req updateOrgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	o, err := s.orgs.UpdateOrg(r.Context(), orgID, org.OrgUpdate{
		Name:           req.Name,
		PasswordPolicy: req.PasswordPolicy,
		PhoneRequired:  req.PhoneRequired,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.audit.Record(r.Context(), &audit.AuditLog{
		Action:     audit.ActionOrgUpdate,
		EntityType: "org",
		EntityID:   o.ID,
		UserID:     claims.Subject,
		OrgID:      o.ID,
		Source:     "api",
	})

	writeJSON(w, http.StatusOK, o)
}

// handleDeleteOrg deletes the organization and everything scoped to it.
func (s *Server) handleDeleteOrg(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	orgID := chi.URLParam(r, "orgID")

	if err := s.orgs.DeleteOrg(r.Context(), orgID); err != nil {
		writeDomainError(w, err)
		return
	}

	s.audit.Record(r.Context(), &audit.AuditLog{
		Action:     audit.ActionOrgDelete,
		EntityType: "org",
		EntityID:   orgID,
		UserID:     claims.Subject,
		OrgID:      orgID,
		Source:     "api",
	})

	w.WriteHeader(http.StatusNoContent)
}

// handleOrgStats returns membership and key counts for the organization.
func (s *Server) handleOrgStats(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	stats, err := s.orgs.Stats(r.Context(), orgID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleOrgAudit lists the organization's audit trail.
func (s *Server) handleOrgAudit(w http.ResponseWriter, r *http.Request) {
	if s.auditQ == nil {
		writeNotFound(w, "audit log not available")
		return
	}

	orgID := chi.URLParam(r, "orgID")
	q := r.URL.Query()

	filter := audit.Filter{
		OrgID:      orgID,
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		Limit:      parseIntOrZero(q.Get("limit")),
		Offset:     parseIntOrZero(q.Get("offset")),
	}

	result, err := s.auditQ.List(r.Context(), filter)
	if err != nil {
		writeInternalError(w, "failed to query audit logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// parseIntOrZero parses a query parameter as an int, returning 0 for empty
// or malformed values. The audit filter clamps ranges itself.
func parseIntOrZero(v string) int {
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
