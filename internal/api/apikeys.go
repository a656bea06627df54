package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/CodeWithZezo/mega-project/internal/audit"
	"github.com/CodeWithZezo/mega-project/internal/org"
)

// createKeyRequest is the request body for POST /orgs/{orgID}/keys.
// TTL is in days; zero means the key never expires.
type createKeyRequest struct {
	Name    string `json:"name"`
	TTLDays int    `json:"ttl_days"`
}

// createKeyResponse includes the raw key, returned exactly once.
type createKeyResponse struct {
	Key    *org.APIKey `json:"key"`
	RawKey string      `json:"raw_key"`
}

// handleListAPIKeys lists the organization's API keys. Only prefixes are
// exposed; raw key material is never stored.
func (s *Server) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	keys, err := s.orgs.ListAPIKeys(r.Context(), orgID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

// handleCreateAPIKey mints a new organization-scoped key.
func (s *Server) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	orgID := chi.URLParam(r, "orgID")

	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.TTLDays < 0 {
		writeBadRequest(w, "ttl_days must not be negative")
		return
	}

	ttl := time.Duration(req.TTLDays) * 24 * time.Hour
	key, raw, err := s.orgs.CreateAPIKey(r.Context(), orgID, claims.Subject, req.Name, ttl)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.audit.Record(r.Context(), &audit.AuditLog{
		Action:     audit.ActionKeyCreate,
		EntityType: "api_key",
		EntityID:   key.ID,
		UserID:     claims.Subject,
		OrgID:      orgID,
		Source:     "api",
		Details:    map[string]any{"prefix": key.Prefix},
	})

	writeJSON(w, http.StatusCreated, createKeyResponse{Key: key, RawKey: raw})
}

// handleRevokeAPIKey revokes a key immediately.
func (s *Server) handleRevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	orgID := chi.URLParam(r, "orgID")
	keyID := chi.URLParam(r, "keyID")

	if err := s.orgs.RevokeAPIKey(r.Context(), orgID, keyID); err != nil {
		writeDomainError(w, err)
		return
	}

	s.audit.Record(r.Context(), &audit.AuditLog{
		Action:     audit.ActionKeyRevoke,
		EntityType: "api_key",
		EntityID:   keyID,
		UserID:     claims.Subject,
		OrgID:      orgID,
		Source:     "api",
	})

	w.WriteHeader(http.StatusNoContent)
}
