package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)
		r.Post("/auth/logout", s.handleLogout)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/logout-all", s.handleLogoutAll)

			// Current account
			r.Route("/me", func(r chi.Router) {
				r.Get("/", s.handleGetMe)
				r.Patch("/", s.handleUpdateMe)
				r.Delete("/", s.handleDeleteMe)
				r.Put("/password", s.handleChangePassword)
				r.Post("/verify", s.handleVerifyEmail)
				r.Get("/sessions", s.handleListSessions)
				r.Delete("/sessions/{id}", s.handleRevokeSession)
				r.Get("/orgs", s.handleListMyOrgs)
			})

			// Organizations
			r.Route("/orgs", func(r chi.Router) {
				r.Post("/", s.handleCreateOrg)

				r.Route("/{orgID}", func(r chi.Router) {
					// Member-visible
					r.Group(func(r chi.Router) {
						r.Use(s.requireMember)
						r.Get("/", s.handleGetOrg)
						r.Get("/members", s.handleListMembers)
						r.Post("/leave", s.handleLeaveOrg)
					})

					// Admin-only
					r.Group(func(r chi.Router) {
						r.Use(s.requireAdmin)
						r.Patch("/", s.handleUpdateOrg)
						r.Delete("/", s.handleDeleteOrg)
						r.Get("/stats", s.handleOrgStats)

						r.Post("/members", s.handleAddMember)
						r.Patch("/members/{userID}", s.handleUpdateMemberRole)
						r.Delete("/members/{userID}", s.handleRemoveMember)

						r.Get("/keys", s.handleListAPIKeys)
						r.Post("/keys", s.handleCreateAPIKey)
						r.Delete("/keys/{keyID}", s.handleRevokeAPIKey)

						r.Get("/audit", s.handleOrgAudit)
					})
				})
			})
		})
	})

	return r
}

// handleHealth returns the server health status, including database
// connectivity when a database handle is configured.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.HealthCheck(ctx); err != nil {
			s.logger.Error("health check: database unreachable", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":  "degraded",
				"version": s.version,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": s.version,
	})
}
