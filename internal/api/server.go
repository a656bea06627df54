// Package api provides the HTTP REST API for the identity service.
//
// It exposes account registration and login, token refresh, session
// management, organization administration and audit queries.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/CodeWithZezo/mega-project/internal/audit"
	"github.com/CodeWithZezo/mega-project/internal/auth"
	"github.com/CodeWithZezo/mega-project/internal/infrastructure/config"
	"github.com/CodeWithZezo/mega-project/internal/infrastructure/database"
	"github.com/CodeWithZezo/mega-project/internal/infrastructure/logging"
	"github.com/CodeWithZezo/mega-project/internal/org"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Auth     *auth.Service
	Orgs     *org.Service
	Guard    *org.Guard
	Audit    audit.Repository
	DB       *database.DB
	Version  string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg      config.APIConfig
	secCfg   config.SecurityConfig
	logger   *logging.Logger
	auth     *auth.Service
	orgs     *org.Service
	guard    *org.Guard
	audit    *audit.Recorder
	auditQ   audit.Repository
	db       *database.DB
	version  string
	server   *http.Server
	cancel   context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service is required")
	}
	if deps.Orgs == nil {
		return nil, fmt.Errorf("org service is required")
	}
	if deps.Guard == nil {
		return nil, fmt.Errorf("membership guard is required")
	}

	return &Server{
		cfg:     deps.Config,
		secCfg:  deps.Security,
		logger:  deps.Logger,
		auth:    deps.Auth,
		orgs:    deps.Orgs,
		guard:   deps.Guard,
		audit:   audit.NewRecorder(deps.Audit),
		auditQ:  deps.Audit,
		db:      deps.DB,
		version: deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the expired-session sweeper, and launches
// the HTTP listener in a background goroutine. The server can be stopped
// with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.secCfg.SessionPurge.Enabled {
		go s.purgeSessionsLoop(srvCtx)
	}

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// purgeSessionsLoop removes expired sessions periodically until the context
// is cancelled.
func (s *Server) purgeSessionsLoop(ctx context.Context) {
	interval := time.Duration(s.secCfg.SessionPurge.Interval) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := s.auth.PurgeExpiredSessions(ctx)
			if err != nil {
				s.logger.Warn("session purge failed", "error", err)
				continue
			}
			if purged > 0 {
				s.logger.Info("purged expired sessions", "count", purged)
			}
		}
	}
}
