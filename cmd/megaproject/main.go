// Multi-tenant identity and access service.
//
// This is the main entry point for the application. It wires the
// configuration, database, auth and organization services, and the HTTP
// API together, then waits for a shutdown signal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/CodeWithZezo/mega-project/migrations"

	"github.com/CodeWithZezo/mega-project/internal/api"
	"github.com/CodeWithZezo/mega-project/internal/audit"
	"github.com/CodeWithZezo/mega-project/internal/auth"
	"github.com/CodeWithZezo/mega-project/internal/infrastructure/config"
	"github.com/CodeWithZezo/mega-project/internal/infrastructure/database"
	"github.com/CodeWithZezo/mega-project/internal/infrastructure/logging"
	"github.com/CodeWithZezo/mega-project/internal/org"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting identity service",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Repositories
	userRepo := auth.NewUserRepository(db.DB)
	sessionRepo := auth.NewSessionRepository(db.DB)
	orgRepo := org.NewOrgRepository(db.DB)
	memberRepo := org.NewMembershipRepository(db.DB)
	keyRepo := org.NewAPIKeyRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Services
	authService := auth.NewService(userRepo, sessionRepo, auth.Config{
		JWTSecret:       cfg.Security.JWT.Secret,
		AccessTokenTTL:  cfg.AccessTokenTTL(),
		RefreshTokenTTL: cfg.RefreshTokenTTL(),
		BcryptCost:      cfg.Security.BcryptCost,
		PasswordPolicy:  cfg.Security.PasswordPolicy,
	}, log.With("component", "auth").Logger)

	orgService := org.NewService(orgRepo, memberRepo, keyRepo, userRepo,
		log.With("component", "org").Logger)
	guard := org.NewGuard(memberRepo)

	// HTTP API
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		Security: cfg.Security,
		Logger:   log.With("component", "api"),
		Auth:     authService,
		Orgs:     orgService,
		Guard:    guard,
		Audit:    auditRepo,
		DB:       db,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	if err := healthCheck(ctx, db, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses MEGAPROJECT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MEGAPROJECT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheckTimeout bounds the startup health verification.
const healthCheckTimeout = 5 * time.Second

// healthCheck verifies infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, server *api.Server) error {
	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := db.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := server.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
