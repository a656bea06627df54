package api

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/CodeWithZezo/mega-project/internal/audit"
	"github.com/CodeWithZezo/mega-project/internal/auth"
	"github.com/CodeWithZezo/mega-project/internal/infrastructure/config"
	"github.com/CodeWithZezo/mega-project/internal/infrastructure/logging"
	"github.com/CodeWithZezo/mega-project/internal/org"
)

// testAccountPassword satisfies the default password policy.
const testAccountPassword = "Str0ng-enough!"

// setupTestDB creates a temporary SQLite database with the full schema the
// API touches: accounts, sessions, organizations, memberships, keys, audit.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "api-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// Single connection, same as the production pool.
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			full_name     TEXT,
			phone         TEXT,
			is_verified   INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);

		CREATE TABLE sessions (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			token_hash  TEXT NOT NULL UNIQUE,
			device_info TEXT,
			expires_at  TEXT NOT NULL,
			revoked     INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL
		);

		CREATE INDEX idx_sessions_user ON sessions(user_id);
		CREATE INDEX idx_sessions_expires ON sessions(expires_at);

		CREATE TABLE organizations (
			id                   TEXT PRIMARY KEY,
			name                 TEXT NOT NULL,
			slug                 TEXT NOT NULL UNIQUE,
			pw_min_length        INTEGER NOT NULL DEFAULT 8,
			pw_require_uppercase INTEGER NOT NULL DEFAULT 1,
			pw_require_lowercase INTEGER NOT NULL DEFAULT 1,
			pw_require_numbers   INTEGER NOT NULL DEFAULT 1,
			pw_require_special   INTEGER NOT NULL DEFAULT 0,
			phone_required       INTEGER NOT NULL DEFAULT 0,
			created_at           TEXT NOT NULL,
			updated_at           TEXT NOT NULL
		);

		CREATE TABLE memberships (
			org_id     TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			role       TEXT NOT NULL CHECK (role IN ('admin', 'member')),
			status     TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'suspended')),
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (org_id, user_id)
		);

		CREATE INDEX idx_memberships_user ON memberships(user_id);
		CREATE INDEX idx_memberships_org_role ON memberships(org_id, role);

		CREATE TABLE api_keys (
			id         TEXT PRIMARY KEY,
			org_id     TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
			name       TEXT NOT NULL,
			key_hash   TEXT NOT NULL UNIQUE,
			prefix     TEXT NOT NULL,
			created_by TEXT NOT NULL,
			revoked    INTEGER NOT NULL DEFAULT 0,
			expires_at TEXT,
			created_at TEXT NOT NULL
		);

		CREATE INDEX idx_api_keys_org ON api_keys(org_id);

		CREATE TABLE audit_logs (
			id          TEXT PRIMARY KEY,
			action      TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id   TEXT,
			user_id     TEXT,
			org_id      TEXT,
			source      TEXT NOT NULL,
			details     TEXT,
			created_at  TEXT NOT NULL
		);

		CREATE INDEX idx_audit_logs_created ON audit_logs(created_at);
		CREATE INDEX idx_audit_logs_org ON audit_logs(org_id);
	`
	if _, execErr := db.Exec(schema); execErr != nil {
		t.Fatalf("creating test schema: %v", execErr)
	}

	return db
}

// testServer wires a Server over a temp database with real services,
// mirroring the production composition.
func testServer(t *testing.T) *Server {
	t.Helper()

	db := setupTestDB(t)
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	authSvc := auth.NewService(
		auth.NewUserRepository(db),
		auth.NewSessionRepository(db),
		auth.Config{
			JWTSecret:       "test-secret-0123456789abcdef0123456789abcdef",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 24 * time.Hour,
			BcryptCost:      auth.MinCost,
			PasswordPolicy:  auth.DefaultPolicy(),
		},
		log.Logger,
	)

	members := org.NewMembershipRepository(db)
	orgSvc := org.NewService(
		org.NewOrgRepository(db),
		members,
		org.NewAPIKeyRepository(db),
		auth.NewUserRepository(db),
		log.Logger,
	)

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		Security: config.SecurityConfig{
			SessionPurge: config.PurgeConfig{Enabled: false},
		},
		Logger:  log,
		Auth:    authSvc,
		Orgs:    orgSvc,
		Guard:   org.NewGuard(members),
		Audit:   audit.NewSQLiteRepository(db),
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return srv
}

// registerAccount registers a new account through the API and returns the
// created user and its first token pair.
func registerAccount(t *testing.T, router http.Handler, email string) authResponse {
	t.Helper()

	body := fmt.Sprintf(`{"email": %q, "password": %q, "full_name": "Test User", "device_info": "test/1.0"}`,
		email, testAccountPassword)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("register %s status = %d, want %d; body: %s", email, w.Code, http.StatusCreated, w.Body.String())
	}

	var resp authResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal register response: %v", err)
	}
	return resp
}

// doJSON issues a request with an optional bearer token and JSON body.
func doJSON(router http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	w := doJSON(router, http.MethodGet, "/api/v1/health", "", "")

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
}

func TestHealth_ContentType(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	w := doJSON(router, http.MethodGet, "/api/v1/health", "", "")

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	w := doJSON(router, http.MethodGet, "/api/v1/health", "", "")

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
}

func TestNotFound(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	w := doJSON(router, http.MethodGet, "/api/v1/nonexistent", "", "")

	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	w := doJSON(router, http.MethodGet, "/api/v1/me", "", "")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_GarbageToken(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	w := doJSON(router, http.MethodGet, "/api/v1/me", "not-a-jwt", "")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_WrongScheme(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	resp := registerAccount(t, router, "scheme@example.com")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Basic "+resp.Tokens.AccessToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
