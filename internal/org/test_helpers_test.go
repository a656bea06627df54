package org

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/CodeWithZezo/mega-project/internal/auth"
)

// testDB creates a temporary SQLite database with the org schema applied,
// plus the users table the member listing joins against.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// Use a temp file so WAL mode works (in-memory doesn't support it)
	f, err := os.CreateTemp("", "org-test-*.db")
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

	// Single connection, same as the production pool: concurrent writers
	// queue instead of hitting SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	migrationSQL := `
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
	`
	if _, err := db.Exec(migrationSQL); err != nil {
		t.Fatalf("applying org schema: %v", err)
	}

	return db
}

// seedTestUser inserts a user row directly and returns its ID.
func seedTestUser(t *testing.T, db *sql.DB, email string) string {
	t.Helper()

	id := "usr-" + email
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.Exec(
		`INSERT INTO users (id, email, password_hash, full_name, is_verified, created_at, updated_at)
		 VALUES (?, ?, 'x', ?, 1, ?, ?)`,
		id, email, "User "+email, now, now)
	if err != nil {
		t.Fatalf("seeding test user %s: %v", email, err)
	}
	return id
}

// seedTestOrg creates an organization with the founder as admin.
func seedTestOrg(t *testing.T, db *sql.DB, name, founderID string) *Organization {
	t.Helper()

	o := &Organization{Name: name, PasswordPolicy: DefaultOrgPolicy()}
	if err := NewOrgRepository(db).Create(context.Background(), o, founderID); err != nil {
		t.Fatalf("seeding test org %s: %v", name, err)
	}
	return o
}

// seedTestMember adds a membership with the given role.
func seedTestMember(t *testing.T, db *sql.DB, orgID, userID string, role Role) {
	t.Helper()

	m := &Membership{OrgID: orgID, UserID: userID, Role: role}
	if err := NewMembershipRepository(db).Add(context.Background(), m); err != nil {
		t.Fatalf("seeding membership %s/%s: %v", orgID, userID, err)
	}
}

// testService wires a Service over a temp database. The auth user repository
// doubles as the identity lookup, same as in production wiring.
func testService(t *testing.T) (*Service, *sql.DB) {
	t.Helper()

	db := testDB(t)
	svc := NewService(
		NewOrgRepository(db),
		NewMembershipRepository(db),
		NewAPIKeyRepository(db),
		auth.NewUserRepository(db),
		slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	)
	return svc, db
}
