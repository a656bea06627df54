package org

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// APIKey is an organization-scoped credential for programmatic access. Only
// the SHA-256 hash of the key material is stored; the raw key is returned
// once at creation and cannot be recovered afterwards.
type APIKey struct {
	ID        string     `json:"id"`
	OrgID     string     `json:"org_id"`
	Name      string     `json:"name"`
	KeyHash   string     `json:"-"`
	Prefix    string     `json:"prefix"`
	CreatedBy string     `json:"created_by"`
	Revoked   bool       `json:"revoked"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Valid reports whether the key can be used at the given instant.
func (k *APIKey) Valid(now time.Time) bool {
	if k.Revoked {
		return false
	}
	if k.ExpiresAt != nil && !now.Before(*k.ExpiresAt) {
		return false
	}
	return true
}

const apiKeyPrefixLen = 8

// GenerateAPIKey produces a new raw key with an identifying prefix. The raw
// form is "mpk_" followed by 48 hex characters; Prefix holds the first
// characters for display in key listings.
func GenerateAPIKey() (raw, prefix string, err error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generating api key: %w", err)
	}
	raw = "mpk_" + hex.EncodeToString(buf)
	return raw, raw[:len("mpk_")+apiKeyPrefixLen], nil
}

// HashAPIKey returns the hex SHA-256 digest of a raw key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// APIKeyRepository defines the interface for API key persistence.
type APIKeyRepository interface {
	Create(ctx context.Context, key *APIKey) error
	GetByID(ctx context.Context, orgID, keyID string) (*APIKey, error)
	FindByHash(ctx context.Context, keyHash string) (*APIKey, error)
	ListByOrg(ctx context.Context, orgID string) ([]*APIKey, error)
	Revoke(ctx context.Context, orgID, keyID string) error
	CountActive(ctx context.Context, orgID string) (int, error)
}

// SQLiteAPIKeyRepository implements APIKeyRepository using SQLite.
type SQLiteAPIKeyRepository struct {
	db *sql.DB
}

// NewAPIKeyRepository creates a new SQLite-backed API key repository.
func NewAPIKeyRepository(db *sql.DB) *SQLiteAPIKeyRepository {
	return &SQLiteAPIKeyRepository{db: db}
}

const apiKeyColumns = "id, org_id, name, key_hash, prefix, created_by, revoked, expires_at, created_at"

// Create inserts a new API key. The key's hash and prefix must already be
// set from GenerateAPIKey and HashAPIKey.
func (r *SQLiteAPIKeyRepository) Create(ctx context.Context, key *APIKey) error {
	if key.ID == "" {
		key.ID = "key-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	key.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	var expiresAt sql.NullString
	if key.ExpiresAt != nil {
		expiresAt = sql.NullString{String: key.ExpiresAt.UTC().Format(time.RFC3339), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO api_keys (`+apiKeyColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key.ID, key.OrgID, key.Name, key.KeyHash, key.Prefix,
		key.CreatedBy, boolToInt(key.Revoked), expiresAt, now,
	)
	if err != nil {
		return fmt.Errorf("creating api key: %w", err)
	}
	return nil
}

// GetByID retrieves a key scoped to its organization.
func (r *SQLiteAPIKeyRepository) GetByID(ctx context.Context, orgID, keyID string) (*APIKey, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+apiKeyColumns+" FROM api_keys WHERE org_id = ? AND id = ?",
		orgID, keyID)
	return scanAPIKey(row)
}

// FindByHash looks up a key by its hash regardless of organization, for
// authenticating inbound requests.
func (r *SQLiteAPIKeyRepository) FindByHash(ctx context.Context, keyHash string) (*APIKey, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+apiKeyColumns+" FROM api_keys WHERE key_hash = ?", keyHash)
	return scanAPIKey(row)
}

// ListByOrg returns all keys for an organization, newest first.
func (r *SQLiteAPIKeyRepository) ListByOrg(ctx context.Context, orgID string) ([]*APIKey, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+apiKeyColumns+" FROM api_keys WHERE org_id = ? ORDER BY created_at DESC",
		orgID)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var keys []*APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating api keys: %w", err)
	}

	if keys == nil {
		keys = []*APIKey{}
	}
	return keys, nil
}

// Revoke marks a key as revoked. Idempotent: revoking an already revoked key
// succeeds; an unknown key returns ErrKeyNotFound.
func (r *SQLiteAPIKeyRepository) Revoke(ctx context.Context, orgID, keyID string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE api_keys SET revoked = 1 WHERE org_id = ? AND id = ?",
		orgID, keyID)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// CountActive returns the number of unrevoked, unexpired keys.
func (r *SQLiteAPIKeyRepository) CountActive(ctx context.Context, orgID string) (int, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM api_keys
		 WHERE org_id = ? AND revoked = 0 AND (expires_at IS NULL OR expires_at > ?)`,
		orgID, now).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting api keys: %w", err)
	}
	return count, nil
}

// scanner abstracts sql.Row and sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanAPIKey(row scanner) (*APIKey, error) {
	var key APIKey
	var revoked int
	var expiresAt sql.NullString
	var createdAt string

	err := row.Scan(&key.ID, &key.OrgID, &key.Name, &key.KeyHash, &key.Prefix,
		&key.CreatedBy, &revoked, &expiresAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("scanning api key: %w", err)
	}

	key.Revoked = revoked != 0
	if expiresAt.Valid {
		t, _ := time.Parse(time.RFC3339, expiresAt.String) //nolint:errcheck // format is controlled
		key.ExpiresAt = &t
	}
	key.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	return &key, nil
}
