package org

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OrgRepository defines the interface for organization persistence.
type OrgRepository interface {
	Create(ctx context.Context, o *Organization, founderID string) error
	GetByID(ctx context.Context, id string) (*Organization, error)
	GetBySlug(ctx context.Context, slug string) (*Organization, error)
	Update(ctx context.Context, o *Organization) error
	Delete(ctx context.Context, id string) error
	ListForUser(ctx context.Context, userID string) ([]OrgWithRole, error)
}

// SQLiteOrgRepository implements OrgRepository using SQLite.
type SQLiteOrgRepository struct {
	db *sql.DB
}

// NewOrgRepository creates a new SQLite-backed organization repository.
func NewOrgRepository(db *sql.DB) *SQLiteOrgRepository {
	return &SQLiteOrgRepository{db: db}
}

const orgColumns = `id, name, slug, pw_min_length, pw_require_uppercase, pw_require_lowercase,
	pw_require_numbers, pw_require_special, phone_required, created_at, updated_at`

// Create inserts an organization together with the founder's admin
// membership in a single transaction. An organization with zero memberships
// is never observable.
func (r *SQLiteOrgRepository) Create(ctx context.Context, o *Organization, founderID string) error {
	if o.ID == "" {
		o.ID = "org-" + uuid.NewString()[:8]
	}
	if o.Slug == "" {
		o.Slug = Slugify(o.Name)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	o.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	o.UpdatedAt = o.CreatedAt

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning org creation: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	p := o.PasswordPolicy
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO organizations (id, name, slug, pw_min_length, pw_require_uppercase,
		   pw_require_lowercase, pw_require_numbers, pw_require_special, phone_required,
		   created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Name, o.Slug, p.MinLength,
		boolToInt(p.RequireUppercase), boolToInt(p.RequireLowercase),
		boolToInt(p.RequireNumbers), boolToInt(p.RequireSpecialChars),
		boolToInt(o.PhoneRequired), now, now,
	); err != nil {
		if isUniqueViolation(err) {
			return ErrNameExists
		}
		return fmt.Errorf("creating organization: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO memberships (org_id, user_id, role, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		o.ID, founderID, string(RoleAdmin), string(StatusActive), now, now,
	); err != nil {
		return fmt.Errorf("creating founder membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing org creation: %w", err)
	}
	return nil
}

// GetByID retrieves an organization by its unique ID.
func (r *SQLiteOrgRepository) GetByID(ctx context.Context, id string) (*Organization, error) {
	return r.getOrg(ctx, "SELECT "+orgColumns+" FROM organizations WHERE id = ?", id)
}

// GetBySlug retrieves an organization by its unique slug.
func (r *SQLiteOrgRepository) GetBySlug(ctx context.Context, slug string) (*Organization, error) {
	return r.getOrg(ctx, "SELECT "+orgColumns+" FROM organizations WHERE slug = ?", strings.ToLower(slug))
}

// Update modifies an organization's name, policy, and phone requirement.
// The slug is immutable once created — it appears in external URLs.
func (r *SQLiteOrgRepository) Update(ctx context.Context, o *Organization) error {
	now := time.Now().UTC().Format(time.RFC3339)
	o.UpdatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	p := o.PasswordPolicy
	result, err := r.db.ExecContext(ctx,
		`UPDATE organizations SET name = ?, pw_min_length = ?, pw_require_uppercase = ?,
		   pw_require_lowercase = ?, pw_require_numbers = ?, pw_require_special = ?,
		   phone_required = ?, updated_at = ?
		 WHERE id = ?`,
		o.Name, p.MinLength,
		boolToInt(p.RequireUppercase), boolToInt(p.RequireLowercase),
		boolToInt(p.RequireNumbers), boolToInt(p.RequireSpecialChars),
		boolToInt(o.PhoneRequired), now, o.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrNameExists
		}
		return fmt.Errorf("updating organization: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrOrgNotFound
	}
	return nil
}

// Delete removes an organization. Memberships and API keys cascade via
// foreign keys; no last-admin check applies to whole-org deletion.
func (r *SQLiteOrgRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM organizations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting organization: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrOrgNotFound
	}
	return nil
}

// ListForUser returns every organization the user belongs to, with their
// role, admins first.
func (r *SQLiteOrgRepository) ListForUser(ctx context.Context, userID string) ([]OrgWithRole, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT o.id, o.name, o.slug, o.pw_min_length, o.pw_require_uppercase,
		        o.pw_require_lowercase, o.pw_require_numbers, o.pw_require_special,
		        o.phone_required, o.created_at, o.updated_at, m.role
		 FROM organizations o
		 JOIN memberships m ON m.org_id = o.id
		 WHERE m.user_id = ?
		 ORDER BY m.role ASC, o.created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing organizations for user: %w", err)
	}
	defer rows.Close()

	var result []OrgWithRole
	for rows.Next() {
		o, role, err := scanOrgWithRole(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, OrgWithRole{Org: o, Role: role})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating organizations: %w", err)
	}

	if result == nil {
		result = []OrgWithRole{}
	}
	return result, nil
}

// getOrg executes a query and scans a single organization result.
func (r *SQLiteOrgRepository) getOrg(ctx context.Context, query string, args ...any) (*Organization, error) {
	var o Organization
	var upper, lower, numbers, special, phoneReq int
	var createdAt, updatedAt string

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&o.ID, &o.Name, &o.Slug, &o.PasswordPolicy.MinLength,
		&upper, &lower, &numbers, &special, &phoneReq,
		&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrgNotFound
		}
		return nil, fmt.Errorf("scanning organization: %w", err)
	}

	o.PasswordPolicy.RequireUppercase = upper != 0
	o.PasswordPolicy.RequireLowercase = lower != 0
	o.PasswordPolicy.RequireNumbers = numbers != 0
	o.PasswordPolicy.RequireSpecialChars = special != 0
	o.PhoneRequired = phoneReq != 0
	o.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	o.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &o, nil
}

// scanOrgWithRole scans an org joined with a membership role from sql.Rows.
func scanOrgWithRole(rows *sql.Rows) (*Organization, Role, error) {
	var o Organization
	var upper, lower, numbers, special, phoneReq int
	var createdAt, updatedAt, role string

	err := rows.Scan(&o.ID, &o.Name, &o.Slug, &o.PasswordPolicy.MinLength,
		&upper, &lower, &numbers, &special, &phoneReq,
		&createdAt, &updatedAt, &role)
	if err != nil {
		return nil, "", fmt.Errorf("scanning organization row: %w", err)
	}

	o.PasswordPolicy.RequireUppercase = upper != 0
	o.PasswordPolicy.RequireLowercase = lower != 0
	o.PasswordPolicy.RequireNumbers = numbers != 0
	o.PasswordPolicy.RequireSpecialChars = special != 0
	o.PhoneRequired = phoneReq != 0
	o.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	o.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &o, Role(role), nil
}

// Helper functions.

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
