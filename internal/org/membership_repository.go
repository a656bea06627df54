package org

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// MembershipRepository defines the interface for membership persistence.
// Role-mutating operations are serialized per organization: the admin-count
// decision and the write happen atomically inside one transaction, with the
// count expressed as a guard on the write itself.
type MembershipRepository interface {
	Add(ctx context.Context, m *Membership) error
	Get(ctx context.Context, orgID, userID string) (*Membership, error)
	ListByOrg(ctx context.Context, orgID string, roleFilter Role) ([]MemberInfo, error)
	UpdateRole(ctx context.Context, orgID, userID string, newRole Role) (*Membership, error)
	Remove(ctx context.Context, orgID, userID string) error
	RoleOf(ctx context.Context, orgID, userID string) (Role, error)
	CountByOrg(ctx context.Context, orgID string) (members, admins int, err error)
}

// SQLiteMembershipRepository implements MembershipRepository using SQLite.
type SQLiteMembershipRepository struct {
	db *sql.DB
}

// NewMembershipRepository creates a new SQLite-backed membership repository.
func NewMembershipRepository(db *sql.DB) *SQLiteMembershipRepository {
	return &SQLiteMembershipRepository{db: db}
}

// Add inserts a membership. Fails with ErrAlreadyMember if the (org, user)
// pair already exists.
func (r *SQLiteMembershipRepository) Add(ctx context.Context, m *Membership) error {
	if m.Role == "" {
		m.Role = RoleMember
	}
	if m.Status == "" {
		m.Status = StatusActive
	}

	now := time.Now().UTC().Format(time.RFC3339)
	m.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	m.UpdatedAt = m.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO memberships (org_id, user_id, role, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.OrgID, m.UserID, string(m.Role), string(m.Status), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyMember
		}
		return fmt.Errorf("adding member: %w", err)
	}

	return nil
}

// Get retrieves the membership for an (org, user) pair.
func (r *SQLiteMembershipRepository) Get(ctx context.Context, orgID, userID string) (*Membership, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT org_id, user_id, role, status, created_at, updated_at
		 FROM memberships WHERE org_id = ? AND user_id = ?`, orgID, userID)
	return scanMembership(row)
}

// ListByOrg returns the organization's members joined with their profile,
// admins first. Pass an empty roleFilter for all roles.
func (r *SQLiteMembershipRepository) ListByOrg(ctx context.Context, orgID string, roleFilter Role) ([]MemberInfo, error) {
	query := `SELECT m.user_id, u.email, u.full_name, u.is_verified, m.role, m.status, m.created_at
	          FROM memberships m
	          JOIN users u ON u.id = m.user_id
	          WHERE m.org_id = ?`
	args := []any{orgID}
	if roleFilter != "" {
		query += " AND m.role = ?"
		args = append(args, string(roleFilter))
	}
	query += " ORDER BY m.role ASC, m.created_at ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	defer rows.Close()

	var members []MemberInfo
	for rows.Next() {
		var mi MemberInfo
		var fullName sql.NullString
		var isVerified int
		var role, status, joinedAt string

		if err := rows.Scan(&mi.UserID, &mi.Email, &fullName, &isVerified,
			&role, &status, &joinedAt); err != nil {
			return nil, fmt.Errorf("scanning member: %w", err)
		}

		if fullName.Valid {
			mi.FullName = fullName.String
		}
		mi.IsVerified = isVerified != 0
		mi.Role = Role(role)
		mi.Status = Status(status)
		mi.JoinedAt, _ = time.Parse(time.RFC3339, joinedAt) //nolint:errcheck // format is controlled

		members = append(members, mi)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating members: %w", err)
	}

	if members == nil {
		members = []MemberInfo{}
	}
	return members, nil
}

// UpdateRole changes a member's role. Demoting an admin is guarded: the
// UPDATE only applies while at least one other admin exists in the
// organization, evaluated atomically with the write. Zero affected rows on a
// demotion means the target was the last admin.
func (r *SQLiteMembershipRepository) UpdateRole(ctx context.Context, orgID, userID string, newRole Role) (*Membership, error) {
	if !IsValidRole(newRole) {
		return nil, ErrInvalidRole
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning role update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	var current string
	err = tx.QueryRowContext(ctx,
		"SELECT role FROM memberships WHERE org_id = ? AND user_id = ?",
		orgID, userID).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("reading current role: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)

	if Role(current) == RoleAdmin && newRole != RoleAdmin {
		// Guarded demotion: only proceeds if another admin remains.
		result, err := tx.ExecContext(ctx,
			`UPDATE memberships SET role = ?, updated_at = ?
			 WHERE org_id = ? AND user_id = ?
			   AND (SELECT COUNT(*) FROM memberships
			        WHERE org_id = ? AND role = ? AND user_id <> ?) >= 1`,
			string(newRole), now, orgID, userID,
			orgID, string(RoleAdmin), userID,
		)
		if err != nil {
			return nil, fmt.Errorf("demoting admin: %w", err)
		}
		rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
		if rows == 0 {
			return nil, ErrLastAdmin
		}
	} else if Role(current) != newRole {
		if _, err := tx.ExecContext(ctx,
			`UPDATE memberships SET role = ?, updated_at = ? WHERE org_id = ? AND user_id = ?`,
			string(newRole), now, orgID, userID,
		); err != nil {
			return nil, fmt.Errorf("updating role: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing role update: %w", err)
	}

	return r.Get(ctx, orgID, userID)
}

// Remove deletes a membership. Removing an admin carries the same guard as
// demotion: the DELETE only applies while another admin remains.
func (r *SQLiteMembershipRepository) Remove(ctx context.Context, orgID, userID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning member removal: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	var current string
	err = tx.QueryRowContext(ctx,
		"SELECT role FROM memberships WHERE org_id = ? AND user_id = ?",
		orgID, userID).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrMemberNotFound
		}
		return fmt.Errorf("reading member role: %w", err)
	}

	if Role(current) == RoleAdmin {
		result, err := tx.ExecContext(ctx,
			`DELETE FROM memberships
			 WHERE org_id = ? AND user_id = ?
			   AND (SELECT COUNT(*) FROM memberships
			        WHERE org_id = ? AND role = ? AND user_id <> ?) >= 1`,
			orgID, userID, orgID, string(RoleAdmin), userID,
		)
		if err != nil {
			return fmt.Errorf("removing admin: %w", err)
		}
		rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
		if rows == 0 {
			return ErrLastAdmin
		}
	} else {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM memberships WHERE org_id = ? AND user_id = ?",
			orgID, userID,
		); err != nil {
			return fmt.Errorf("removing member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing member removal: %w", err)
	}
	return nil
}

// RoleOf returns the user's role in the organization, or ErrMemberNotFound.
func (r *SQLiteMembershipRepository) RoleOf(ctx context.Context, orgID, userID string) (Role, error) {
	var role string
	err := r.db.QueryRowContext(ctx,
		"SELECT role FROM memberships WHERE org_id = ? AND user_id = ?",
		orgID, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrMemberNotFound
		}
		return "", fmt.Errorf("reading role: %w", err)
	}
	return Role(role), nil
}

// CountByOrg returns the organization's total member and admin counts.
func (r *SQLiteMembershipRepository) CountByOrg(ctx context.Context, orgID string) (members, admins int, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN role = ? THEN 1 ELSE 0 END), 0)
		 FROM memberships WHERE org_id = ?`,
		string(RoleAdmin), orgID).Scan(&members, &admins)
	if err != nil {
		return 0, 0, fmt.Errorf("counting members: %w", err)
	}
	return members, admins, nil
}

// scanMembership scans a membership from a sql.Row.
func scanMembership(row *sql.Row) (*Membership, error) {
	var m Membership
	var role, status, createdAt, updatedAt string

	err := row.Scan(&m.OrgID, &m.UserID, &role, &status, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("scanning membership: %w", err)
	}

	m.Role = Role(role)
	m.Status = Status(status)
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	m.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &m, nil
}
