package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionRepository defines the interface for refresh session persistence.
// It is the system's session registry: it answers "is this token currently
// valid, and for which identity".
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	GetByID(ctx context.Context, id string) (*Session, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	FindValid(ctx context.Context, tokenHash string) (*Session, error)
	Revoke(ctx context.Context, id string) error
	RevokeByTokenHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	ListActiveByUser(ctx context.Context, userID string) ([]Session, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

// SQLiteSessionRepository implements SessionRepository using SQLite.
type SQLiteSessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SQLite-backed session repository.
func NewSessionRepository(db *sql.DB) *SQLiteSessionRepository {
	return &SQLiteSessionRepository{db: db}
}

const sessionColumns = "id, user_id, token_hash, device_info, expires_at, revoked, created_at"

// Create inserts a new session. The ID is generated if empty.
func (r *SQLiteSessionRepository) Create(ctx context.Context, session *Session) error {
	if session.ID == "" {
		session.ID = "ses-" + uuid.NewString()[:16]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	session.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, token_hash, device_info, expires_at, revoked, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserID, session.TokenHash,
		nullString(session.DeviceInfo),
		session.ExpiresAt.UTC().Format(time.RFC3339),
		boolToInt(session.Revoked), now,
	)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	return nil
}

// GetByID retrieves a session by its ID.
func (r *SQLiteSessionRepository) GetByID(ctx context.Context, id string) (*Session, error) {
	return r.getSession(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
}

// GetByTokenHash retrieves a session by the SHA-256 hash of its raw token,
// regardless of expiry or revocation state.
func (r *SQLiteSessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error) {
	return r.getSession(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE token_hash = ?", tokenHash)
}

// FindValid resolves a token hash to its session only if that session is
// currently usable. Absent, expired, and revoked all deny; the returned error
// distinguishes them for diagnostics, but every failure wraps
// ErrSessionInvalid so callers can treat them uniformly.
func (r *SQLiteSessionRepository) FindValid(ctx context.Context, tokenHash string) (*Session, error) {
	s, err := r.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if s.Revoked {
		return nil, fmt.Errorf("%w: %w", ErrSessionInvalid, ErrSessionRevoked)
	}
	if !time.Now().Before(s.ExpiresAt) {
		return nil, fmt.Errorf("%w: %w", ErrSessionInvalid, ErrSessionExpired)
	}
	return s, nil
}

// Revoke marks a single session as revoked. Revocation is permanent and
// takes effect immediately.
func (r *SQLiteSessionRepository) Revoke(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE sessions SET revoked = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	return nil
}

// RevokeByTokenHash marks the session holding the given token hash as
// revoked. Unknown hashes are a no-op, which makes logout idempotent.
func (r *SQLiteSessionRepository) RevokeByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE sessions SET revoked = 1 WHERE token_hash = ?", tokenHash)
	if err != nil {
		return fmt.Errorf("revoking session by token: %w", err)
	}
	return nil
}

// RevokeAllForUser marks all sessions for a user as revoked.
// Used on password change, account deletion, and forced logout.
func (r *SQLiteSessionRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE sessions SET revoked = 1 WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("revoking all sessions for user: %w", err)
	}
	return nil
}

// ListActiveByUser returns all non-revoked, non-expired sessions for a user.
func (r *SQLiteSessionRepository) ListActiveByUser(ctx context.Context, userID string) ([]Session, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE user_id = ? AND revoked = 0 AND expires_at > ?
		 ORDER BY created_at DESC`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("listing active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSessionFrom(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}

	if sessions == nil {
		sessions = []Session{}
	}
	return sessions, nil
}

// PurgeExpired removes sessions past their expiry, freeing storage.
// Returns the number of deleted rows.
func (r *SQLiteSessionRepository) PurgeExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("purging expired sessions: %w", err)
	}

	count, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return count, nil
}

// getSession executes a query and scans a single session result.
func (r *SQLiteSessionRepository) getSession(ctx context.Context, query string, args ...any) (*Session, error) {
	return scanSessionFrom(r.db.QueryRowContext(ctx, query, args...))
}

// scanSessionFrom scans a session from any scanner (Row or Rows).
func scanSessionFrom(s scanner) (*Session, error) {
	var sess Session
	var deviceInfo sql.NullString
	var revoked int
	var expiresAt, createdAt string

	err := s.Scan(&sess.ID, &sess.UserID, &sess.TokenHash, &deviceInfo,
		&expiresAt, &revoked, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	sess.Revoked = revoked != 0
	if deviceInfo.Valid {
		sess.DeviceInfo = deviceInfo.String
	}
	sess.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt) //nolint:errcheck // format is controlled
	sess.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	return &sess, nil
}
