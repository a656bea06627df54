package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Config holds the credential and token parameters for the auth service.
type Config struct {
	// JWTSecret signs access tokens. Refresh tokens carry no signature —
	// they are opaque random values matched against stored hashes.
	JWTSecret string

	// AccessTokenTTL bounds how long a stolen access token stays usable.
	AccessTokenTTL time.Duration

	// RefreshTokenTTL bounds the lifetime of a login session.
	RefreshTokenTTL time.Duration

	// BcryptCost is the password hashing cost factor (min 10).
	BcryptCost int

	// PasswordPolicy applies to registration and password changes outside
	// any organization context.
	PasswordPolicy Policy
}

// TokenPair is the artifact set returned by a successful authentication:
// a signed short-lived access token and an opaque long-lived refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"` // access token lifetime, seconds
}

// Service implements the authentication flows: registration, login, token
// refresh, logout, password lifecycle, and account deletion. All persistence
// goes through the injected repositories.
type Service struct {
	users    UserRepository
	sessions SessionRepository
	cfg      Config
	logger   *slog.Logger
}

// NewService creates an auth service with the given repositories and config.
func NewService(users UserRepository, sessions SessionRepository, cfg Config, logger *slog.Logger) *Service {
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = defaultAccessTTL
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if cfg.BcryptCost < MinCost {
		cfg.BcryptCost = DefaultCost
	}
	return &Service{users: users, sessions: sessions, cfg: cfg, logger: logger}
}

// PasswordPolicy returns the default policy the service enforces.
func (s *Service) PasswordPolicy() Policy {
	return s.cfg.PasswordPolicy
}

// Register creates a new account and logs it in. Fails with ErrWeakPassword
// (violations attached) if the password misses the policy, ErrEmailExists on
// a duplicate address.
func (s *Service) Register(ctx context.Context, email, password, fullName, phone, deviceInfo string) (*User, *TokenPair, error) {
	email = NormalizeEmail(email)
	if !IsValidEmail(email) {
		return nil, nil, fmt.Errorf("%w: invalid email format", ErrInvalidInput)
	}
	if !IsValidPhone(phone) {
		return nil, nil, fmt.Errorf("%w: invalid phone format", ErrInvalidInput)
	}

	if violations := ValidatePassword(password, s.cfg.PasswordPolicy); len(violations) > 0 {
		return nil, nil, &PolicyError{Violations: violations}
	}

	hash, err := HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return nil, nil, err
	}

	user := &User{
		Email:        email,
		PasswordHash: hash,
		FullName:     fullName,
		Phone:        phone,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, nil, err
	}

	pair, err := s.Issue(ctx, user, deviceInfo)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID, "email", user.Email)
	return user, pair, nil
}

// Login verifies credentials and issues a fresh token pair. Unknown emails
// and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password, deviceInfo string) (*User, *TokenPair, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if !VerifyPassword(password, user.PasswordHash) {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.Issue(ctx, user, deviceInfo)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("user logged in", "user_id", user.ID, "email", user.Email)
	return user, pair, nil
}

// Issue generates a new token pair for an authenticated user. Every call
// produces fresh secrets; prior artifacts are untouched (multi-device).
func (s *Service) Issue(ctx context.Context, user *User, deviceInfo string) (*TokenPair, error) {
	access, err := GenerateAccessToken(user, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	refresh, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	session := &Session{
		UserID:     user.ID,
		TokenHash:  HashToken(refresh),
		DeviceInfo: deviceInfo,
		ExpiresAt:  time.Now().Add(s.cfg.RefreshTokenTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

// VerifyAccess resolves an access token to its claims. It fails with
// ErrTokenExpired or ErrTokenInvalid; it never touches the database.
func (s *Service) VerifyAccess(token string) (*Claims, error) {
	return ParseAccessToken(token, s.cfg.JWTSecret)
}

// Refresh validates a refresh token against the session registry and mints a
// new access token. Refresh verification never authorizes a resource action
// directly — its only output is a new access artifact. The refresh token
// itself is returned unchanged, valid until its own expiry or revocation.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	session, err := s.sessions.FindValid(ctx, HashToken(refreshToken))
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	access, err := GenerateAccessToken(user, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

// Logout revokes the session behind a refresh token. Unknown tokens are a
// no-op: logging out twice is not an error.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.sessions.RevokeByTokenHash(ctx, HashToken(refreshToken))
}

// LogoutAll revokes every session the user holds, across all devices.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	return s.sessions.RevokeAllForUser(ctx, userID)
}

// Sessions returns the user's currently active sessions.
func (s *Service) Sessions(ctx context.Context, userID string) ([]Session, error) {
	return s.sessions.ListActiveByUser(ctx, userID)
}

// RevokeSession revokes one of the user's sessions by ID. A session that
// belongs to another user is reported as not found.
func (s *Service) RevokeSession(ctx context.Context, userID, sessionID string) error {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return ErrSessionInvalid
	}
	return s.sessions.Revoke(ctx, sessionID)
}

// GetUser returns the account for an identity ID.
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	return s.users.GetByID(ctx, userID)
}

// UpdateProfile patches the user's mutable profile fields. Nil pointers
// leave the field unchanged.
func (s *Service) UpdateProfile(ctx context.Context, userID string, fullName, phone *string) (*User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if fullName != nil {
		user.FullName = *fullName
	}
	if phone != nil {
		if !IsValidPhone(*phone) {
			return nil, fmt.Errorf("%w: invalid phone format", ErrInvalidInput)
		}
		user.Phone = *phone
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword verifies the current password, regenerates the credential
// wholesale under the policy, and revokes every session for the user.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if !VerifyPassword(currentPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}

	if violations := ValidatePassword(newPassword, s.cfg.PasswordPolicy); len(violations) > 0 {
		return &PolicyError{Violations: violations}
	}

	hash, err := HashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return err
	}

	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}

	if err := s.sessions.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}

	s.logger.Info("password changed", "user_id", userID)
	return nil
}

// VerifyEmail marks the account's email address as verified.
func (s *Service) VerifyEmail(ctx context.Context, userID string) (*User, error) {
	if err := s.users.SetVerified(ctx, userID); err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, userID)
}

// DeleteAccount removes the account. Sessions and memberships cascade;
// revocation happens first so no window exists where a session outlives the
// account even under a partial failure.
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.sessions.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return err
	}

	s.logger.Info("user deleted", "user_id", userID)
	return nil
}

// PurgeExpiredSessions removes expired session rows. Meant to be called
// periodically from a background loop.
func (s *Service) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	return s.sessions.PurgeExpired(ctx)
}

// PolicyError reports every password policy rule a candidate violated.
// It unwraps to ErrWeakPassword so callers can classify it uniformly.
type PolicyError struct {
	Violations []string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%v: %d rule(s) violated", ErrWeakPassword, len(e.Violations))
}

func (e *PolicyError) Unwrap() error {
	return ErrWeakPassword
}
