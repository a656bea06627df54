package auth

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// emailPattern is a lightweight format check: one @ with something either side
// and a dot in the domain. Deliverability is not our problem.
var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// maxEmailLength is the maximum allowed email address length.
const maxEmailLength = 255

// phonePattern matches E.164 phone numbers (optional +, up to 15 digits).
var phonePattern = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)

// NormalizeEmail lowercases and trims an email address. All storage, lookups,
// and uniqueness checks operate on the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsValidEmail checks if an email address meets format requirements.
func IsValidEmail(email string) bool {
	return len(email) <= maxEmailLength && emailPattern.MatchString(email)
}

// IsValidPhone checks if a phone number is in E.164 format.
// An empty phone is valid — the field is optional.
func IsValidPhone(phone string) bool {
	return phone == "" || phonePattern.MatchString(phone)
}

// User represents a registered account capable of authenticating.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never serialised
	FullName     string    `json:"full_name,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	IsVerified   bool      `json:"is_verified"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Session represents one active refresh grant for a user. The raw refresh
// token is returned to the client once at creation; only its hash is stored.
// Multiple concurrent sessions per user are allowed (multi-device).
type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	TokenHash  string    `json:"-"` // never serialised
	DeviceInfo string    `json:"device_info,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
	Revoked    bool      `json:"revoked"`
	CreatedAt  time.Time `json:"created_at"`
}

// Valid reports whether the session is usable at the given instant:
// it exists, is unrevoked, and is unexpired.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && !s.Revoked && now.Before(s.ExpiresAt)
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailExists        = errors.New("email already registered")
	ErrSessionInvalid     = errors.New("invalid session")
	ErrSessionExpired     = errors.New("session has expired")
	ErrSessionRevoked     = errors.New("session has been revoked")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token has expired")
	ErrWeakPassword       = errors.New("password does not meet policy requirements")
)
