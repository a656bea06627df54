package org

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/CodeWithZezo/mega-project/internal/auth"
)

// Role represents a member's authorization tier within one organization.
type Role string

const (
	// RoleAdmin can manage the organization: members, roles, settings,
	// API keys, and deletion.
	RoleAdmin Role = "admin"

	// RoleMember can use the organization's resources but not administer it.
	RoleMember Role = "member"
)

// ValidRoles is the closed set of membership roles.
var ValidRoles = []Role{RoleAdmin, RoleMember}

// IsValidRole returns true if the role is one of the closed variants.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Status represents a membership's lifecycle state.
type Status string

const (
	// StatusActive is a live membership counted for authorization.
	StatusActive Status = "active"

	// StatusSuspended is retained for history but grants no access.
	StatusSuspended Status = "suspended"
)

// slugPattern is the valid shape of an organization slug.
var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// maxNameLength bounds organization names and slugs.
const maxNameLength = 100

// IsValidSlug checks if a slug meets format requirements.
func IsValidSlug(slug string) bool {
	return len(slug) <= maxNameLength && slugPattern.MatchString(slug)
}

// Slugify derives a URL-safe slug from an organization name: lowercase,
// non-alphanumeric runs collapsed to single hyphens.
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Organization is a tenant boundary grouping users under shared policy.
type Organization struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Slug           string      `json:"slug"`
	PasswordPolicy auth.Policy `json:"password_policy"`
	PhoneRequired  bool        `json:"phone_required"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// DefaultOrgPolicy is the password policy a new organization starts with.
func DefaultOrgPolicy() auth.Policy {
	return auth.Policy{
		MinLength:           8,
		RequireUppercase:    true,
		RequireLowercase:    true,
		RequireNumbers:      true,
		RequireSpecialChars: false,
	}
}

// Membership is the role-bearing relation between a user and an organization.
// It references both sides by ID only; it owns neither.
type Membership struct {
	OrgID     string    `json:"org_id"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MemberInfo is a membership joined with its user's public profile,
// as returned by member listings.
type MemberInfo struct {
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	FullName   string    `json:"full_name,omitempty"`
	IsVerified bool      `json:"is_verified"`
	Role       Role      `json:"role"`
	Status     Status    `json:"status"`
	JoinedAt   time.Time `json:"joined_at"`
}

// OrgWithRole pairs an organization with the querying user's role in it.
type OrgWithRole struct {
	Org  *Organization `json:"org"`
	Role Role          `json:"role"`
}

// Stats summarizes an organization for its dashboard.
type Stats struct {
	TotalMembers       int `json:"total_members"`
	TotalAdmins        int `json:"total_admins"`
	TotalActiveAPIKeys int `json:"total_active_api_keys"`
}

// Sentinel errors for organization and membership operations.
var (
	ErrOrgNotFound    = errors.New("organization not found")
	ErrNameExists     = errors.New("organization name already exists")
	ErrInvalidName    = errors.New("invalid organization name")
	ErrMemberNotFound = errors.New("member not found in this organization")
	ErrAlreadyMember  = errors.New("user is already a member of this organization")
	ErrLastAdmin      = errors.New("cannot remove the last admin: transfer ownership or promote another admin first")
	ErrInvalidRole    = errors.New("invalid role: must be admin or member")
	ErrForbidden      = errors.New("insufficient permissions for this organization")
	ErrKeyNotFound    = errors.New("api key not found")
)
