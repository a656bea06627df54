package org

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/CodeWithZezo/mega-project/internal/auth"
)

// IdentityLookup resolves users by email or ID when inviting members. The
// auth package's user repository satisfies it.
type IdentityLookup interface {
	GetByEmail(ctx context.Context, email string) (*auth.User, error)
	GetByID(ctx context.Context, id string) (*auth.User, error)
}

// Service coordinates organizations, memberships and API keys. All role
// mutations flow through the membership repository's guarded writes, so the
// last-admin invariant holds even under concurrent demotions and removals.
type Service struct {
	orgs    OrgRepository
	members MembershipRepository
	keys    APIKeyRepository
	users   IdentityLookup
	logger  *slog.Logger
}

// NewService creates an organization service.
func NewService(orgs OrgRepository, members MembershipRepository, keys APIKeyRepository, users IdentityLookup, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		orgs:    orgs,
		members: members,
		keys:    keys,
		users:   users,
		logger:  logger,
	}
}

// CreateOrg creates an organization with the founder as its first admin.
func (s *Service) CreateOrg(ctx context.Context, founderID, name, slug string) (*Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return nil, ErrInvalidName
	}
	if slug == "" {
		// Names made entirely of punctuation slugify to "", which would
		// otherwise collide on the empty slug.
		slug = Slugify(name)
	}
	if !IsValidSlug(slug) {
		return nil, fmt.Errorf("%w: invalid slug %q", ErrInvalidName, slug)
	}

	o := &Organization{
		Name:           name,
		Slug:           slug,
		PasswordPolicy: DefaultOrgPolicy(),
	}
	if err := s.orgs.Create(ctx, o, founderID); err != nil {
		return nil, err
	}

	s.logger.Info("organization created",
		"org_id", o.ID, "slug", o.Slug, "founder", founderID)
	return o, nil
}

// GetOrg retrieves an organization by ID.
func (s *Service) GetOrg(ctx context.Context, orgID string) (*Organization, error) {
	return s.orgs.GetByID(ctx, orgID)
}

// GetOrgBySlug retrieves an organization by slug.
func (s *Service) GetOrgBySlug(ctx context.Context, slug string) (*Organization, error) {
	return s.orgs.GetBySlug(ctx, slug)
}

// OrgUpdate carries optional fields for a settings update. Nil fields are
// left unchanged; the slug is immutable.
type OrgUpdate struct {
	Name           *string
	PasswordPolicy *auth.Policy
	PhoneRequired  *bool
}

// UpdateOrg applies a partial settings update.
func (s *Service) UpdateOrg(ctx context.Context, orgID string, upd OrgUpdate) (*Organization, error) {
	o, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" || len(name) > maxNameLength {
			return nil, ErrInvalidName
		}
		o.Name = name
	}
	if upd.PasswordPolicy != nil {
		if upd.PasswordPolicy.MinLength < 1 {
			return nil, fmt.Errorf("%w: password minimum length must be positive", ErrInvalidName)
		}
		o.PasswordPolicy = *upd.PasswordPolicy
	}
	if upd.PhoneRequired != nil {
		o.PhoneRequired = *upd.PhoneRequired
	}

	if err := s.orgs.Update(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// DeleteOrg removes an organization and everything scoped to it.
func (s *Service) DeleteOrg(ctx context.Context, orgID string) error {
	if err := s.orgs.Delete(ctx, orgID); err != nil {
		return err
	}
	s.logger.Info("organization deleted", "org_id", orgID)
	return nil
}

// OrgsForUser lists every organization the user belongs to with their role.
func (s *Service) OrgsForUser(ctx context.Context, userID string) ([]OrgWithRole, error) {
	return s.orgs.ListForUser(ctx, userID)
}

// Members lists an organization's members, optionally filtered by role.
func (s *Service) Members(ctx context.Context, orgID string, roleFilter Role) ([]MemberInfo, error) {
	if roleFilter != "" && !IsValidRole(roleFilter) {
		return nil, ErrInvalidRole
	}
	return s.members.ListByOrg(ctx, orgID, roleFilter)
}

// AddMember adds an existing user to the organization by email. New members
// join with the member role unless an admin role is requested.
func (s *Service) AddMember(ctx context.Context, orgID, email string, role Role) (*Membership, error) {
	if role == "" {
		role = RoleMember
	}
	if !IsValidRole(role) {
		return nil, ErrInvalidRole
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: no account for %s", auth.ErrUserNotFound, auth.NormalizeEmail(email))
		}
		return nil, err
	}

	m := &Membership{OrgID: orgID, UserID: user.ID, Role: role, Status: StatusActive}
	if err := s.members.Add(ctx, m); err != nil {
		return nil, err
	}

	s.logger.Info("member added",
		"org_id", orgID, "user_id", user.ID, "role", string(role))
	return m, nil
}

// UpdateRole changes a member's role. Demoting the last admin fails with
// ErrLastAdmin.
func (s *Service) UpdateRole(ctx context.Context, orgID, userID string, role Role) (*Membership, error) {
	m, err := s.members.UpdateRole(ctx, orgID, userID, role)
	if err != nil {
		return nil, err
	}
	s.logger.Info("member role updated",
		"org_id", orgID, "user_id", userID, "role", string(role))
	return m, nil
}

// RemoveMember removes a member from the organization. Removing the last
// admin fails with ErrLastAdmin.
func (s *Service) RemoveMember(ctx context.Context, orgID, userID string) error {
	if err := s.members.Remove(ctx, orgID, userID); err != nil {
		return err
	}
	s.logger.Info("member removed", "org_id", orgID, "user_id", userID)
	return nil
}

// Leave removes the calling user's own membership. The last-admin guard
// applies the same as to removal by an admin.
func (s *Service) Leave(ctx context.Context, orgID, userID string) error {
	return s.RemoveMember(ctx, orgID, userID)
}

// RoleOf returns the user's role in the organization.
func (s *Service) RoleOf(ctx context.Context, orgID, userID string) (Role, error) {
	return s.members.RoleOf(ctx, orgID, userID)
}

// IsMember reports whether the user belongs to the organization with an
// active membership.
func (s *Service) IsMember(ctx context.Context, orgID, userID string) (bool, error) {
	m, err := s.members.Get(ctx, orgID, userID)
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			return false, nil
		}
		return false, err
	}
	return m.Status == StatusActive, nil
}

// IsAdmin reports whether the user is an active admin of the organization.
func (s *Service) IsAdmin(ctx context.Context, orgID, userID string) (bool, error) {
	m, err := s.members.Get(ctx, orgID, userID)
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			return false, nil
		}
		return false, err
	}
	return m.Role == RoleAdmin && m.Status == StatusActive, nil
}

// Stats summarizes an organization for its dashboard.
func (s *Service) Stats(ctx context.Context, orgID string) (*Stats, error) {
	if _, err := s.orgs.GetByID(ctx, orgID); err != nil {
		return nil, err
	}

	members, admins, err := s.members.CountByOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	keys, err := s.keys.CountActive(ctx, orgID)
	if err != nil {
		return nil, err
	}

	return &Stats{
		TotalMembers:       members,
		TotalAdmins:        admins,
		TotalActiveAPIKeys: keys,
	}, nil
}

// EffectivePolicy returns the password policy that applies to the
// organization's members.
func (s *Service) EffectivePolicy(ctx context.Context, orgID string) (auth.Policy, error) {
	o, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return auth.Policy{}, err
	}
	return o.PasswordPolicy, nil
}

// CreateAPIKey mints a new organization-scoped key. The returned raw key is
// shown once and never stored.
func (s *Service) CreateAPIKey(ctx context.Context, orgID, createdBy, name string, ttl time.Duration) (*APIKey, string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return nil, "", ErrInvalidName
	}

	raw, prefix, err := GenerateAPIKey()
	if err != nil {
		return nil, "", err
	}

	key := &APIKey{
		OrgID:     orgID,
		Name:      name,
		KeyHash:   HashAPIKey(raw),
		Prefix:    prefix,
		CreatedBy: createdBy,
	}
	if ttl > 0 {
		exp := time.Now().UTC().Add(ttl)
		key.ExpiresAt = &exp
	}

	if err := s.keys.Create(ctx, key); err != nil {
		return nil, "", err
	}

	s.logger.Info("api key created",
		"org_id", orgID, "key_id", key.ID, "created_by", createdBy)
	return key, raw, nil
}

// ListAPIKeys returns the organization's keys, newest first.
func (s *Service) ListAPIKeys(ctx context.Context, orgID string) ([]*APIKey, error) {
	return s.keys.ListByOrg(ctx, orgID)
}

// RevokeAPIKey revokes an organization's key.
func (s *Service) RevokeAPIKey(ctx context.Context, orgID, keyID string) error {
	if err := s.keys.Revoke(ctx, orgID, keyID); err != nil {
		return err
	}
	s.logger.Info("api key revoked", "org_id", orgID, "key_id", keyID)
	return nil
}

// AuthenticateAPIKey resolves a raw key to its organization, rejecting
// revoked and expired keys.
func (s *Service) AuthenticateAPIKey(ctx context.Context, rawKey string) (*APIKey, error) {
	key, err := s.keys.FindByHash(ctx, HashAPIKey(rawKey))
	if err != nil {
		return nil, err
	}
	if !key.Valid(time.Now().UTC()) {
		return nil, ErrKeyNotFound
	}
	return key, nil
}
