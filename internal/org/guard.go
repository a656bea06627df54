package org

import (
	"context"
	"errors"
)

// Guard answers authorization questions for organization-scoped actions.
// Every check fails closed: a lookup error denies access rather than
// granting it.
type Guard struct {
	members MembershipRepository
}

// NewGuard creates a guard over the membership store.
func NewGuard(members MembershipRepository) *Guard {
	return &Guard{members: members}
}

// RequireMember returns the caller's membership if they are an active member
// of the organization, or ErrForbidden.
func (g *Guard) RequireMember(ctx context.Context, orgID, userID string) (*Membership, error) {
	m, err := g.members.Get(ctx, orgID, userID)
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	if m.Status != StatusActive {
		return nil, ErrForbidden
	}
	return m, nil
}

// RequireAdmin returns the caller's membership if they are an active admin
// of the organization, or ErrForbidden.
func (g *Guard) RequireAdmin(ctx context.Context, orgID, userID string) (*Membership, error) {
	m, err := g.RequireMember(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if m.Role != RoleAdmin {
		return nil, ErrForbidden
	}
	return m, nil
}

// RequireRole returns the caller's membership if they hold at least the
// given role. Admin satisfies member; member does not satisfy admin.
func (g *Guard) RequireRole(ctx context.Context, orgID, userID string, role Role) (*Membership, error) {
	if role == RoleAdmin {
		return g.RequireAdmin(ctx, orgID, userID)
	}
	return g.RequireMember(ctx, orgID, userID)
}
