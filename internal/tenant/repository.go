package tenant

import (
	"context"
	"errors"
)

var (
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrMembershipNotFound   = errors.New("membership not found")
	ErrInvitationInvalid    = errors.New("invitation is invalid or expired")
)

// OrganizationRepository defines the interface for organization reads
type OrganizationRepository interface {
	// ListOwned retrieves organizations where the user is the owner.
	ListOwned(ctx context.Context, userID string) ([]*Organization, error)

	// ListMember retrieves organizations the user reaches through an
	// active membership.
	ListMember(ctx context.Context, userID string) ([]*Organization, error)

	// GetByID retrieves a single organization.
	GetByID(ctx context.Context, id string) (*Organization, error)
}

// MembershipRepository defines the interface for membership lookups
type MembershipRepository interface {
	// GetActive retrieves the user's active membership in an organization,
	// or ErrMembershipNotFound.
	GetActive(ctx context.Context, organizationID, userID string) (*Membership, error)
}

// PreferenceRepository persists the remembered current organization across
// sessions. It is a hint, never a source of truth.
type PreferenceRepository interface {
	// CurrentOrganization returns the remembered organization id for the
	// user, or "" when none is stored.
	CurrentOrganization(ctx context.Context, userID string) (string, error)

	// SetCurrentOrganization remembers the organization id for the user.
	SetCurrentOrganization(ctx context.Context, userID, organizationID string) error
}

// InvitationRepository redeems invitation tokens through a store-side
// procedure that validates the token and activates the membership.
type InvitationRepository interface {
	// Redeem consumes the token for the user and returns the organization
	// the invitation was for, or ErrInvitationInvalid.
	Redeem(ctx context.Context, token, userID string) (string, error)
}
