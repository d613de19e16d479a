package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/agencydesk/agencydesk/internal/tenant"
)

// MembershipRepository implements tenant.MembershipRepository
type MembershipRepository struct {
	db *DB
}

// NewMembershipRepository creates a new membership repository
func NewMembershipRepository(db *DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// GetActive retrieves the user's active membership in an organization.
func (r *MembershipRepository) GetActive(ctx context.Context, organizationID, userID string) (*tenant.Membership, error) {
	var m tenant.Membership

	err := r.db.pool.QueryRow(ctx, `
		SELECT id, organization_id, user_id, role, status
		FROM memberships
		WHERE organization_id = $1 AND user_id = $2 AND status = $3
	`, organizationID, userID, tenant.MembershipActive).Scan(
		&m.ID, &m.OrganizationID, &m.UserID, &m.Role, &m.Status,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, tenant.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}

	return &m, nil
}
