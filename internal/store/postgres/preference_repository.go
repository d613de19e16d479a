package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// PreferenceRepository implements tenant.PreferenceRepository. The
// remembered current organization is a per-user hint, so a missing row is a
// normal empty result.
type PreferenceRepository struct {
	db *DB
}

// NewPreferenceRepository creates a new preference repository
func NewPreferenceRepository(db *DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// CurrentOrganization returns the remembered organization id for the user,
// or "" when none is stored.
func (r *PreferenceRepository) CurrentOrganization(ctx context.Context, userID string) (string, error) {
	var organizationID string

	err := r.db.pool.QueryRow(ctx, `
		SELECT current_organization_id
		FROM user_preferences
		WHERE user_id = $1
	`, userID).Scan(&organizationID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to read preference: %w", err)
	}

	return organizationID, nil
}

// SetCurrentOrganization upserts the remembered organization id.
func (r *PreferenceRepository) SetCurrentOrganization(ctx context.Context, userID, organizationID string) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO user_preferences (user_id, current_organization_id, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id)
		DO UPDATE SET current_organization_id = EXCLUDED.current_organization_id,
		              updated_at = EXCLUDED.updated_at
	`, userID, organizationID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to persist preference: %w", err)
	}

	return nil
}
