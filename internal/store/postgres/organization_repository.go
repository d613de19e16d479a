// Copyright 2026 The AgencyDesk Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/agencydesk/agencydesk/internal/tenant"
)

// OrganizationRepository implements tenant.OrganizationRepository
type OrganizationRepository struct {
	db *DB
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db *DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

const organizationColumns = `id, name, slug, description, logo_url, owner_id, created_at, updated_at`

// ListOwned retrieves organizations where the user is the owner.
func (r *OrganizationRepository) ListOwned(ctx context.Context, userID string) ([]*tenant.Organization, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+organizationColumns+`
		FROM organizations
		WHERE owner_id = $1
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list owned organizations: %w", err)
	}
	defer rows.Close()

	return scanOrganizations(rows)
}

// ListMember retrieves organizations the user reaches through an active
// membership. The resolver deduplicates against the owned list; ordering
// here only needs to be stable within one query.
func (r *OrganizationRepository) ListMember(ctx context.Context, userID string) ([]*tenant.Organization, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT o.id, o.name, o.slug, o.description, o.logo_url, o.owner_id, o.created_at, o.updated_at
		FROM organizations o
		JOIN memberships m ON m.organization_id = o.id
		WHERE m.user_id = $1 AND m.status = $2
		ORDER BY o.created_at, o.id
	`, userID, tenant.MembershipActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list member organizations: %w", err)
	}
	defer rows.Close()

	return scanOrganizations(rows)
}

// GetByID retrieves a single organization.
func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*tenant.Organization, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+organizationColumns+`
		FROM organizations
		WHERE id = $1
	`, id)

	org, err := scanOrganization(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, tenant.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrganization(row rowScanner) (*tenant.Organization, error) {
	var org tenant.Organization
	var description, logoURL sql.NullString

	err := row.Scan(
		&org.ID, &org.Name, &org.Slug, &description, &logoURL,
		&org.OwnerID, &org.CreatedAt, &org.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		org.Description = description.String
	}
	if logoURL.Valid {
		org.LogoURL = logoURL.String
	}
	return &org, nil
}

func scanOrganizations(rows pgx.Rows) ([]*tenant.Organization, error) {
	orgs := []*tenant.Organization{}
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read organizations: %w", err)
	}
	return orgs, nil
}
