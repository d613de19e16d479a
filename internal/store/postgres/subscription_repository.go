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
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/agencydesk/agencydesk/internal/subscription"
)

// SubscriptionRepository implements subscription.Repository
type SubscriptionRepository struct {
	db *DB
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// GetByOrganization retrieves the organization's subscription row.
func (r *SubscriptionRepository) GetByOrganization(ctx context.Context, organizationID string) (*subscription.Subscription, error) {
	var s subscription.Subscription

	err := r.db.pool.QueryRow(ctx, `
		SELECT id, organization_id, plan_type, status,
			trial_start_date, trial_end_date,
			subscription_start_date, subscription_end_date
		FROM subscriptions
		WHERE organization_id = $1
	`, organizationID).Scan(
		&s.ID, &s.OrganizationID, &s.PlanType, &s.Status,
		&s.TrialStartDate, &s.TrialEndDate,
		&s.SubscriptionStartDate, &s.SubscriptionEndDate,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return &s, nil
}

// HasPremiumAccess evaluates premium entitlement against the database clock,
// so the answer does not depend on a possibly-stale local read. Mirrors the
// derivation in the subscription package: active status, and either a
// premium-tier plan or an unexpired trial.
func (r *SubscriptionRepository) HasPremiumAccess(ctx context.Context, organizationID string) (bool, error) {
	var allowed bool

	err := r.db.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM subscriptions
			WHERE organization_id = $1
			  AND status = 'active'
			  AND (
			      plan_type IN ('premium', 'enterprise')
			      OR (plan_type = 'trial' AND trial_end_date >= NOW())
			  )
		)
	`, organizationID).Scan(&allowed)
	if err != nil {
		return false, fmt.Errorf("failed to check premium access: %w", err)
	}

	return allowed, nil
}
