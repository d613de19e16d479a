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
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/agencydesk/agencydesk/internal/observability/logger"
	"github.com/agencydesk/agencydesk/internal/tenant"
)

// InvitationRepository implements tenant.InvitationRepository on top of the
// accept_invitation stored procedure, which validates the token, activates
// the membership, and marks the invitation consumed in one transaction.
type InvitationRepository struct {
	db *DB
}

// NewInvitationRepository creates a new invitation repository
func NewInvitationRepository(db *DB) *InvitationRepository {
	return &InvitationRepository{db: db}
}

// Redeem consumes an invitation token for the user and returns the
// organization it was for. Every failure mode maps to
// tenant.ErrInvitationInvalid; the caller converts that to a structured
// result, so the store never needs to distinguish expired from unknown.
func (r *InvitationRepository) Redeem(ctx context.Context, token, userID string) (string, error) {
	if _, err := uuid.Parse(token); err != nil {
		// Tokens are UUIDs; reject garbage without a round trip.
		return "", tenant.ErrInvitationInvalid
	}

	var organizationID string
	err := r.db.pool.QueryRow(ctx, `
		SELECT accept_invitation($1, $2)
	`, token, userID).Scan(&organizationID)
	if err != nil {
		if err != pgx.ErrNoRows {
			slog.DebugContext(ctx, "invitation procedure rejected token",
				logger.UserID(userID), logger.Error(err))
		}
		return "", tenant.ErrInvitationInvalid
	}
	if organizationID == "" {
		return "", tenant.ErrInvitationInvalid
	}

	return organizationID, nil
}
