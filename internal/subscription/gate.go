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

package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/agencydesk/agencydesk/internal/audit"
	"github.com/agencydesk/agencydesk/internal/observability/logger"
)

// Repository defines the interface for subscription reads
type Repository interface {
	// GetByOrganization retrieves the organization's subscription row, or
	// ErrSubscriptionNotFound when none exists.
	GetByOrganization(ctx context.Context, organizationID string) (*Subscription, error)

	// HasPremiumAccess evaluates premium entitlement on the store side,
	// against the store's own clock.
	HasPremiumAccess(ctx context.Context, organizationID string) (bool, error)
}

// Entitlement is a point-in-time snapshot of an organization's subscription
// state, derived once at fetch time.
type Entitlement struct {
	Subscription    *Subscription `json:"subscription"`
	IsPremium       bool          `json:"is_premium"`
	IsActive        bool          `json:"is_active"`
	IsTrialExpired  bool          `json:"is_trial_expired"`
	DaysLeftInTrial int           `json:"days_left_in_trial"`
}

// Gate fetches subscription state per organization and derives the lifecycle
// flags that downstream features use to gate premium functionality.
type Gate struct {
	repo        Repository
	now         func() time.Time
	auditLogger audit.Logger
}

// NewGate creates a subscription gate.
func NewGate(repo Repository) *Gate {
	return &Gate{repo: repo, now: time.Now, auditLogger: audit.Nop{}}
}

// WithClock overrides the wall clock, for tests.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// WithAudit records premium denials to the given audit logger.
func (g *Gate) WithAudit(l audit.Logger) *Gate {
	g.auditLogger = l
	return g
}

// Load fetches the subscription for an organization and derives its
// entitlement. A missing row is a valid "no subscription" state: every flag
// is false and the error is nil. Store failures also resolve to the
// all-false entitlement (fail-closed) after logging.
func (g *Gate) Load(ctx context.Context, organizationID string) *Entitlement {
	none := &Entitlement{}
	if organizationID == "" {
		return none
	}

	sub, err := g.repo.GetByOrganization(ctx, organizationID)
	if err != nil {
		if !errors.Is(err, ErrSubscriptionNotFound) {
			slog.WarnContext(ctx, "subscription fetch failed",
				logger.OrganizationID(organizationID), logger.Error(err))
		}
		return none
	}

	now := g.now()
	return &Entitlement{
		Subscription:    sub,
		IsPremium:       sub.IsPremium(),
		IsActive:        sub.IsActive(now),
		IsTrialExpired:  sub.IsTrialExpired(now),
		DaysLeftInTrial: sub.DaysLeftInTrial(now),
	}
}

// CheckPremiumAccess asks the store whether the organization currently has
// premium access. This is the authoritative check for gating operations
// whose correctness must not depend on a possibly-stale local Load; any
// error resolves to false.
func (g *Gate) CheckPremiumAccess(ctx context.Context, organizationID string) bool {
	if organizationID == "" {
		return false
	}
	ok, err := g.repo.HasPremiumAccess(ctx, organizationID)
	if err != nil {
		slog.WarnContext(ctx, "premium access check failed, denying",
			logger.OrganizationID(organizationID), logger.Error(err))
		ok = false
	}
	if !ok {
		g.auditLogger.Log(ctx, audit.Event{
			Type:           audit.TypePremiumDenied,
			OrganizationID: organizationID,
		})
	}
	return ok
}
