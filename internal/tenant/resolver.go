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

package tenant

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/agencydesk/agencydesk/internal/audit"
	"github.com/agencydesk/agencydesk/internal/authz"
	"github.com/agencydesk/agencydesk/internal/identity"
	"github.com/agencydesk/agencydesk/internal/observability/logger"
)

// errNotProvisioned signals that the organization list came back empty right
// after signup, before the provisioning trigger has run. It drives the
// bounded retry and is never surfaced.
var errNotProvisioned = errors.New("no organizations provisioned yet")

// RetryPolicy bounds the wait for a not-yet-provisioned organization list.
// Attempts counts retries after the first fetch; it is a cap, not a poll.
type RetryPolicy struct {
	Attempts uint64
	Interval time.Duration
}

// Context is the resolved tenant state for one signed-in user. It is derived,
// in-memory only, and owned by whoever called Resolve; the resolver keeps no
// ambient copy. Invariant: when Organizations is non-empty, Current is one of
// them and Role is consistent with Current.
type Context struct {
	Organizations []*Organization `json:"organizations"`
	Current       *Organization   `json:"current_organization"`
	Role          authz.Role      `json:"user_role"`
}

// InviteResult is the structured outcome of processing an invitation token.
// Failures are results, not errors.
type InviteResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Resolver discovers the organizations a user may act on, selects and
// persists the current one, and resolves the user's role inside it.
type Resolver struct {
	orgs        OrganizationRepository
	memberships MembershipRepository
	prefs       PreferenceRepository
	invites     InvitationRepository
	retry       RetryPolicy
	auditLogger audit.Logger
}

// NewResolver creates a tenant resolver.
func NewResolver(
	orgs OrganizationRepository,
	memberships MembershipRepository,
	prefs PreferenceRepository,
	invites InvitationRepository,
	retry RetryPolicy,
	auditLogger audit.Logger,
) *Resolver {
	return &Resolver{
		orgs:        orgs,
		memberships: memberships,
		prefs:       prefs,
		invites:     invites,
		retry:       retry,
		auditLogger: auditLogger,
	}
}

// Resolve computes the tenant context for a user: fetch owned and member
// organizations, deduplicate, pick the current one, persist the choice, and
// resolve the role. Store failures log and resolve to an empty context so
// callers can keep rendering an empty state; Resolve never returns an error.
func (r *Resolver) Resolve(ctx context.Context, user *identity.User) *Context {
	tc := &Context{Organizations: []*Organization{}, Role: authz.RoleUser}
	if user == nil || user.ID == "" {
		return tc
	}

	orgs, err := r.fetchOrganizations(ctx, user.ID)
	if err != nil {
		slog.WarnContext(ctx, "organization fetch failed, resolving empty context",
			logger.UserID(user.ID), logger.Error(err))
		return tc
	}
	tc.Organizations = orgs
	if len(orgs) == 0 {
		return tc
	}

	current, remembered := r.selectCurrent(ctx, user.ID, orgs)
	tc.Current = current
	tc.Role = r.resolveRole(ctx, user.ID, current)

	if err := r.prefs.SetCurrentOrganization(ctx, user.ID, current.ID); err != nil {
		slog.WarnContext(ctx, "failed to persist current organization",
			logger.UserID(user.ID), logger.OrganizationID(current.ID), logger.Error(err))
	}
	if remembered != current.ID {
		r.auditLogger.Log(ctx, audit.Event{
			Type:           audit.TypeOrganizationSelected,
			OrganizationID: current.ID,
			ActorID:        user.ID,
			Metadata:       map[string]any{"role": string(tc.Role)},
		})
	}

	return tc
}

// Refresh re-runs Resolve. Collaborators call it after state-changing
// operations such as accepting an invitation.
func (r *Resolver) Refresh(ctx context.Context, user *identity.User) *Context {
	return r.Resolve(ctx, user)
}

// Switch changes the current organization to organizationID. The id must
// already be in tc.Organizations; an unknown id is a no-op. The role is
// re-resolved with a fresh membership query since the membership for a
// non-current organization may not have been loaded.
func (r *Resolver) Switch(ctx context.Context, tc *Context, user *identity.User, organizationID string) {
	if tc == nil || user == nil {
		return
	}
	target := findByID(tc.Organizations, organizationID)
	if target == nil {
		slog.DebugContext(ctx, "ignoring switch to unknown organization",
			logger.UserID(user.ID), logger.OrganizationID(organizationID))
		return
	}

	tc.Current = target
	tc.Role = r.resolveRole(ctx, user.ID, target)

	if err := r.prefs.SetCurrentOrganization(ctx, user.ID, target.ID); err != nil {
		slog.WarnContext(ctx, "failed to persist current organization",
			logger.UserID(user.ID), logger.OrganizationID(target.ID), logger.Error(err))
	}

	r.auditLogger.Log(ctx, audit.Event{
		Type:           audit.TypeOrganizationSwitched,
		OrganizationID: target.ID,
		ActorID:        user.ID,
		Metadata:       map[string]any{"role": string(tc.Role)},
	})
}

// ProcessInvite redeems an invitation token for the user. All error paths
// become a negative result with a human-readable message; the caller is
// expected to Refresh on success.
func (r *Resolver) ProcessInvite(ctx context.Context, user *identity.User, token string) InviteResult {
	if user == nil || user.ID == "" {
		return InviteResult{Success: false, Message: "sign in to accept an invitation"}
	}
	if token == "" {
		return InviteResult{Success: false, Message: "invitation token is required"}
	}

	orgID, err := r.invites.Redeem(ctx, token, user.ID)
	if err != nil {
		slog.WarnContext(ctx, "invitation redemption failed",
			logger.UserID(user.ID), logger.Error(err))
		r.auditLogger.Log(ctx, audit.Event{
			Type:    audit.TypeInviteRejected,
			ActorID: user.ID,
		})
		return InviteResult{Success: false, Message: "invitation is invalid or has already been used"}
	}

	r.auditLogger.Log(ctx, audit.Event{
		Type:           audit.TypeInviteAccepted,
		OrganizationID: orgID,
		ActorID:        user.ID,
	})
	return InviteResult{Success: true, Message: "invitation accepted"}
}

// fetchOrganizations queries owned and member organizations, merges and
// deduplicates them. An empty merged list is retried per the policy before
// being accepted as "not provisioned yet" (which is a valid empty result, not
// an error).
func (r *Resolver) fetchOrganizations(ctx context.Context, userID string) ([]*Organization, error) {
	var merged []*Organization

	op := func() error {
		owned, err := r.orgs.ListOwned(ctx, userID)
		if err != nil {
			return backoff.Permanent(err)
		}
		member, err := r.orgs.ListMember(ctx, userID)
		if err != nil {
			return backoff.Permanent(err)
		}
		merged = mergeOrganizations(owned, member)
		if len(merged) == 0 {
			return errNotProvisioned
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.retry.Interval), r.retry.Attempts),
		ctx,
	)
	err := backoff.Retry(op, policy)
	switch {
	case err == nil:
		return merged, nil
	case errors.Is(err, errNotProvisioned):
		// Still empty after the bounded wait. The provisioning trigger may
		// simply not have fired; the caller will fetch again on next use.
		slog.InfoContext(ctx, "no organizations after provisioning retry",
			logger.UserID(userID))
		return []*Organization{}, nil
	default:
		return nil, err
	}
}

// selectCurrent applies the selection rule: the remembered organization if it
// is still reachable, otherwise the first of the merged list. The merge order
// is made deterministic by mergeOrganizations, so "first" is stable. The
// remembered id is returned alongside so the caller can tell a fresh
// selection from a restored one.
func (r *Resolver) selectCurrent(ctx context.Context, userID string, orgs []*Organization) (*Organization, string) {
	remembered, err := r.prefs.CurrentOrganization(ctx, userID)
	if err != nil {
		slog.WarnContext(ctx, "failed to read remembered organization",
			logger.UserID(userID), logger.Error(err))
		remembered = ""
	} else if remembered != "" {
		if org := findByID(orgs, remembered); org != nil {
			return org, remembered
		}
		// Stale hint: the remembered organization is no longer reachable.
		// Silently fall through to the default rule.
	}
	return orgs[0], remembered
}

// resolveRole resolves the user's role for an organization: owner means
// admin, otherwise the active membership's role, otherwise the base user
// role. Lookup failures also resolve to user (fail-closed).
func (r *Resolver) resolveRole(ctx context.Context, userID string, org *Organization) authz.Role {
	if org.OwnerID == userID {
		return authz.RoleAdmin
	}

	m, err := r.memberships.GetActive(ctx, org.ID, userID)
	if err != nil {
		if !errors.Is(err, ErrMembershipNotFound) {
			slog.WarnContext(ctx, "membership lookup failed, defaulting role",
				logger.UserID(userID), logger.OrganizationID(org.ID), logger.Error(err))
		}
		return authz.RoleUser
	}
	return authz.ParseRole(m.Role)
}

// mergeOrganizations merges the owned and member lists, deduplicating by id.
// The result is ordered oldest created_at first, id as tie-break, so selection
// does not depend on the incidental order of two independent queries.
func mergeOrganizations(owned, member []*Organization) []*Organization {
	seen := make(map[string]struct{}, len(owned)+len(member))
	merged := make([]*Organization, 0, len(owned)+len(member))
	for _, org := range append(append([]*Organization{}, owned...), member...) {
		if org == nil {
			continue
		}
		if _, ok := seen[org.ID]; ok {
			continue
		}
		seen[org.ID] = struct{}{}
		merged = append(merged, org)
	}

	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].CreatedAt.Before(merged[j].CreatedAt)
		}
		return merged[i].ID < merged[j].ID
	})
	return merged
}

func findByID(orgs []*Organization, id string) *Organization {
	if id == "" {
		return nil
	}
	for _, org := range orgs {
		if org.ID == id {
			return org
		}
	}
	return nil
}
