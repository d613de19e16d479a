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

// Package system provides integration tests that run against a real PostgreSQL database.
//
// Test Execution:
//
//	INTEGRATION_TEST=true go test -v ./tests/system/...
//
// Prerequisites:
//
//	docker compose up -d postgres
//
// Test Categories:
//   - TEN-*: Tenant resolution and isolation tests
//   - INV-*: Invitation redemption tests
//   - REC-*: Orphan reconciliation tests
//   - SUB-*: Subscription gating tests
package system

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agencydesk/agencydesk/internal/audit"
	"github.com/agencydesk/agencydesk/internal/authz"
	"github.com/agencydesk/agencydesk/internal/identity"
	"github.com/agencydesk/agencydesk/internal/reconciler"
	"github.com/agencydesk/agencydesk/internal/store/postgres"
	"github.com/agencydesk/agencydesk/internal/subscription"
	"github.com/agencydesk/agencydesk/internal/tenant"
)

// testDB is the shared database connection for integration tests
var testDB *postgres.DB

// TestMain sets up and tears down the test database connection
func TestMain(m *testing.M) {
	// Skip if not integration test
	if os.Getenv("INTEGRATION_TEST") != "true" {
		os.Exit(0)
	}

	ctx := context.Background()
	db, err := postgres.New(ctx, postgres.Config{
		Host:     getEnvOrDefault("DB_HOST", "localhost"),
		Port:     getEnvOrDefault("DB_PORT", "5432"),
		User:     getEnvOrDefault("DB_USER", "agencydesk"),
		Password: getEnvOrDefault("DB_PASSWORD", "agencydesk_dev_password"),
		Database: getEnvOrDefault("DB_NAME", "agencydesk"),
		SSLMode:  "disable",
		MaxConns: 5,
		MinConns: 2,
	})
	if err != nil {
		panic("failed to connect to test database: " + err.Error())
	}
	testDB = db

	// Apply migrations
	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		// Ignore errors for already existing tables
		_ = err
	}

	code := m.Run()

	testDB.Close()
	os.Exit(code)
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newResolver() *tenant.Resolver {
	return tenant.NewResolver(
		postgres.NewOrganizationRepository(testDB),
		postgres.NewMembershipRepository(testDB),
		postgres.NewPreferenceRepository(testDB),
		postgres.NewInvitationRepository(testDB),
		tenant.RetryPolicy{Attempts: 0, Interval: time.Second},
		audit.NewSlogLogger(),
	)
}

func seedOrganization(t *testing.T, ctx context.Context, name, ownerID string) string {
	t.Helper()
	id := uuid.NewString()
	_, err := testDB.Pool().Exec(ctx,
		`INSERT INTO organizations (id, name, slug, owner_id) VALUES ($1, $2, $3, $4)`,
		id, name, "slug-"+id[:13], ownerID)
	require.NoError(t, err)
	return id
}

func seedMembership(t *testing.T, ctx context.Context, orgID, userID, role, status string) {
	t.Helper()
	_, err := testDB.Pool().Exec(ctx,
		`INSERT INTO memberships (organization_id, user_id, role, status) VALUES ($1, $2, $3, $4)`,
		orgID, userID, role, status)
	require.NoError(t, err)
}

func testUser(prefix string) *identity.User {
	id := prefix + "-" + uuid.NewString()[:8]
	return &identity.User{ID: id, Email: id + "@example.com"}
}

// =============================================================================
// TENANT RESOLUTION AND ISOLATION TESTS
// =============================================================================

// TestPurpose: Validates that resolution only surfaces organizations reachable
// through ownership or an active membership, never someone else's tenant.
// Scope: Integration Test
// Security: Multi-tenancy boundary enforcement (prevents cross-tenant access)
// Expected: User A resolves to org A only; user B resolves to org B only.
// Test Case ID: TEN-01
func TestTenant_Resolution_IsolationBetweenOwners(t *testing.T) {
	if testDB == nil {
		t.Skip("Integration test requires database (set INTEGRATION_TEST=true)")
	}

	ctx := context.Background()
	resolver := newResolver()

	userA := testUser("owner-a")
	userB := testUser("owner-b")
	orgA := seedOrganization(t, ctx, "Agency A", userA.ID)
	orgB := seedOrganization(t, ctx, "Agency B", userB.ID)

	tcA := resolver.Resolve(ctx, userA)
	require.Len(t, tcA.Organizations, 1, "TEN-01: user A must see exactly one organization")
	assert.Equal(t, orgA, tcA.Organizations[0].ID)
	assert.Equal(t, authz.RoleAdmin, tcA.Role, "TEN-01: owner resolves to admin")

	tcB := resolver.Resolve(ctx, userB)
	require.Len(t, tcB.Organizations, 1)
	assert.Equal(t, orgB, tcB.Organizations[0].ID,
		"TEN-01 SECURITY: user B must never see user A's organization")
}

// TestPurpose: Validates that pending and inactive memberships do not grant
// access to an organization.
// Scope: Integration Test
// Security: Membership status gating (pending invitees have no access yet)
// Expected: Only the active membership's organization appears in the context.
// Test Case ID: TEN-02
func TestTenant_Resolution_OnlyActiveMembershipsCount(t *testing.T) {
	if testDB == nil {
		t.Skip("Integration test requires database")
	}

	ctx := context.Background()
	resolver := newResolver()

	member := testUser("member")
	active := seedOrganization(t, ctx, "Active Org", "other-owner-"+uuid.NewString()[:8])
	pending := seedOrganization(t, ctx, "Pending Org", "other-owner-"+uuid.NewString()[:8])
	inactive := seedOrganization(t, ctx, "Inactive Org", "other-owner-"+uuid.NewString()[:8])

	seedMembership(t, ctx, active, member.ID, "manager", "active")
	seedMembership(t, ctx, pending, member.ID, "manager", "pending")
	seedMembership(t, ctx, inactive, member.ID, "manager", "inactive")

	tc := resolver.Resolve(ctx, member)
	require.Len(t, tc.Organizations, 1,
		"TEN-02 SECURITY: pending/inactive memberships must not surface organizations")
	assert.Equal(t, active, tc.Organizations[0].ID)
	assert.Equal(t, authz.RoleManager, tc.Role)
}

// TestPurpose: Validates that the remembered organization survives across
// resolutions and that switching persists the new choice.
// Scope: Integration Test
// Expected: After switching, a fresh Resolve lands on the switched-to
// organization.
// Test Case ID: TEN-03
func TestTenant_Switch_PersistsAcrossResolutions(t *testing.T) {
	if testDB == nil {
		t.Skip("Integration test requires database")
	}

	ctx := context.Background()
	resolver := newResolver()

	user := testUser("switcher")
	first := seedOrganization(t, ctx, "First Org", user.ID)
	second := seedOrganization(t, ctx, "Second Org", user.ID)

	tc := resolver.Resolve(ctx, user)
	require.Len(t, tc.Organizations, 2)
	require.NotNil(t, tc.Current)

	target := second
	if tc.Current.ID == second {
		target = first
	}
	resolver.Switch(ctx, tc, user, target)
	assert.Equal(t, target, tc.Current.ID)

	again := resolver.Resolve(ctx, user)
	require.NotNil(t, again.Current)
	assert.Equal(t, target, again.Current.ID,
		"TEN-03: the switched-to organization must be remembered")
}

// =============================================================================
// INVITATION REDEMPTION TESTS
// =============================================================================

// TestPurpose: Validates the full invitation path: redeem activates the
// membership with the invited role, and a second redemption is rejected.
// Scope: Integration Test
// Security: One-time token use (replay protection)
// Expected: First redemption succeeds and grants manager access; the replay
// and an expired token both fail.
// Test Case ID: INV-01
func TestInvitation_RedeemOnceAndReject(t *testing.T) {
	if testDB == nil {
		t.Skip("Integration test requires database")
	}

	ctx := context.Background()
	resolver := newResolver()

	invitee := testUser("invitee")
	orgID := seedOrganization(t, ctx, "Inviting Org", "inviter-"+uuid.NewString()[:8])

	token := uuid.NewString()
	_, err := testDB.Pool().Exec(ctx,
		`INSERT INTO invitations (token, organization_id, email, role, expires_at)
		 VALUES ($1, $2, $3, 'manager', NOW() + INTERVAL '1 day')`,
		token, orgID, invitee.Email)
	require.NoError(t, err)

	result := resolver.ProcessInvite(ctx, invitee, token)
	require.True(t, result.Success, "INV-01: valid token must redeem")

	tc := resolver.Refresh(ctx, invitee)
	require.Len(t, tc.Organizations, 1)
	assert.Equal(t, orgID, tc.Organizations[0].ID)
	assert.Equal(t, authz.RoleManager, tc.Role, "INV-01: invited role must apply")

	replay := resolver.ProcessInvite(ctx, invitee, token)
	assert.False(t, replay.Success,
		"INV-01 SECURITY: a redeemed token MUST NOT be usable again")

	expired := uuid.NewString()
	_, err = testDB.Pool().Exec(ctx,
		`INSERT INTO invitations (token, organization_id, email, role, expires_at)
		 VALUES ($1, $2, $3, 'user', NOW() - INTERVAL '1 hour')`,
		expired, orgID, invitee.Email)
	require.NoError(t, err)

	late := resolver.ProcessInvite(ctx, invitee, expired)
	assert.False(t, late.Success, "INV-01: expired tokens must be rejected")
}

// =============================================================================
// ORPHAN RECONCILIATION TESTS
// =============================================================================

// TestPurpose: Validates orphan adoption against real tables: rows with a null
// organization_id and a matching creator get stamped, nothing else moves.
// Scope: Integration Test
// Security: Adoption must never reassign rows that already belong to a tenant
// or that another user created.
// Expected: Two orphaned clients and one orphaned task are adopted; the
// foreign orphan and the already-owned row are untouched. A second run adopts
// nothing.
// Test Case ID: REC-01
func TestReconciler_AdoptsOrphansIdempotently(t *testing.T) {
	if testDB == nil {
		t.Skip("Integration test requires database")
	}

	ctx := context.Background()

	user := testUser("creator")
	stranger := testUser("stranger")
	orgID := seedOrganization(t, ctx, "Adopting Org", user.ID)
	otherOrg := seedOrganization(t, ctx, "Other Org", stranger.ID)

	pool := testDB.Pool()
	for i := 0; i < 2; i++ {
		_, err := pool.Exec(ctx,
			`INSERT INTO clients (created_by, name) VALUES ($1, $2)`, user.ID, "Orphan Client")
		require.NoError(t, err)
	}
	_, err := pool.Exec(ctx,
		`INSERT INTO tasks (created_by, title) VALUES ($1, 'Orphan Task')`, user.ID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx,
		`INSERT INTO clients (created_by, name) VALUES ($1, 'Foreign Orphan')`, stranger.ID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx,
		`INSERT INTO clients (organization_id, created_by, name) VALUES ($1, $2, 'Already Owned')`,
		otherOrg, user.ID)
	require.NoError(t, err)

	rec := reconciler.New(postgres.NewOrphanRepository(testDB), nil, 0, audit.NewSlogLogger())
	report := rec.Run(ctx, user.ID, orgID)

	assert.EqualValues(t, 2, report.Adopted["clients"], "REC-01: both orphan clients adopted")
	assert.EqualValues(t, 1, report.Adopted["tasks"], "REC-01: orphan task adopted")
	assert.Empty(t, report.Failed)

	var foreign int
	err = pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM clients WHERE created_by = $1 AND organization_id IS NULL`,
		stranger.ID).Scan(&foreign)
	require.NoError(t, err)
	assert.Equal(t, 1, foreign,
		"REC-01 SECURITY: another user's orphan MUST NOT be adopted")

	var owned string
	err = pool.QueryRow(ctx,
		`SELECT organization_id FROM clients WHERE name = 'Already Owned' AND created_by = $1`,
		user.ID).Scan(&owned)
	require.NoError(t, err)
	assert.Equal(t, otherOrg, owned,
		"REC-01 SECURITY: rows that already belong to a tenant keep it")

	again := rec.Run(ctx, user.ID, orgID)
	assert.Zero(t, again.Total(), "REC-01: a second pass adopts nothing")
}

// =============================================================================
// SUBSCRIPTION GATING TESTS
// =============================================================================

// TestPurpose: Validates the store-side premium check against seeded
// subscription rows.
// Scope: Integration Test
// Security: Premium gating is fail-closed for expired trials and missing rows.
// Expected: Active premium and unexpired trial grant access; expired trial and
// missing subscription deny it.
// Test Case ID: SUB-01
func TestSubscription_StoreSidePremiumCheck(t *testing.T) {
	if testDB == nil {
		t.Skip("Integration test requires database")
	}

	ctx := context.Background()
	pool := testDB.Pool()
	gate := subscription.NewGate(postgres.NewSubscriptionRepository(testDB))

	owner := "sub-owner-" + uuid.NewString()[:8]

	premium := seedOrganization(t, ctx, "Premium Org", owner)
	_, err := pool.Exec(ctx,
		`INSERT INTO subscriptions (organization_id, plan_type, status) VALUES ($1, 'premium', 'active')`,
		premium)
	require.NoError(t, err)
	assert.True(t, gate.CheckPremiumAccess(ctx, premium), "SUB-01: active premium grants access")

	trial := seedOrganization(t, ctx, "Trial Org", owner)
	_, err = pool.Exec(ctx,
		`INSERT INTO subscriptions (organization_id, plan_type, status, trial_start_date, trial_end_date)
		 VALUES ($1, 'trial', 'active', NOW() - INTERVAL '1 day', NOW() + INTERVAL '13 days')`,
		trial)
	require.NoError(t, err)
	assert.True(t, gate.CheckPremiumAccess(ctx, trial), "SUB-01: unexpired trial grants access")

	lapsed := seedOrganization(t, ctx, "Lapsed Org", owner)
	_, err = pool.Exec(ctx,
		`INSERT INTO subscriptions (organization_id, plan_type, status, trial_start_date, trial_end_date)
		 VALUES ($1, 'trial', 'active', NOW() - INTERVAL '15 days', NOW() - INTERVAL '1 day')`,
		lapsed)
	require.NoError(t, err)
	assert.False(t, gate.CheckPremiumAccess(ctx, lapsed),
		"SUB-01 SECURITY: expired trial MUST NOT grant access")

	bare := seedOrganization(t, ctx, "Bare Org", owner)
	assert.False(t, gate.CheckPremiumAccess(ctx, bare),
		"SUB-01 SECURITY: missing subscription row MUST NOT grant access")

	ent := gate.Load(ctx, trial)
	require.NotNil(t, ent.Subscription)
	assert.True(t, ent.IsActive)
	assert.False(t, ent.IsTrialExpired)
	assert.Positive(t, ent.DaysLeftInTrial)
}
