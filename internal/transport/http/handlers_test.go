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

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agencydesk/agencydesk/internal/audit"
	"github.com/agencydesk/agencydesk/internal/identity"
	"github.com/agencydesk/agencydesk/internal/reconciler"
	"github.com/agencydesk/agencydesk/internal/subscription"
	"github.com/agencydesk/agencydesk/internal/tenant"
)

const (
	testSecret = "test-secret"
	testIssuer = "https://auth.agencydesk.test"
)

// Stub repositories

type stubOrgRepo struct {
	owned  []*tenant.Organization
	member []*tenant.Organization
	err    error
}

func (s *stubOrgRepo) ListOwned(ctx context.Context, userID string) ([]*tenant.Organization, error) {
	return s.owned, s.err
}
func (s *stubOrgRepo) ListMember(ctx context.Context, userID string) ([]*tenant.Organization, error) {
	return s.member, s.err
}
func (s *stubOrgRepo) GetByID(ctx context.Context, id string) (*tenant.Organization, error) {
	for _, org := range append(append([]*tenant.Organization{}, s.owned...), s.member...) {
		if org.ID == id {
			return org, nil
		}
	}
	return nil, tenant.ErrOrganizationNotFound
}

type stubMembershipRepo struct {
	memberships map[string]*tenant.Membership // keyed orgID|userID
}

func (s *stubMembershipRepo) GetActive(ctx context.Context, organizationID, userID string) (*tenant.Membership, error) {
	if m, ok := s.memberships[organizationID+"|"+userID]; ok {
		return m, nil
	}
	return nil, tenant.ErrMembershipNotFound
}

type stubPrefRepo struct {
	current map[string]string
}

func (s *stubPrefRepo) CurrentOrganization(ctx context.Context, userID string) (string, error) {
	return s.current[userID], nil
}
func (s *stubPrefRepo) SetCurrentOrganization(ctx context.Context, userID, organizationID string) error {
	s.current[userID] = organizationID
	return nil
}

type stubInviteRepo struct {
	orgID string
	err   error
}

func (s *stubInviteRepo) Redeem(ctx context.Context, token, userID string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.orgID, nil
}

type stubSubscriptionRepo struct {
	sub     *subscription.Subscription
	premium bool
	err     error
}

func (s *stubSubscriptionRepo) GetByOrganization(ctx context.Context, organizationID string) (*subscription.Subscription, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.sub, nil
}
func (s *stubSubscriptionRepo) HasPremiumAccess(ctx context.Context, organizationID string) (bool, error) {
	return s.premium, s.err
}

// countingAdoptStore records adoption passes without a database.
type countingAdoptStore struct {
	calls atomic.Int64
}

func (s *countingAdoptStore) AdoptOrphans(ctx context.Context, table, userID, organizationID string) (int64, error) {
	s.calls.Add(1)
	return 0, nil
}

type testEnv struct {
	handler    *Handler
	orgs       *stubOrgRepo
	prefs      *stubPrefRepo
	invites    *stubInviteRepo
	subs       *stubSubscriptionRepo
	adoptStore *countingAdoptStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		orgs: &stubOrgRepo{},
		prefs: &stubPrefRepo{
			current: make(map[string]string),
		},
		invites:    &stubInviteRepo{err: tenant.ErrInvitationInvalid},
		subs:       &stubSubscriptionRepo{err: subscription.ErrSubscriptionNotFound},
		adoptStore: &countingAdoptStore{},
	}

	resolver := tenant.NewResolver(
		env.orgs,
		&stubMembershipRepo{memberships: map[string]*tenant.Membership{}},
		env.prefs,
		env.invites,
		tenant.RetryPolicy{Attempts: 0, Interval: time.Millisecond},
		audit.Nop{},
	)
	gate := subscription.NewGate(env.subs)
	rec := reconciler.New(env.adoptStore, nil, time.Millisecond, audit.Nop{})

	env.handler = NewHandler(context.Background(), identity.NewVerifier(testSecret, testIssuer), resolver, gate, rec)
	return env
}

func ownedOrg(id, ownerID string) *tenant.Organization {
	return &tenant.Organization{
		ID:        id,
		Name:      "Org " + id,
		OwnerID:   ownerID,
		CreatedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func mintToken(t *testing.T, subject string) string {
	t.Helper()
	claims := identity.Claims{
		Email: subject + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    testIssuer,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func authedRequest(ctx context.Context, method, target string, body []byte, userID string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	return req.WithContext(withUser(ctx, &identity.User{ID: userID, Email: userID + "@example.com"}))
}

// TestPurpose: Validates that protected routes reject unauthenticated requests.
// Scope: Unit Test
// Security: Authentication boundary (no handler runs without a verified token)
// Expected: 401 for missing/garbage/wrong-key tokens; /health stays public.
// Test Case ID: HTTP-01
func TestRouter_AuthenticationBoundary(t *testing.T) {
	env := newTestEnv(t)
	router := NewRouter(env.handler, NewRateLimiter(100, 100))

	t.Run("missing token", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/context", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/context", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("token signed with wrong key", func(t *testing.T) {
		claims := identity.Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    testIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
		require.NoError(t, err)

		req := httptest.NewRequest("GET", "/api/v1/context", nil)
		req.Header.Set("Authorization", "Bearer "+signed)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("health is public", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

// TestPurpose: Validates end-to-end context resolution through the router with
// a real signed token.
// Scope: Unit Test
// Security: Role derivation (owner resolves to admin)
// Expected: 200 with organizations, current organization and admin role; the
// orphan reconciler is scheduled for the selected pair.
// Test Case ID: HTTP-02
func TestGetContext_ResolvesThroughRouter(t *testing.T) {
	env := newTestEnv(t)
	env.orgs.owned = []*tenant.Organization{ownedOrg("org-1", "user-1")}
	router := NewRouter(env.handler, NewRateLimiter(100, 100))

	req := httptest.NewRequest("GET", "/api/v1/context", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, "user-1"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp contextResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Organizations, 1)
	require.NotNil(t, resp.CurrentOrganization)
	assert.Equal(t, "org-1", resp.CurrentOrganization.ID)
	assert.Equal(t, "admin", string(resp.UserRole))

	// Scheduled pass runs in the background after the start delay.
	assert.Eventually(t, func() bool {
		return env.adoptStore.calls.Load() > 0
	}, time.Second, 5*time.Millisecond)
}

// TestPurpose: Validates organization switching over HTTP, including the
// no-op path for ids outside the user's reachable set.
// Scope: Unit Test
// Security: Tenant isolation (cannot switch into a foreign organization)
// Expected: 400 for bad JSON; 200 with unchanged current for unknown ids;
// 200 with updated current for reachable ids.
// Test Case ID: HTTP-03
func TestSwitchOrganization(t *testing.T) {
	env := newTestEnv(t)
	env.orgs.owned = []*tenant.Organization{ownedOrg("org-1", "user-1")}
	env.orgs.member = []*tenant.Organization{ownedOrg("org-2", "someone-else")}

	t.Run("bad body", func(t *testing.T) {
		req := authedRequest(context.Background(), "POST", "/api/v1/context/organization", []byte("{"), "user-1")
		w := httptest.NewRecorder()
		env.handler.SwitchOrganization(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown organization is a no-op", func(t *testing.T) {
		body, _ := json.Marshal(SwitchOrganizationRequest{OrganizationID: "org-nope"})
		req := authedRequest(context.Background(), "POST", "/api/v1/context/organization", body, "user-1")
		w := httptest.NewRecorder()
		env.handler.SwitchOrganization(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp contextResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.CurrentOrganization)
		assert.Equal(t, "org-1", resp.CurrentOrganization.ID)
	})

	t.Run("switch to member organization", func(t *testing.T) {
		body, _ := json.Marshal(SwitchOrganizationRequest{OrganizationID: "org-2"})
		req := authedRequest(context.Background(), "POST", "/api/v1/context/organization", body, "user-1")
		w := httptest.NewRecorder()
		env.handler.SwitchOrganization(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp contextResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.CurrentOrganization)
		assert.Equal(t, "org-2", resp.CurrentOrganization.ID)
		// No membership row for user-1 in org-2, so the role bottoms out.
		assert.Equal(t, "user", string(resp.UserRole))
		assert.Equal(t, "org-2", env.prefs.current["user-1"])
	})
}

// TestPurpose: Validates invitation acceptance results over HTTP.
// Scope: Unit Test
// Security: Token redemption failures surface as results, never as 5xx.
// Expected: 200 with success=false for an invalid token, 200 with
// success=true and a refreshed context for a valid one.
// Test Case ID: HTTP-04
func TestAcceptInvitation(t *testing.T) {
	t.Run("invalid token", func(t *testing.T) {
		env := newTestEnv(t)
		body, _ := json.Marshal(AcceptInvitationRequest{Token: "bad-token"})
		req := authedRequest(context.Background(), "POST", "/api/v1/invitations/accept", body, "user-1")
		w := httptest.NewRecorder()
		env.handler.AcceptInvitation(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, false, resp["success"])
		assert.NotEmpty(t, resp["message"])
	})

	t.Run("valid token refreshes context", func(t *testing.T) {
		env := newTestEnv(t)
		env.invites.err = nil
		env.invites.orgID = "org-9"
		env.orgs.member = []*tenant.Organization{ownedOrg("org-9", "someone-else")}

		body, _ := json.Marshal(AcceptInvitationRequest{Token: "good-token"})
		req := authedRequest(context.Background(), "POST", "/api/v1/invitations/accept", body, "user-1")
		w := httptest.NewRecorder()
		env.handler.AcceptInvitation(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Success bool            `json:"success"`
			Context contextResponse `json:"context"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		require.NotNil(t, resp.Context.CurrentOrganization)
		assert.Equal(t, "org-9", resp.Context.CurrentOrganization.ID)
	})
}

// TestPurpose: Validates the permissions endpoint against the static matrix.
// Scope: Unit Test
// Security: Fail-closed permissions for unknown modules
// Expected: Admin can access settings; unknown module reports no access and
// no actions; omitting ?module= lists every module.
// Test Case ID: HTTP-05
func TestGetPermissions(t *testing.T) {
	env := newTestEnv(t)
	env.orgs.owned = []*tenant.Organization{ownedOrg("org-1", "user-1")}

	t.Run("single module for admin", func(t *testing.T) {
		req := authedRequest(context.Background(), "GET", "/api/v1/permissions?module=settings", nil, "user-1")
		w := httptest.NewRecorder()
		env.handler.GetPermissions(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Role        string            `json:"role"`
			Permissions modulePermissions `json:"permissions"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "admin", resp.Role)
		assert.True(t, resp.Permissions.CanAccess)
		assert.NotEmpty(t, resp.Permissions.Actions)
	})

	t.Run("unknown module is denied", func(t *testing.T) {
		req := authedRequest(context.Background(), "GET", "/api/v1/permissions?module=timetravel", nil, "user-1")
		w := httptest.NewRecorder()
		env.handler.GetPermissions(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Permissions modulePermissions `json:"permissions"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Permissions.CanAccess)
		assert.Empty(t, resp.Permissions.Actions)
	})

	t.Run("full listing", func(t *testing.T) {
		req := authedRequest(context.Background(), "GET", "/api/v1/permissions", nil, "user-1")
		w := httptest.NewRecorder()
		env.handler.GetPermissions(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Permissions []modulePermissions `json:"permissions"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Permissions, 10)
	})
}

// TestPurpose: Validates subscription endpoints fail closed without data.
// Scope: Unit Test
// Security: Premium gating must deny when no subscription row exists or the
// user has no current organization.
// Expected: All-false entitlement and allowed=false; allowed=true only when
// the store-side check passes.
// Test Case ID: HTTP-06
func TestSubscriptionEndpoints(t *testing.T) {
	t.Run("no current organization", func(t *testing.T) {
		env := newTestEnv(t)
		req := authedRequest(context.Background(), "GET", "/api/v1/subscription", nil, "user-1")
		w := httptest.NewRecorder()
		env.handler.GetSubscription(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var ent subscription.Entitlement
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ent))
		assert.False(t, ent.IsPremium)
		assert.False(t, ent.IsActive)
	})

	t.Run("missing subscription row", func(t *testing.T) {
		env := newTestEnv(t)
		env.orgs.owned = []*tenant.Organization{ownedOrg("org-1", "user-1")}

		req := authedRequest(context.Background(), "GET", "/api/v1/subscription", nil, "user-1")
		w := httptest.NewRecorder()
		env.handler.GetSubscription(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var ent subscription.Entitlement
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ent))
		assert.Nil(t, ent.Subscription)
		assert.False(t, ent.IsPremium)
	})

	t.Run("premium access granted by store check", func(t *testing.T) {
		env := newTestEnv(t)
		env.orgs.owned = []*tenant.Organization{ownedOrg("org-1", "user-1")}
		env.subs.err = nil
		env.subs.premium = true

		req := authedRequest(context.Background(), "GET", "/api/v1/subscription/premium-access", nil, "user-1")
		w := httptest.NewRecorder()
		env.handler.CheckPremiumAccess(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp map[string]bool
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp["allowed"])
	})

	t.Run("premium access denied on store failure", func(t *testing.T) {
		env := newTestEnv(t)
		env.orgs.owned = []*tenant.Organization{ownedOrg("org-1", "user-1")}
		env.subs.err = assert.AnError

		req := authedRequest(context.Background(), "GET", "/api/v1/subscription/premium-access", nil, "user-1")
		w := httptest.NewRecorder()
		env.handler.CheckPremiumAccess(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp map[string]bool
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp["allowed"])
	})
}
