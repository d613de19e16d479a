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
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/agencydesk/agencydesk/internal/authz"
	"github.com/agencydesk/agencydesk/internal/identity"
	"github.com/agencydesk/agencydesk/internal/reconciler"
	"github.com/agencydesk/agencydesk/internal/subscription"
	"github.com/agencydesk/agencydesk/internal/tenant"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	verifier   *identity.Verifier
	resolver   *tenant.Resolver
	gate       *subscription.Gate
	reconciler *reconciler.Reconciler

	// background outlives individual requests; scheduled reconciliation
	// passes run against it, not against the request context.
	background context.Context
}

// NewHandler creates a new HTTP handler
func NewHandler(
	background context.Context,
	verifier *identity.Verifier,
	resolver *tenant.Resolver,
	gate *subscription.Gate,
	rec *reconciler.Reconciler,
) *Handler {
	return &Handler{
		verifier:   verifier,
		resolver:   resolver,
		gate:       gate,
		reconciler: rec,
		background: background,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		r.Get("/context", h.GetContext)
		r.Post("/context/organization", h.SwitchOrganization)
		r.Post("/context/refresh", h.RefreshContext)
		r.Post("/invitations/accept", h.AcceptInvitation)
		r.Get("/permissions", h.GetPermissions)
		r.Get("/subscription", h.GetSubscription)
		r.Get("/subscription/premium-access", h.CheckPremiumAccess)
	})

	return r
}

// HealthCheck reports liveness.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// contextResponse is the resolved tenant state handed to the dashboard.
type contextResponse struct {
	Organizations       []*tenant.Organization `json:"organizations"`
	CurrentOrganization *tenant.Organization   `json:"current_organization"`
	UserRole            authz.Role             `json:"user_role"`
}

func toContextResponse(tc *tenant.Context) contextResponse {
	return contextResponse{
		Organizations:       tc.Organizations,
		CurrentOrganization: tc.Current,
		UserRole:            tc.Role,
	}
}

// GetContext resolves and returns the tenant context for the signed-in user.
// Resolution also schedules the orphan reconciler for the selected
// organization; the once-per-pair guard keeps repeat requests cheap.
func (h *Handler) GetContext(w http.ResponseWriter, r *http.Request) {
	user := GetUser(r.Context())

	tc := h.resolver.Resolve(r.Context(), user)
	if tc.Current != nil {
		h.reconciler.Schedule(h.background, user.ID, tc.Current.ID)
	}

	respondJSON(w, http.StatusOK, toContextResponse(tc))
}

// RefreshContext re-runs resolution, for collaborators that just changed
// membership state.
func (h *Handler) RefreshContext(w http.ResponseWriter, r *http.Request) {
	user := GetUser(r.Context())

	tc := h.resolver.Refresh(r.Context(), user)
	if tc.Current != nil {
		h.reconciler.Schedule(h.background, user.ID, tc.Current.ID)
	}

	respondJSON(w, http.StatusOK, toContextResponse(tc))
}

// SwitchOrganizationRequest selects a new current organization.
type SwitchOrganizationRequest struct {
	OrganizationID string `json:"organization_id"`
}

// SwitchOrganization changes the current organization. An id outside the
// user's resolved list leaves the context unchanged; the response always
// carries the effective context, so the client converges either way.
func (h *Handler) SwitchOrganization(w http.ResponseWriter, r *http.Request) {
	user := GetUser(r.Context())

	var req SwitchOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tc := h.resolver.Resolve(r.Context(), user)
	h.resolver.Switch(r.Context(), tc, user, req.OrganizationID)
	if tc.Current != nil {
		h.reconciler.Schedule(h.background, user.ID, tc.Current.ID)
	}

	respondJSON(w, http.StatusOK, toContextResponse(tc))
}

// AcceptInvitationRequest carries an invitation token.
type AcceptInvitationRequest struct {
	Token string `json:"token"`
}

// AcceptInvitation redeems an invitation token and refreshes the context on
// success. The outcome is always a 200 with a structured result; a rejected
// token is an expected answer, not an HTTP failure.
func (h *Handler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	user := GetUser(r.Context())

	var req AcceptInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result := h.resolver.ProcessInvite(r.Context(), user, req.Token)

	if result.Success {
		tc := h.resolver.Refresh(r.Context(), user)
		respondJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": result.Message,
			"context": toContextResponse(tc),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": false,
		"message": result.Message,
	})
}

// modulePermissions describes one module's allowed actions for a role.
type modulePermissions struct {
	Module    authz.Module `json:"module"`
	CanAccess bool         `json:"can_access"`
	Actions   []string     `json:"actions"`
}

// GetPermissions returns the permission set for the user's role in the
// current organization. With ?module= it narrows to one module; otherwise it
// lists all of them.
func (h *Handler) GetPermissions(w http.ResponseWriter, r *http.Request) {
	user := GetUser(r.Context())

	tc := h.resolver.Resolve(r.Context(), user)
	role := tc.Role

	if name := r.URL.Query().Get("module"); name != "" {
		module := authz.Module(name)
		respondJSON(w, http.StatusOK, map[string]any{
			"role":        role,
			"permissions": modulePermissions{Module: module, CanAccess: authz.CanAccess(role, module), Actions: authz.ListActions(role, module)},
		})
		return
	}

	perms := make([]modulePermissions, 0, len(authz.Modules()))
	for _, module := range authz.Modules() {
		perms = append(perms, modulePermissions{
			Module:    module,
			CanAccess: authz.CanAccess(role, module),
			Actions:   authz.ListActions(role, module),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"role": role, "permissions": perms})
}

// GetSubscription returns the current organization's entitlement snapshot.
// Without a current organization the response is the all-false entitlement.
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	user := GetUser(r.Context())

	tc := h.resolver.Resolve(r.Context(), user)
	if tc.Current == nil {
		respondJSON(w, http.StatusOK, &subscription.Entitlement{})
		return
	}

	respondJSON(w, http.StatusOK, h.gate.Load(r.Context(), tc.Current.ID))
}

// CheckPremiumAccess runs the authoritative store-side premium check for the
// current organization.
func (h *Handler) CheckPremiumAccess(w http.ResponseWriter, r *http.Request) {
	user := GetUser(r.Context())

	tc := h.resolver.Resolve(r.Context(), user)
	allowed := false
	if tc.Current != nil {
		allowed = h.gate.CheckPremiumAccess(r.Context(), tc.Current.ID)
	}

	respondJSON(w, http.StatusOK, map[string]bool{"allowed": allowed})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
