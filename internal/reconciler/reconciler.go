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

// Package reconciler repairs tenant-scoped business records that were
// created before the user's organization existed. Records carry a nullable
// organization foreign key; rows the user created during that window are
// "orphans" and get the current organization id filled in. The pass is
// strictly fill-missing: it never touches rows whose key is already set,
// never deletes, never merges.
package reconciler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/agencydesk/agencydesk/internal/audit"
	"github.com/agencydesk/agencydesk/internal/observability/logger"
)

// RecordType describes one tenant-scoped table to reconcile. Adding a new
// record type is one entry here, not a new code path.
type RecordType struct {
	Name  string
	Table string
}

// DefaultRecordTypes covers every tenant-scoped business table.
var DefaultRecordTypes = []RecordType{
	{Name: "clients", Table: "clients"},
	{Name: "opportunities", Table: "opportunities"},
	{Name: "tasks", Table: "tasks"},
	{Name: "events", Table: "events"},
	{Name: "contracts", Table: "contracts"},
	{Name: "financial entries", Table: "financial_entries"},
	{Name: "strategies", Table: "strategies"},
}

// Store adopts orphan rows for one table.
type Store interface {
	// AdoptOrphans sets organization_id on rows in table where it is null
	// and created_by matches, returning the number of rows updated. The
	// update condition makes repeated calls naturally idempotent.
	AdoptOrphans(ctx context.Context, table, userID, organizationID string) (int64, error)
}

// Report summarizes one reconciliation pass.
type Report struct {
	Adopted map[string]int64
	Failed  []string
}

// Total returns the number of rows adopted across all record types.
func (r Report) Total() int64 {
	var n int64
	for _, c := range r.Adopted {
		n += c
	}
	return n
}

// Reconciler runs the orphan-adoption pass once per (user, organization)
// pair. Each record type is fixed independently; one table failing never
// stops the others.
type Reconciler struct {
	store       Store
	types       []RecordType
	delay       time.Duration
	auditLogger audit.Logger

	mu        sync.Mutex
	attempted map[string]struct{}
}

// New creates a reconciler over the given record types. delay is the grace
// period before a scheduled pass starts, so the pass does not race the
// organization-provisioning trigger.
func New(store Store, types []RecordType, delay time.Duration, auditLogger audit.Logger) *Reconciler {
	if len(types) == 0 {
		types = DefaultRecordTypes
	}
	return &Reconciler{
		store:       store,
		types:       types,
		delay:       delay,
		auditLogger: auditLogger,
		attempted:   make(map[string]struct{}),
	}
}

// Schedule runs the pass for (user, organization) in the background after
// the configured delay. Pairs that were already attempted are skipped
// immediately. The context governs the wait and the pass itself.
func (r *Reconciler) Schedule(ctx context.Context, userID, organizationID string) {
	if userID == "" || organizationID == "" {
		return
	}
	if !r.markAttempted(userID, organizationID) {
		return
	}

	go func() {
		timer := time.NewTimer(r.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		r.run(ctx, userID, organizationID)
	}()
}

// Run executes the pass synchronously and unconditionally. The pass is
// idempotent, so an explicit rerun is always safe: once the first pass has
// closed the null-key condition, a second finds nothing to update.
func (r *Reconciler) Run(ctx context.Context, userID, organizationID string) Report {
	if userID == "" || organizationID == "" {
		return Report{Adopted: map[string]int64{}}
	}
	return r.run(ctx, userID, organizationID)
}

// run fixes each record type independently: log and continue on failure,
// never abort the whole pass for a single table.
func (r *Reconciler) run(ctx context.Context, userID, organizationID string) Report {
	report := Report{Adopted: make(map[string]int64, len(r.types))}

	for _, rt := range r.types {
		n, err := r.store.AdoptOrphans(ctx, rt.Table, userID, organizationID)
		if err != nil {
			slog.WarnContext(ctx, "orphan adoption failed for record type",
				logger.Component("reconciler"),
				logger.Table(rt.Table),
				logger.UserID(userID),
				logger.OrganizationID(organizationID),
				logger.Error(err),
			)
			report.Failed = append(report.Failed, rt.Name)
			continue
		}
		report.Adopted[rt.Name] = n
		if n > 0 {
			slog.InfoContext(ctx, "adopted orphan records",
				logger.Component("reconciler"),
				logger.Table(rt.Table),
				logger.OrganizationID(organizationID),
				logger.RowsAffected(n),
			)
		}
	}

	if report.Total() > 0 {
		r.auditLogger.Log(ctx, audit.Event{
			Type:           audit.TypeOrphansAdopted,
			OrganizationID: organizationID,
			ActorID:        userID,
			Metadata:       map[string]any{"adopted": report.Adopted},
		})
	}

	return report
}

// markAttempted records the pair, returning false when it was already seen.
// A pair counts as attempted even if parts of its pass later fail; the
// update condition is idempotent, so the next explicit refresh is safe to
// pick up the remainder.
func (r *Reconciler) markAttempted(userID, organizationID string) bool {
	key := userID + "|" + organizationID
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.attempted[key]; ok {
		return false
	}
	r.attempted[key] = struct{}{}
	return true
}
