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

	"github.com/agencydesk/agencydesk/internal/reconciler"
)

// OrphanRepository implements reconciler.Store
type OrphanRepository struct {
	db     *DB
	tables map[string]struct{}
}

// NewOrphanRepository creates an orphan repository restricted to the known
// tenant-scoped tables. The table name is interpolated as an identifier, so
// the allowlist is the safety boundary.
func NewOrphanRepository(db *DB) *OrphanRepository {
	tables := make(map[string]struct{}, len(reconciler.DefaultRecordTypes))
	for _, rt := range reconciler.DefaultRecordTypes {
		tables[rt.Table] = struct{}{}
	}
	return &OrphanRepository{db: db, tables: tables}
}

// AdoptOrphans fills organization_id on rows the user created before an
// organization existed. The WHERE clause is a strict fill-missing condition:
// rows with a non-null key are never touched, which also makes repeated
// calls idempotent.
func (r *OrphanRepository) AdoptOrphans(ctx context.Context, table, userID, organizationID string) (int64, error) {
	if _, ok := r.tables[table]; !ok {
		return 0, fmt.Errorf("unknown tenant-scoped table %q", table)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET organization_id = $1
		WHERE organization_id IS NULL AND created_by = $2
	`, pgx.Identifier{table}.Sanitize())

	result, err := r.db.pool.Exec(ctx, query, organizationID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to adopt orphans in %s: %w", table, err)
	}

	return result.RowsAffected(), nil
}
