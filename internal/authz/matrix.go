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

package authz

// Module identifies a product area that permissions are scoped to.
type Module string

const (
	ModuleDashboard     Module = "dashboard"
	ModuleClients       Module = "clients"
	ModuleOpportunities Module = "opportunities"
	ModuleTasks         Module = "tasks"
	ModuleTeam          Module = "team"
	ModuleFinancial     Module = "financial"
	ModuleContracts     Module = "contracts"
	ModuleReports       Module = "reports"
	ModuleSettings      Module = "settings"
	ModuleStrategies    Module = "strategies"
)

// Modules lists every module covered by the permission matrix.
func Modules() []Module {
	return []Module{
		ModuleDashboard,
		ModuleClients,
		ModuleOpportunities,
		ModuleTasks,
		ModuleTeam,
		ModuleFinancial,
		ModuleContracts,
		ModuleReports,
		ModuleSettings,
		ModuleStrategies,
	}
}

// Action names an operation inside a module.
const (
	ActionView   = "view"
	ActionCreate = "create"
	ActionEdit   = "edit"
	ActionDelete = "delete"
	ActionExport = "export"
	ActionInvite = "invite"
	ActionManage = "manage"
)

// matrix is the static role → module → allowed-actions table.
// Invariant: for every module present in a lower role's table, the next role
// up holds a strict superset of its actions (admin ⊃ manager ⊃ user). The
// hierarchy is enforced by test, not by construction.
var matrix = map[Role]map[Module][]string{
	RoleAdmin: {
		ModuleDashboard:     {ActionView},
		ModuleClients:       {ActionView, ActionCreate, ActionEdit, ActionDelete},
		ModuleOpportunities: {ActionView, ActionCreate, ActionEdit, ActionDelete},
		ModuleTasks:         {ActionView, ActionCreate, ActionEdit, ActionDelete},
		ModuleTeam:          {ActionView, ActionInvite, ActionManage},
		ModuleFinancial:     {ActionView, ActionCreate, ActionEdit, ActionDelete},
		ModuleContracts:     {ActionView, ActionCreate, ActionEdit, ActionDelete},
		ModuleReports:       {ActionView, ActionExport},
		ModuleSettings:      {ActionView, ActionEdit, ActionManage},
		ModuleStrategies:    {ActionView, ActionCreate, ActionEdit, ActionDelete},
	},
	RoleManager: {
		ModuleDashboard:     {ActionView},
		ModuleClients:       {ActionView, ActionCreate, ActionEdit},
		ModuleOpportunities: {ActionView, ActionCreate, ActionEdit},
		ModuleTasks:         {ActionView, ActionCreate, ActionEdit, ActionDelete},
		ModuleTeam:          {ActionView},
		ModuleFinancial:     {ActionView},
		ModuleContracts:     {ActionView},
		ModuleReports:       {ActionView, ActionExport},
		ModuleStrategies:    {ActionView, ActionCreate, ActionEdit},
	},
	RoleUser: {
		ModuleDashboard:     {ActionView},
		ModuleClients:       {ActionView},
		ModuleOpportunities: {ActionView},
		ModuleTasks:         {ActionView, ActionCreate, ActionEdit},
		ModuleStrategies:    {ActionView},
	},
}

// HasPermission reports whether the role may perform action in module.
// Unknown roles, modules, or actions return false; there is no error path
// and no wildcard.
func HasPermission(role Role, module Module, action string) bool {
	actions, ok := matrix[role][module]
	if !ok {
		return false
	}
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}

// CanAccess reports whether the role has any entry at all for module.
func CanAccess(role Role, module Module) bool {
	_, ok := matrix[role][module]
	return ok
}

// ListActions returns the actions the role may perform in module.
// The result is a copy; callers cannot mutate the matrix through it.
// An unknown role or module yields an empty slice.
func ListActions(role Role, module Module) []string {
	actions, ok := matrix[role][module]
	if !ok {
		return []string{}
	}
	out := make([]string, len(actions))
	copy(out, actions)
	return out
}
