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

// Role is the closed set of roles a user can hold inside an organization.
// Anything outside this set normalizes to RoleUser at the boundary where the
// role is computed; call sites never see a free-form string.
type Role string

const (
	// RoleAdmin is held by the organization owner and by members explicitly
	// granted administrative control.
	RoleAdmin Role = "admin"

	// RoleManager can manage day-to-day records but not organization settings.
	RoleManager Role = "manager"

	// RoleUser is the least-privileged role and the default for any
	// unresolved or unknown role value.
	RoleUser Role = "user"
)

// ParseRole normalizes a stored role string to a known Role.
// Unknown or empty values resolve to RoleUser (fail-closed).
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleAdmin, RoleManager, RoleUser:
		return Role(s)
	default:
		return RoleUser
	}
}

// IsAdmin reports whether the role is admin.
func (r Role) IsAdmin() bool { return r == RoleAdmin }

// IsManager reports whether the role is manager.
func (r Role) IsManager() bool { return r == RoleManager }

// IsUser reports whether the role is the base user role.
func (r Role) IsUser() bool { return r == RoleUser }

// Roles lists all known roles from most to least privileged.
func Roles() []Role {
	return []Role{RoleAdmin, RoleManager, RoleUser}
}
