package tenant

import (
	"time"
)

// Organization is an isolated namespace owning a set of business records.
// Organizations are provisioned by a trigger outside this core; the resolver
// only reads and selects them.
type Organization struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	LogoURL     string    `json:"logo_url,omitempty"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Membership status constants. Only active memberships count toward
// organization visibility and role resolution.
const (
	MembershipActive   = "active"
	MembershipInactive = "inactive"
	MembershipPending  = "pending"
)

// Membership links a non-owner user to an organization with a role.
type Membership struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	UserID         string `json:"user_id"`
	Role           string `json:"role"`
	Status         string `json:"status"`
}
