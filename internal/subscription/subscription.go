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
	"errors"
	"math"
	"time"
)

var ErrSubscriptionNotFound = errors.New("subscription not found")

// Plan types
const (
	PlanTrial      = "trial"
	PlanBasic      = "basic"
	PlanPremium    = "premium"
	PlanEnterprise = "enterprise"
)

// Status constants
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusCanceled = "canceled"
	StatusPastDue  = "past_due"
)

// Subscription is an organization's billing record, at most one per
// organization. All lifecycle derivations are pure functions of this row and
// a wall-clock instant; they issue no queries.
type Subscription struct {
	ID                    string     `json:"id"`
	OrganizationID        string     `json:"organization_id"`
	PlanType              string     `json:"plan_type"`
	Status                string     `json:"status"`
	TrialStartDate        *time.Time `json:"trial_start_date,omitempty"`
	TrialEndDate          *time.Time `json:"trial_end_date,omitempty"`
	SubscriptionStartDate *time.Time `json:"subscription_start_date,omitempty"`
	SubscriptionEndDate   *time.Time `json:"subscription_end_date,omitempty"`
}

// IsPremium reports whether the plan is a paid premium tier.
func (s *Subscription) IsPremium() bool {
	return s != nil && (s.PlanType == PlanPremium || s.PlanType == PlanEnterprise)
}

// IsTrialExpired reports whether a trial plan has run out as of now.
// Non-trial plans never report an expired trial.
func (s *Subscription) IsTrialExpired(now time.Time) bool {
	if s == nil || s.PlanType != PlanTrial || s.TrialEndDate == nil {
		return false
	}
	return s.TrialEndDate.Before(now)
}

// IsActive reports whether the subscription currently grants access: the
// status must be active and the plan either premium or an unexpired trial.
// A basic plan, an expired trial, or a missing row all resolve to false.
func (s *Subscription) IsActive(now time.Time) bool {
	if s == nil || s.Status != StatusActive {
		return false
	}
	if s.IsPremium() {
		return true
	}
	return s.PlanType == PlanTrial && !s.IsTrialExpired(now)
}

// DaysLeftInTrial returns the whole days remaining in the trial, rounding
// partial days up, never below zero. Non-trial plans report zero.
func (s *Subscription) DaysLeftInTrial(now time.Time) int {
	if s == nil || s.PlanType != PlanTrial || s.TrialEndDate == nil {
		return 0
	}
	remaining := s.TrialEndDate.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Hours() / 24))
}
