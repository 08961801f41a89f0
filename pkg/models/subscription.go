package models

import (
	"time"
)

type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanTeam       Plan = "team"
	PlanEnterprise Plan = "enterprise"
)

// Subscription is a billing subscription owned by a user or organization.
type Subscription struct {
	ID          string    `json:"id"`
	ReferenceID string    `json:"referenceId"`
	Plan        Plan      `json:"plan"`
	Status      string    `json:"status"`
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`
}

// Active reports whether the subscription currently grants its plan.
func (s *Subscription) Active() bool {
	return s != nil && (s.Status == "active" || s.Status == "trialing")
}

// EffectivePlan resolves the plan that applies; no or inactive subscription means free.
func (s *Subscription) EffectivePlan() Plan {
	if !s.Active() {
		return PlanFree
	}

	switch s.Plan {
	case PlanPro, PlanTeam, PlanEnterprise:
		return s.Plan
	default:
		return PlanFree
	}
}

func planPriority(p Plan) int {
	switch p {
	case PlanEnterprise:
		return 3
	case PlanTeam:
		return 2
	case PlanPro:
		return 1
	default:
		return 0
	}
}

// HighestPriority picks the active subscription with the strongest plan.
func HighestPriority(subs []*Subscription) *Subscription {
	var best *Subscription

	for _, sub := range subs {
		if !sub.Active() {
			continue
		}

		if best == nil || planPriority(sub.EffectivePlan()) > planPriority(best.EffectivePlan()) {
			best = sub
		}
	}

	return best
}
