package billing

import (
	"fmt"
	"sort"

	"proofwork/internal/types"
)

// PlanMap maps billing-provider plan (variant) identifiers to tiers.
// It is immutable after construction.
type PlanMap struct {
	tiers map[string]types.Tier
}

// NewPlanMap copies entries into a PlanMap. Empty plan ids and unknown tiers
// are rejected.
func NewPlanMap(entries map[string]types.Tier) (PlanMap, error) {
	m := make(map[string]types.Tier, len(entries))
	for planID, tier := range entries {
		if planID == "" {
			return PlanMap{}, fmt.Errorf("plan map: empty plan id for tier %q", tier)
		}
		if !tier.Valid() {
			return PlanMap{}, fmt.Errorf("plan map: plan %q maps to unknown tier %q", planID, tier)
		}
		m[planID] = tier
	}
	return PlanMap{tiers: m}, nil
}

// Lookup returns the tier configured for planID.
func (p PlanMap) Lookup(planID string) (types.Tier, bool) {
	t, ok := p.tiers[planID]
	return t, ok
}

// IsPaidPlan reports whether planID maps to a tier above Free.
func (p PlanMap) IsPaidPlan(planID string) bool {
	t, ok := p.tiers[planID]
	return ok && t != types.TierFree
}

// PlanIDs returns the configured plan ids, sorted.
func (p PlanMap) PlanIDs() []string {
	ids := make([]string, 0, len(p.tiers))
	for id := range p.tiers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of configured plans.
func (p PlanMap) Len() int {
	return len(p.tiers)
}

// ResolveTier maps a (plan, status) pair to a tier. Unmapped plans resolve to
// Free. Unpaid and Expired subscriptions resolve to Free regardless of plan.
func ResolveTier(planID string, status types.SubscriptionStatus, plans PlanMap) types.Tier {
	switch status {
	case types.SubStatusUnpaid, types.SubStatusExpired:
		return types.TierFree
	}
	if t, ok := plans.Lookup(planID); ok {
		return t
	}
	return types.TierFree
}
