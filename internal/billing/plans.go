// Package billing implements the subscription entitlement pipeline: webhook
// verification, payload normalization, tier resolution, reconciliation of the
// persisted entitlement record and usage-limit enforcement.
package billing

import "proofwork/internal/types"

// TierRegistry defines the authoritative limits and catalog entry for each tier.
type TierRegistry interface {
	// Get returns the definition for tier. Unknown tiers return the Free
	// definition so that enforcement fails toward the most restrictive limits.
	Get(tier types.Tier) types.TierDefinition

	// All returns every tier definition in catalog order.
	All() []types.TierDefinition
}

type staticTierRegistry struct {
	defs map[types.Tier]types.TierDefinition
}

// tierDefaults is the tier catalog shown on the pricing and settings pages.
//
//	| Tier       | Price      | Projects  | Sessions/month |
//	|------------|------------|-----------|----------------|
//	| Free       | $0/month   | 5         | 10             |
//	| Pro        | $5/month   | unlimited | unlimited      |
//	| Enterprise | $15/month  | unlimited | unlimited      |
var tierDefaults = map[types.Tier]types.TierDefinition{
	types.TierFree: {
		Tier:              types.TierFree,
		Name:              "Free",
		MonthlyPriceLabel: "$0/month",
		ProjectLimit:      5,
		SessionLimit:      10,
		Features:          []string{"5 projects", "10 sessions/month", "Basic reports"},
	},
	types.TierPro: {
		Tier:              types.TierPro,
		Name:              "Pro",
		MonthlyPriceLabel: "$5/month",
		ProjectLimit:      types.Unlimited,
		SessionLimit:      types.Unlimited,
		Features:          []string{"Unlimited projects", "Unlimited sessions", "PDF exports", "Full history"},
	},
	types.TierEnterprise: {
		Tier:              types.TierEnterprise,
		Name:              "Enterprise",
		MonthlyPriceLabel: "$15/month",
		ProjectLimit:      types.Unlimited,
		SessionLimit:      types.Unlimited,
		Features:          []string{"Everything in Pro", "Priority support", "Custom branding", "API access"},
	},
}

// NewStaticTierRegistry returns a TierRegistry backed by the built-in catalog.
func NewStaticTierRegistry() TierRegistry {
	m := make(map[types.Tier]types.TierDefinition, len(tierDefaults))
	for k, v := range tierDefaults {
		m[k] = cloneDefinition(v)
	}
	return &staticTierRegistry{defs: m}
}

func (r *staticTierRegistry) Get(tier types.Tier) types.TierDefinition {
	if def, ok := r.defs[tier]; ok {
		return cloneDefinition(def)
	}
	return cloneDefinition(r.defs[types.TierFree])
}

func (r *staticTierRegistry) All() []types.TierDefinition {
	out := make([]types.TierDefinition, 0, len(types.AllTiers))
	for _, t := range types.AllTiers {
		out = append(out, cloneDefinition(r.defs[t]))
	}
	return out
}

// cloneDefinition copies the feature slice so callers cannot mutate the catalog.
func cloneDefinition(d types.TierDefinition) types.TierDefinition {
	d.Features = append([]string(nil), d.Features...)
	return d
}
