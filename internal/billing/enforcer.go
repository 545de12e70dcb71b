package billing

import (
	"context"
	"time"

	"proofwork/internal/types"
)

// EntitlementLookup loads a user's entitlement, creating the default Free
// record the first time the user is seen.
type EntitlementLookup interface {
	EnsureDefault(ctx context.Context, userID string) (*types.EntitlementRecord, error)
}

// UsageCounter derives live usage counts. Implementations must not cache.
type UsageCounter interface {
	Snapshot(ctx context.Context, userID string, periodStart time.Time) (types.UsageSnapshot, error)
}

// UsageView is the settings-page view of a user's plan and consumption.
type UsageView struct {
	Entitlement *types.EntitlementRecord `json:"entitlement"`
	Tier        types.TierDefinition     `json:"tier"`
	Usage       types.UsageSnapshot      `json:"usage"`
	Quotas      []types.QuotaDecision    `json:"quotas"`
}

// Enforcer answers quota questions from the persisted entitlement and fresh
// usage counts. It never mutates the entitlement beyond lazy creation.
type Enforcer struct {
	entitlements EntitlementLookup
	usage        UsageCounter
	tiers        TierRegistry
	clock        types.Clock
}

// NewEnforcer creates an Enforcer. A nil clock uses the system clock.
func NewEnforcer(entitlements EntitlementLookup, usage UsageCounter, tiers TierRegistry, clock types.Clock) *Enforcer {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Enforcer{
		entitlements: entitlements,
		usage:        usage,
		tiers:        tiers,
		clock:        clock,
	}
}

// Check re-derives usage and evaluates action. Denials are returned as a
// decision, not an error; errors are reserved for lookup failures and unknown
// actions.
func (e *Enforcer) Check(ctx context.Context, userID string, action types.QuotaAction) (types.QuotaDecision, error) {
	if !ValidAction(action) {
		return types.QuotaDecision{}, types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidAction,
			"unknown quota action",
			nil,
			map[string]any{"action": string(action)},
		)
	}
	def, usage, _, err := e.load(ctx, userID)
	if err != nil {
		return types.QuotaDecision{}, err
	}
	return CheckQuota(def, usage, action), nil
}

// View returns the entitlement, tier definition, usage and a decision per action.
func (e *Enforcer) View(ctx context.Context, userID string) (*UsageView, error) {
	def, usage, rec, err := e.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &UsageView{
		Entitlement: rec,
		Tier:        def,
		Usage:       usage,
		Quotas: []types.QuotaDecision{
			CheckQuota(def, usage, types.ActionCreateProject),
			CheckQuota(def, usage, types.ActionCreateSession),
		},
	}, nil
}

func (e *Enforcer) load(ctx context.Context, userID string) (types.TierDefinition, types.UsageSnapshot, *types.EntitlementRecord, error) {
	rec, err := e.entitlements.EnsureDefault(ctx, userID)
	if err != nil {
		return types.TierDefinition{}, types.UsageSnapshot{}, nil, err
	}
	usage, err := e.usage.Snapshot(ctx, userID, types.CalendarMonthStart(e.clock.Now()))
	if err != nil {
		return types.TierDefinition{}, types.UsageSnapshot{}, nil, err
	}
	return e.tiers.Get(rec.Tier), usage, rec, nil
}
