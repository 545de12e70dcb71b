package types

// Tier identifies the entitlement level of a user.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// AllTiers lists tiers in catalog order.
var AllTiers = []Tier{TierFree, TierPro, TierEnterprise}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPro, TierEnterprise:
		return true
	}
	return false
}

// SubscriptionStatus is the provider-side state of a subscription.
// Values match the billing provider's wire strings exactly.
type SubscriptionStatus string

const (
	SubStatusOnTrial   SubscriptionStatus = "on_trial"
	SubStatusActive    SubscriptionStatus = "active"
	SubStatusPaused    SubscriptionStatus = "paused"
	SubStatusPastDue   SubscriptionStatus = "past_due"
	SubStatusCancelled SubscriptionStatus = "cancelled"
	SubStatusUnpaid    SubscriptionStatus = "unpaid"
	SubStatusExpired   SubscriptionStatus = "expired"
)

// ParseSubscriptionStatus maps a provider status string (case-sensitive) to a
// SubscriptionStatus.
func ParseSubscriptionStatus(s string) (SubscriptionStatus, bool) {
	switch st := SubscriptionStatus(s); st {
	case SubStatusOnTrial, SubStatusActive, SubStatusPaused, SubStatusPastDue,
		SubStatusCancelled, SubStatusUnpaid, SubStatusExpired:
		return st, true
	}
	return "", false
}

// EventKind is the normalized kind of an inbound billing event.
type EventKind string

const (
	EventSubscriptionCreated   EventKind = "subscription_created"
	EventSubscriptionUpdated   EventKind = "subscription_updated"
	EventSubscriptionCancelled EventKind = "subscription_cancelled"
	EventSubscriptionResumed   EventKind = "subscription_resumed"
	EventSubscriptionExpired   EventKind = "subscription_expired"
	EventUnknown               EventKind = "unknown"
)

// ParseEventKind maps a provider event name (case-sensitive) to an EventKind.
// Unrecognized names yield EventUnknown.
func ParseEventKind(name string) EventKind {
	switch k := EventKind(name); k {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionCancelled,
		EventSubscriptionResumed, EventSubscriptionExpired:
		return k
	}
	return EventUnknown
}

// IsSubscriptionLifecycle reports whether the reconciler acts on this kind.
func (k EventKind) IsSubscriptionLifecycle() bool {
	return k != EventUnknown && ParseEventKind(string(k)) == k
}

// QuotaAction is a user action subject to tier limits.
type QuotaAction string

const (
	ActionCreateProject QuotaAction = "create_project"
	ActionCreateSession QuotaAction = "create_session"
)

// ReconcileOutcome describes what the reconciler did with an event.
type ReconcileOutcome string

const (
	// OutcomeApplied means the entitlement record was written.
	OutcomeApplied ReconcileOutcome = "applied"
	// OutcomeStale means a newer event was already applied; nothing was written.
	OutcomeStale ReconcileOutcome = "stale"
	// OutcomeIgnored means the event kind is not acted upon.
	OutcomeIgnored ReconcileOutcome = "ignored"
	// OutcomeUnresolved means no entitlement record matched either correlation key.
	OutcomeUnresolved ReconcileOutcome = "unresolved_correlation"
)
