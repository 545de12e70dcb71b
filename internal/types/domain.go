package types

import "time"

// Unlimited marks a tier limit as unbounded.
const Unlimited = -1

// BillingEvent is the normalized form of one inbound billing-provider webhook.
// It is produced once per delivery and never stored as-is.
type BillingEvent struct {
	Kind             EventKind
	RawEventName     string
	SubscriptionID   string
	CustomerID       string
	PlanID           string
	Status           SubscriptionStatus
	RenewsAt         *time.Time
	CorrelatedUserID string // empty when the provider did not echo custom data

	// OccurredAt is the provider's last-modified time for the subscription.
	// Nil when the payload carried none.
	OccurredAt *time.Time
	TestMode   bool
}

// HasCorrelation reports whether the event carries the checkout user id.
func (e *BillingEvent) HasCorrelation() bool {
	return e.CorrelatedUserID != ""
}

// EntitlementRecord is the persisted source of truth for a user's tier.
type EntitlementRecord struct {
	UserID             string              `json:"user_id"`
	SubscriptionID     *string             `json:"subscription_id,omitempty"`
	CustomerID         *string             `json:"customer_id,omitempty"`
	PlanID             *string             `json:"plan_id,omitempty"`
	SubscriptionStatus *SubscriptionStatus `json:"subscription_status,omitempty"`
	RenewsAt           *time.Time          `json:"renews_at,omitempty"`
	Tier               Tier                `json:"tier"`
	LastEventAt        *time.Time          `json:"last_event_at,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// EntitlementUpdate is the full set of subscription fields written by one
// reconciliation. Every field overwrites the stored value.
type EntitlementUpdate struct {
	SubscriptionID string
	CustomerID     string
	PlanID         string
	Status         SubscriptionStatus
	RenewsAt       *time.Time
	Tier           Tier
	OccurredAt     *time.Time
}

// TierDefinition describes the limits and catalog entry of one tier.
type TierDefinition struct {
	Tier              Tier     `json:"tier"`
	Name              string   `json:"name"`
	MonthlyPriceLabel string   `json:"monthly_price_label"`
	ProjectLimit      int      `json:"project_limit"`
	SessionLimit      int      `json:"session_limit"`
	Features          []string `json:"features"`
}

// UsageSnapshot holds live usage counts for one user.
type UsageSnapshot struct {
	ProjectsOwned             int       `json:"projects_owned"`
	SessionsThisCalendarMonth int       `json:"sessions_this_calendar_month"`
	PeriodStart               time.Time `json:"period_start"`
}

// QuotaDecision is the result of a usage-limit check.
type QuotaDecision struct {
	Action    QuotaAction `json:"action"`
	Allowed   bool        `json:"allowed"`
	Reason    string      `json:"reason,omitempty"`
	Code      ErrorCode   `json:"code,omitempty"`
	Limit     int         `json:"limit"`
	Used      int         `json:"used"`
	Remaining int         `json:"remaining"`
}

// ReconcileResult reports what a reconciliation did.
type ReconcileResult struct {
	Outcome      ReconcileOutcome `json:"outcome"`
	UserID       string           `json:"user_id,omitempty"`
	PreviousTier Tier             `json:"previous_tier,omitempty"`
	Tier         Tier             `json:"tier,omitempty"`
}

// TierChanged reports whether an applied reconciliation moved the user to a
// different tier.
func (r *ReconcileResult) TierChanged() bool {
	return r.Outcome == OutcomeApplied && r.PreviousTier != r.Tier
}

// EntitlementWrite reports the effect of one guarded entitlement write.
type EntitlementWrite struct {
	// Matched is false when no record exists for the correlation key.
	Matched bool
	// Applied is false when a newer event had already been recorded.
	Applied      bool
	UserID       string
	PreviousTier Tier
}
