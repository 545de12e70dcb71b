package types

import "time"

// EntitlementChangedMessage is the SQS payload published when a reconciled
// billing event moves a user to a different tier. Downstream consumers (report
// rendering, project archival) use it to react to upgrades and downgrades.
type EntitlementChangedMessage struct {
	MessageID      string             `json:"message_id"`
	UserID         string             `json:"user_id"`
	PreviousTier   Tier               `json:"previous_tier"`
	Tier           Tier               `json:"tier"`
	Status         SubscriptionStatus `json:"subscription_status"`
	SubscriptionID string             `json:"subscription_id"`
	EventName      string             `json:"event_name"`
	TestMode       bool               `json:"test_mode"`
	OccurredAt     time.Time          `json:"occurred_at"`
}
