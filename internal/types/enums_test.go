package types

import (
	"testing"
	"time"
)

func TestParseEventKind(t *testing.T) {
	tests := []struct {
		name string
		want EventKind
	}{
		{"subscription_created", EventSubscriptionCreated},
		{"subscription_updated", EventSubscriptionUpdated},
		{"subscription_cancelled", EventSubscriptionCancelled},
		{"subscription_resumed", EventSubscriptionResumed},
		{"subscription_expired", EventSubscriptionExpired},
		{"Subscription_Created", EventUnknown},
		{"order_created", EventUnknown},
		{"subscription_payment_success", EventUnknown},
		{"", EventUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseEventKind(tt.name); got != tt.want {
				t.Errorf("ParseEventKind(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestEventKindIsSubscriptionLifecycle(t *testing.T) {
	if EventUnknown.IsSubscriptionLifecycle() {
		t.Error("unknown kind must not be a lifecycle kind")
	}
	if EventKind("order_created").IsSubscriptionLifecycle() {
		t.Error("arbitrary kind must not be a lifecycle kind")
	}
	if !EventSubscriptionExpired.IsSubscriptionLifecycle() {
		t.Error("subscription_expired must be a lifecycle kind")
	}
}

func TestParseSubscriptionStatus(t *testing.T) {
	for _, s := range []string{"on_trial", "active", "paused", "past_due", "cancelled", "unpaid", "expired"} {
		got, ok := ParseSubscriptionStatus(s)
		if !ok || string(got) != s {
			t.Errorf("ParseSubscriptionStatus(%q) = %q, %v", s, got, ok)
		}
	}
	for _, s := range []string{"Active", "canceled", "", "trialing"} {
		if _, ok := ParseSubscriptionStatus(s); ok {
			t.Errorf("ParseSubscriptionStatus(%q) should fail", s)
		}
	}
}

func TestTierValid(t *testing.T) {
	for _, tier := range AllTiers {
		if !tier.Valid() {
			t.Errorf("%q should be valid", tier)
		}
	}
	if Tier("starter").Valid() {
		t.Error("unknown tier should be invalid")
	}
}

func TestReconcileResultTierChanged(t *testing.T) {
	applied := &ReconcileResult{Outcome: OutcomeApplied, PreviousTier: TierFree, Tier: TierPro}
	if !applied.TierChanged() {
		t.Error("free -> pro should be a change")
	}
	same := &ReconcileResult{Outcome: OutcomeApplied, PreviousTier: TierPro, Tier: TierPro}
	if same.TierChanged() {
		t.Error("pro -> pro should not be a change")
	}
	stale := &ReconcileResult{Outcome: OutcomeStale, PreviousTier: TierFree, Tier: TierPro}
	if stale.TierChanged() {
		t.Error("stale outcomes never change tier")
	}
}

func TestCalendarMonthStart(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	// 2026-03-01 05:00 in UTC+10 is still February in UTC.
	in := time.Date(2026, 3, 1, 5, 0, 0, 0, loc)

	got := CalendarMonthStart(in)
	want := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("CalendarMonthStart() = %v, want %v", got, want)
	}

	clock := FixedClock(time.Date(2026, 7, 19, 12, 0, 0, 0, time.UTC))
	if got := CalendarMonthStart(clock.Now()); !got.Equal(time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("CalendarMonthStart(clock) = %v", got)
	}
}
