package types

import (
	"context"
	"time"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant. Used by tests and by replay tooling.
type FixedClock time.Time

// Now returns the fixed instant in UTC.
func (c FixedClock) Now() time.Time { return time.Time(c).UTC() }

// EntitlementPublisher announces tier changes to downstream consumers.
type EntitlementPublisher interface {
	PublishEntitlementChanged(ctx context.Context, msg EntitlementChangedMessage) error
}

// CalendarMonthStart returns 00:00 UTC on the first day of t's month.
func CalendarMonthStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}
