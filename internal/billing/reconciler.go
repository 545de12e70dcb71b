package billing

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"proofwork/internal/types"
)

// EntitlementStore persists entitlement records. Implementations must make
// each write a single atomic statement guarded by event recency: a write is
// skipped when the stored last_event_at is newer than the update's OccurredAt.
type EntitlementStore interface {
	// UpsertByUserID inserts or fully overwrites the subscription fields of
	// userID's record.
	UpsertByUserID(ctx context.Context, userID string, upd types.EntitlementUpdate) (types.EntitlementWrite, error)

	// UpdateBySubscriptionID overwrites the record whose stored subscription id
	// equals upd.SubscriptionID. Matched is false when there is none.
	UpdateBySubscriptionID(ctx context.Context, upd types.EntitlementUpdate) (types.EntitlementWrite, error)

	// GetByUserID returns the record, or nil when the user has none.
	GetByUserID(ctx context.Context, userID string) (*types.EntitlementRecord, error)

	// SetTier overwrites only the tier column, and only while the stored plan
	// and status still equal planID and status. Otherwise it returns
	// conflict_concurrent_modification and writes nothing.
	SetTier(ctx context.Context, userID string, tier types.Tier, planID *string, status *types.SubscriptionStatus) error
}

// recomputeAttempts bounds how often Recompute re-reads a record that a
// concurrent event rewrote between its read and its write.
const recomputeAttempts = 3

// Reconciler applies normalized billing events to entitlement records.
type Reconciler struct {
	store     EntitlementStore
	plans     PlanMap
	publisher types.EntitlementPublisher
	metrics   ReconcileMetrics
	clock     types.Clock
	logger    *slog.Logger
}

// NewReconciler wires a Reconciler. publisher and metrics are optional.
func NewReconciler(
	store EntitlementStore,
	plans PlanMap,
	publisher types.EntitlementPublisher,
	metrics ReconcileMetrics,
	logger *slog.Logger,
) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Reconciler{
		store:     store,
		plans:     plans,
		publisher: publisher,
		metrics:   metrics,
		clock:     types.RealClock{},
		logger:    logger,
	}
}

// WithClock overrides the clock used to stamp change messages.
func (r *Reconciler) WithClock(c types.Clock) *Reconciler {
	r.clock = c
	return r
}

// Reconcile applies ev to the persisted entitlement record.
//
// Only the five subscription lifecycle kinds are acted on; anything else is
// reported as OutcomeIgnored. An event correlated to a user upserts that
// user's record. An uncorrelated event falls back to the record holding the
// same subscription id, and reports OutcomeUnresolved when there is none.
// The only error returned is internal_persistence_failure.
func (r *Reconciler) Reconcile(ctx context.Context, ev *types.BillingEvent) (*types.ReconcileResult, error) {
	log := r.logger.With(
		"event_name", ev.RawEventName,
		"subscription_id", ev.SubscriptionID,
		"test_mode", ev.TestMode,
	)

	if !ev.Kind.IsSubscriptionLifecycle() {
		log.DebugContext(ctx, "billing event ignored")
		r.metrics.RecordOutcome(ctx, types.OutcomeIgnored, ev.Kind)
		return &types.ReconcileResult{Outcome: types.OutcomeIgnored}, nil
	}

	tier := ResolveTier(ev.PlanID, ev.Status, r.plans)
	upd := types.EntitlementUpdate{
		SubscriptionID: ev.SubscriptionID,
		CustomerID:     ev.CustomerID,
		PlanID:         ev.PlanID,
		Status:         ev.Status,
		RenewsAt:       ev.RenewsAt,
		Tier:           tier,
		OccurredAt:     ev.OccurredAt,
	}

	var (
		w   types.EntitlementWrite
		err error
	)
	if ev.HasCorrelation() {
		w, err = r.store.UpsertByUserID(ctx, ev.CorrelatedUserID, upd)
	} else {
		w, err = r.store.UpdateBySubscriptionID(ctx, upd)
	}
	if err != nil {
		log.ErrorContext(ctx, "failed to persist entitlement", "error", err)
		r.metrics.RecordFailure(ctx, ev.Kind)
		return nil, types.NewAppError(types.ErrCodeInternalPersistence, "failed to persist entitlement", err)
	}

	res := &types.ReconcileResult{UserID: w.UserID, PreviousTier: w.PreviousTier, Tier: tier}
	switch {
	case !w.Matched:
		res.Outcome = types.OutcomeUnresolved
		log.WarnContext(ctx, "billing event matched no entitlement record",
			"customer_id", ev.CustomerID,
			"plan_id", ev.PlanID,
			"status", ev.Status,
		)
	case !w.Applied:
		res.Outcome = types.OutcomeStale
		log.InfoContext(ctx, "stale billing event discarded", "user_id", w.UserID)
	default:
		res.Outcome = types.OutcomeApplied
		log.InfoContext(ctx, "entitlement reconciled",
			"user_id", w.UserID,
			"status", ev.Status,
			"previous_tier", w.PreviousTier,
			"tier", tier,
		)
	}
	r.metrics.RecordOutcome(ctx, res.Outcome, ev.Kind)

	if res.TierChanged() {
		r.publish(ctx, res, ev.Status, ev.SubscriptionID, ev.RawEventName, ev.TestMode)
	}
	return res, nil
}

// Recompute re-derives userID's tier from the stored plan and status using
// the current plan map. Returns OutcomeIgnored when the stored tier is
// already correct. The tier write is conditional on the plan and status it
// was derived from; a record rewritten in between is read again, and
// conflict_concurrent_modification surfaces once the attempts run out.
func (r *Reconciler) Recompute(ctx context.Context, userID string) (*types.ReconcileResult, error) {
	for attempt := 1; ; attempt++ {
		res, err := r.recomputeOnce(ctx, userID)
		if !types.IsCode(err, types.ErrCodeConflictConcurrent) {
			return res, err
		}
		r.logger.WarnContext(ctx, "entitlement changed during recompute", "user_id", userID, "attempt", attempt)
		if attempt == recomputeAttempts {
			return nil, err
		}
	}
}

func (r *Reconciler) recomputeOnce(ctx context.Context, userID string) (*types.ReconcileResult, error) {
	rec, err := r.store.GetByUserID(ctx, userID)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalPersistence, "failed to load entitlement", err)
	}
	if rec == nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundEntitlement, "no entitlement record for user", nil)
	}

	var (
		planID string
		status types.SubscriptionStatus
	)
	if rec.PlanID != nil {
		planID = *rec.PlanID
	}
	if rec.SubscriptionStatus != nil {
		status = *rec.SubscriptionStatus
	}
	tier := ResolveTier(planID, status, r.plans)

	res := &types.ReconcileResult{UserID: userID, PreviousTier: rec.Tier, Tier: tier, Outcome: types.OutcomeIgnored}
	if tier == rec.Tier {
		return res, nil
	}
	if err := r.store.SetTier(ctx, userID, tier, rec.PlanID, rec.SubscriptionStatus); err != nil {
		if types.IsCode(err, types.ErrCodeConflictConcurrent) || types.IsCode(err, types.ErrCodeNotFoundEntitlement) {
			return nil, err
		}
		return nil, types.NewAppError(types.ErrCodeInternalPersistence, "failed to update tier", err)
	}
	res.Outcome = types.OutcomeApplied
	r.logger.InfoContext(ctx, "entitlement recomputed", "user_id", userID, "previous_tier", rec.Tier, "tier", tier)

	var subID string
	if rec.SubscriptionID != nil {
		subID = *rec.SubscriptionID
	}
	r.publish(ctx, res, status, subID, "recompute", false)
	return res, nil
}

// publish announces a tier change. Failures are logged and never surface to
// the caller: the entitlement record is already committed.
func (r *Reconciler) publish(ctx context.Context, res *types.ReconcileResult, status types.SubscriptionStatus, subID, eventName string, testMode bool) {
	if r.publisher == nil {
		return
	}
	msg := types.EntitlementChangedMessage{
		MessageID:      uuid.NewString(),
		UserID:         res.UserID,
		PreviousTier:   res.PreviousTier,
		Tier:           res.Tier,
		Status:         status,
		SubscriptionID: subID,
		EventName:      eventName,
		TestMode:       testMode,
		OccurredAt:     r.clock.Now(),
	}
	if err := r.publisher.PublishEntitlementChanged(ctx, msg); err != nil {
		r.logger.WarnContext(ctx, "failed to publish entitlement change",
			"user_id", res.UserID,
			"tier", res.Tier,
			"error", err,
		)
	}
}
