package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"proofwork/internal/types"
)

// EntitlementRepo persists one entitlement record per user.
// It implements billing.EntitlementStore and billing.EntitlementLookup.
//
// Every subscription write is a single statement guarded by event recency:
// the row is only overwritten when the stored last_event_at is unset, the
// incoming event carries no timestamp, or the stored value is not newer than
// the incoming one. Equal timestamps re-apply, so duplicate deliveries are
// idempotent.
type EntitlementRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewEntitlementRepo creates an EntitlementRepo backed by the given database
// connection (pool or transaction).
func NewEntitlementRepo(db DBTX, logger *slog.Logger) *EntitlementRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &EntitlementRepo{db: db, logger: logger}
}

const entitlementColumns = `user_id, subscription_id, customer_id, plan_id, subscription_status,
	renews_at, tier, last_event_at, created_at, updated_at`

// UpsertByUserID inserts or overwrites the subscription fields of userID's
// record and reports the tier it held before the write.
//
// The prev CTE reads the pre-statement snapshot, so it sees the old tier even
// though the INSERT ... ON CONFLICT in the same statement replaces it. When
// the recency guard rejects the update, no row is returned.
func (r *EntitlementRepo) UpsertByUserID(ctx context.Context, userID string, upd types.EntitlementUpdate) (types.EntitlementWrite, error) {
	var prev string
	err := r.db.QueryRow(ctx,
		`WITH prev AS (
		     SELECT tier FROM entitlements WHERE user_id = $1
		 )
		 INSERT INTO entitlements (
		     user_id, subscription_id, customer_id, plan_id, subscription_status,
		     renews_at, tier, last_event_at, created_at, updated_at
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		 ON CONFLICT (user_id) DO UPDATE
		 SET subscription_id     = EXCLUDED.subscription_id,
		     customer_id         = EXCLUDED.customer_id,
		     plan_id             = EXCLUDED.plan_id,
		     subscription_status = EXCLUDED.subscription_status,
		     renews_at           = EXCLUDED.renews_at,
		     tier                = EXCLUDED.tier,
		     last_event_at       = COALESCE(EXCLUDED.last_event_at, entitlements.last_event_at),
		     updated_at          = NOW()
		 WHERE entitlements.last_event_at IS NULL
		    OR EXCLUDED.last_event_at IS NULL
		    OR entitlements.last_event_at <= EXCLUDED.last_event_at
		 RETURNING COALESCE((SELECT tier FROM prev), 'free')`,
		userID,
		nullIfEmpty(upd.SubscriptionID),
		nullIfEmpty(upd.CustomerID),
		nullIfEmpty(upd.PlanID),
		string(upd.Status),
		upd.RenewsAt,
		string(upd.Tier),
		upd.OccurredAt,
	).Scan(&prev)

	w := types.EntitlementWrite{Matched: true, UserID: userID}
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		r.logger.InfoContext(ctx, "stale entitlement update skipped (recency guard)",
			slog.String("user_id", userID),
			slog.String("subscription_id", upd.SubscriptionID),
			slog.Any("occurred_at", upd.OccurredAt),
		)
		return w, nil
	case err != nil:
		return types.EntitlementWrite{}, types.NewAppError(types.ErrCodeInternalDB, "failed to upsert entitlement", err)
	}

	w.Applied = true
	w.PreviousTier = types.Tier(prev)
	return w, nil
}

// UpdateBySubscriptionID overwrites the record holding upd.SubscriptionID.
// Used when the provider did not echo the checkout user id.
func (r *EntitlementRepo) UpdateBySubscriptionID(ctx context.Context, upd types.EntitlementUpdate) (types.EntitlementWrite, error) {
	var (
		userID string
		prev   string
	)
	err := r.db.QueryRow(ctx,
		`UPDATE entitlements e
		 SET customer_id         = $2,
		     plan_id             = $3,
		     subscription_status = $4,
		     renews_at           = $5,
		     tier                = $6,
		     last_event_at       = COALESCE($7::timestamptz, e.last_event_at),
		     updated_at          = NOW()
		 FROM (
		     SELECT user_id, tier FROM entitlements
		     WHERE subscription_id = $1
		     ORDER BY updated_at DESC
		     LIMIT 1
		 ) prev
		 WHERE e.user_id = prev.user_id
		   AND (e.last_event_at IS NULL OR $7::timestamptz IS NULL OR e.last_event_at <= $7::timestamptz)
		 RETURNING e.user_id, prev.tier`,
		upd.SubscriptionID,
		nullIfEmpty(upd.CustomerID),
		nullIfEmpty(upd.PlanID),
		string(upd.Status),
		upd.RenewsAt,
		string(upd.Tier),
		upd.OccurredAt,
	).Scan(&userID, &prev)
	if err == nil {
		return types.EntitlementWrite{
			Matched:      true,
			Applied:      true,
			UserID:       userID,
			PreviousTier: types.Tier(prev),
		}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return types.EntitlementWrite{}, types.NewAppError(types.ErrCodeInternalDB, "failed to update entitlement by subscription", err)
	}

	// No row updated: either nothing holds this subscription, or the guard
	// rejected a stale event.
	err = r.db.QueryRow(ctx,
		`SELECT user_id FROM entitlements WHERE subscription_id = $1 LIMIT 1`,
		upd.SubscriptionID,
	).Scan(&userID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return types.EntitlementWrite{}, nil
	case err != nil:
		return types.EntitlementWrite{}, types.NewAppError(types.ErrCodeInternalDB, "failed to look up entitlement by subscription", err)
	}
	return types.EntitlementWrite{Matched: true, UserID: userID}, nil
}

// GetByUserID returns the record, or nil when none exists.
func (r *EntitlementRepo) GetByUserID(ctx context.Context, userID string) (*types.EntitlementRecord, error) {
	rec, err := scanEntitlement(r.db.QueryRow(ctx,
		`SELECT `+entitlementColumns+` FROM entitlements WHERE user_id = $1`,
		userID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get entitlement", err)
	}
	return rec, nil
}

// EnsureDefault returns userID's record, inserting the Free default first if
// the user has none. Both cases are served by one statement: the insert's
// RETURNING row when it inserted, otherwise the existing row.
func (r *EntitlementRepo) EnsureDefault(ctx context.Context, userID string) (*types.EntitlementRecord, error) {
	rec, err := scanEntitlement(r.db.QueryRow(ctx,
		`WITH ins AS (
		     INSERT INTO entitlements (user_id, tier) VALUES ($1, 'free')
		     ON CONFLICT (user_id) DO NOTHING
		     RETURNING `+entitlementColumns+`
		 )
		 SELECT `+entitlementColumns+` FROM ins
		 UNION ALL
		 SELECT `+entitlementColumns+` FROM entitlements WHERE user_id = $1
		 LIMIT 1`,
		userID,
	))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to ensure entitlement", err)
	}
	return rec, nil
}

// SetTier overwrites the tier column only, provided the stored plan and status
// still equal planID and status (nil meaning NULL). A record that moved on
// since it was read yields conflict_concurrent_modification.
func (r *EntitlementRepo) SetTier(ctx context.Context, userID string, tier types.Tier, planID *string, status *types.SubscriptionStatus) error {
	var st *string
	if status != nil {
		s := string(*status)
		st = &s
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE entitlements SET tier = $2, updated_at = NOW()
		WHERE user_id = $1
		  AND plan_id IS NOT DISTINCT FROM $3
		  AND subscription_status IS NOT DISTINCT FROM $4`,
		userID,
		string(tier),
		planID,
		st,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update tier", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM entitlements WHERE user_id = $1)`, userID,
	).Scan(&exists); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to check entitlement", err)
	}
	if !exists {
		return types.NewAppError(types.ErrCodeNotFoundEntitlement, "no entitlement record for user", nil)
	}
	return types.NewAppError(types.ErrCodeConflictConcurrent, "entitlement changed while recomputing tier", nil)
}

func scanEntitlement(row pgx.Row) (*types.EntitlementRecord, error) {
	var (
		rec    types.EntitlementRecord
		status *string
		tier   string
	)
	if err := row.Scan(
		&rec.UserID,
		&rec.SubscriptionID,
		&rec.CustomerID,
		&rec.PlanID,
		&status,
		&rec.RenewsAt,
		&tier,
		&rec.LastEventAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if status != nil {
		st := types.SubscriptionStatus(*status)
		rec.SubscriptionStatus = &st
	}
	rec.Tier = types.Tier(tier)
	if rec.RenewsAt != nil {
		t := rec.RenewsAt.UTC()
		rec.RenewsAt = &t
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
