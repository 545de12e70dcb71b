package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"proofwork/internal/types"
)

// UsageRepo counts live usage from the tracker's own tables. Nothing is
// cached; every snapshot reflects the rows as they are now.
type UsageRepo struct {
	db DBTX

	// concurrent is set only for a pool. A pgx.Tx or *pgx.Conn is a single
	// connection and must not carry two queries at once.
	concurrent bool
}

// NewUsageRepo creates a UsageRepo backed by the given database connection.
func NewUsageRepo(db DBTX) *UsageRepo {
	_, pooled := db.(*pgxpool.Pool)
	return &UsageRepo{db: db, concurrent: pooled}
}

// Snapshot returns the number of projects owned by userID and the number of
// work sessions created at or after periodStart. Against a pool the two
// counts run concurrently; inside a transaction they run one after the other.
func (r *UsageRepo) Snapshot(ctx context.Context, userID string, periodStart time.Time) (types.UsageSnapshot, error) {
	var projects, sessions int64

	countProjects := func(ctx context.Context) error {
		return r.db.QueryRow(ctx,
			`SELECT COUNT(*) FROM projects WHERE user_id = $1`,
			userID,
		).Scan(&projects)
	}
	countSessions := func(ctx context.Context) error {
		return r.db.QueryRow(ctx,
			`SELECT COUNT(*) FROM work_sessions WHERE user_id = $1 AND created_at >= $2`,
			userID, periodStart,
		).Scan(&sessions)
	}

	var err error
	if r.concurrent {
		g, gCtx := errgroup.WithContext(ctx)
		g.Go(func() error { return countProjects(gCtx) })
		g.Go(func() error { return countSessions(gCtx) })
		err = g.Wait()
	} else if err = countProjects(ctx); err == nil {
		err = countSessions(ctx)
	}
	if err != nil {
		return types.UsageSnapshot{}, types.NewAppError(types.ErrCodeInternalDB, "failed to count usage", err)
	}

	return types.UsageSnapshot{
		ProjectsOwned:             int(projects),
		SessionsThisCalendarMonth: int(sessions),
		PeriodStart:               periodStart,
	}, nil
}
