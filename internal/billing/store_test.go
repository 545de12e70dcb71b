package billing

import (
	"context"
	"sync"

	"proofwork/internal/types"
)

// memStore is an in-memory EntitlementStore applying the same recency guard
// as the SQL implementation.
type memStore struct {
	mu      sync.Mutex
	records map[string]*types.EntitlementRecord
	writes  int
	err     error
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*types.EntitlementRecord)}
}

func (s *memStore) seed(rec types.EntitlementRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := rec
	s.records[rec.UserID] = &r
}

func (s *memStore) get(userID string) types.EntitlementRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.records[userID]
}

func fresh(rec *types.EntitlementRecord, upd types.EntitlementUpdate) bool {
	if rec.LastEventAt == nil || upd.OccurredAt == nil {
		return true
	}
	return !rec.LastEventAt.After(*upd.OccurredAt)
}

func apply(rec *types.EntitlementRecord, upd types.EntitlementUpdate) {
	subID, custID, planID, status := upd.SubscriptionID, upd.CustomerID, upd.PlanID, upd.Status
	rec.SubscriptionID = &subID
	rec.CustomerID = &custID
	rec.PlanID = &planID
	rec.SubscriptionStatus = &status
	rec.RenewsAt = upd.RenewsAt
	rec.Tier = upd.Tier
	if upd.OccurredAt != nil {
		at := *upd.OccurredAt
		rec.LastEventAt = &at
	}
}

func (s *memStore) UpsertByUserID(_ context.Context, userID string, upd types.EntitlementUpdate) (types.EntitlementWrite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return types.EntitlementWrite{}, s.err
	}
	rec, ok := s.records[userID]
	if !ok {
		rec = &types.EntitlementRecord{UserID: userID, Tier: types.TierFree}
		s.records[userID] = rec
	}
	w := types.EntitlementWrite{Matched: true, UserID: userID, PreviousTier: rec.Tier}
	if !fresh(rec, upd) {
		return w, nil
	}
	apply(rec, upd)
	s.writes++
	w.Applied = true
	return w, nil
}

func (s *memStore) UpdateBySubscriptionID(_ context.Context, upd types.EntitlementUpdate) (types.EntitlementWrite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return types.EntitlementWrite{}, s.err
	}
	for _, rec := range s.records {
		if rec.SubscriptionID == nil || *rec.SubscriptionID != upd.SubscriptionID {
			continue
		}
		w := types.EntitlementWrite{Matched: true, UserID: rec.UserID, PreviousTier: rec.Tier}
		if !fresh(rec, upd) {
			return w, nil
		}
		apply(rec, upd)
		s.writes++
		w.Applied = true
		return w, nil
	}
	return types.EntitlementWrite{}, nil
}

func (s *memStore) GetByUserID(_ context.Context, userID string) (*types.EntitlementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	rec, ok := s.records[userID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *memStore) SetTier(_ context.Context, userID string, tier types.Tier, planID *string, status *types.SubscriptionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	rec, ok := s.records[userID]
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundEntitlement, "no entitlement record for user", nil)
	}
	if !sameString(rec.PlanID, planID) || !sameStatus(rec.SubscriptionStatus, status) {
		return types.NewAppError(types.ErrCodeConflictConcurrent, "entitlement changed while recomputing tier", nil)
	}
	rec.Tier = tier
	s.writes++
	return nil
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameStatus(a, b *types.SubscriptionStatus) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// racingStore runs interleave once, after the first GetByUserID returns and
// before the tier write that follows it.
type racingStore struct {
	*memStore
	interleave func()
	ran        bool
}

func (s *racingStore) SetTier(ctx context.Context, userID string, tier types.Tier, planID *string, status *types.SubscriptionStatus) error {
	if !s.ran {
		s.ran = true
		s.interleave()
	}
	return s.memStore.SetTier(ctx, userID, tier, planID, status)
}

func (s *memStore) EnsureDefault(_ context.Context, userID string) (*types.EntitlementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	rec, ok := s.records[userID]
	if !ok {
		rec = &types.EntitlementRecord{UserID: userID, Tier: types.TierFree}
		s.records[userID] = rec
	}
	cp := *rec
	return &cp, nil
}
