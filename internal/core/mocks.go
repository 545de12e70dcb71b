package core

import (
	"context"
	"sync"

	"proofwork/internal/types"
)

// --- MockAuthenticator ---

// MockAuthenticator implements Authenticator for tests in this and the
// handler packages.
//
//	mock := &MockAuthenticator{Actor: &types.Actor{ID: "user_1", Type: types.ActorTypeUser}}
//
// To simulate a rejection:
//
//	mock := &MockAuthenticator{Err: types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid token", nil)}
type MockAuthenticator struct {
	// Actor is returned on success. When both Actor and Err are nil,
	// ResolveToken returns (nil, nil).
	Actor *types.Actor
	Err   error

	// ResolveTokenFunc, when set, takes precedence over Actor and Err.
	ResolveTokenFunc func(ctx context.Context, token string) (*types.Actor, error)

	mu    sync.Mutex
	Calls []string
}

// ResolveToken records the token and returns the configured result.
func (m *MockAuthenticator) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, token)
	m.mu.Unlock()

	if m.ResolveTokenFunc != nil {
		return m.ResolveTokenFunc(ctx, token)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Actor == nil {
		return nil, nil
	}
	actor := *m.Actor
	return &actor, nil
}

// CallCount returns how many tokens were resolved.
func (m *MockAuthenticator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// --- MockHealthProbe ---

// MockHealthProbe is a HealthProbe with a fixed result.
type MockHealthProbe struct {
	ProbeName string
	Err       error
	CheckFunc func(ctx context.Context) error
}

func (p *MockHealthProbe) Name() string { return p.ProbeName }

func (p *MockHealthProbe) Check(ctx context.Context) error {
	if p.CheckFunc != nil {
		return p.CheckFunc(ctx)
	}
	return p.Err
}
