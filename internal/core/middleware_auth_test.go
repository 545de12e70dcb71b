package core

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"proofwork/internal/types"
)

func okHandler(captured *types.Actor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a, ok := types.GetActor(r.Context()); ok && captured != nil {
			*captured = a
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_ValidToken_InjectsActor(t *testing.T) {
	srv := newTestServer(t)
	auth := &MockAuthenticator{Actor: &types.Actor{ID: "user_1", Email: "dev@example.com", Type: types.ActorTypeUser}}
	srv.Authenticator = auth

	var actor types.Actor
	req := httptest.NewRequest(http.MethodGet, "/v1/entitlement", nil)
	req.Header.Set("Authorization", "bearer tok_1")
	rec := httptest.NewRecorder()
	srv.AuthMiddleware(okHandler(&actor)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if actor.ID != "user_1" || actor.Email != "dev@example.com" {
		t.Errorf("actor = %+v", actor)
	}
	if len(auth.Calls) != 1 || auth.Calls[0] != "tok_1" {
		t.Errorf("token calls = %v", auth.Calls)
	}
}

func TestAuthMiddleware_Failures(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		auth       *MockAuthenticator
		wantStatus int
		wantCode   types.ErrorCode
	}{
		{
			name:       "missing header",
			auth:       &MockAuthenticator{},
			wantStatus: http.StatusUnauthorized,
			wantCode:   types.ErrCodeAuthTokenMissing,
		},
		{
			name:       "wrong scheme",
			header:     "Basic abc",
			auth:       &MockAuthenticator{},
			wantStatus: http.StatusUnauthorized,
			wantCode:   types.ErrCodeAuthTokenMissing,
		},
		{
			name:       "rejected token",
			header:     "Bearer bad",
			auth:       &MockAuthenticator{Err: types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid or expired token", nil)},
			wantStatus: http.StatusUnauthorized,
			wantCode:   types.ErrCodeAuthTokenInvalid,
		},
		{
			name:       "nil actor",
			header:     "Bearer t",
			auth:       &MockAuthenticator{},
			wantStatus: http.StatusUnauthorized,
			wantCode:   types.ErrCodeAuthTokenInvalid,
		},
		{
			name:       "identity down",
			header:     "Bearer t",
			auth:       &MockAuthenticator{Err: types.NewAppError(types.ErrCodeUpstreamIdentity, "identity service unavailable", nil)},
			wantStatus: http.StatusBadGateway,
			wantCode:   types.ErrCodeUpstreamIdentity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t)
			srv.Authenticator = tt.auth

			req := httptest.NewRequest(http.MethodGet, "/v1/entitlement", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			srv.AuthMiddleware(okHandler(nil)).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := decodeError(t, rec).Code; got != string(tt.wantCode) {
				t.Errorf("code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestAuthMiddleware_NoAuthenticatorFailsClosed(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/entitlement", nil)
	req.Header.Set("Authorization", "Bearer t")
	rec := httptest.NewRecorder()
	srv.AuthMiddleware(okHandler(nil)).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":    "abc",
		"BEARER abc ":   "abc",
		"Bearer":        "",
		"Token abc":     "",
		"Bearer    xyz": "xyz",
	}
	for in, want := range tests {
		if got := extractBearerToken(in); got != want {
			t.Errorf("extractBearerToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAdminKeyMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		wantStatus int
	}{
		{name: "valid", key: testAdminKey, wantStatus: http.StatusOK},
		{name: "missing", key: "", wantStatus: http.StatusUnauthorized},
		{name: "wrong", key: "guess", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t)
			var actor types.Actor

			req := httptest.NewRequest(http.MethodPost, "/admin/entitlements/u/recompute", nil)
			if tt.key != "" {
				req.Header.Set(AdminKeyHeader, tt.key)
			}
			rec := httptest.NewRecorder()
			srv.AdminKeyMiddleware(okHandler(&actor)).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && actor.Type != types.ActorTypeAdmin {
				t.Errorf("admin actor not injected: %+v", actor)
			}
			if tt.wantStatus == http.StatusUnauthorized {
				if got := decodeError(t, rec).Code; got != string(types.ErrCodeAuthAdminKeyInvalid) {
					t.Errorf("code = %q", got)
				}
			}
		})
	}
}

func TestAdminKeyMiddleware_NoHashConfigured(t *testing.T) {
	srv := newTestServer(t)
	srv.Config.Security.AdminAPIKeyHash = ""

	req := httptest.NewRequest(http.MethodPost, "/admin/x", nil)
	req.Header.Set(AdminKeyHeader, "anything")
	rec := httptest.NewRecorder()
	srv.AdminKeyMiddleware(okHandler(nil)).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
