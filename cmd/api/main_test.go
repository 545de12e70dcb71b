package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"proofwork/internal/billing"
	"proofwork/internal/config"
	"proofwork/internal/core"
	"proofwork/internal/types"
)

// fakeDatabase answers every query with no rows and pings successfully unless
// pingErr is set.
type fakeDatabase struct {
	pingErr error
	queries []string
}

func (f *fakeDatabase) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.queries = append(f.queries, sql)
	return pgconn.NewCommandTag("UPDATE 0"), nil
}

func (f *fakeDatabase) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	f.queries = append(f.queries, sql)
	return nil, errors.New("not supported")
}

func (f *fakeDatabase) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	f.queries = append(f.queries, sql)
	return noRows{}
}

func (f *fakeDatabase) Ping(context.Context) error { return f.pingErr }

type noRows struct{}

func (noRows) Scan(...any) error { return pgx.ErrNoRows }

const testSecret = "whsec_main"

func testConfig() *config.Config {
	cfg := &config.Config{Environment: "local", LogLevel: "error"}
	cfg.Server.DashboardURL = "https://app.test.local"
	cfg.Server.MaxWebhookBodyBytes = 64 << 10
	cfg.Billing.WebhookSecret = testSecret
	cfg.Billing.VariantIDPro = "111"
	cfg.Billing.VariantIDEnterprise = "222"
	cfg.Billing.APIBaseURL = "https://api.lemonsqueezy.test"
	cfg.Identity.URL = "https://identity.test.local"
	cfg.Security.AdminAPIKeyHash = "$2a$10$invalidinvalidinvalidinvalidinvalidinvalidinvalidinvali"
	cfg.Security.CorsAllowedOrigins = []string{"*"}
	cfg.Observability.MetricNamespace = "ProofWork"
	cfg.Build.Version = "test"
	return cfg
}

func buildTestServer(t *testing.T, fdb *fakeDatabase) *core.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := buildServer(testConfig(), logger, dependencies{DB: fdb})
	if err != nil {
		t.Fatalf("buildServer: %v", err)
	}
	return srv
}

func serve(srv *core.Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv := buildTestServer(t, &fakeDatabase{})

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health: got status %d; body: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", resp["status"])
	}
}

func TestHealthEndpoint_DatabaseDown(t *testing.T) {
	srv := buildTestServer(t, &fakeDatabase{pingErr: errors.New("connection refused")})

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /health: got status %d, want 503", rec.Code)
	}
}

func TestTiersArePublic(t *testing.T) {
	srv := buildTestServer(t, &fakeDatabase{})

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/v1/tiers", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /v1/tiers: got status %d; body: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"enterprise"`) {
		t.Errorf("tier catalog missing enterprise: %s", rec.Body.String())
	}
}

func TestProtectedRoutesRequireCredentials(t *testing.T) {
	srv := buildTestServer(t, &fakeDatabase{})

	cases := []struct {
		method, path string
	}{
		{http.MethodGet, "/v1/entitlement"},
		{http.MethodPost, "/v1/checkout"},
		{http.MethodPost, "/v1/quota/check"},
		{http.MethodPost, "/admin/entitlements/u1/recompute"},
		{http.MethodPost, "/webhooks/lemonsqueezy"},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec := serve(srv, httptest.NewRequest(tc.method, tc.path, strings.NewReader(`{}`)))
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("got status %d, want 401; body: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	srv := buildTestServer(t, &fakeDatabase{})

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/v2/nothing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("got status %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), string(types.ErrCodeNotFoundRoute)) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestWebhook_UncorrelatedUnknownSubscriptionAcknowledged(t *testing.T) {
	fdb := &fakeDatabase{}
	srv := buildTestServer(t, fdb)

	body := `{"meta":{"event_name":"subscription_updated"},
	  "data":{"type":"subscriptions","id":"sub_unknown","attributes":{"variant_id":111,"status":"active"}}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/lemonsqueezy", strings.NewReader(body))
	req.Header.Set(billing.SignatureHeader, billing.Sign([]byte(body), []byte(testSecret)))

	rec := serve(srv, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	if len(fdb.queries) != 2 {
		t.Errorf("queries = %d, want guarded update plus lookup", len(fdb.queries))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := buildTestServer(t, &fakeDatabase{})
	serve(srv, httptest.NewRequest(http.MethodGet, "/v1/tiers", nil))

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics: got status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "proofwork_http_requests_total") {
		t.Error("request counter not exported")
	}
}

func TestNewLogger(t *testing.T) {
	for level, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
	} {
		l := newLogger(level)
		if !l.Enabled(context.Background(), want) {
			t.Errorf("level %q: %v not enabled", level, want)
		}
		if want > slog.LevelDebug && l.Enabled(context.Background(), want-1) {
			t.Errorf("level %q: below-threshold level enabled", level)
		}
	}
}
