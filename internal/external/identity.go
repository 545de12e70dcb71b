package external

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"proofwork/internal/types"
)

// IdentityConfig holds the configuration for creating an IdentityClient.
type IdentityConfig struct {
	BaseURL string
	APIKey  types.SecretString
	Logger  *slog.Logger
}

// IdentityClient resolves bearer tokens against the identity service's
// /auth/v1/user endpoint.
type IdentityClient struct {
	base    *BaseClient
	baseURL string
	apiKey  types.SecretString
	logger  *slog.Logger
}

// NewIdentityClient creates an IdentityClient. Token lookups sit on the
// request path of every authenticated call, so retries are kept short.
func NewIdentityClient(httpClient *http.Client, cfg IdentityConfig) *IdentityClient {
	base := NewBaseClient(
		httpClient,
		"identity",
		RetryPolicy{MaxRetries: 1, MinWait: 100 * time.Millisecond, MaxWait: time.Second},
		"ProofWork/1.0",
		WithUnavailableCode(types.ErrCodeUpstreamIdentity),
	)
	return NewIdentityClientWithBase(base, cfg)
}

// NewIdentityClientWithBase creates an IdentityClient on a pre-configured
// BaseClient.
func NewIdentityClientWithBase(base *BaseClient, cfg IdentityConfig) *IdentityClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityClient{
		base:    base,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		logger:  logger,
	}
}

type identityUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// ResolveToken returns the user the token belongs to. A token the service
// does not accept yields auth_token_invalid.
func (c *IdentityClient) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	if token == "" {
		return nil, types.NewAppError(types.ErrCodeAuthTokenMissing, "missing bearer token", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build identity request", err)
	}
	req.Header.Set("apikey", c.apiKey.Unmask())
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid or expired token", nil)
	case resp.StatusCode != http.StatusOK:
		c.logger.WarnContext(ctx, "identity service returned unexpected status",
			slog.Int("status", resp.StatusCode),
		)
		return nil, types.NewAppError(types.ErrCodeUpstreamIdentity, "identity service returned an unexpected status", nil)
	}

	var u identityUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamBadResponse, "failed to decode identity response", err)
	}
	if u.ID == "" {
		return nil, types.NewAppError(types.ErrCodeAuthIdentityUnverified, "identity response carried no user id", nil)
	}

	return &types.Actor{ID: u.ID, Email: u.Email, Type: types.ActorTypeUser}, nil
}
