package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"proofwork/internal/types"
)

const (
	lemonSqueezyAPIBase = "https://api.lemonsqueezy.com"
	jsonAPIMediaType    = "application/vnd.api+json"

	receiptButtonText   = "Go to Dashboard"
	receiptThankYouNote = "Thank you for your purchase!"
)

// LemonSqueezyConfig holds the configuration for creating a LemonSqueezyClient.
type LemonSqueezyConfig struct {
	APIKey       types.SecretString
	StoreID      string
	DashboardURL string // checkout redirect base, no trailing slash
	BaseURL      string // override for testing; defaults to lemonSqueezyAPIBase
	Logger       *slog.Logger
}

// LemonSqueezyClient implements CheckoutCreator against the Lemon Squeezy
// JSON:API.
type LemonSqueezyClient struct {
	base        *BaseClient
	apiKey      types.SecretString
	storeID     string
	redirectURL string
	baseURL     string
	logger      *slog.Logger
}

// NewLemonSqueezyClient creates a client whose requests are bounded by the
// http client's timeout.
func NewLemonSqueezyClient(httpClient *http.Client, cfg LemonSqueezyConfig) *LemonSqueezyClient {
	base := NewBaseClient(
		httpClient,
		"lemonsqueezy",
		RetryPolicy{MaxRetries: 2, MinWait: 500 * time.Millisecond, MaxWait: 5 * time.Second},
		"ProofWork/1.0",
		WithUnavailableCode(types.ErrCodeUpstreamBilling),
	)
	return NewLemonSqueezyClientWithBase(base, cfg)
}

// NewLemonSqueezyClientWithBase creates a client on a pre-configured
// BaseClient.
func NewLemonSqueezyClientWithBase(base *BaseClient, cfg LemonSqueezyConfig) *LemonSqueezyClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = lemonSqueezyAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LemonSqueezyClient{
		base:        base,
		apiKey:      cfg.APIKey,
		storeID:     cfg.StoreID,
		redirectURL: strings.TrimSuffix(cfg.DashboardURL, "/") + "/dashboard/settings",
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		logger:      logger,
	}
}

type relationshipRef struct {
	Data struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"data"`
}

func ref(kind, id string) relationshipRef {
	var r relationshipRef
	r.Data.Type = kind
	r.Data.ID = id
	return r
}

type checkoutCreateBody struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			CheckoutData struct {
				Email  string            `json:"email,omitempty"`
				Custom map[string]string `json:"custom"`
			} `json:"checkout_data"`
			ProductOptions struct {
				RedirectURL         string `json:"redirect_url"`
				ReceiptButtonText   string `json:"receipt_button_text"`
				ReceiptThankYouNote string `json:"receipt_thank_you_note"`
			} `json:"product_options"`
		} `json:"attributes"`
		Relationships struct {
			Store   relationshipRef `json:"store"`
			Variant relationshipRef `json:"variant"`
		} `json:"relationships"`
	} `json:"data"`
}

type checkoutCreateResponse struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			URL string `json:"url"`
		} `json:"attributes"`
	} `json:"data"`
}

type jsonAPIErrors struct {
	Errors []struct {
		Status string `json:"status"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// CreateCheckout opens a hosted checkout for req.VariantID. The acting user id
// travels as custom data and comes back on every subscription webhook as
// meta.custom_data.user_id.
func (c *LemonSqueezyClient) CreateCheckout(ctx context.Context, req CheckoutRequest) (string, error) {
	var body checkoutCreateBody
	body.Data.Type = "checkouts"
	body.Data.Attributes.CheckoutData.Email = req.Email
	body.Data.Attributes.CheckoutData.Custom = map[string]string{"user_id": req.UserID}
	body.Data.Attributes.ProductOptions.RedirectURL = c.redirectURL
	body.Data.Attributes.ProductOptions.ReceiptButtonText = receiptButtonText
	body.Data.Attributes.ProductOptions.ReceiptThankYouNote = receiptThankYouNote
	body.Data.Relationships.Store = ref("stores", c.storeID)
	body.Data.Relationships.Variant = ref("variants", req.VariantID)

	payload, err := json.Marshal(body)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode checkout request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkouts", bytes.NewReader(payload))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build checkout request", err)
	}
	httpReq.Header.Set("Accept", jsonAPIMediaType)
	httpReq.Header.Set("Content-Type", jsonAPIMediaType)
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey.Unmask())

	resp, err := c.base.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamBilling, "failed to read checkout response", err)
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		detail := summarizeJSONAPIErrors(raw)
		c.logger.WarnContext(ctx, "lemon squeezy checkout rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("variant_id", req.VariantID),
			slog.String("detail", detail),
		)
		return "", types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamBilling,
			"billing provider rejected checkout request",
			fmt.Errorf("lemon squeezy returned %d: %s", resp.StatusCode, detail),
			map[string]any{"upstream_status": resp.StatusCode},
		)
	}

	var out checkoutCreateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamBadResponse, "failed to decode checkout response", err)
	}
	if out.Data.Attributes.URL == "" {
		return "", types.NewAppError(types.ErrCodeUpstreamBadResponse, "checkout response carried no url", nil)
	}

	c.logger.InfoContext(ctx, "checkout created",
		slog.String("checkout_id", out.Data.ID),
		slog.String("variant_id", req.VariantID),
		slog.String("user_id", req.UserID),
	)
	return out.Data.Attributes.URL, nil
}

func summarizeJSONAPIErrors(raw []byte) string {
	var errs jsonAPIErrors
	if err := json.Unmarshal(raw, &errs); err != nil || len(errs.Errors) == 0 {
		return "no error detail"
	}
	parts := make([]string, 0, len(errs.Errors))
	for _, e := range errs.Errors {
		if e.Detail != "" {
			parts = append(parts, e.Detail)
		} else {
			parts = append(parts, e.Title)
		}
	}
	return strings.Join(parts, "; ")
}
