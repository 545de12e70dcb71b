// Package handlers contains the HTTP handlers of the entitlement service.
//
// Each handler declares the narrow service interface it depends on and
// exposes RegisterRoutes for main.go to attach to the matching core route
// group.
package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"proofwork/internal/billing"
	"proofwork/internal/core"
	"proofwork/internal/types"
)

// defaultMaxWebhookBody applies when no limit is configured.
const defaultMaxWebhookBody = 256 << 10

// EventReconciler applies a normalized billing event.
type EventReconciler interface {
	Reconcile(ctx context.Context, ev *types.BillingEvent) (*types.ReconcileResult, error)
}

// WebhookHandler receives Lemon Squeezy subscription webhooks. It sits
// outside bearer auth; the X-Signature HMAC is the only credential.
type WebhookHandler struct {
	verifier   billing.WebhookVerifier
	reconciler EventReconciler
	maxBody    int64
	logger     *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler. maxBody <= 0 uses the default
// limit.
func NewWebhookHandler(verifier billing.WebhookVerifier, reconciler EventReconciler, maxBody int64, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBody <= 0 {
		maxBody = defaultMaxWebhookBody
	}
	return &WebhookHandler{
		verifier:   verifier,
		reconciler: reconciler,
		maxBody:    maxBody,
		logger:     logger,
	}
}

// RegisterRoutes mounts POST /lemonsqueezy under the /webhooks group.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/lemonsqueezy", h.Handle)
}

type webhookAck struct {
	Received bool `json:"received"`
}

// Handle verifies, parses and reconciles one delivery.
//
//	401  body unreadable or too large, signature missing or wrong (one
//	     uniform body for all of these)
//	400  signed body is not a well-formed subscription event
//	500  entitlement could not be persisted; the provider retries
//	200  everything else, including ignored, stale and unresolved events
//
// The signature is checked against the exact bytes received, before any
// decoding.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := types.LoggerFromContext(ctx, h.logger)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.WarnContext(ctx, "webhook body exceeds limit", "limit", h.maxBody)
		} else {
			log.WarnContext(ctx, "failed to read webhook body", "error", err)
		}
		core.Error(w, r, billing.ErrSignatureInvalid())
		return
	}

	if err := h.verifier.Verify(raw, r.Header.Get(billing.SignatureHeader)); err != nil {
		log.WarnContext(ctx, "webhook signature rejected", "remote_addr", r.RemoteAddr)
		core.Error(w, r, billing.ErrSignatureInvalid())
		return
	}

	ev, err := billing.ParseEvent(raw)
	if err != nil {
		log.WarnContext(ctx, "malformed webhook payload", "error", err)
		core.Error(w, r, err)
		return
	}

	res, err := h.reconciler.Reconcile(ctx, ev)
	if err != nil {
		log.ErrorContext(ctx, "webhook reconciliation failed",
			"event_name", ev.RawEventName,
			"subscription_id", ev.SubscriptionID,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	log.InfoContext(ctx, "webhook processed",
		"event_name", ev.RawEventName,
		"subscription_id", ev.SubscriptionID,
		"outcome", string(res.Outcome),
		"user_id", res.UserID,
		"test_mode", ev.TestMode,
	)
	core.JSON(w, r, http.StatusOK, webhookAck{Received: true})
}
