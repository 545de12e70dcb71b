package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"proofwork/internal/billing"
	"proofwork/internal/core"
	"proofwork/internal/external"
	"proofwork/internal/types"
)

// CheckoutHandler starts hosted checkouts for paid plans.
type CheckoutHandler struct {
	creator   external.CheckoutCreator
	plans     billing.PlanMap
	validator *core.Validator
	logger    *slog.Logger
}

// NewCheckoutHandler creates a CheckoutHandler.
func NewCheckoutHandler(creator external.CheckoutCreator, plans billing.PlanMap, v *core.Validator, l *slog.Logger) *CheckoutHandler {
	if l == nil {
		l = slog.Default()
	}
	return &CheckoutHandler{creator: creator, plans: plans, validator: v, logger: l}
}

// RegisterRoutes mounts POST /checkout (bearer auth group).
func (h *CheckoutHandler) RegisterRoutes(r chi.Router) {
	r.Post("/checkout", h.CreateCheckout)
}

// CreateCheckoutRequest is the body of POST /v1/checkout.
type CreateCheckoutRequest struct {
	VariantID string `json:"variant_id" validate:"required"`
}

// CheckoutResponse carries the hosted checkout URL.
type CheckoutResponse struct {
	URL string `json:"url"`
}

// CreateCheckout handles POST /v1/checkout. Only configured paid variants
// are accepted, and the acting user's id is embedded in the checkout so the
// resulting subscription webhooks correlate back to them. The redirect URL is
// built server-side.
func (h *CheckoutHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req CreateCheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	actor, ok := types.GetActor(r.Context())
	if !ok || actor.ID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	if !h.plans.IsPaidPlan(req.VariantID) {
		core.Error(w, r, types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidVariant,
			"variant is not a purchasable plan",
			nil,
			map[string]any{"variant_id": req.VariantID},
		))
		return
	}

	url, err := h.creator.CreateCheckout(r.Context(), external.CheckoutRequest{
		VariantID: req.VariantID,
		UserID:    actor.ID,
		Email:     actor.Email,
	})
	if err != nil {
		types.LoggerFromContext(r.Context(), h.logger).ErrorContext(r.Context(), "failed to create checkout",
			"user_id", actor.ID,
			"variant_id", req.VariantID,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, CheckoutResponse{URL: url})
}
