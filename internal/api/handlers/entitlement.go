package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"proofwork/internal/billing"
	"proofwork/internal/core"
	"proofwork/internal/types"
)

// QuotaService answers entitlement and quota questions for one user.
type QuotaService interface {
	Check(ctx context.Context, userID string, action types.QuotaAction) (types.QuotaDecision, error)
	View(ctx context.Context, userID string) (*billing.UsageView, error)
}

// EntitlementHandler serves the entitlement, quota and tier catalog reads.
type EntitlementHandler struct {
	quotas    QuotaService
	tiers     billing.TierRegistry
	validator *core.Validator
	logger    *slog.Logger
}

// NewEntitlementHandler creates an EntitlementHandler.
func NewEntitlementHandler(quotas QuotaService, tiers billing.TierRegistry, v *core.Validator, l *slog.Logger) *EntitlementHandler {
	if l == nil {
		l = slog.Default()
	}
	return &EntitlementHandler{quotas: quotas, tiers: tiers, validator: v, logger: l}
}

// RegisterRoutes mounts the bearer-authenticated endpoints.
func (h *EntitlementHandler) RegisterRoutes(r chi.Router) {
	r.Get("/entitlement", h.GetEntitlement)
	r.Post("/quota/check", h.CheckQuota)
}

// RegisterPublicRoutes mounts the tier catalog, which needs no auth.
func (h *EntitlementHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/tiers", h.ListTiers)
}

// QuotaCheckRequest is the body of POST /v1/quota/check.
type QuotaCheckRequest struct {
	Action string `json:"action" validate:"required,quota_action"`
}

// TiersResponse lists the tier catalog in display order.
type TiersResponse struct {
	Tiers []types.TierDefinition `json:"tiers"`
}

// GetEntitlement handles GET /v1/entitlement.
func (h *EntitlementHandler) GetEntitlement(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}

	view, err := h.quotas.View(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, view)
}

// CheckQuota handles POST /v1/quota/check. Allowed decisions return 200; a
// denial returns 403 with the decision's limit code, reason and counts.
func (h *EntitlementHandler) CheckQuota(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req QuotaCheckRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	decision, err := h.quotas.Check(r.Context(), actor.ID, types.QuotaAction(req.Action))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if !decision.Allowed {
		types.LoggerFromContext(r.Context(), h.logger).InfoContext(r.Context(), "quota denied",
			"user_id", actor.ID,
			"action", req.Action,
			"limit", decision.Limit,
			"used", decision.Used,
		)
		core.Error(w, r, types.NewAppErrorWithDetails(decision.Code, decision.Reason, nil, map[string]any{
			"action":    decision.Action,
			"limit":     decision.Limit,
			"used":      decision.Used,
			"remaining": decision.Remaining,
		}))
		return
	}
	core.JSON(w, r, http.StatusOK, decision)
}

// ListTiers handles GET /v1/tiers.
func (h *EntitlementHandler) ListTiers(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, TiersResponse{Tiers: h.tiers.All()})
}

func requireUser(w http.ResponseWriter, r *http.Request) (types.Actor, bool) {
	actor, ok := types.GetActor(r.Context())
	if !ok || actor.ID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return types.Actor{}, false
	}
	return actor, true
}
