package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"proofwork/internal/core"
	"proofwork/internal/types"
)

// TierRecomputer re-derives a stored entitlement's tier.
type TierRecomputer interface {
	Recompute(ctx context.Context, userID string) (*types.ReconcileResult, error)
}

// AdminHandler serves operator endpoints behind the admin key.
type AdminHandler struct {
	recomputer TierRecomputer
	logger     *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(recomputer TierRecomputer, l *slog.Logger) *AdminHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AdminHandler{recomputer: recomputer, logger: l}
}

// RegisterRoutes mounts the /admin endpoints.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Post("/entitlements/{userID}/recompute", h.Recompute)
}

// Recompute handles POST /admin/entitlements/{userID}/recompute. Used after
// a plan map change so already-stored subscriptions pick up the new tier.
func (h *AdminHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "user id is required", nil))
		return
	}

	res, err := h.recomputer.Recompute(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	types.LoggerFromContext(r.Context(), h.logger).InfoContext(r.Context(), "entitlement recomputed",
		"user_id", userID,
		"outcome", string(res.Outcome),
		"previous_tier", string(res.PreviousTier),
		"tier", string(res.Tier),
	)
	core.JSON(w, r, http.StatusOK, res)
}
