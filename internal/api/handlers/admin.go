package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"subsync/internal/core"
	"subsync/internal/types"
)

// AdminSubscriptionHandler serves the operator endpoints for forcing
// subscription commands on any record, with no ownership check.
type AdminSubscriptionHandler struct {
	commander SubscriptionCommander
	logger    *slog.Logger
}

// NewAdminSubscriptionHandler creates an AdminSubscriptionHandler.
func NewAdminSubscriptionHandler(commander SubscriptionCommander, logger *slog.Logger) *AdminSubscriptionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminSubscriptionHandler{commander: commander, logger: logger}
}

// RegisterRoutes mounts the admin subscription endpoints behind the admin
// guard.
func (h *AdminSubscriptionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin/subscriptions", func(r chi.Router) {
		r.Use(core.RequireAdmin)
		r.Patch("/{id}/cancel", h.HandleCancel)
		r.Patch("/{id}/reactivate", h.HandleReactivate)
	})
}

// HandleCancel schedules any subscription for cancellation at period end.
// PATCH /v1/admin/subscriptions/{id}/cancel
func (h *AdminSubscriptionHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "subscription id is required", nil))
		return
	}

	actor, _ := types.GetActor(r.Context())
	h.logger.InfoContext(r.Context(), "admin cancel requested",
		"subscription_id", id, "admin_user_id", actor.UserID)

	sub, err := h.commander.Cancel(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: newSubscriptionView(sub, isInTrial(sub))})
}

// HandleReactivate clears a pending cancellation on any subscription.
// PATCH /v1/admin/subscriptions/{id}/reactivate
func (h *AdminSubscriptionHandler) HandleReactivate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "subscription id is required", nil))
		return
	}

	actor, _ := types.GetActor(r.Context())
	h.logger.InfoContext(r.Context(), "admin reactivate requested",
		"subscription_id", id, "admin_user_id", actor.UserID)

	sub, err := h.commander.Reactivate(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: newSubscriptionView(sub, isInTrial(sub))})
}
