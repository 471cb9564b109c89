// Package handlers contains the HTTP handlers for the subsync API. Each
// handler group consumes narrow service interfaces so tests can substitute
// lightweight fakes.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"subsync/internal/billing"
	"subsync/internal/core"
	"subsync/internal/types"
)

// SubscriptionQuerier answers read-side subscription questions.
type SubscriptionQuerier interface {
	GetActiveSubscription(ctx context.Context, userID string) (*types.Subscription, error)
	ListSubscriptions(ctx context.Context, userID string) ([]*types.Subscription, error)
}

// SubscriptionCommander executes provider-side subscription commands.
type SubscriptionCommander interface {
	Cancel(ctx context.Context, subscriptionID string) (*types.Subscription, error)
	Reactivate(ctx context.Context, subscriptionID string) (*types.Subscription, error)
}

// SubscriptionReader loads a single record by local ID.
type SubscriptionReader interface {
	FindByID(ctx context.Context, id string) (*types.Subscription, error)
}

// SubscriptionHandler serves the user-facing subscription endpoints.
type SubscriptionHandler struct {
	querier   SubscriptionQuerier
	commander SubscriptionCommander
	reader    SubscriptionReader
	logger    *slog.Logger
}

// NewSubscriptionHandler creates a SubscriptionHandler.
func NewSubscriptionHandler(
	querier SubscriptionQuerier,
	commander SubscriptionCommander,
	reader SubscriptionReader,
	logger *slog.Logger,
) *SubscriptionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionHandler{querier: querier, commander: commander, reader: reader, logger: logger}
}

// RegisterRoutes mounts the user subscription endpoints. All routes require
// an authenticated actor.
func (h *SubscriptionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/subscriptions", func(r chi.Router) {
		r.Use(core.RequireUser)
		r.Get("/status", h.HandleStatus)
		r.Get("/history", h.HandleHistory)
		r.Post("/{id}/cancel", h.HandleCancel)
	})
}

// subscriptionView is the outbound representation of a subscription record,
// with the trial predicate derived at read time.
type subscriptionView struct {
	types.Subscription
	IsInTrial bool `json:"is_in_trial"`
}

func newSubscriptionView(sub *types.Subscription, inTrial bool) *subscriptionView {
	return &subscriptionView{Subscription: *sub, IsInTrial: inTrial}
}

type statusResponse struct {
	HasActiveSubscription bool              `json:"has_active_subscription"`
	Subscription          *subscriptionView `json:"subscription"`
}

type historyResponse struct {
	Subscriptions []*subscriptionView `json:"subscriptions"`
}

// HandleStatus returns the caller's current active subscription, if any.
// GET /v1/subscriptions/status
func (h *SubscriptionHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	sub, err := h.querier.GetActiveSubscription(r.Context(), actor.UserID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	resp := statusResponse{HasActiveSubscription: sub != nil}
	if sub != nil {
		resp.Subscription = newSubscriptionView(sub, isInTrial(sub))
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resp})
}

// HandleHistory returns every subscription record for the caller, newest
// first. GET /v1/subscriptions/history
func (h *SubscriptionHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	subs, err := h.querier.ListSubscriptions(r.Context(), actor.UserID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	views := make([]*subscriptionView, 0, len(subs))
	for _, sub := range subs {
		views = append(views, newSubscriptionView(sub, isInTrial(sub)))
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: historyResponse{Subscriptions: views}})
}

// HandleCancel schedules the caller's subscription for cancellation at period
// end. Ownership is verified before the provider is contacted; a mismatch is
// reported as not-found so the endpoint does not confirm the record exists.
// POST /v1/subscriptions/{id}/cancel
func (h *SubscriptionHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "subscription id is required", nil))
		return
	}

	sub, err := h.reader.FindByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if sub.UserID != actor.UserID {
		h.logger.WarnContext(r.Context(), "cancel attempted on subscription owned by another user",
			"subscription_id", id, "actor_user_id", actor.UserID)
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", nil))
		return
	}

	updated, err := h.commander.Cancel(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: newSubscriptionView(updated, isInTrial(updated))})
}

func isInTrial(sub *types.Subscription) bool {
	return billing.IsInTrial(sub, time.Now())
}
