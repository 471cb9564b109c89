package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"subsync/internal/billing"
	"subsync/internal/core"
	"subsync/internal/types"
)

// maxWebhookBodySize caps webhook payloads at 64 KB. Stripe events are far
// smaller; anything larger is rejected before signature verification.
const maxWebhookBodySize = 64 * 1024

// EventVerifier verifies a webhook payload's signature and parses it into a
// provider event. Implemented by external.StripeClient.
type EventVerifier interface {
	VerifyAndParseEvent(payload []byte, sigHeader string) (*types.ProviderEvent, error)
}

// EventProcessor reconciles a verified provider event into local state.
// Implemented by billing.Engine.
type EventProcessor interface {
	HandleEvent(ctx context.Context, event *types.ProviderEvent) (billing.Outcome, error)
}

// StripeWebhookHandler receives Stripe webhook deliveries, verifies their
// signatures, and hands verified events to the reconciliation engine.
type StripeWebhookHandler struct {
	verifier  EventVerifier
	processor EventProcessor
	logger    *slog.Logger
}

// NewStripeWebhookHandler creates a StripeWebhookHandler.
func NewStripeWebhookHandler(verifier EventVerifier, processor EventProcessor, logger *slog.Logger) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{verifier: verifier, processor: processor, logger: logger}
}

// RegisterRoutes mounts the webhook endpoint. The route is public; the
// Stripe-Signature header is the authentication.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Handle)
}

type webhookResponse struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome"`
}

// Handle processes one webhook delivery. Signature failures are 401s, but a
// verified event is always acknowledged with 200 once dispatched, even when
// the engine skips it, so Stripe does not redeliver events that will never
// resolve. Engine errors (store or provider failures) return 500 so the
// delivery is retried.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthSignatureMissing,
			"Stripe-Signature header is required",
			nil,
		))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidPayload,
			"failed to read webhook payload",
			err,
		))
		return
	}

	event, err := h.verifier.VerifyAndParseEvent(payload, sigHeader)
	if err != nil {
		h.logger.WarnContext(r.Context(), "webhook verification failed", "error", err)
		core.Error(w, r, err)
		return
	}

	outcome, err := h.processor.HandleEvent(r.Context(), event)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "webhook event processing failed",
			"event_id", event.ID, "event_type", event.Type, "error", err)
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "webhook event processed",
		"event_id", event.ID, "event_type", event.Type, "outcome", string(outcome))

	core.JSON(w, r, http.StatusOK, webhookResponse{Received: true, Outcome: string(outcome)})
}
