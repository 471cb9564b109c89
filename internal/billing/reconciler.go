package billing

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"subsync/internal/types"
)

// Outcome describes how the engine disposed of an inbound provider event.
type Outcome string

const (
	// OutcomeApplied means local state was created or updated.
	OutcomeApplied Outcome = "applied"
	// OutcomeSkipped means the event was understood but produced no local
	// change, typically because no owning user could be resolved.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeIgnored means the event type is not one the engine acts on.
	OutcomeIgnored Outcome = "ignored"
)

// Engine reconciles provider subscription snapshots into local records. All
// mutations funnel through Upsert, which is idempotent: replaying the same
// snapshot converges to the same stored state.
type Engine struct {
	store    RecordStore
	provider ProviderClient
	resolver *IdentityResolver
	logger   *slog.Logger
}

// NewEngine creates a reconciliation Engine.
func NewEngine(store RecordStore, provider ProviderClient, resolver *IdentityResolver, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, provider: provider, resolver: resolver, logger: logger}
}

// Upsert reconciles one provider snapshot into the local store. The returned
// record is nil with a nil error when the snapshot could not be bound to a
// user; callers treat that as a non-fatal skip, never as a failure.
//
// An existing record keeps its owner unconditionally. The resolver's answer
// only ever seeds ownership for records that do not have one.
func (e *Engine) Upsert(ctx context.Context, snap *types.SubscriptionSnapshot) (*types.Subscription, error) {
	existing, err := e.store.FindByProviderID(ctx, types.ProviderStripe, snap.ID)
	if err != nil {
		return nil, err
	}

	userID, ok, err := e.resolver.Resolve(ctx, snap, existing)
	if err != nil {
		return nil, err
	}
	if !ok && existing == nil {
		e.logger.WarnContext(ctx, "skipping subscription snapshot with no resolvable owner",
			"provider_subscription_id", snap.ID,
			"provider_customer_id", snap.CustomerID)
		return nil, nil
	}

	sub := existing
	if sub == nil {
		sub = &types.Subscription{
			ID:                     uuid.NewString(),
			UserID:                 userID,
			Provider:               types.ProviderStripe,
			ProviderSubscriptionID: snap.ID,
		}
	}

	applySnapshot(sub, snap)

	saved, err := e.store.Upsert(ctx, sub)
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "reconciled subscription snapshot",
		"subscription_id", saved.ID,
		"provider_subscription_id", saved.ProviderSubscriptionID,
		"status", saved.Status)
	return saved, nil
}

// applySnapshot overwrites every provider-owned field of sub from snap.
// Identity fields and ownership are left alone. Absent provider timestamps
// clear the local value rather than preserving a stale one.
func applySnapshot(sub *types.Subscription, snap *types.SubscriptionSnapshot) {
	sub.ProviderCustomerID = strPtrOrNil(snap.CustomerID)
	sub.ProviderPriceID = strPtrOrNil(snap.PriceID)
	sub.Status = MapProviderStatus(snap.Status)
	sub.CurrentPeriodStart = types.UnixToTime(snap.CurrentPeriodStart)
	sub.CurrentPeriodEnd = types.UnixToTime(snap.CurrentPeriodEnd)
	sub.CancelAtPeriodEnd = snap.CancelAtPeriodEnd
	sub.CanceledAt = types.UnixToTime(snap.CanceledAt)
	sub.TrialStart = types.UnixToTime(snap.TrialStart)
	sub.TrialEnd = types.UnixToTime(snap.TrialEnd)
	sub.Metadata = types.Metadata(snap.Metadata)
}

// HandleEvent dispatches a verified provider event to the right reconciliation
// path and reports how it was disposed of. Unknown event types are ignored,
// never failed, so the webhook endpoint can acknowledge them.
func (e *Engine) HandleEvent(ctx context.Context, event *types.ProviderEvent) (Outcome, error) {
	switch event.Type {
	case types.EventSubCreated, types.EventSubUpdated, types.EventSubDeleted:
		if event.Subscription == nil {
			e.logger.WarnContext(ctx, "subscription event carried no subscription object",
				"event_id", event.ID, "event_type", event.Type)
			return OutcomeSkipped, nil
		}
		sub, err := e.Upsert(ctx, event.Subscription)
		if err != nil {
			return OutcomeSkipped, err
		}
		if sub == nil {
			return OutcomeSkipped, nil
		}
		return OutcomeApplied, nil

	case types.EventCheckoutCompleted:
		return e.handleCheckoutCompleted(ctx, event)

	default:
		e.logger.DebugContext(ctx, "ignoring provider event",
			"event_id", event.ID, "event_type", event.Type)
		return OutcomeIgnored, nil
	}
}

// handleCheckoutCompleted acts only on subscription-mode sessions that carry
// a subscription ID. The session payload does not include the subscription
// object, so the current snapshot is fetched from the provider first.
func (e *Engine) handleCheckoutCompleted(ctx context.Context, event *types.ProviderEvent) (Outcome, error) {
	session := event.Checkout
	if session == nil || session.Mode != "subscription" || session.SubscriptionID == "" {
		return OutcomeIgnored, nil
	}

	snap, err := e.provider.FetchSubscription(ctx, session.SubscriptionID)
	if err != nil {
		return OutcomeSkipped, err
	}

	sub, err := e.Upsert(ctx, snap)
	if err != nil {
		return OutcomeSkipped, err
	}
	if sub == nil {
		return OutcomeSkipped, nil
	}
	return OutcomeApplied, nil
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
