package billing

import (
	"context"
	"log/slog"

	"subsync/internal/types"
)

// Orchestrator drives the two provider-side commands, cancel and reactivate.
// Both call the provider first and only touch the local record after the
// provider confirms; a provider failure leaves local state untouched.
type Orchestrator struct {
	store    RecordStore
	provider ProviderClient
	logger   *slog.Logger
}

// NewOrchestrator creates a command Orchestrator.
func NewOrchestrator(store RecordStore, provider ProviderClient, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{store: store, provider: provider, logger: logger}
}

// Cancel schedules the subscription for cancellation at period end on the
// provider side and mirrors the confirmed result locally.
func (o *Orchestrator) Cancel(ctx context.Context, subscriptionID string) (*types.Subscription, error) {
	sub, err := o.loadSupported(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	snap, err := o.provider.UpdateSubscription(ctx, sub.ProviderSubscriptionID, true)
	if err != nil {
		return nil, err
	}

	sub.CancelAtPeriodEnd = true
	applyCommandResult(sub, snap)
	if snap.CanceledAt != nil {
		sub.CanceledAt = types.UnixToTime(snap.CanceledAt)
	}

	saved, err := o.store.Upsert(ctx, sub)
	if err != nil {
		return nil, err
	}

	o.logger.InfoContext(ctx, "scheduled subscription cancellation",
		"subscription_id", saved.ID, "status", saved.Status)
	return saved, nil
}

// Reactivate clears a pending cancellation on the provider side and mirrors
// the confirmed result locally.
func (o *Orchestrator) Reactivate(ctx context.Context, subscriptionID string) (*types.Subscription, error) {
	sub, err := o.loadSupported(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	snap, err := o.provider.UpdateSubscription(ctx, sub.ProviderSubscriptionID, false)
	if err != nil {
		return nil, err
	}

	sub.CancelAtPeriodEnd = false
	applyCommandResult(sub, snap)
	if sub.Status != types.SubStatusCanceled && sub.CanceledAt != nil {
		sub.CanceledAt = nil
	}

	saved, err := o.store.Upsert(ctx, sub)
	if err != nil {
		return nil, err
	}

	o.logger.InfoContext(ctx, "reactivated subscription",
		"subscription_id", saved.ID, "status", saved.Status)
	return saved, nil
}

// loadSupported fetches the record and rejects providers the orchestrator
// cannot issue commands against.
func (o *Orchestrator) loadSupported(ctx context.Context, subscriptionID string) (*types.Subscription, error) {
	sub, err := o.store.FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Provider != types.ProviderStripe {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeConflictUnsupportedProvider,
			"subscription provider does not support billing commands",
			nil,
			map[string]any{"provider": string(sub.Provider)},
		)
	}
	return sub, nil
}

// applyCommandResult folds the provider's confirmed update response into the
// local record. Trial fields and the period end are only replaced when the
// response actually supplies them; the provider omits unchanged timestamps.
func applyCommandResult(sub *types.Subscription, snap *types.SubscriptionSnapshot) {
	sub.Status = MapProviderStatus(snap.Status)
	if snap.TrialStart != nil {
		sub.TrialStart = types.UnixToTime(snap.TrialStart)
	}
	if snap.TrialEnd != nil {
		sub.TrialEnd = types.UnixToTime(snap.TrialEnd)
	}
	if snap.CancelAt != nil {
		sub.CurrentPeriodEnd = types.UnixToTime(snap.CancelAt)
	}
}
