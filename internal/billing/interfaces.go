// Package billing contains the reconciliation core of subsync: the status
// mapper, the identity resolver, the reconciliation engine, the lifecycle
// query service, and the cancel/reactivate command orchestrator. The package
// holds no transport or persistence code of its own; it depends on the two
// collaborator contracts below.
package billing

import (
	"context"

	"subsync/internal/types"
)

// RecordStore is the keyed persistence contract the core consumes. It is
// satisfied by db.SubscriptionRepository. Finder methods return (nil, nil)
// when no record matches, except FindByID which reports a not-found error
// because callers of the command flows treat absence as a failure.
type RecordStore interface {
	FindByProviderID(ctx context.Context, provider types.SubscriptionProvider, providerSubscriptionID string) (*types.Subscription, error)
	FindByID(ctx context.Context, id string) (*types.Subscription, error)
	FindMostRecentByCustomerID(ctx context.Context, provider types.SubscriptionProvider, providerCustomerID string) (*types.Subscription, error)
	FindActiveByUser(ctx context.Context, userID string) (*types.Subscription, error)
	ListByUser(ctx context.Context, userID string) ([]*types.Subscription, error)
	Upsert(ctx context.Context, sub *types.Subscription) (*types.Subscription, error)
	UpdateStatus(ctx context.Context, id string, status types.SubscriptionStatus) error
}

// ProviderClient is the outbound contract to the billing provider, satisfied
// by external.StripeClient. The client owns retry and timeout policy; the
// core treats any returned error as terminal for that invocation.
type ProviderClient interface {
	// FetchSubscription returns the provider's current snapshot of one
	// subscription.
	FetchSubscription(ctx context.Context, providerSubscriptionID string) (*types.SubscriptionSnapshot, error)

	// UpdateSubscription sets or clears cancel-at-period-end on the provider
	// side and returns the resulting snapshot.
	UpdateSubscription(ctx context.Context, providerSubscriptionID string, cancelAtPeriodEnd bool) (*types.SubscriptionSnapshot, error)
}
