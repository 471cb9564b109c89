package billing

import (
	"context"
	"log/slog"

	"subsync/internal/types"
)

// Accepted metadata key spellings for the owning user identifier. Checkout
// integrations set one or the other depending on who built them.
const (
	metadataUserIDKey      = "userId"
	metadataUserIDSnakeKey = "user_id"
)

// IdentityResolver determines which local user a provider subscription
// belongs to. Resolution is best-effort: a snapshot that cannot be bound to a
// user is reported as unresolved, and the engine decides what that means
// (skip for unseen subscriptions, carry the existing owner otherwise).
type IdentityResolver struct {
	store  RecordStore
	logger *slog.Logger
}

// NewIdentityResolver creates an IdentityResolver backed by the given store.
func NewIdentityResolver(store RecordStore, logger *slog.Logger) *IdentityResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityResolver{store: store, logger: logger}
}

// Resolve returns the owning local user ID for a snapshot, trying in order:
//
//  1. An explicit user identifier in the snapshot metadata, under either
//     accepted key spelling.
//  2. The owner already recorded on the existing record for this provider
//     subscription ID, when one is supplied.
//  3. The owner of the most recently created record for the same provider
//     customer ID.
//
// The boolean result is false when no source yields a user. An error is
// returned only for store failures; failing to resolve is not an error.
func (r *IdentityResolver) Resolve(
	ctx context.Context,
	snap *types.SubscriptionSnapshot,
	existing *types.Subscription,
) (string, bool, error) {
	if userID := metadataUserID(snap.Metadata); userID != "" {
		return userID, true, nil
	}

	if existing != nil && existing.UserID != "" {
		return existing.UserID, true, nil
	}

	if snap.CustomerID != "" {
		sibling, err := r.store.FindMostRecentByCustomerID(ctx, types.ProviderStripe, snap.CustomerID)
		if err != nil {
			return "", false, err
		}
		if sibling != nil && sibling.UserID != "" {
			return sibling.UserID, true, nil
		}
	}

	return "", false, nil
}

// metadataUserID extracts the explicit user identifier from snapshot
// metadata, preferring the camel-case spelling.
func metadataUserID(metadata map[string]string) string {
	if metadata == nil {
		return ""
	}
	if id := metadata[metadataUserIDKey]; id != "" {
		return id
	}
	return metadata[metadataUserIDSnakeKey]
}
