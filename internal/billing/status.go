package billing

import "subsync/internal/types"

// providerStatusMap maps Stripe subscription status strings onto the
// canonical local enum. Kept as a finite map plus default rather than any
// dispatch mechanism: the mapping is a total function.
var providerStatusMap = map[string]types.SubscriptionStatus{
	"active":             types.SubStatusActive,
	"canceled":           types.SubStatusCanceled,
	"past_due":           types.SubStatusPastDue,
	"trialing":           types.SubStatusTrialing,
	"incomplete":         types.SubStatusIncomplete,
	"incomplete_expired": types.SubStatusIncompleteExpired,
	"paused":             types.SubStatusPaused,
}

// MapProviderStatus converts a provider status string to the canonical enum.
// Unrecognized strings map to incomplete, never to an unset value. The
// function is pure; webhook ingestion and command responses go through the
// same mapping.
func MapProviderStatus(providerStatus string) types.SubscriptionStatus {
	if s, ok := providerStatusMap[providerStatus]; ok {
		return s
	}
	return types.SubStatusIncomplete
}
