// Package types defines the domain model shared across the subsync service:
// subscription records, provider snapshots, parsed provider events, the
// application error taxonomy, and request-scoped context helpers.
package types

import "time"

// SubscriptionProvider identifies the external billing system a subscription
// record mirrors. A single provider is supported today; the tag exists so that
// records from any future provider cannot collide on provider-side IDs.
type SubscriptionProvider string

// ProviderStripe is the only supported billing provider.
const ProviderStripe SubscriptionProvider = "stripe"

// SubscriptionStatus is the canonical local status enum. Provider status
// strings are mapped onto this set on ingestion; internal logic never touches
// raw provider strings.
type SubscriptionStatus string

const (
	SubStatusActive            SubscriptionStatus = "active"
	SubStatusCanceled          SubscriptionStatus = "canceled"
	SubStatusPastDue           SubscriptionStatus = "past_due"
	SubStatusTrialing          SubscriptionStatus = "trialing"
	SubStatusIncomplete        SubscriptionStatus = "incomplete"
	SubStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubStatusPaused            SubscriptionStatus = "paused"
)

// Subscription is the local mirror of one provider subscription.
//
// Invariants:
//   - (Provider, ProviderSubscriptionID) is unique across all records.
//   - UserID is immutable once set; it may only be (re)assigned while the
//     record has no owner.
//   - Status always holds a canonical enum value.
//
// Records are never hard-deleted; cancellation is a status transition.
type Subscription struct {
	ID                     string               `json:"id"`
	UserID                 string               `json:"user_id"`
	Provider               SubscriptionProvider `json:"provider"`
	ProviderSubscriptionID string               `json:"provider_subscription_id"`
	ProviderCustomerID     *string              `json:"provider_customer_id,omitempty"`
	ProviderPriceID        *string              `json:"provider_price_id,omitempty"`
	Status                 SubscriptionStatus   `json:"status"`
	CurrentPeriodStart     *time.Time           `json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time           `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd      bool                 `json:"cancel_at_period_end"`
	CanceledAt             *time.Time           `json:"canceled_at,omitempty"`
	TrialStart             *time.Time           `json:"trial_start,omitempty"`
	TrialEnd               *time.Time           `json:"trial_end,omitempty"`
	Metadata               Metadata             `json:"metadata,omitempty"`
	CreatedAt              time.Time            `json:"created_at"`
	UpdatedAt              time.Time            `json:"updated_at"`
}

// SubscriptionSnapshot is the provider's full current representation of one
// subscription. All timestamps are integer seconds since epoch as delivered
// on the wire; nil means the provider sent null. The reconciliation engine
// overwrites local records field-by-field from this structure.
type SubscriptionSnapshot struct {
	ID                 string
	CustomerID         string
	Status             string
	PriceID            string
	CancelAtPeriodEnd  bool
	CurrentPeriodStart *int64
	CurrentPeriodEnd   *int64
	CancelAt           *int64
	CanceledAt         *int64
	TrialStart         *int64
	TrialEnd           *int64
	Metadata           map[string]string
}

// CheckoutSession carries the fields of a completed checkout session the
// reconciliation engine cares about. Only subscription-mode sessions with a
// subscription ID trigger any work.
type CheckoutSession struct {
	Mode           string
	SubscriptionID string
}

// Provider event type constants prevent magic strings in event dispatch.
// These are the only event categories the reconciliation engine acts on;
// everything else is explicitly ignored.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventSubCreated        = "customer.subscription.created"
	EventSubUpdated        = "customer.subscription.updated"
	EventSubDeleted        = "customer.subscription.deleted"
)

// ProviderEvent is a verified, parsed inbound event from the billing provider.
// Exactly one of Subscription or Checkout is non-nil for event types the
// engine acts on; both are nil for types it ignores.
type ProviderEvent struct {
	ID           string
	Type         string
	Created      int64
	Subscription *SubscriptionSnapshot
	Checkout     *CheckoutSession
}

// EventTimestamp returns the event's created time as an absolute instant.
func (e *ProviderEvent) EventTimestamp() time.Time {
	return time.Unix(e.Created, 0).UTC()
}

// UnixToTime converts a provider seconds-since-epoch value to an absolute
// timestamp. nil stays nil; the zero instant is never substituted.
func UnixToTime(sec *int64) *time.Time {
	if sec == nil {
		return nil
	}
	t := time.Unix(*sec, 0).UTC()
	return &t
}
