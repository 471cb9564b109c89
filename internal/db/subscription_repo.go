package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"subsync/internal/types"
)

// SubscriptionRepository provides data access for the subscriptions table.
//
// Key invariants:
//   - Upsert is keyed on (provider, provider_subscription_id): the first call
//     for a pair inserts, every later call mutates the same row. Concurrent
//     first calls are resolved by the unique index, never by a duplicate row.
//   - user_id is written on insert and never overwritten by Upsert once set;
//     the conflict branch only reassigns ownership of an ownerless row.
type SubscriptionRepository struct {
	db DBTX
}

// NewSubscriptionRepository creates a new SubscriptionRepository backed by the
// given database connection (pool or transaction).
func NewSubscriptionRepository(db DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// subscriptionColumns defines the standard set of columns selected for
// subscription queries. Used consistently across all query methods to avoid
// column drift.
const subscriptionColumns = `s.id, s.user_id, s.provider, s.provider_subscription_id,
	s.provider_customer_id, s.provider_price_id, s.status, s.current_period_start,
	s.current_period_end, s.cancel_at_period_end, s.canceled_at, s.trial_start,
	s.trial_end, s.metadata, s.created_at, s.updated_at`

// scanSubscription scans a single subscription row into a types.Subscription.
// The columns must match the order defined in subscriptionColumns.
func scanSubscription(row pgx.Row) (*types.Subscription, error) {
	var s types.Subscription
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.Provider,
		&s.ProviderSubscriptionID,
		&s.ProviderCustomerID,
		&s.ProviderPriceID,
		&s.Status,
		&s.CurrentPeriodStart,
		&s.CurrentPeriodEnd,
		&s.CancelAtPeriodEnd,
		&s.CanceledAt,
		&s.TrialStart,
		&s.TrialEnd,
		&s.Metadata,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FindByProviderID retrieves the record for a provider subscription ID, scoped
// to the provider tag. Returns (nil, nil) if no record exists; absence is the
// normal create path for the reconciliation engine, not an error.
func (r *SubscriptionRepository) FindByProviderID(
	ctx context.Context,
	provider types.SubscriptionProvider,
	providerSubscriptionID string,
) (*types.Subscription, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions s
		 WHERE s.provider = $1 AND s.provider_subscription_id = $2`,
		provider,
		providerSubscriptionID,
	)

	s, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve subscription by provider id", err)
	}
	return s, nil
}

// FindByID retrieves a record by its local identifier.
// Returns a not-found AppError if no record exists.
func (r *SubscriptionRepository) FindByID(ctx context.Context, id string) (*types.Subscription, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions s
		 WHERE s.id = $1`,
		id,
	)

	s, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve subscription", err)
	}
	return s, nil
}

// FindMostRecentByCustomerID retrieves the most recently created record for a
// provider customer ID, scoped to the provider tag. Used by identity
// resolution to inherit ownership from a sibling subscription of the same
// customer. Returns (nil, nil) if the customer has no records.
func (r *SubscriptionRepository) FindMostRecentByCustomerID(
	ctx context.Context,
	provider types.SubscriptionProvider,
	providerCustomerID string,
) (*types.Subscription, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions s
		 WHERE s.provider = $1 AND s.provider_customer_id = $2
		 ORDER BY s.created_at DESC
		 LIMIT 1`,
		provider,
		providerCustomerID,
	)

	s, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve subscription by customer id", err)
	}
	return s, nil
}

// FindActiveByUser retrieves the most recently created record for a user with
// status "active". Returns (nil, nil) if the user has no active record;
// derived-state checks (expiration) happen in the lifecycle service, not here.
func (r *SubscriptionRepository) FindActiveByUser(ctx context.Context, userID string) (*types.Subscription, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions s
		 WHERE s.user_id = $1 AND s.status = $2
		 ORDER BY s.created_at DESC
		 LIMIT 1`,
		userID,
		types.SubStatusActive,
	)

	s, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve active subscription", err)
	}
	return s, nil
}

// ListByUser retrieves all records for a user, most recently created first.
func (r *SubscriptionRepository) ListByUser(ctx context.Context, userID string) ([]*types.Subscription, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions s
		 WHERE s.user_id = $1
		 ORDER BY s.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list subscriptions", err)
	}
	defer rows.Close()

	subs := make([]*types.Subscription, 0)
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan subscription row", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate subscription rows", err)
	}

	return subs, nil
}

// Upsert inserts or updates a record keyed by (provider,
// provider_subscription_id) in a single statement, so two concurrent first
// events for the same provider subscription cannot produce two rows. All
// provider-derived fields are overwritten from the given record; created_at
// and the existing owner survive the conflict branch. Returns the stored row.
func (r *SubscriptionRepository) Upsert(ctx context.Context, sub *types.Subscription) (*types.Subscription, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO subscriptions (
			id, user_id, provider, provider_subscription_id, provider_customer_id,
			provider_price_id, status, current_period_start, current_period_end,
			cancel_at_period_end, canceled_at, trial_start, trial_end, metadata,
			created_at, updated_at
		 ) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW()
		 )
		 ON CONFLICT (provider, provider_subscription_id) DO UPDATE SET
			user_id = CASE WHEN subscriptions.user_id = '' THEN EXCLUDED.user_id ELSE subscriptions.user_id END,
			provider_customer_id = EXCLUDED.provider_customer_id,
			provider_price_id = EXCLUDED.provider_price_id,
			status = EXCLUDED.status,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			canceled_at = EXCLUDED.canceled_at,
			trial_start = EXCLUDED.trial_start,
			trial_end = EXCLUDED.trial_end,
			metadata = EXCLUDED.metadata,
			updated_at = NOW()
		 RETURNING id, user_id, provider, provider_subscription_id, provider_customer_id,
			provider_price_id, status, current_period_start, current_period_end,
			cancel_at_period_end, canceled_at, trial_start, trial_end, metadata,
			created_at, updated_at`,
		sub.ID,
		sub.UserID,
		sub.Provider,
		sub.ProviderSubscriptionID,
		sub.ProviderCustomerID,
		sub.ProviderPriceID,
		sub.Status,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd,
		sub.CanceledAt,
		sub.TrialStart,
		sub.TrialEnd,
		sub.Metadata,
	)

	saved, err := scanSubscription(row)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to upsert subscription", err)
	}
	return saved, nil
}

// UpdateStatus transitions a record's status by local id. Used by the
// lifecycle service for lazy expiration demotion.
func (r *SubscriptionRepository) UpdateStatus(ctx context.Context, id string, status types.SubscriptionStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET status = $1,
		     updated_at = NOW()
		 WHERE id = $2`,
		status,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update subscription status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", nil)
	}
	return nil
}
