package billing

import (
	"context"
	"log/slog"
	"time"

	"subsync/internal/types"
)

// LifecycleService answers read-side questions about a user's subscription
// state. Expiry demotion happens lazily here, on read, rather than in a
// background sweep: a stale active record is demoted the first time anyone
// asks for it.
type LifecycleService struct {
	store  RecordStore
	logger *slog.Logger
	now    func() time.Time
}

// NewLifecycleService creates a LifecycleService reading from store.
func NewLifecycleService(store RecordStore, logger *slog.Logger) *LifecycleService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LifecycleService{store: store, logger: logger, now: time.Now}
}

// GetActiveSubscription returns the user's current active subscription, or
// nil when there is none. An active record whose period end has passed is
// demoted to canceled in storage before nil is returned.
func (s *LifecycleService) GetActiveSubscription(ctx context.Context, userID string) (*types.Subscription, error) {
	sub, err := s.store.FindActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, nil
	}

	if HasExpired(sub, s.now()) {
		if err := s.store.UpdateStatus(ctx, sub.ID, types.SubStatusCanceled); err != nil {
			return nil, err
		}
		s.logger.InfoContext(ctx, "demoted expired subscription",
			"subscription_id", sub.ID, "user_id", userID)
		return nil, nil
	}

	return sub, nil
}

// HasActiveSubscription reports whether the user currently holds an active,
// unexpired subscription.
func (s *LifecycleService) HasActiveSubscription(ctx context.Context, userID string) (bool, error) {
	sub, err := s.GetActiveSubscription(ctx, userID)
	if err != nil {
		return false, err
	}
	return sub != nil, nil
}

// ListSubscriptions returns every record for the user, most recently created
// first, with no status filtering.
func (s *LifecycleService) ListSubscriptions(ctx context.Context, userID string) ([]*types.Subscription, error) {
	return s.store.ListByUser(ctx, userID)
}

// IsInTrial reports whether the subscription is in an ongoing trial: status
// trialing with a trial end strictly in the future. A missing trial end means
// no trial.
func IsInTrial(sub *types.Subscription, now time.Time) bool {
	if sub.Status != types.SubStatusTrialing || sub.TrialEnd == nil {
		return false
	}
	return sub.TrialEnd.After(now)
}

// HasExpired reports whether the subscription's current period has already
// ended. A missing period end means no expiry.
func HasExpired(sub *types.Subscription, now time.Time) bool {
	if sub.CurrentPeriodEnd == nil {
		return false
	}
	return sub.CurrentPeriodEnd.Before(now)
}
