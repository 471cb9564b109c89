package billing

import (
	"context"
	"testing"
	"time"

	"subsync/internal/types"
)

func newTestLifecycle(store *mockStore, now time.Time) *LifecycleService {
	svc := NewLifecycleService(store, nil)
	svc.now = func() time.Time { return now }
	return svc
}

func activeSub(id, userID string, periodEnd *time.Time) *types.Subscription {
	return &types.Subscription{
		ID:                     id,
		UserID:                 userID,
		Provider:               types.ProviderStripe,
		ProviderSubscriptionID: "sub_" + id,
		Status:                 types.SubStatusActive,
		CurrentPeriodEnd:       periodEnd,
		CreatedAt:              time.Now().UTC(),
	}
}

func TestLifecycle_GetActive_ReturnsUnexpired(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	store := newMockStore(activeSub("local-1", "user-1", timePtr(now.Add(720*time.Hour))))
	svc := newTestLifecycle(store, now)

	sub, err := svc.GetActiveSubscription(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub == nil || sub.ID != "local-1" {
		t.Fatalf("expected local-1 returned, got %+v", sub)
	}
	if len(store.updateStatusCalls) != 0 {
		t.Errorf("expected no status write for unexpired record, got %v", store.updateStatusCalls)
	}
}

func TestLifecycle_GetActive_NullPeriodEndNeverExpires(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	store := newMockStore(activeSub("local-1", "user-1", nil))
	svc := newTestLifecycle(store, now)

	sub, err := svc.GetActiveSubscription(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub == nil {
		t.Fatal("expected record with null period end to be returned")
	}
	if len(store.updateStatusCalls) != 0 {
		t.Errorf("expected no status write, got %v", store.updateStatusCalls)
	}
}

func TestLifecycle_GetActive_DemotesExpired(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	store := newMockStore(activeSub("local-1", "user-1", timePtr(now.Add(-time.Hour))))
	svc := newTestLifecycle(store, now)

	sub, err := svc.GetActiveSubscription(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub != nil {
		t.Errorf("expected none for expired record, got %+v", sub)
	}
	if len(store.updateStatusCalls) != 1 {
		t.Fatalf("expected one status write, got %d", len(store.updateStatusCalls))
	}
	call := store.updateStatusCalls[0]
	if call.ID != "local-1" || call.Status != types.SubStatusCanceled {
		t.Errorf("expected local-1 demoted to canceled, got %+v", call)
	}
	if store.records["local-1"].Status != types.SubStatusCanceled {
		t.Errorf("expected stored status canceled, got %q", store.records["local-1"].Status)
	}
}

func TestLifecycle_GetActive_NoRecord(t *testing.T) {
	svc := newTestLifecycle(newMockStore(), time.Now())

	sub, err := svc.GetActiveSubscription(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub != nil {
		t.Errorf("expected nil, got %+v", sub)
	}
}

func TestLifecycle_HasActive(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	store := newMockStore(activeSub("local-1", "user-1", timePtr(now.Add(time.Hour))))
	svc := newTestLifecycle(store, now)

	has, err := svc.HasActiveSubscription(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !has {
		t.Error("expected true for user with active subscription")
	}

	has, err = svc.HasActiveSubscription(context.Background(), "user-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if has {
		t.Error("expected false for user without subscriptions")
	}
}

func TestLifecycle_ListSubscriptions_MostRecentFirst(t *testing.T) {
	older := activeSub("local-1", "user-1", nil)
	older.CreatedAt = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	newer := activeSub("local-2", "user-1", nil)
	newer.CreatedAt = time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	store := newMockStore(older, newer)
	svc := newTestLifecycle(store, time.Now())

	subs, err := svc.ListSubscriptions(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected two records, got %d", len(subs))
	}
	if subs[0].ID != "local-2" || subs[1].ID != "local-1" {
		t.Errorf("expected most recent first, got %q then %q", subs[0].ID, subs[1].ID)
	}
}

func TestIsInTrial(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name     string
		status   types.SubscriptionStatus
		trialEnd *time.Time
		want     bool
	}{
		{"trialing with future end", types.SubStatusTrialing, timePtr(now.Add(time.Hour)), true},
		{"trialing with past end", types.SubStatusTrialing, timePtr(now.Add(-time.Hour)), false},
		{"trialing with nil end", types.SubStatusTrialing, nil, false},
		{"trialing with end exactly now", types.SubStatusTrialing, timePtr(now), false},
		{"active with future end", types.SubStatusActive, timePtr(now.Add(time.Hour)), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub := &types.Subscription{Status: tc.status, TrialEnd: tc.trialEnd}
			if got := IsInTrial(sub, now); got != tc.want {
				t.Errorf("IsInTrial = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestHasExpired(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name      string
		periodEnd *time.Time
		want      bool
	}{
		{"past end", timePtr(now.Add(-time.Minute)), true},
		{"future end", timePtr(now.Add(time.Minute)), false},
		{"nil end", nil, false},
		{"end exactly now", timePtr(now), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub := &types.Subscription{CurrentPeriodEnd: tc.periodEnd}
			if got := HasExpired(sub, now); got != tc.want {
				t.Errorf("HasExpired = %v, want %v", got, tc.want)
			}
		})
	}
}
