package billing

import (
	"context"
	"errors"
	"sort"
	"time"

	"subsync/internal/types"
)

// ---------------------------------------------------------------------------
// Mock Implementations
// ---------------------------------------------------------------------------

// mockStore is an in-memory RecordStore keyed the way the real repository is,
// with per-method error injection and call recording.
type mockStore struct {
	records map[string]*types.Subscription // keyed by local ID

	findByProviderErr error
	findByIDErr       error
	findRecentErr     error
	findActiveErr     error
	listErr           error
	upsertErr         error
	updateStatusErr   error

	upsertCalls       []*types.Subscription
	updateStatusCalls []updateStatusCall
}

type updateStatusCall struct {
	ID     string
	Status types.SubscriptionStatus
}

func newMockStore(seed ...*types.Subscription) *mockStore {
	m := &mockStore{records: make(map[string]*types.Subscription)}
	for _, sub := range seed {
		cp := *sub
		m.records[sub.ID] = &cp
	}
	return m
}

func (m *mockStore) FindByProviderID(ctx context.Context, provider types.SubscriptionProvider, providerSubID string) (*types.Subscription, error) {
	if m.findByProviderErr != nil {
		return nil, m.findByProviderErr
	}
	for _, sub := range m.records {
		if sub.Provider == provider && sub.ProviderSubscriptionID == providerSubID {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockStore) FindByID(ctx context.Context, id string) (*types.Subscription, error) {
	if m.findByIDErr != nil {
		return nil, m.findByIDErr
	}
	sub, ok := m.records[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", nil)
	}
	cp := *sub
	return &cp, nil
}

func (m *mockStore) FindMostRecentByCustomerID(ctx context.Context, provider types.SubscriptionProvider, customerID string) (*types.Subscription, error) {
	if m.findRecentErr != nil {
		return nil, m.findRecentErr
	}
	var best *types.Subscription
	for _, sub := range m.records {
		if sub.Provider != provider || sub.ProviderCustomerID == nil || *sub.ProviderCustomerID != customerID {
			continue
		}
		if best == nil || sub.CreatedAt.After(best.CreatedAt) {
			best = sub
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (m *mockStore) FindActiveByUser(ctx context.Context, userID string) (*types.Subscription, error) {
	if m.findActiveErr != nil {
		return nil, m.findActiveErr
	}
	var best *types.Subscription
	for _, sub := range m.records {
		if sub.UserID != userID || sub.Status != types.SubStatusActive {
			continue
		}
		if best == nil || sub.CreatedAt.After(best.CreatedAt) {
			best = sub
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (m *mockStore) ListByUser(ctx context.Context, userID string) ([]*types.Subscription, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*types.Subscription
	for _, sub := range m.records {
		if sub.UserID == userID {
			cp := *sub
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockStore) Upsert(ctx context.Context, sub *types.Subscription) (*types.Subscription, error) {
	cp := *sub
	m.upsertCalls = append(m.upsertCalls, &cp)
	if m.upsertErr != nil {
		return nil, m.upsertErr
	}
	stored := cp
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	stored.UpdatedAt = time.Now().UTC()
	m.records[stored.ID] = &stored
	ret := stored
	return &ret, nil
}

func (m *mockStore) UpdateStatus(ctx context.Context, id string, status types.SubscriptionStatus) error {
	m.updateStatusCalls = append(m.updateStatusCalls, updateStatusCall{ID: id, Status: status})
	if m.updateStatusErr != nil {
		return m.updateStatusErr
	}
	sub, ok := m.records[id]
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", nil)
	}
	sub.Status = status
	return nil
}

// mockProvider implements ProviderClient with canned responses.
type mockProvider struct {
	fetchSnap  *types.SubscriptionSnapshot
	fetchErr   error
	updateSnap *types.SubscriptionSnapshot
	updateErr  error

	fetchCalls  []string
	updateCalls []providerUpdateCall
}

type providerUpdateCall struct {
	ProviderSubID     string
	CancelAtPeriodEnd bool
}

func (m *mockProvider) FetchSubscription(ctx context.Context, providerSubID string) (*types.SubscriptionSnapshot, error) {
	m.fetchCalls = append(m.fetchCalls, providerSubID)
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	if m.fetchSnap == nil {
		return nil, errors.New("no canned fetch snapshot")
	}
	return m.fetchSnap, nil
}

func (m *mockProvider) UpdateSubscription(ctx context.Context, providerSubID string, cancelAtPeriodEnd bool) (*types.SubscriptionSnapshot, error) {
	m.updateCalls = append(m.updateCalls, providerUpdateCall{ProviderSubID: providerSubID, CancelAtPeriodEnd: cancelAtPeriodEnd})
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	if m.updateSnap == nil {
		return nil, errors.New("no canned update snapshot")
	}
	return m.updateSnap, nil
}

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

func int64Ptr(v int64) *int64 { return &v }

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

// testSnapshot builds a representative snapshot for sub_123 owned via
// metadata by user-1.
func testSnapshot() *types.SubscriptionSnapshot {
	return &types.SubscriptionSnapshot{
		ID:                 "sub_123",
		CustomerID:         "cus_123",
		Status:             "active",
		PriceID:            "price_123",
		CancelAtPeriodEnd:  false,
		CurrentPeriodStart: int64Ptr(1700000000),
		CurrentPeriodEnd:   int64Ptr(1702592000),
		Metadata:           map[string]string{"userId": "user-1"},
	}
}

func newTestEngine(store *mockStore, provider *mockProvider) *Engine {
	return NewEngine(store, provider, NewIdentityResolver(store, nil), nil)
}
