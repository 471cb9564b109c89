package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"subsync/internal/types"
)

// stripeAPIBase is the default Stripe API base URL.
// Overridable in tests via StripeClientConfig.BaseURL.
const stripeAPIBase = "https://api.stripe.com"

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey     types.SecretString
	WebhookSecret types.SecretString
	BaseURL       string // Override for testing; defaults to stripeAPIBase
	MaxRetries    int    // Retries on 429/5xx; 0 uses the default policy
	Logger        *slog.Logger
}

// StripeClient is the Provider Client: it verifies and parses inbound webhook
// payloads, and issues subscription fetch/update commands against the Stripe
// REST API through BaseClient so all requests share the platform's resilience
// behavior (circuit breaker, retries, error mapping).
type StripeClient struct {
	base          *BaseClient
	secretKey     types.SecretString
	webhookSecret types.SecretString
	baseURL       string
	logger        *slog.Logger
}

// NewStripeClient creates a new StripeClient. The httpClient timeout is owned
// by the caller; 20 seconds is the configured default.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig) *StripeClient {
	policy := DefaultRetryPolicy()
	if cfg.MaxRetries > 0 {
		policy.MaxRetries = cfg.MaxRetries
	}
	base := NewBaseClient(
		httpClient,
		"stripe",
		policy,
		"subsync/1.0",
	)
	return NewStripeClientWithBase(base, cfg)
}

// NewStripeClientWithBase creates a StripeClient with a pre-configured
// BaseClient. This is useful for testing when you want to control the
// BaseClient configuration (retry counts, sleep function).
func NewStripeClientWithBase(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &StripeClient{
		base:          base,
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		logger:        logger,
	}
}

// ---------------------------------------------------------------------------
// Webhook Verification and Parsing
// ---------------------------------------------------------------------------

// VerifyAndParseEvent validates a webhook payload against the Stripe-Signature
// header and the signing secret, then parses it into a typed ProviderEvent.
// Signature checking uses stripe-go's HMAC-SHA256 validation with timestamp
// tolerance. Returns an auth error on a bad signature and a validation error
// on malformed JSON; event types the engine does not act on parse into an
// event with neither Subscription nor Checkout set.
func (s *StripeClient) VerifyAndParseEvent(payload []byte, sigHeader string) (*types.ProviderEvent, error) {
	if sigHeader == "" {
		return nil, types.NewAppError(
			types.ErrCodeAuthSignatureMissing,
			"missing webhook signature header",
			nil,
		)
	}

	if err := webhook.ValidatePayload(payload, sigHeader, s.webhookSecret.Unmask()); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeAuthSignatureInvalid,
			"webhook signature verification failed",
			err,
		)
	}

	var envelope stripeEventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidPayload,
			"invalid webhook event JSON",
			err,
		)
	}

	event := &types.ProviderEvent{
		ID:      envelope.ID,
		Type:    envelope.Type,
		Created: envelope.Created,
	}

	switch envelope.Type {
	case types.EventSubCreated, types.EventSubUpdated, types.EventSubDeleted:
		var obj stripeSubscriptionObj
		if err := json.Unmarshal(envelope.Data.Object, &obj); err != nil {
			return nil, types.NewAppError(
				types.ErrCodeValidationInvalidPayload,
				"invalid subscription object in webhook event",
				err,
			)
		}
		event.Subscription = obj.toSnapshot()

	case types.EventCheckoutCompleted:
		var obj stripeCheckoutSessionObj
		if err := json.Unmarshal(envelope.Data.Object, &obj); err != nil {
			return nil, types.NewAppError(
				types.ErrCodeValidationInvalidPayload,
				"invalid checkout session object in webhook event",
				err,
			)
		}
		event.Checkout = &types.CheckoutSession{
			Mode:           obj.Mode,
			SubscriptionID: obj.Subscription,
		}
	}

	return event, nil
}

// ---------------------------------------------------------------------------
// Subscription Commands
// ---------------------------------------------------------------------------

// FetchSubscription retrieves the provider's current representation of one
// subscription. Used by the reconciliation engine when a checkout completion
// references a subscription the event payload does not embed.
func (s *StripeClient) FetchSubscription(ctx context.Context, providerSubscriptionID string) (*types.SubscriptionSnapshot, error) {
	resp, err := s.doGet(ctx, "/v1/subscriptions/"+url.PathEscape(providerSubscriptionID))
	if err != nil {
		return nil, s.wrapStripeError("FetchSubscription", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "FetchSubscription")
	}

	var obj stripeSubscriptionObj
	if err := json.NewDecoder(resp.Body).Decode(&obj); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe subscription response",
			err,
		)
	}

	return obj.toSnapshot(), nil
}

// UpdateSubscription sets or clears "cancel at period end" on the provider
// side and returns the resulting subscription snapshot. This is the only
// mutation the command orchestrator performs against the provider.
func (s *StripeClient) UpdateSubscription(
	ctx context.Context,
	providerSubscriptionID string,
	cancelAtPeriodEnd bool,
) (*types.SubscriptionSnapshot, error) {
	params := url.Values{}
	params.Set("cancel_at_period_end", strconv.FormatBool(cancelAtPeriodEnd))

	resp, err := s.doPost(ctx, "/v1/subscriptions/"+url.PathEscape(providerSubscriptionID), params)
	if err != nil {
		return nil, s.wrapStripeError("UpdateSubscription", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "UpdateSubscription")
	}

	var obj stripeSubscriptionObj
	if err := json.NewDecoder(resp.Body).Decode(&obj); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe subscription update response",
			err,
		)
	}

	return obj.toSnapshot(), nil
}

// ---------------------------------------------------------------------------
// HTTP Helpers
// ---------------------------------------------------------------------------

// doGet performs an authenticated GET request to the Stripe API.
func (s *StripeClient) doGet(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

// doPost performs an authenticated POST request to the Stripe API with a
// form-encoded body.
func (s *StripeClient) doPost(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

// setAuthHeaders sets the Stripe API authentication and version headers.
func (s *StripeClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.secretKey.Unmask())
	req.Header.Set("Stripe-Version", stripe.APIVersion)
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

// stripeErrorResponse represents the JSON error body returned by the Stripe API.
type stripeErrorResponse struct {
	Error stripeErrorBody `json:"error"`
}

type stripeErrorBody struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// handleErrorResponse reads a Stripe error response and maps it to a types.AppError.
func (s *StripeClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var stripeErr stripeErrorResponse
	if jsonErr := json.Unmarshal(body, &stripeErr); jsonErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d with non-JSON body", operation, resp.StatusCode),
			jsonErr,
		)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("%s: Stripe rate limit exceeded", operation),
			nil,
		)
	case resp.StatusCode >= 500:
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s: Stripe server error: %s", operation, stripeErr.Error.Message),
			nil,
		)
	case resp.StatusCode == http.StatusNotFound:
		return types.NewAppError(
			types.ErrCodeNotFoundSubscription,
			fmt.Sprintf("%s: Stripe resource not found: %s", operation, stripeErr.Error.Message),
			nil,
		)
	default:
		return types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe error (%d): %s", operation, resp.StatusCode, stripeErr.Error.Message),
			nil,
			map[string]any{"stripe_code": stripeErr.Error.Code},
		)
	}
}

// wrapStripeError wraps a BaseClient transport error with operation context.
func (s *StripeClient) wrapStripeError(operation string, err error) error {
	// BaseClient errors (circuit breaker, retries exhausted) already carry
	// the right upstream code.
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: Stripe request failed: %v", operation, err),
		err,
	)
}

// ---------------------------------------------------------------------------
// Wire Types (for JSON deserialization)
// ---------------------------------------------------------------------------

// stripeEventEnvelope is a minimal representation of a Stripe webhook event
// tailored to extract the fields the engine dispatches on.
type stripeEventEnvelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

// stripeSubscriptionObj represents the subscription object embedded in
// customer.subscription.* events and returned by fetch/update calls.
// Timestamp fields are pointers so a provider-side null survives as nil
// instead of collapsing to zero.
type stripeSubscriptionObj struct {
	ID                 string            `json:"id"`
	Customer           string            `json:"customer"`
	Status             string            `json:"status"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CurrentPeriodStart *int64            `json:"current_period_start"`
	CurrentPeriodEnd   *int64            `json:"current_period_end"`
	CancelAt           *int64            `json:"cancel_at"`
	CanceledAt         *int64            `json:"canceled_at"`
	TrialStart         *int64            `json:"trial_start"`
	TrialEnd           *int64            `json:"trial_end"`
	Metadata           map[string]string `json:"metadata"`
	Items              stripeSubItems    `json:"items"`
}

type stripeSubItems struct {
	Data []stripeSubItem `json:"data"`
}

type stripeSubItem struct {
	Price stripeSubPrice `json:"price"`
}

type stripeSubPrice struct {
	ID string `json:"id"`
}

// stripeCheckoutSessionObj represents the minimal fields from a
// checkout.session.completed event's data object.
type stripeCheckoutSessionObj struct {
	Mode         string `json:"mode"`
	Subscription string `json:"subscription"`
}

// toSnapshot converts the wire representation into the domain snapshot.
// The price ID is taken from the first line item; empty when there are none.
func (o *stripeSubscriptionObj) toSnapshot() *types.SubscriptionSnapshot {
	snap := &types.SubscriptionSnapshot{
		ID:                 o.ID,
		CustomerID:         o.Customer,
		Status:             o.Status,
		CancelAtPeriodEnd:  o.CancelAtPeriodEnd,
		CurrentPeriodStart: o.CurrentPeriodStart,
		CurrentPeriodEnd:   o.CurrentPeriodEnd,
		CancelAt:           o.CancelAt,
		CanceledAt:         o.CanceledAt,
		TrialStart:         o.TrialStart,
		TrialEnd:           o.TrialEnd,
		Metadata:           o.Metadata,
	}
	if len(o.Items.Data) > 0 {
		snap.PriceID = o.Items.Data[0].Price.ID
	}
	return snap
}
