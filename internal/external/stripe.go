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
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"studiobook/internal/types"
)

// stripeAPIBase is the default Stripe API base URL. Overridable in tests via
// StripeClientConfig.BaseURL.
const stripeAPIBase = "https://api.stripe.com"

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey string
	BaseURL   string // override for testing; defaults to stripeAPIBase
	Logger    *slog.Logger
}

// StripeClient makes direct HTTP calls to the Stripe REST API through
// BaseClient, so every request inherits the platform's circuit breaker,
// retries, and error mapping, and tests can point it at an httptest server.
type StripeClient struct {
	base      *BaseClient
	secretKey string
	baseURL   string
	logger    *slog.Logger
}

// NewStripeClient creates a new StripeClient.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig) *StripeClient {
	base := NewBaseClient(
		httpClient,
		"stripe",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"Studiobook/1.0",
	)
	return NewStripeClientWithBase(base, cfg)
}

// NewStripeClientWithBase creates a StripeClient over a pre-configured
// BaseClient. Useful in tests to control retry and breaker behavior.
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
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// stripeCheckoutSession is the subset of the checkout session response the
// platform needs.
type stripeCheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreateCheckoutSession generates a Stripe Checkout Session for a student
// purchasing a plan. The session carries student_id and plan_id in metadata
// and client_reference_id so the webhook can correlate the payment back to a
// subscription purchase. The plan's price is sent as inline price_data; plans
// are priced by the studio, not pre-registered in Stripe.
func (s *StripeClient) CreateCheckoutSession(ctx context.Context, studentID string, plan *types.Plan, successURL, cancelURL string) (checkoutURL string, sessionID string, err error) {
	params := url.Values{}
	params.Set("mode", "payment")
	params.Set("client_reference_id", studentID)
	params.Set("success_url", successURL)
	params.Set("cancel_url", cancelURL)
	params.Set("metadata[student_id]", studentID)
	params.Set("metadata[plan_id]", plan.ID)
	params.Set("line_items[0][quantity]", "1")
	params.Set("line_items[0][price_data][currency]", "usd")
	params.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(plan.PriceCents, 10))
	params.Set("line_items[0][price_data][product_data][name]", plan.Name)

	resp, err := s.doPost(ctx, "/v1/checkout/sessions", params)
	if err != nil {
		return "", "", s.wrapStripeError("CreateCheckoutSession", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", s.handleErrorResponse(resp, "CreateCheckoutSession")
	}

	var session stripeCheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", "", types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to decode Stripe checkout session response", err)
	}
	return session.URL, session.ID, nil
}

func (s *StripeClient) doPost(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	return s.base.Do(req)
}

// handleErrorResponse drains a non-200 Stripe response into a payment
// upstream error with the Stripe error message attached.
func (s *StripeClient) handleErrorResponse(resp *http.Response, op string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var stripeErr struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &stripeErr)

	s.logger.Error("stripe API error",
		slog.String("op", op),
		slog.Int("status", resp.StatusCode),
		slog.String("stripe_error_type", stripeErr.Error.Type),
	)
	return types.NewAppErrorWithDetails(types.ErrCodeUpstreamPayment,
		fmt.Sprintf("stripe %s failed with status %d", op, resp.StatusCode), nil,
		map[string]any{"stripe_message": stripeErr.Error.Message})
}

// wrapStripeError converts BaseClient transport errors into the
// payment-specific upstream code, preserving rate-limit classification.
func (s *StripeClient) wrapStripeError(op string, err error) error {
	if appErr, ok := err.(*types.AppError); ok {
		if appErr.Code == types.ErrCodeUpstreamRateLimited {
			return appErr
		}
		return types.NewAppError(types.ErrCodeUpstreamPayment,
			fmt.Sprintf("stripe %s unavailable", op), appErr)
	}
	return types.NewAppError(types.ErrCodeUpstreamPayment,
		fmt.Sprintf("stripe %s failed", op), err)
}

// Stripe webhook event types this service consumes.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
)

// StripeVerifier validates Stripe webhook signatures using stripe-go, which
// checks both the HMAC-SHA256 signature and the timestamp tolerance.
type StripeVerifier struct{}

// Verify validates a Stripe webhook payload against the Stripe-Signature
// header and the signing secret.
func (v *StripeVerifier) Verify(payload []byte, header string, secret string) error {
	return stripe.ValidatePayload(payload, header, secret)
}
