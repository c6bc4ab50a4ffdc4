package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiobook/internal/types"
)

func newTestStripeClient(baseURL string) *StripeClient {
	base := NewBaseClient(&http.Client{}, "stripe-test",
		RetryPolicy{MaxRetries: 0, MinWait: time.Millisecond, MaxWait: time.Millisecond},
		"Studiobook/test", WithSleepFunc(func(time.Duration) {}))
	return NewStripeClientWithBase(base, StripeClientConfig{
		SecretKey: "sk_test_123",
		BaseURL:   baseURL,
	})
}

func testPlan() *types.Plan {
	return &types.Plan{
		ID:             "plan_1",
		Name:           "Monthly 8",
		ClassAllowance: 8,
		ValidityDays:   30,
		PriceCents:     9900,
		Active:         true,
	}
}

func TestCreateCheckoutSession(t *testing.T) {
	var gotPath, gotAuth string
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_123","url":"https://checkout.stripe.com/c/pay/cs_123"}`))
	}))
	defer srv.Close()

	client := newTestStripeClient(srv.URL)
	checkoutURL, sessionID, err := client.CreateCheckoutSession(context.Background(),
		"stu_1", testPlan(), "https://studio.example/checkout/success", "https://studio.example/checkout/cancelled")
	require.NoError(t, err)

	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_123", checkoutURL)
	assert.Equal(t, "cs_123", sessionID)
	assert.Equal(t, "/v1/checkout/sessions", gotPath)
	assert.Equal(t, "Bearer sk_test_123", gotAuth)

	assert.Equal(t, "payment", gotForm.Get("mode"))
	assert.Equal(t, "stu_1", gotForm.Get("client_reference_id"))
	assert.Equal(t, "stu_1", gotForm.Get("metadata[student_id]"))
	assert.Equal(t, "plan_1", gotForm.Get("metadata[plan_id]"))
	assert.Equal(t, "9900", gotForm.Get("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, "Monthly 8", gotForm.Get("line_items[0][price_data][product_data][name]"))
	assert.Equal(t, "https://studio.example/checkout/success", gotForm.Get("success_url"))
	assert.Equal(t, "https://studio.example/checkout/cancelled", gotForm.Get("cancel_url"))
}

func TestCreateCheckoutSession_StripeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Invalid currency"}}`))
	}))
	defer srv.Close()

	client := newTestStripeClient(srv.URL)
	_, _, err := client.CreateCheckoutSession(context.Background(),
		"stu_1", testPlan(), "https://s/success", "https://s/cancel")
	require.Error(t, err)

	appErr, ok := err.(*types.AppError)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeUpstreamPayment, appErr.Code)
	assert.Equal(t, "Invalid currency", appErr.Details["stripe_message"])
}

func TestCreateCheckoutSession_UpstreamDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestStripeClient(srv.URL)
	_, _, err := client.CreateCheckoutSession(context.Background(),
		"stu_1", testPlan(), "https://s/success", "https://s/cancel")
	require.Error(t, err)

	appErr, ok := err.(*types.AppError)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeUpstreamPayment, appErr.Code)
}

func TestCreateCheckoutSession_RateLimitedKeepsCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := newTestStripeClient(srv.URL)
	_, _, err := client.CreateCheckoutSession(context.Background(),
		"stu_1", testPlan(), "https://s/success", "https://s/cancel")
	require.Error(t, err)

	appErr, ok := err.(*types.AppError)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeUpstreamRateLimited, appErr.Code)
}
