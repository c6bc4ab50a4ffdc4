package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"studiobook/internal/types"
)

type mockVerifier struct {
	err error
}

func (m *mockVerifier) Verify(payload []byte, header string, secret string) error {
	return m.err
}

type mockFulfiller struct {
	processFn func(ctx context.Context, studentID, planID string) (*types.Subscription, error)

	lastStudentID string
	lastPlanID    string
	calls         int
}

func (m *mockFulfiller) ProcessPaymentSubscription(ctx context.Context, studentID, planID string) (*types.Subscription, error) {
	m.calls++
	m.lastStudentID = studentID
	m.lastPlanID = planID
	if m.processFn != nil {
		return m.processFn(ctx, studentID, planID)
	}
	return &types.Subscription{ID: "sub_1", StudentID: studentID, PlanID: planID}, nil
}

func newWebhookRequest(body string, signed bool) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/v1/webhooks/stripe", strings.NewReader(body))
	if signed {
		r.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	}
	return r
}

const checkoutCompletedBody = `{
	"id": "evt_1",
	"type": "checkout.session.completed",
	"data": {
		"object": {
			"id": "cs_123",
			"client_reference_id": "stu_1",
			"metadata": {"student_id": "stu_1", "plan_id": "plan_1"},
			"payment_status": "paid"
		}
	}
}`

func TestWebhook_CheckoutCompleted(t *testing.T) {
	fulfiller := &mockFulfiller{}
	h := NewStripeWebhookHandler(&mockVerifier{}, fulfiller, "whsec_test", nil)

	w := httptest.NewRecorder()
	h.Handle(w, newWebhookRequest(checkoutCompletedBody, true))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, fulfiller.calls)
	assert.Equal(t, "stu_1", fulfiller.lastStudentID)
	assert.Equal(t, "plan_1", fulfiller.lastPlanID)
}

func TestWebhook_MissingSignature(t *testing.T) {
	fulfiller := &mockFulfiller{}
	h := NewStripeWebhookHandler(&mockVerifier{}, fulfiller, "whsec_test", nil)

	w := httptest.NewRecorder()
	h.Handle(w, newWebhookRequest(checkoutCompletedBody, false))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, fulfiller.calls)
	assert.Contains(t, w.Body.String(), string(types.ErrCodeWebhookSignatureMissing))
}

func TestWebhook_InvalidSignature(t *testing.T) {
	fulfiller := &mockFulfiller{}
	h := NewStripeWebhookHandler(&mockVerifier{err: errors.New("signature mismatch")}, fulfiller, "whsec_test", nil)

	w := httptest.NewRecorder()
	h.Handle(w, newWebhookRequest(checkoutCompletedBody, true))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, fulfiller.calls)
	assert.Contains(t, w.Body.String(), string(types.ErrCodeWebhookSignatureInvalid))
}

func TestWebhook_ProcessingFailureStillAcks(t *testing.T) {
	fulfiller := &mockFulfiller{
		processFn: func(ctx context.Context, studentID, planID string) (*types.Subscription, error) {
			return nil, types.NewAppError(types.ErrCodeConflictPlanInactive, "plan is not available for purchase", nil)
		},
	}
	h := NewStripeWebhookHandler(&mockVerifier{}, fulfiller, "whsec_test", nil)

	w := httptest.NewRecorder()
	h.Handle(w, newWebhookRequest(checkoutCompletedBody, true))

	assert.Equal(t, http.StatusOK, w.Code, "Stripe must not retry a fulfillment failure forever")
	assert.Equal(t, 1, fulfiller.calls)
}

func TestWebhook_FallsBackToClientReferenceID(t *testing.T) {
	body := `{
		"id": "evt_2",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_456",
				"client_reference_id": "stu_9",
				"metadata": {"plan_id": "plan_2"}
			}
		}
	}`
	fulfiller := &mockFulfiller{}
	h := NewStripeWebhookHandler(&mockVerifier{}, fulfiller, "whsec_test", nil)

	w := httptest.NewRecorder()
	h.Handle(w, newWebhookRequest(body, true))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stu_9", fulfiller.lastStudentID)
	assert.Equal(t, "plan_2", fulfiller.lastPlanID)
}

func TestWebhook_UnhandledEventTypeIgnored(t *testing.T) {
	body := `{"id":"evt_3","type":"invoice.paid","data":{"object":{}}}`
	fulfiller := &mockFulfiller{}
	h := NewStripeWebhookHandler(&mockVerifier{}, fulfiller, "whsec_test", nil)

	w := httptest.NewRecorder()
	h.Handle(w, newWebhookRequest(body, true))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, fulfiller.calls)
}

func TestWebhook_CheckoutExpiredIgnored(t *testing.T) {
	body := `{"id":"evt_4","type":"checkout.session.expired","data":{"object":{"id":"cs_789"}}}`
	fulfiller := &mockFulfiller{}
	h := NewStripeWebhookHandler(&mockVerifier{}, fulfiller, "whsec_test", nil)

	w := httptest.NewRecorder()
	h.Handle(w, newWebhookRequest(body, true))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, fulfiller.calls)
}

func TestWebhook_MalformedJSON(t *testing.T) {
	h := NewStripeWebhookHandler(&mockVerifier{}, &mockFulfiller{}, "whsec_test", nil)

	w := httptest.NewRecorder()
	h.Handle(w, newWebhookRequest(`{"id":`, true))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook_RoutesViaRouter(t *testing.T) {
	fulfiller := &mockFulfiller{}
	h := NewStripeWebhookHandler(&mockVerifier{}, fulfiller, "whsec_test", nil)

	router := newTestRouter(h.RegisterRoutes)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, newWebhookRequest(checkoutCompletedBody, true))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, fulfiller.calls)
}
