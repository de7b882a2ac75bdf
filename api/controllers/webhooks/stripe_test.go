package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	stripewebhook "github.com/qrseal/qrseal-backend/internal/webhooks/stripe"
	"github.com/qrseal/qrseal-backend/pkg/redis"
)

const testSecret = "whsec_test"

type recordingService struct {
	mu    sync.Mutex
	seen  []stripe.EventType
	fails error
}

func (s *recordingService) HandleEvent(_ context.Context, event *stripe.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, event.Type)
	return s.fails
}

func (s *recordingService) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

type secret string

func (s secret) SigningSecret() string { return string(s) }

type mapStore struct {
	mu   sync.Mutex
	vals map[string]string
}

func (m *mapStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vals[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *mapStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vals[key]; ok {
		return false, nil
	}
	m.vals[key] = "1"
	return true, nil
}

func (m *mapStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.vals, k)
	}
	return nil
}

func (m *mapStore) IdempotencyKey(scope, id string) string { return scope + ":" + id }

func newGuard(t *testing.T) *stripewebhook.EventGuard {
	t.Helper()
	guard, err := stripewebhook.NewEventGuard(&mapStore{vals: map[string]string{}}, time.Minute, "stripe-webhook")
	require.NoError(t, err)
	return guard
}

// checkoutCompleted returns a signed checkout.session.completed delivery.
func checkoutCompleted(t *testing.T) ([]byte, string) {
	t.Helper()
	session, err := json.Marshal(stripe.CheckoutSession{
		ID:                "cs_test_" + uuid.NewString(),
		ClientReferenceID: "MO-" + uuid.NewString(),
		Status:            stripe.CheckoutSessionStatusComplete,
		PaymentStatus:     stripe.CheckoutSessionPaymentStatusPaid,
	})
	require.NoError(t, err)
	payload, err := json.Marshal(stripe.Event{
		ID:         "evt_" + uuid.NewString(),
		Object:     "event",
		Type:       stripe.EventTypeCheckoutSessionCompleted,
		APIVersion: stripe.APIVersion,
		Data:       &stripe.EventData{Raw: session},
	})
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return payload, signed.Header
}

func deliver(h http.Handler, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func received(t *testing.T, rec *httptest.ResponseRecorder) bool {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var env struct {
		Data webhookAck `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Data.Received
}

func TestStripeWebhook_RejectsWithoutProcessing(t *testing.T) {
	payload, header := checkoutCompleted(t)
	cases := []struct {
		name      string
		secret    string
		signature string
	}{
		{name: "missing signature", secret: testSecret},
		{name: "forged signature", secret: testSecret, signature: "t=1,v1=deadbeef"},
		{name: "wrong secret", secret: "whsec_other", signature: header},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &recordingService{}
			h := StripeWebhook(svc, secret(tc.secret), newGuard(t), nil)

			assert.False(t, received(t, deliver(h, payload, tc.signature)))
			assert.Zero(t, svc.calls())
		})
	}
}

func TestStripeWebhook_DuplicateDeliverySkipped(t *testing.T) {
	payload, header := checkoutCompleted(t)
	svc := &recordingService{}
	h := StripeWebhook(svc, secret(testSecret), newGuard(t), nil)

	assert.True(t, received(t, deliver(h, payload, header)))
	assert.True(t, received(t, deliver(h, payload, header)))
	assert.Equal(t, []stripe.EventType{stripe.EventTypeCheckoutSessionCompleted}, svc.seen)
}

func TestStripeWebhook_FailureReleasesGuard(t *testing.T) {
	payload, header := checkoutCompleted(t)
	svc := &recordingService{fails: errors.New("db unavailable")}
	h := StripeWebhook(svc, secret(testSecret), newGuard(t), nil)

	for i := 0; i < 2; i++ {
		assert.True(t, received(t, deliver(h, payload, header)))
	}
	assert.Equal(t, 2, svc.calls())
}

func TestStripeWebhook_WithoutGuard(t *testing.T) {
	payload, header := checkoutCompleted(t)
	svc := &recordingService{}
	h := StripeWebhook(svc, secret(testSecret), nil, nil)

	deliver(h, payload, header)
	deliver(h, payload, header)
	assert.Equal(t, 2, svc.calls())
}

func TestStripeWebhook_Unconfigured(t *testing.T) {
	payload, header := checkoutCompleted(t)
	assert.False(t, received(t, deliver(StripeWebhook(nil, secret(testSecret), nil, nil), payload, header)))
}
