package registry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrseal/qrseal-backend/pkg/config"
	"github.com/qrseal/qrseal-backend/pkg/db/models"
	"github.com/qrseal/qrseal-backend/pkg/enums"
	"github.com/qrseal/qrseal-backend/pkg/outbox"
	"github.com/qrseal/qrseal-backend/pkg/outbox/payloads"
)

const topic = "notifications"

func newRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{NotificationTopic: topic})
	require.NoError(t, err)
	return reg
}

func jsonOf(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

// sealed wraps data in an envelope of the given version.
func sealed(t *testing.T, version int, data any) []byte {
	t.Helper()
	return jsonOf(t, outbox.PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       jsonOf(t, data),
	})
}

func TestResolveDecodesPayload(t *testing.T) {
	orderID := uuid.New()
	resolved, err := newRegistry(t).Resolve(models.OutboxEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload: sealed(t, 1, payloads.OrderStatusChangedEvent{
			OrderID:        orderID,
			PreviousStatus: enums.OrderStatusPendingAuthorization,
			Status:         enums.OrderStatusAuthorized,
		}),
	})
	require.NoError(t, err)

	assert.Equal(t, topic, resolved.Descriptor.Topic)
	assert.NotEmpty(t, resolved.Envelope.EventID)
	payload, ok := resolved.Payload.(*payloads.OrderStatusChangedEvent)
	require.True(t, ok, "payload is %T", resolved.Payload)
	assert.Equal(t, orderID, payload.OrderID)
	assert.Equal(t, enums.OrderStatusAuthorized, payload.Status)
}

func TestResolveRejectsPermanently(t *testing.T) {
	company := uuid.New()
	cases := map[string]models.OutboxEvent{
		"aggregate mismatch": {
			EventType: enums.EventPaymentCompleted, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(),
			Payload: sealed(t, 1, payloads.PaymentCompletedEvent{}),
		},
		"null data": {
			EventType: enums.EventCreditsLow, AggregateType: enums.AggregateCompany, AggregateID: company,
			Payload: sealed(t, 1, nil),
		},
		"future envelope": {
			EventType: enums.EventCreditsLow, AggregateType: enums.AggregateCompany, AggregateID: company,
			Payload: sealed(t, maxEnvelopeVersion+1, payloads.CreditsLowEvent{}),
		},
		"unknown type": {
			EventType: "qr_printed", AggregateType: enums.AggregateOrder, AggregateID: uuid.New(),
			Payload: sealed(t, 1, map[string]any{}),
		},
		"missing aggregate id": {
			EventType: enums.EventCreditsLow, AggregateType: enums.AggregateCompany,
			Payload: sealed(t, 1, payloads.CreditsLowEvent{}),
		},
		"not json": {
			EventType: enums.EventCreditsLow, AggregateType: enums.AggregateCompany, AggregateID: company,
			Payload: []byte("{"),
		},
	}
	reg := newRegistry(t)
	for name, row := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(row)
			var permanentErr NonRetryableError
			assert.ErrorAs(t, err, &permanentErr)
		})
	}
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{})
	assert.Error(t, err)
}
