package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainMetricsRegisterAndExport(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg), "second registration is ignored")

	ObservePaymentReconcile("webhook", OutcomeSuccess)
	ObserveCreditSpend(OutcomeRejected)
	ObserveOutboxPublish("", OutcomeRetry)
	AddQRCodesMinted(0)
	AddQRCodesMinted(3)

	reconciles := sample(t, family(t, reg, "qrseal_payment_reconcile_total"), map[string]string{"channel": "webhook", "outcome": OutcomeSuccess})
	assert.GreaterOrEqual(t, reconciles.GetCounter().GetValue(), 1.0)

	sample(t, family(t, reg, "qrseal_credit_spend_total"), map[string]string{"outcome": OutcomeRejected})
	sample(t, family(t, reg, "qrseal_outbox_publish_total"), map[string]string{"event_type": "unknown", "outcome": OutcomeRetry})

	minted := family(t, reg, "qrseal_qr_codes_minted_total").GetMetric()
	require.Len(t, minted, 1)
	assert.GreaterOrEqual(t, minted[0].GetCounter().GetValue(), 3.0)
}
