package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess  = "success"
	OutcomeRetry    = "retry"
	OutcomeTerminal = "terminal"
	OutcomeNoop     = "noop"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected"
)

var (
	outboxPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qrseal_outbox_publish_total",
		Help: "Outbox publish attempts by event type and outcome.",
	}, []string{"event_type", "outcome"})

	paymentReconciles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qrseal_payment_reconcile_total",
		Help: "Payment reconciliations by delivery channel and outcome.",
	}, []string{"channel", "outcome"})

	creditSpends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qrseal_credit_spend_total",
		Help: "Credit spend attempts by outcome.",
	}, []string{"outcome"})

	qrCodesMinted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "qrseal_qr_codes_minted_total",
		Help: "QR codes generated for processed orders.",
	})
)

// Register exposes the domain collectors on reg. Repeated registration is ignored.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		return nil
	}
	for _, c := range []prometheus.Collector{outboxPublished, paymentReconciles, creditSpends, qrCodesMinted} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

func ObserveOutboxPublish(eventType, outcome string) {
	outboxPublished.WithLabelValues(normalizeLabel(eventType), outcome).Inc()
}

func ObservePaymentReconcile(channel, outcome string) {
	paymentReconciles.WithLabelValues(normalizeLabel(channel), outcome).Inc()
}

func ObserveCreditSpend(outcome string) {
	creditSpends.WithLabelValues(outcome).Inc()
}

func AddQRCodesMinted(n int) {
	if n <= 0 {
		return
	}
	qrCodesMinted.Add(float64(n))
}
