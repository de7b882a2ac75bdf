package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CronJobMetrics tracks scheduled job runs. A nil *CronJobMetrics is a no-op.
type CronJobMetrics struct {
	runs    *prometheus.CounterVec
	elapsed *prometheus.HistogramVec
}

// NewCronJobMetrics registers the cron collectors on reg. A nil reg yields an
// instance that records nothing.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)
	return &CronJobMetrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "qrseal_cron_job_runs_total",
			Help: "Cron job runs by job and outcome.",
		}, []string{"job", "outcome"}),
		elapsed: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "qrseal_cron_job_duration_seconds",
			Help:    "Wall time of cron job runs.",
			Buckets: []float64{.05, .25, 1, 5, 15, 60, 180},
		}, []string{"job"}),
	}
}

// ObserveRun records one finished run of job.
func (c *CronJobMetrics) ObserveRun(job string, took time.Duration, err error) {
	if c == nil {
		return
	}
	job = normalizeLabel(job)
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailed
	}
	c.runs.WithLabelValues(job, outcome).Inc()
	c.elapsed.WithLabelValues(job).Observe(took.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
