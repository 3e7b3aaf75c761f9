package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CronJobMetrics tracks scheduled job runs, labelled by job name. A nil value
// (or one built without a registerer) records nothing.
type CronJobMetrics struct {
	duration    *prometheus.HistogramVec
	success     *prometheus.CounterVec
	failure     *prometheus.CounterVec
	skipped     *prometheus.CounterVec
	running     *prometheus.GaugeVec
	lastSuccess *prometheus.GaugeVec
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return nil
	}
	f := promauto.With(reg)
	byJob := []string{"job"}
	return &CronJobMetrics{
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Wall time of each cron job run.",
			Buckets: []float64{.05, .25, 1, 5, 15, 60, 300},
		}, byJob),
		success: f.NewCounterVec(prometheus.CounterOpts{Name: "job_success", Help: "Cron job runs that returned nil."}, byJob),
		failure: f.NewCounterVec(prometheus.CounterOpts{Name: "job_failure", Help: "Cron job runs that returned an error."}, byJob),
		skipped: f.NewCounterVec(prometheus.CounterOpts{Name: "job_skipped_total", Help: "Cycles skipped because another worker held the lock."}, byJob),
		running: f.NewGaugeVec(prometheus.GaugeOpts{Name: "job_running", Help: "1 while the job is executing."}, byJob),
		lastSuccess: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		}, byJob),
	}
}

// Start marks job as running and returns the callback that records its result.
func (c *CronJobMetrics) Start(job string) func(error) {
	if c == nil {
		return func(error) {}
	}
	label := normalizeLabel(job)
	began := time.Now()
	c.running.WithLabelValues(label).Set(1)
	return func(err error) {
		c.running.WithLabelValues(label).Set(0)
		c.duration.WithLabelValues(label).Observe(time.Since(began).Seconds())
		if err != nil {
			c.failure.WithLabelValues(label).Inc()
			return
		}
		c.success.WithLabelValues(label).Inc()
		c.lastSuccess.WithLabelValues(label).SetToCurrentTime()
	}
}

func (c *CronJobMetrics) Skipped(job string) {
	if c == nil {
		return
	}
	c.skipped.WithLabelValues(normalizeLabel(job)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
