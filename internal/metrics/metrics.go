package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	StatusesFetched   prometheus.Counter
	PostsDelivered    prometheus.Counter
	PostsSkipped      prometheus.Counter
	PipelineFailures  *prometheus.CounterVec
	DeliveryLatency   prometheus.Histogram
	CycleDuration     prometheus.Histogram
	LastDeliveryEpoch prometheus.Gauge
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StatusesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "statuses_fetched_total",
			Help: "Total number of statuses retrieved from the feed source.",
		}),
		PostsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "posts_delivered_total",
			Help: "Total number of posts successfully delivered to the webhook.",
		}),
		PostsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "posts_skipped_total",
			Help: "Total number of posts skipped because they were already processed.",
		}),
		PipelineFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_failures_total",
			Help: "Per-item failures by pipeline stage (format, deliver, mark).",
		}, []string{"stage"}),
		DeliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "delivery_seconds",
			Help:    "Webhook delivery latency, including throttle and 429 waits.",
			Buckets: prometheus.DefBuckets,
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "poll_cycle_seconds",
			Help:    "Duration of one fetch-filter-deliver cycle.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		LastDeliveryEpoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "last_delivery_timestamp_seconds",
			Help: "Unix time of the most recent confirmed delivery.",
		}),
	}

	reg.MustRegister(
		m.StatusesFetched,
		m.PostsDelivered,
		m.PostsSkipped,
		m.PipelineFailures,
		m.DeliveryLatency,
		m.CycleDuration,
		m.LastDeliveryEpoch,
	)

	return m
}

// MonitorHooks returns the metric callbacks expected by monitor.Hooks.
// Centralises the prometheus observation calls so the monitor package has
// no prometheus import.
func (m *Metrics) MonitorHooks() (
	onFetched func(count int),
	onSkipped func(),
	onDelivered func(latency time.Duration),
	onFailed func(stage string),
	onCycle func(elapsed time.Duration),
) {
	onFetched = func(count int) {
		m.StatusesFetched.Add(float64(count))
	}
	onSkipped = func() {
		m.PostsSkipped.Inc()
	}
	onDelivered = func(latency time.Duration) {
		m.PostsDelivered.Inc()
		m.DeliveryLatency.Observe(latency.Seconds())
		m.LastDeliveryEpoch.SetToCurrentTime()
	}
	onFailed = func(stage string) {
		m.PipelineFailures.WithLabelValues(stage).Inc()
	}
	onCycle = func(elapsed time.Duration) {
		m.CycleDuration.Observe(elapsed.Seconds())
	}
	return
}
