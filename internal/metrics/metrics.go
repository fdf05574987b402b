package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Metrics holds all Prometheus metrics for the ad engine.
type Metrics struct {
	// Event metrics
	Events *prometheus.CounterVec
	Spend  prometheus.Counter

	// Serving metrics
	ServeRejections *prometheus.CounterVec
	FeedRequests    prometheus.Counter
	FeedSize        prometheus.Histogram

	// Budget metrics
	BudgetResets *prometheus.CounterVec

	// Attribution metrics
	AttributionLatency prometheus.Histogram

	// Frequency cap metrics
	FreqCapRejections prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Events: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Total recorded ad events by kind",
			},
			[]string{"kind"},
		),
		Spend: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "spend_total",
				Help:      "Total spend charged across all ads, in currency units",
			},
		),
		ServeRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "serve_rejections_total",
				Help:      "Ads filtered out of serving, by reason",
			},
			[]string{"reason"},
		),
		FeedRequests: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feed_requests_total",
				Help:      "Total eligible-ad feed requests",
			},
		),
		FeedSize: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "feed_size",
				Help:      "Number of ads returned per feed request",
				Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
		),
		BudgetResets: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "budget_resets_total",
				Help:      "Daily budget resets applied, by account",
			},
			[]string{"account_id"},
		),
		AttributionLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "attribution_latency_seconds",
				Help:      "Click-to-conversion latency for attributed conversions",
				Buckets:   []float64{60, 600, 3600, 6 * 3600, 12 * 3600, 24 * 3600},
			},
		),
		FreqCapRejections: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "freq_cap_rejections_total",
				Help:      "Ads withheld from a viewer by the daily frequency cap",
			},
		),
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordEvent records an ad event and its spend cost.
func (m *Metrics) RecordEvent(kind string, cost decimal.Decimal) {
	m.Events.WithLabelValues(kind).Inc()
	if !cost.IsZero() {
		m.Spend.Add(cost.InexactFloat64())
	}
}

// RecordServeRejection records an ad filtered out of serving.
func (m *Metrics) RecordServeRejection(reason string) {
	m.ServeRejections.WithLabelValues(reason).Inc()
}

// RecordFeed records one feed request and its result size.
func (m *Metrics) RecordFeed(size int) {
	m.FeedRequests.Inc()
	m.FeedSize.Observe(float64(size))
}

// RecordBudgetReset records a daily budget reset for an account.
func (m *Metrics) RecordBudgetReset(accountID string) {
	m.BudgetResets.WithLabelValues(accountID).Inc()
}

// ObserveAttributionLatency records a click-to-conversion latency.
func (m *Metrics) ObserveAttributionLatency(latencyMs int64) {
	m.AttributionLatency.Observe(float64(latencyMs) / 1000)
}

// RecordFreqCapRejection records an ad withheld by the frequency cap.
func (m *Metrics) RecordFreqCapRejection() {
	m.FreqCapRejections.Inc()
}
