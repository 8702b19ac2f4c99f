// internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the desk's Prometheus metrics. A Collector registers
// against its own registry, so tests can create as many as they like.
type Collector struct {
	registry *prometheus.Registry

	quotesTotal      *prometheus.CounterVec
	submissionsTotal *prometheus.CounterVec
	confirmationTime prometheus.Histogram
	unitsSoldTotal   prometheus.Counter
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		quotesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "otc_quotes_total",
				Help: "Quote requests by result",
			},
			[]string{"result"},
		),
		submissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "otc_submissions_total",
				Help: "Swap submissions by outcome",
			},
			[]string{"outcome"},
		),
		confirmationTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "otc_confirmation_duration_seconds",
				Help:    "Time from submission to a network verdict",
				Buckets: prometheus.LinearBuckets(0, 2, 16),
			},
		),
		unitsSoldTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "otc_units_sold_total",
				Help: "Token units sold through completed swaps",
			},
		),
	}

	c.registry.MustRegister(
		c.quotesTotal,
		c.submissionsTotal,
		c.confirmationTime,
		c.unitsSoldTotal,
	)
	return c
}

// RecordQuote counts a quote request. Result is "served" or "rejected".
func (c *Collector) RecordQuote(served bool) {
	result := "served"
	if !served {
		result = "rejected"
	}
	c.quotesTotal.WithLabelValues(result).Inc()
}

// RecordSubmission counts one submission outcome: "confirmed",
// "unresolved" or "failed".
func (c *Collector) RecordSubmission(outcome string, elapsed time.Duration) {
	c.submissionsTotal.WithLabelValues(outcome).Inc()
	c.confirmationTime.Observe(elapsed.Seconds())
}

// RecordSale adds a completed swap's unit count.
func (c *Collector) RecordSale(units uint64) {
	c.unitsSoldTotal.Add(float64(units))
}

// Handler exposes the collector's registry in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
