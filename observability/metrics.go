// Package observability exposes the Prometheus collectors shared by the REST
// surface and the market engines.
package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	oracleMetricsOnce sync.Once
	oracleRegistry    *OracleMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record REST
// module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendefi",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total REST module requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendefi",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total REST module errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lendefi",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for REST module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendefi",
				Subsystem: "module",
				Name:      "throttles_total",
				Help:      "Count of module requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" or
// "quota_exceeded" so dashboards and alerts remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// OracleMetrics tracks price aggregation health per asset.
type OracleMetrics struct {
	queries      *prometheus.CounterVec
	breakerTrips *prometheus.CounterVec
	staleRounds  *prometheus.CounterVec
	sourcesUsed  *prometheus.GaugeVec
}

// Oracle exposes the metrics registry for the price aggregator.
func Oracle() *OracleMetrics {
	oracleMetricsOnce.Do(func() {
		oracleRegistry = &OracleMetrics{
			queries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendefi",
				Subsystem: "oracle",
				Name:      "queries_total",
				Help:      "Count of price queries segmented by asset and outcome.",
			}, []string{"asset", "outcome"}),
			breakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendefi",
				Subsystem: "oracle",
				Name:      "breaker_trips_total",
				Help:      "Count of circuit breaker rejections per asset.",
			}, []string{"asset"}),
			staleRounds: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendefi",
				Subsystem: "oracle",
				Name:      "stale_rounds_total",
				Help:      "Count of source rounds rejected as stale per asset.",
			}, []string{"asset"}),
			sourcesUsed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lendefi",
				Subsystem: "oracle",
				Name:      "sources_used",
				Help:      "Healthy sources that contributed to the last accepted price.",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(
			oracleRegistry.queries,
			oracleRegistry.breakerTrips,
			oracleRegistry.staleRounds,
			oracleRegistry.sourcesUsed,
		)
	})
	return oracleRegistry
}

// ObserveQuery records one aggregator query for an asset.
func (m *OracleMetrics) ObserveQuery(asset string, err error) {
	if m == nil {
		return
	}
	asset = normaliseAsset(asset)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.queries.WithLabelValues(asset, outcome).Inc()
}

// RecordBreakerTrip counts a deviation rejection for an asset.
func (m *OracleMetrics) RecordBreakerTrip(asset string) {
	if m == nil {
		return
	}
	m.breakerTrips.WithLabelValues(normaliseAsset(asset)).Inc()
}

// RecordStaleRound counts a freshness rejection for an asset.
func (m *OracleMetrics) RecordStaleRound(asset string) {
	if m == nil {
		return
	}
	m.staleRounds.WithLabelValues(normaliseAsset(asset)).Inc()
}

// SetSourcesUsed records how many sources fed the last accepted median.
func (m *OracleMetrics) SetSourcesUsed(asset string, count int) {
	if m == nil {
		return
	}
	m.sourcesUsed.WithLabelValues(normaliseAsset(asset)).Set(float64(count))
}

func normaliseAsset(asset string) string {
	normalized := strings.TrimSpace(strings.ToLower(asset))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
