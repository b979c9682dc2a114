// Package metrics registers the service's Prometheus collectors and
// exposes the scrape handler mounted at /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trialdex",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests served, by route pattern and status class.",
	}, []string{"route", "method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "trialdex",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency, by route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	searchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trialdex",
		Name:      "searches_total",
		Help:      "Directory searches executed.",
	})

	importsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trialdex",
		Name:      "imports_total",
		Help:      "Bulk imports, by outcome.",
	}, []string{"outcome"})

	importedRecords = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trialdex",
		Name:      "imported_records_total",
		Help:      "Records committed by bulk imports, including partial runs.",
	})

	importsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "trialdex",
		Name:      "imports_in_flight",
		Help:      "Bulk imports currently running.",
	})
)

// Handler returns the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records one served HTTP request.
func ObserveRequest(route, method string, status int, elapsed time.Duration) {
	requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// RecordSearch counts one directory search.
func RecordSearch() {
	searchesTotal.Inc()
}

// ImportStarted marks a bulk import as running. The returned func
// records the outcome and committed count exactly once.
func ImportStarted() func(outcome string, imported int) {
	importsInFlight.Inc()
	return func(outcome string, imported int) {
		importsInFlight.Dec()
		importsTotal.WithLabelValues(outcome).Inc()
		importedRecords.Add(float64(imported))
	}
}
