// Package metrics owns the Prometheus registry of the server.
//
// A private registry (not prometheus.DefaultRegisterer) keeps tests
// independent: each test builds its own Metrics and reads it back with
// testutil without colliding with other tests.
package metrics

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "insho"

// Metrics holds every collector the server reports.
type Metrics struct {
	registry *prometheus.Registry
	logger   *slog.Logger

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	foodLookups    *prometheus.CounterVec
	consumptions   prometheus.Counter
	externalLookup *prometheus.HistogramVec
}

// New registers all collectors, plus the Go runtime and process collectors.
func New(logger *slog.Logger) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		logger:   logger,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		foodLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "food",
			Name:      "lookups_total",
			Help:      "Barcode lookups by answer source (db, external, not_found).",
		}, []string{"source"}),
		consumptions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "food",
			Name:      "consumptions_total",
			Help:      "Food records written by consume.",
		}),
		externalLookup: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "nutrition",
			Name:      "external_lookup_duration_seconds",
			Help:      "Latency of nutrition catalog lookups by outcome (found, not_found, error).",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 7, 10},
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.foodLookups,
		m.consumptions,
		m.externalLookup,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      m,
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// Println implements promhttp.Logger.
func (m *Metrics) Println(v ...any) {
	m.logger.Error("metrics exposition failed", slog.String("error", fmt.Sprint(v...)))
}

// ObserveHTTPRequest records one finished request. route is the chi route
// pattern ("/api/v1/food/lookup"), never the raw path, to keep label
// cardinality bounded.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordLookup counts one lookup answer by source.
func (m *Metrics) RecordLookup(source string) {
	m.foodLookups.WithLabelValues(source).Inc()
}

// RecordConsumption counts one written food record.
func (m *Metrics) RecordConsumption() {
	m.consumptions.Inc()
}

// ObserveExternalLookup implements nutrition.Observer.
func (m *Metrics) ObserveExternalLookup(outcome string, elapsed time.Duration) {
	m.externalLookup.WithLabelValues(outcome).Observe(elapsed.Seconds())
}
