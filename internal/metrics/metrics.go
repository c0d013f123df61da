// Package metrics exposes atmolog's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "atmolog"

// Metrics holds the collectors registered on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	Appends         prometheus.Counter
	AppendFailures  prometheus.Counter
	Evictions       prometheus.Counter
	AggregateWrites prometheus.Counter
	Clears          *prometheus.CounterVec
	LogLength       prometheus.Gauge
	LogCapacity     prometheus.Gauge
	StorageBytes    prometheus.Gauge
	SourceErrors    prometheus.Counter
	AppendLatency   prometheus.Histogram

	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec
}

// New creates the collectors and registers them with a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		Appends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appends_total",
			Help:      "Readings appended to the log.",
		}),
		AppendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "append_failures_total",
			Help:      "Appends that could not be persisted.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Oldest readings dropped to stay within capacity.",
		}),
		AggregateWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregate_updates_total",
			Help:      "Appends that moved a min/max extremum.",
		}),
		Clears: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clears_total",
			Help:      "Clear requests by outcome.",
		}, []string{"result"}),
		LogLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "log_length",
			Help:      "Readings currently retained.",
		}),
		LogCapacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "log_capacity",
			Help:      "Maximum readings retained.",
		}),
		StorageBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "storage_bytes",
			Help:      "Bytes used on the storage medium.",
		}),
		SourceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_errors_total",
			Help:      "Failed sensor reads.",
		}),
		AppendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "append_duration_seconds",
			Help:      "Time to persist one reading and its aggregate.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		HTTPLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.reg.MustRegister(
		m.Appends, m.AppendFailures, m.Evictions, m.AggregateWrites,
		m.Clears, m.LogLength, m.LogCapacity, m.StorageBytes,
		m.SourceErrors, m.AppendLatency, m.HTTPRequests, m.HTTPLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ObserveAppend records one append.
func (m *Metrics) ObserveAppend(d time.Duration, evicted, failed, aggregateChanged bool) {
	m.Appends.Inc()
	if evicted {
		m.Evictions.Inc()
	}
	if failed {
		m.AppendFailures.Inc()
	}
	if aggregateChanged {
		m.AggregateWrites.Inc()
	}
	m.AppendLatency.Observe(d.Seconds())
}

// ObserveClear records a clear outcome.
func (m *Metrics) ObserveClear(ok bool) {
	if ok {
		m.Clears.WithLabelValues("ok").Inc()
		return
	}
	m.Clears.WithLabelValues("failed").Inc()
}

// SetLog updates the length and capacity gauges.
func (m *Metrics) SetLog(length, capacity int) {
	m.LogLength.Set(float64(length))
	m.LogCapacity.Set(float64(capacity))
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(route string, code int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPLatency.WithLabelValues(route).Observe(d.Seconds())
}
