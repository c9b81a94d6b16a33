// Package metrics owns the Prometheus collectors exported on /metrics.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "blobkeeper"

type Metrics struct {
	registry *prometheus.Registry

	uploads       *prometheus.CounterVec
	uploadedBytes prometheus.Counter
	downloads     prometheus.Counter
	deletes       *prometheus.CounterVec
	freedBytes    *prometheus.CounterVec
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

// New registers every collector on a private registry, plus the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "uploads_total",
			Help: "Upload attempts by outcome.",
		}, []string{"result"}),
		uploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "uploaded_bytes_total",
			Help: "Bytes accepted by successful uploads.",
		}),
		downloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "downloads_total",
			Help: "Successful raw downloads.",
		}),
		deletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "deletes_total",
			Help: "Deleted files by reason.",
		}, []string{"reason"}),
		freedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "freed_bytes_total",
			Help: "Bytes released by deletions, by reason.",
		}, []string{"reason"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.uploads, m.uploadedBytes, m.downloads, m.deletes, m.freedBytes, m.requests, m.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry so callers can add their own collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) UploadSucceeded(size int64) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues("ok").Inc()
	m.uploadedBytes.Add(float64(size))
}

func (m *Metrics) UploadFailed(reason string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(reason).Inc()
}

func (m *Metrics) Downloaded() {
	if m == nil {
		return
	}
	m.downloads.Inc()
}

// Deleted records one removed file. reason is "user", "bulk" or "expired".
func (m *Metrics) Deleted(reason string, size int64) {
	if m == nil {
		return
	}
	m.deletes.WithLabelValues(reason).Inc()
	m.freedBytes.WithLabelValues(reason).Add(float64(size))
}

func (m *Metrics) ObserveRequest(method, route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.latency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RegisterGaugeFunc exports a value computed on scrape.
func (m *Metrics) RegisterGaugeFunc(name, help string, fn func() float64) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Name: name, Help: help,
	}, fn))
}
