// Package metrics holds the Prometheus collectors of pv4d.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pv4"

// Metrics groups the collectors. A nil *Metrics is valid and records
// nothing, so components can take one optionally.
type Metrics struct {
	registry *prometheus.Registry

	IngestBytes      *prometheus.CounterVec
	FramesRecorded   *prometheus.CounterVec
	ActiveRecordings prometheus.Gauge
	RecordingErrors  prometheus.Counter
	FramesDecoded    *prometheus.CounterVec
	DecodeSeconds    prometheus.Histogram
	Extractions      *prometheus.CounterVec
}

// New creates the collectors on a private registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		IngestBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_bytes_total",
			Help:      "Container bytes received from publishers.",
		}, []string{"stream_key"}),
		FramesRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_recorded_total",
			Help:      "Frame records written to disk.",
		}, []string{"stream_key"}),
		ActiveRecordings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_recordings",
			Help:      "Recordings currently in progress.",
		}),
		RecordingErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recording_errors_total",
			Help:      "Recordings that ended with an error.",
		}),
		FramesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_decoded_total",
			Help:      "Frames converted to RGB.",
		}, []string{"backend"}),
		DecodeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decode_seconds",
			Help:      "Time spent decoding one frame.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		Extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Frame range extractions by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.IngestBytes,
		m.FramesRecorded,
		m.ActiveRecordings,
		m.RecordingErrors,
		m.FramesDecoded,
		m.DecodeSeconds,
		m.Extractions,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }

// RecordingStarted bumps the active gauge.
func (m *Metrics) RecordingStarted() {
	if m != nil {
		m.ActiveRecordings.Inc()
	}
}

// RecordingFinished drops the active gauge and counts failures.
func (m *Metrics) RecordingFinished(err error) {
	if m == nil {
		return
	}
	m.ActiveRecordings.Dec()
	if err != nil {
		m.RecordingErrors.Inc()
	}
}

// FrameRecorded counts one frame of size bytes for key.
func (m *Metrics) FrameRecorded(key string, size int64) {
	if m == nil {
		return
	}
	m.FramesRecorded.WithLabelValues(key).Inc()
	m.IngestBytes.WithLabelValues(key).Add(float64(size))
}

// FrameDecoded counts one decode on backend taking seconds.
func (m *Metrics) FrameDecoded(backend string, seconds float64) {
	if m == nil {
		return
	}
	m.FramesDecoded.WithLabelValues(backend).Inc()
	m.DecodeSeconds.Observe(seconds)
}

// ExtractionDone counts a finished extraction.
func (m *Metrics) ExtractionDone(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Extractions.WithLabelValues(result).Inc()
}
