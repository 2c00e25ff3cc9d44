package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a private registry, so several
// instances can coexist in tests. A nil *Metrics is a valid no-op.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Decode metrics
	DecodeDuration *prometheus.HistogramVec
	DecodeFailures *prometheus.CounterVec
	VADFallbacks   prometheus.Counter

	// Artifact lifecycle
	ArtifactsCreated prometheus.Counter
	ArtifactsDeleted prometheus.Counter
	IngestRejected   *prometheus.CounterVec

	// Stream metrics
	ActiveSessions  prometheus.Gauge
	SessionsOpened  prometheus.Counter
	StreamMessages  *prometheus.CounterVec
	BroadcastEvicts prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transcriber_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transcriber_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
		}, []string{"method", "route"}),

		DecodeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transcriber_decode_duration_seconds",
			Help:    "Engine decode latency",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}, []string{"source", "kind"}),
		DecodeFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transcriber_decode_failures_total",
			Help: "Failed decodes by error kind",
		}, []string{"source", "error_kind"}),
		VADFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "transcriber_vad_fallbacks_total",
			Help: "Decodes retried without VAD after the engine rejected the VAD parameters",
		}),

		ArtifactsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "transcriber_artifacts_created_total",
			Help: "Temporary audio artifacts written",
		}),
		ArtifactsDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "transcriber_artifacts_deleted_total",
			Help: "Temporary audio artifacts deleted",
		}),
		IngestRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transcriber_ingest_rejected_total",
			Help: "Uploads rejected before an artifact was created",
		}, []string{"reason"}),

		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "transcriber_stream_sessions_active",
			Help: "Currently open stream sessions",
		}),
		SessionsOpened: f.NewCounter(prometheus.CounterOpts{
			Name: "transcriber_stream_sessions_opened_total",
			Help: "Stream sessions opened",
		}),
		StreamMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transcriber_stream_messages_total",
			Help: "Inbound stream messages by frame kind",
		}, []string{"kind"}),
		BroadcastEvicts: f.NewCounter(prometheus.CounterOpts{
			Name: "transcriber_broadcast_evictions_total",
			Help: "Sessions evicted because a broadcast write failed",
		}),
	}
}

// Handler serves the private registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordHTTPRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
}

func (m *Metrics) RecordDecode(source, kind string, seconds float64) {
	if m == nil {
		return
	}
	m.DecodeDuration.WithLabelValues(source, kind).Observe(seconds)
}

func (m *Metrics) RecordDecodeFailure(source, errorKind string) {
	if m == nil {
		return
	}
	m.DecodeFailures.WithLabelValues(source, errorKind).Inc()
}

func (m *Metrics) RecordVADFallback() {
	if m == nil {
		return
	}
	m.VADFallbacks.Inc()
}

func (m *Metrics) RecordArtifactCreated() {
	if m == nil {
		return
	}
	m.ArtifactsCreated.Inc()
}

func (m *Metrics) RecordArtifactDeleted() {
	if m == nil {
		return
	}
	m.ArtifactsDeleted.Inc()
}

func (m *Metrics) RecordIngestRejected(reason string) {
	if m == nil {
		return
	}
	m.IngestRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsOpened.Inc()
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

func (m *Metrics) RecordStreamMessage(kind string) {
	if m == nil {
		return
	}
	m.StreamMessages.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordBroadcastEviction() {
	if m == nil {
		return
	}
	m.BroadcastEvicts.Inc()
}
