package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the transcription service.
type Metrics struct {
	// Session lifecycle
	SessionsActive  prometheus.Gauge
	SessionsStarted prometheus.Counter
	SessionsStopped prometheus.Counter
	SessionDuration prometheus.Histogram

	// Frame pipeline
	FramesProcessed prometheus.Counter
	FramesDropped   prometheus.Counter

	// Segmentation
	SegmentsDetected  prometheus.Counter
	SegmentsDiscarded prometheus.Counter
	SegmentDuration   prometheus.Histogram

	// Transcription
	TranscriptionRequests prometheus.Counter
	TranscriptionFailures prometheus.Counter
	TranscriptionDuration prometheus.Histogram
	LinesEmitted          prometheus.Counter

	// HTTP API
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "transcription_sessions_active",
			Help: "Current number of active transcription sessions",
		}),
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcription_sessions_started_total",
			Help: "Total number of sessions started",
		}),
		SessionsStopped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcription_sessions_stopped_total",
			Help: "Total number of sessions stopped",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcription_session_duration_seconds",
			Help:    "Duration of transcription sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),

		FramesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcription_frames_processed_total",
			Help: "Total number of audio frames processed",
		}),
		FramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcription_frames_dropped_total",
			Help: "Total number of audio frames dropped by backpressure",
		}),

		SegmentsDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcription_segments_detected_total",
			Help: "Total number of voice segments finalized",
		}),
		SegmentsDiscarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcription_segments_discarded_total",
			Help: "Total number of finalized segments discarded as silence",
		}),
		SegmentDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcription_segment_duration_seconds",
			Help:    "Duration of finalized voice segments",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~2 minutes
		}),

		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcription_engine_requests_total",
			Help: "Total number of segments sent to the speech engine",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcription_engine_failures_total",
			Help: "Total number of engine calls that failed",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcription_engine_duration_seconds",
			Help:    "Time spent in speech engine calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}),
		LinesEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcription_lines_emitted_total",
			Help: "Total number of transcript lines appended",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "transcription_http_requests_total",
			Help: "Total number of HTTP API requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transcription_http_request_duration_seconds",
			Help:    "HTTP API request duration",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "transcription_http_errors_total",
			Help: "Total number of HTTP API errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordHTTPRequest records one HTTP API request. A nil receiver is a
// no-op so callers can run without metrics wired.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration float64) {
	if m == nil {
		return
	}

	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordHTTPError records one HTTP API error. A nil receiver is a no-op.
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}

	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
