package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the meeting stream service.
// The Record helpers tolerate a nil receiver so callers can run without
// instrumentation in tests.
type Metrics struct {
	// Transport frame metrics
	FramesReceived prometheus.Counter
	FramesDropped  prometheus.Counter
	EventErrors    prometheus.Counter

	// Session metrics
	ActiveSessions   prometheus.Gauge
	SessionsStarted  prometheus.Counter
	SessionsFinished *prometheus.CounterVec
	SessionDuration  prometheus.Histogram

	// Transcription metrics
	TranscriptLines    prometheus.Counter
	TranscriptPartials prometheus.Counter

	// Summarization metrics
	SummarizeRequests prometheus.Counter
	SummarizeFailures prometheus.Counter
	SummarizeDuration prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		FramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meetingmind_frames_received_total",
			Help: "Total number of inbound audio frames received",
		}),
		FramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meetingmind_frames_dropped_total",
			Help: "Total number of frames dropped (too short or unknown session)",
		}),
		EventErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meetingmind_event_errors_total",
			Help: "Total number of malformed transport control events",
		}),

		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "meetingmind_active_sessions",
			Help: "Current number of live meeting sessions",
		}),
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meetingmind_sessions_started_total",
			Help: "Total number of sessions started",
		}),
		SessionsFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meetingmind_sessions_finished_total",
			Help: "Total number of sessions finished, by terminal status",
		}, []string{"status"}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "meetingmind_session_duration_seconds",
			Help:    "Duration of meeting sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),

		TranscriptLines: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meetingmind_transcript_lines_total",
			Help: "Total number of final transcript lines received",
		}),
		TranscriptPartials: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meetingmind_transcript_partials_total",
			Help: "Total number of partial transcript events received",
		}),

		SummarizeRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meetingmind_summarize_requests_total",
			Help: "Total number of summarization calls made",
		}),
		SummarizeFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meetingmind_summarize_failures_total",
			Help: "Total number of failed summarization calls",
		}),
		SummarizeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "meetingmind_summarize_duration_seconds",
			Help:    "Duration of summarization calls",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2 minutes
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meetingmind_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meetingmind_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// RecordFrameReceived increments the frames received counter.
func (m *Metrics) RecordFrameReceived() {
	if m == nil {
		return
	}
	m.FramesReceived.Inc()
}

// RecordFrameDropped increments the frames dropped counter.
func (m *Metrics) RecordFrameDropped() {
	if m == nil {
		return
	}
	m.FramesDropped.Inc()
}

// RecordEventError increments the malformed event counter.
func (m *Metrics) RecordEventError() {
	if m == nil {
		return
	}
	m.EventErrors.Inc()
}

// RecordSessionStarted increments the session counters.
func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
}

// RecordSessionFinished records a finished session and its duration.
func (m *Metrics) RecordSessionFinished(status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SessionsFinished.WithLabelValues(status).Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// SetActiveSessions sets the live session gauge.
func (m *Metrics) SetActiveSessions(count int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(count))
}

// RecordTranscript records one transcript event.
func (m *Metrics) RecordTranscript(final bool) {
	if m == nil {
		return
	}
	if final {
		m.TranscriptLines.Inc()
	} else {
		m.TranscriptPartials.Inc()
	}
}

// RecordSummarize records one summarization call.
func (m *Metrics) RecordSummarize(durationSeconds float64, failed bool) {
	if m == nil {
		return
	}
	m.SummarizeRequests.Inc()
	if failed {
		m.SummarizeFailures.Inc()
	}
	m.SummarizeDuration.Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(durationSeconds)
}
