// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"recording-transcription-service/internal/errs"
)

const namespace = "recording_transcription"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Recording lifecycle
	RecordingsCreated  *prometheus.CounterVec
	ProcessingActive   prometheus.Gauge
	ProcessingSuccess  prometheus.Counter
	ProcessingFailed   *prometheus.CounterVec
	ProcessingDuration prometheus.Histogram

	// Sessions
	ChunksAdded       prometheus.Counter
	SessionsFinalized *prometheus.CounterVec

	// Retry coordinator
	RetriesRequested *prometheus.CounterVec

	// Normalizer / reconciler
	SegmentsNormalized *prometheus.CounterVec
	DuplicatesDropped  prometheus.Counter

	// Audio retention
	AudioArtifactsDeleted prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// STT metrics
	STTAttempts   *prometheus.CounterVec
	STTLatency    *prometheus.HistogramVec
	STTErrors     *prometheus.CounterVec
	STTRetryDelay *prometheus.HistogramVec

	// HTTP API
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RecordingsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_created_total",
			Help:      "Total number of recordings created",
		}, []string{"type"}),
		ProcessingActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "processing_active",
			Help:      "Number of recordings currently being processed",
		}),
		ProcessingSuccess: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processing_success_total",
			Help:      "Total number of processing attempts that completed",
		}),
		ProcessingFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processing_failed_total",
			Help:      "Total number of processing attempts that failed",
		}, []string{"error_kind"}),
		ProcessingDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_duration_seconds",
			Help:      "Duration of a processing attempt in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}),

		ChunksAdded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_added_total",
			Help:      "Total number of chunks appended to parent sessions",
		}),
		SessionsFinalized: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_finalized_total",
			Help:      "Total number of parent sessions finalized",
		}, []string{"status"}),

		RetriesRequested: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_requested_total",
			Help:      "Total number of retry requests",
		}, []string{"outcome"}),

		SegmentsNormalized: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_normalized_total",
			Help:      "Total number of segments produced by the normalizer",
		}, []string{"result_kind"}),
		DuplicatesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_dropped_total",
			Help:      "Total number of cross-channel duplicate segments dropped",
		}),

		AudioArtifactsDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_artifacts_deleted_total",
			Help:      "Total number of audio artifacts deleted",
		}),

		// Kafka publish metrics
		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		// STT metrics
		STTAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_attempts_total",
			Help:      "Total number of speech engine calls",
		}, []string{"provider"}),
		STTLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stt_latency_seconds",
			Help:      "Speech engine call latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"provider", "outcome"}),
		STTErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_errors_total",
			Help:      "Total number of STT errors",
		}, []string{"provider", "error_type"}),
		STTRetryDelay: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stt_retry_delay_seconds",
			Help:      "Backoff delay before a speech engine retry",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 16},
		}, []string{"provider"}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP API requests",
		}, []string{"method", "route", "code"}),
		HTTPLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP API request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// RecordRecordingCreated records a new recording by type (single, dual, segmented, chunk).
func (m *Metrics) RecordRecordingCreated(recordingType string) {
	m.RecordingsCreated.WithLabelValues(recordingType).Inc()
}

// RecordProcessingStart records a processing attempt starting.
func (m *Metrics) RecordProcessingStart() {
	m.ProcessingActive.Inc()
}

// RecordProcessingEnd records a processing attempt ending. err is nil on success.
func (m *Metrics) RecordProcessingEnd(err error, durationSeconds float64) {
	m.ProcessingActive.Dec()
	m.ProcessingDuration.Observe(durationSeconds)
	if err == nil {
		m.ProcessingSuccess.Inc()
		return
	}
	m.ProcessingFailed.WithLabelValues(errs.KindOf(err).String()).Inc()
}

// RecordChunkAdded records a chunk appended to a parent session.
func (m *Metrics) RecordChunkAdded() {
	m.ChunksAdded.Inc()
}

// RecordSessionFinalized records a parent session reaching a terminal state.
func (m *Metrics) RecordSessionFinalized(status string) {
	m.SessionsFinalized.WithLabelValues(status).Inc()
}

// RecordRetry records a retry request and whether it was accepted.
func (m *Metrics) RecordRetry(accepted bool) {
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	m.RetriesRequested.WithLabelValues(outcome).Inc()
}

// RecordNormalized records segments produced from one raw engine result.
func (m *Metrics) RecordNormalized(resultKind string, segments int) {
	m.SegmentsNormalized.WithLabelValues(resultKind).Add(float64(segments))
}

// RecordDuplicatesDropped records segments removed by the reconciler.
func (m *Metrics) RecordDuplicatesDropped(n int) {
	m.DuplicatesDropped.Add(float64(n))
}

// RecordAudioDeleted records audio artifacts removed from the bucket.
func (m *Metrics) RecordAudioDeleted(n int) {
	m.AudioArtifactsDeleted.Add(float64(n))
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordSTTAttempt records one engine call and its outcome.
func (m *Metrics) RecordSTTAttempt(provider string, err error, latencySeconds float64) {
	m.STTAttempts.WithLabelValues(provider).Inc()
	outcome := "success"
	if err != nil {
		outcome = "error"
		m.RecordSTTError(provider, errs.KindOf(err).String())
	}
	m.STTLatency.WithLabelValues(provider, outcome).Observe(latencySeconds)
}

// RecordSTTError records an STT error.
func (m *Metrics) RecordSTTError(provider, errorType string) {
	m.STTErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordSTTRetryDelay records the backoff before a retried engine call.
func (m *Metrics) RecordSTTRetryDelay(provider string, delaySeconds float64) {
	m.STTRetryDelay.WithLabelValues(provider).Observe(delaySeconds)
}

// RecordHTTPRequest records an API request.
func (m *Metrics) RecordHTTPRequest(method, route string, code int, latencySeconds float64) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.HTTPLatency.WithLabelValues(method, route).Observe(latencySeconds)
}
