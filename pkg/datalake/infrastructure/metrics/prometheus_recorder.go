package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	model "github.com/tigerroll/datalake-export/pkg/datalake/core/domain/model"
	metrics "github.com/tigerroll/datalake-export/pkg/datalake/core/metrics"
	logger "github.com/tigerroll/datalake-export/pkg/datalake/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the metrics.MetricRecorder interface.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	// Export Metrics
	exportDurationSeconds *prometheus.HistogramVec
	exportStatusCounter   *prometheus.CounterVec

	// Batch event Metrics
	batchEventCounter *prometheus.CounterVec

	// Chunk Metrics
	chunksInFlight       prometheus.Gauge
	chunkDurationSeconds *prometheus.HistogramVec
	chunkOutcomeCounter  *prometheus.CounterVec
	chunkRecordsCounter  *prometheus.CounterVec
	chunkRetryCounter    *prometheus.CounterVec

	operationDurationSeconds *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a new instance of PrometheusRecorder with its own registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	// Register Go standard metrics and process/OS metrics.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		exportDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "datalake_export_duration_seconds",
			Help:    "Duration of export attempts.",
			Buckets: prometheus.DefBuckets,
		}, []string{"batch_name", "status"}),
		exportStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datalake_export_attempts_total",
			Help: "Total number of export attempts by status.",
		}, []string{"batch_name", "status"}),
		batchEventCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datalake_batch_events_total",
			Help: "Total batch Start/End events by outcome.",
		}, []string{"event_type", "outcome"}),
		chunksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "datalake_chunks_in_flight",
			Help: "Chunk uploads currently in flight.",
		}),
		chunkDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "datalake_chunk_duration_seconds",
			Help:    "Duration of chunk deliveries including retries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		chunkOutcomeCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datalake_chunks_total",
			Help: "Total chunks delivered by outcome.",
		}, []string{"outcome"}),
		chunkRecordsCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datalake_records_total",
			Help: "Total records in delivered chunks by outcome.",
		}, []string{"outcome"}),
		chunkRetryCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datalake_chunk_retries_total",
			Help: "Total retried chunk attempts by reason.",
		}, []string{"reason"}),
		operationDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "datalake_operation_duration_seconds",
			Help:    "Duration of individual remote operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
	}

	registry.MustRegister(r.exportDurationSeconds)
	registry.MustRegister(r.exportStatusCounter)
	registry.MustRegister(r.batchEventCounter)
	registry.MustRegister(r.chunksInFlight)
	registry.MustRegister(r.chunkDurationSeconds)
	registry.MustRegister(r.chunkOutcomeCounter)
	registry.MustRegister(r.chunkRecordsCounter)
	registry.MustRegister(r.chunkRetryCounter)
	registry.MustRegister(r.operationDurationSeconds)

	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// RecordExportStart records the start of an export attempt.
func (r *PrometheusRecorder) RecordExportStart(ctx context.Context, run *model.ExportRun) {
	r.exportStatusCounter.WithLabelValues(run.BatchName, run.Status.String()).Inc()
	logger.Debugf("Metrics: export attempt %d of '%s' started.", run.Attempt, run.BatchName)
}

// RecordExportEnd records the end of an export attempt.
func (r *PrometheusRecorder) RecordExportEnd(ctx context.Context, run *model.ExportRun) {
	if run.EndTime.IsZero() {
		return
	}
	duration := run.EndTime.Sub(run.StartTime).Seconds()
	r.exportDurationSeconds.WithLabelValues(run.BatchName, run.Status.String()).Observe(duration)
	r.exportStatusCounter.WithLabelValues(run.BatchName, run.Status.String()).Inc()
	logger.Debugf("Metrics: export attempt %d of '%s' ended. Duration: %.3fs", run.Attempt, run.BatchName, duration)
}

// RecordBatchEvent records a Start/End event call.
func (r *PrometheusRecorder) RecordBatchEvent(ctx context.Context, eventType, outcome string) {
	r.batchEventCounter.WithLabelValues(eventType, outcome).Inc()
}

// RecordChunkStart increments the in-flight gauge.
func (r *PrometheusRecorder) RecordChunkStart(ctx context.Context, chunk *model.Chunk) {
	r.chunksInFlight.Inc()
}

// RecordChunkEnd decrements the in-flight gauge and records the chunk outcome.
func (r *PrometheusRecorder) RecordChunkEnd(ctx context.Context, chunk *model.Chunk, outcome string, attempts int, duration time.Duration) {
	r.chunksInFlight.Dec()
	r.chunkOutcomeCounter.WithLabelValues(outcome).Inc()
	r.chunkRecordsCounter.WithLabelValues(outcome).Add(float64(len(chunk.Records)))
	r.chunkDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordChunkRetry records one retried chunk attempt.
func (r *PrometheusRecorder) RecordChunkRetry(ctx context.Context, reason string) {
	r.chunkRetryCounter.WithLabelValues(reason).Inc()
}

// RecordDuration records the duration of a named operation. The "outcome" tag labels the sample.
func (r *PrometheusRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	outcome := tags["outcome"]
	if outcome == "" {
		outcome = metrics.OutcomeSuccess
	}
	r.operationDurationSeconds.WithLabelValues(name, outcome).Observe(duration.Seconds())
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
