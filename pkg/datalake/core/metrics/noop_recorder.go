package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/datalake-export/pkg/datalake/core/domain/model"
)

// NoOpMetricRecorder is an implementation of MetricRecorder that does nothing.
// It is used when metrics are disabled or during testing.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a new instance of NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder {
	return &NoOpMetricRecorder{}
}

func (r *NoOpMetricRecorder) RecordExportStart(ctx context.Context, run *model.ExportRun)       {}
func (r *NoOpMetricRecorder) RecordExportEnd(ctx context.Context, run *model.ExportRun)         {}
func (r *NoOpMetricRecorder) RecordBatchEvent(ctx context.Context, eventType, outcome string)   {}
func (r *NoOpMetricRecorder) RecordChunkStart(ctx context.Context, chunk *model.Chunk)          {}
func (r *NoOpMetricRecorder) RecordChunkRetry(ctx context.Context, reason string)               {}
func (r *NoOpMetricRecorder) RecordChunkEnd(ctx context.Context, chunk *model.Chunk, outcome string, attempts int, duration time.Duration) {
}
func (r *NoOpMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
}

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)

// --- NoOpTracer ---

// NoOpTracer is an implementation of Tracer that does nothing.
type NoOpTracer struct{}

// NewNoOpTracer creates a new instance of NoOpTracer.
func NewNoOpTracer() Tracer {
	return &NoOpTracer{}
}

// StartSpan returns ctx unchanged.
func (t *NoOpTracer) StartSpan(ctx context.Context, name string, attributes map[string]interface{}) (context.Context, func()) {
	return ctx, func() {}
}

// RecordError does nothing.
func (t *NoOpTracer) RecordError(ctx context.Context, module string, err error) {}

// RecordEvent does nothing.
func (t *NoOpTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {}

var _ Tracer = (*NoOpTracer)(nil)
