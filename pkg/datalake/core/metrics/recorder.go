package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/datalake-export/pkg/datalake/core/domain/model"
)

// Outcome labels shared by recorders.
const (
	OutcomeSuccess  = "success"
	OutcomeConflict = "conflict"
	OutcomeFailure  = "failure"
	OutcomeRejected = "rejected"
)

// MetricRecorder is an abstract interface for recording metrics of the export pipeline.
// It decouples the pipeline from the metrics backend (e.g. Prometheus).
type MetricRecorder interface {
	// RecordExportStart records the start of an orchestrator attempt.
	RecordExportStart(ctx context.Context, run *model.ExportRun)

	// RecordExportEnd records the end of an orchestrator attempt; run.Status holds the result.
	RecordExportEnd(ctx context.Context, run *model.ExportRun)

	// RecordBatchEvent records one Start/End event call and its outcome
	// (OutcomeSuccess, OutcomeConflict or OutcomeFailure).
	RecordBatchEvent(ctx context.Context, eventType string, outcome string)

	// RecordChunkStart records that a chunk upload is now in flight.
	RecordChunkStart(ctx context.Context, chunk *model.Chunk)

	// RecordChunkEnd records the final outcome of a chunk, after all of its attempts.
	RecordChunkEnd(ctx context.Context, chunk *model.Chunk, outcome string, attempts int, duration time.Duration)

	// RecordChunkRetry records one retried chunk attempt; reason is the error type name.
	RecordChunkRetry(ctx context.Context, reason string)

	// RecordDuration records the execution time of a specific operation (e.g. "login", "logout").
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}
