// Package repository persists the history of export runs. The orchestrator records every
// attempt and continues the batch version after the highest one already used for the day.
package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/datalake-export/pkg/datalake/core/domain/model"
)

// ErrRunNotFound is returned by UpdateRun for an unknown run id.
var ErrRunNotFound = errors.New("export run not found")

// RunRepository stores ExportRun records.
type RunRepository interface {
	SaveRun(ctx context.Context, run *model.ExportRun) error
	UpdateRun(ctx context.Context, run *model.ExportRun) error
	// FindRuns returns the runs of a batch on a run date (yyyy-MM-dd) ordered by start time.
	FindRuns(ctx context.Context, batchName, runDate string) ([]*model.ExportRun, error)
	// LatestVersion returns the highest version recorded for a batch on a run date, or 0.
	LatestVersion(ctx context.Context, batchName, runDate string) (int, error)
	Close() error
}
