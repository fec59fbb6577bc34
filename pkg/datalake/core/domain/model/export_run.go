package model

import (
	"time"

	"github.com/google/uuid"
)

// ExportStatus represents the state of one export attempt.
type ExportStatus string

const (
	ExportStatusStarted   ExportStatus = "STARTED"
	ExportStatusCompleted ExportStatus = "COMPLETED"
	ExportStatusFailed    ExportStatus = "FAILED"
)

// String returns the string representation of the ExportStatus.
func (s ExportStatus) String() string {
	return string(s)
}

// ExportRun is the persisted history of one orchestrator attempt.
type ExportRun struct {
	ID           string
	BatchName    string
	RunDate      string // yyyy-MM-dd of the batch run identifier.
	BatchRunID   string
	Version      int
	Attempt      int
	Status       ExportStatus
	RecordCount  int
	ChunkCount   int
	FailedChunks int
	ErrorMessage string
	StartTime    time.Time
	EndTime      time.Time
}

// NewExportRun creates a STARTED record for the given attempt of a batch run.
func NewExportRun(run *BatchRun, attempt int, now time.Time) *ExportRun {
	return &ExportRun{
		ID:         uuid.New().String(),
		BatchName:  run.Name,
		RunDate:    run.IdentifierDate.UTC().Format(identifierDateLayout),
		BatchRunID: run.ID(),
		Version:    run.Version,
		Attempt:    attempt,
		Status:     ExportStatusStarted,
		StartTime:  now,
	}
}

// Sync copies the current identifier and version of the batch run, which change on conflicts.
func (e *ExportRun) Sync(run *BatchRun) {
	e.BatchRunID = run.ID()
	e.Version = run.Version
	e.RunDate = run.IdentifierDate.UTC().Format(identifierDateLayout)
}

// Finish marks the run COMPLETED, or FAILED when err is non-nil.
func (e *ExportRun) Finish(err error, now time.Time) {
	e.EndTime = now
	if err != nil {
		e.Status = ExportStatusFailed
		e.ErrorMessage = err.Error()
		return
	}
	e.Status = ExportStatusCompleted
}
