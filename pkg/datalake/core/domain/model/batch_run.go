package model

import (
	"fmt"
	"regexp"
	"time"
)

// BatchRunState is the lifecycle state of a BatchRun.
type BatchRunState string

const (
	BatchRunNotStarted BatchRunState = "NOT_STARTED"
	BatchRunStarted    BatchRunState = "STARTED"
	BatchRunStopped    BatchRunState = "STOPPED"
	BatchRunFailed     BatchRunState = "FAILED"
)

// String returns the string representation of the BatchRunState.
func (s BatchRunState) String() string {
	return string(s)
}

// IsFinished reports whether no further transition is possible.
func (s BatchRunState) IsFinished() bool {
	return s == BatchRunStopped || s == BatchRunFailed
}

var batchRunTransitions = map[BatchRunState][]BatchRunState{
	BatchRunNotStarted: {BatchRunStarted},
	BatchRunStarted:    {BatchRunStopped, BatchRunFailed, BatchRunNotStarted},
}

const (
	identifierDateLayout = "2006-01-02"
	asOfLayout           = "2006-01-02T15:04:05"
)

var productFilter = regexp.MustCompile(`[a-z ]`)

// SanitizeProduct strips lowercase ASCII letters and spaces from a product name.
// "Renewable Power ID" becomes "RPID".
func SanitizeProduct(product string) string {
	return productFilter.ReplaceAllString(product, "")
}

// BatchRun identifies one announced export attempt.
type BatchRun struct {
	Name           string
	Product        string
	Version        int
	BackfillSuffix string
	// AsOf is the run start. It does not change when the version is bumped.
	AsOf time.Time
	// IdentifierDate is the date embedded in ID(); it is regenerated on a version bump unless backfilling.
	IdentifierDate time.Time
	State          BatchRunState
}

// NewBatchRun creates a run in state NotStarted. Versions start at 1.
func NewBatchRun(name, product, backfillSuffix string, version int, now time.Time) *BatchRun {
	if version < 1 {
		version = 1
	}
	now = now.UTC()
	return &BatchRun{
		Name:           name,
		Product:        product,
		Version:        version,
		BackfillSuffix: backfillSuffix,
		AsOf:           now,
		IdentifierDate: now,
		State:          BatchRunNotStarted,
	}
}

// IsBackfill reports whether the run re-exports a past period under a distinguishing suffix.
func (b *BatchRun) IsBackfill() bool {
	return b.BackfillSuffix != ""
}

// ID is the externally visible batch run identifier, e.g. "GPE-2024-05-01-v2".
// It is a pure function of name, identifier date, version and backfill suffix.
func (b *BatchRun) ID() string {
	id := fmt.Sprintf("%s-%s-v%d", b.Name, b.IdentifierDate.UTC().Format(identifierDateLayout), b.Version)
	if b.IsBackfill() {
		id += "-" + b.BackfillSuffix
	}
	return id
}

// BatchID is the batch identifier sent with every batch event: name and sanitized product.
func (b *BatchRun) BatchID() string {
	return b.Name + "_" + SanitizeProduct(b.Product)
}

// AsOfField formats AsOf for the asOf form field.
func (b *BatchRun) AsOfField() string {
	return b.AsOf.UTC().Format(asOfLayout)
}

// RunDateField is the run date pinned to a fixed time of day, e.g. "2024-05-01T02:00:00.000".
func (b *BatchRun) RunDateField(timeOfDay string) string {
	return b.AsOf.UTC().Format(identifierDateLayout) + "T" + timeOfDay
}

// BumpVersion increments the version after a conflict and puts the run back to NotStarted.
// A backfill keeps its identifier date; any other run takes the date of now.
func (b *BatchRun) BumpVersion(now time.Time) {
	b.Version++
	if !b.IsBackfill() {
		b.IdentifierDate = now.UTC()
	}
	b.State = BatchRunNotStarted
}

// TransitionTo moves the run to the next state, rejecting transitions the lifecycle does not allow.
func (b *BatchRun) TransitionTo(next BatchRunState) error {
	for _, allowed := range batchRunTransitions[b.State] {
		if allowed == next {
			b.State = next
			return nil
		}
	}
	return fmt.Errorf("batch run %s: invalid transition %s -> %s", b.ID(), b.State, next)
}
