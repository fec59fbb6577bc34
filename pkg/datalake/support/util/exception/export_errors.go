package exception

import (
	"errors"
	"fmt"
	"net/http"
)

// Names under which the export error sentinels are registered.
const (
	AuthFailure             = "AuthFailure"
	BatchStartConflict      = "BatchStartConflict"
	BatchStartFailure       = "BatchStartFailure"
	BatchVersionExhausted   = "BatchVersionExhausted"
	ChunkTransportError     = "ChunkTransportError"
	ChunkRejected           = "ChunkRejected"
	ChunkSerializationError = "ChunkSerializationError"
)

var (
	// ErrAuthFailure: bad credentials or the auth endpoint is unreachable. No export is attempted.
	ErrAuthFailure = errors.New(AuthFailure)
	// ErrBatchStartConflict: the remote rejected the batch identifier/version with 400.
	ErrBatchStartConflict = errors.New(BatchStartConflict)
	// ErrBatchStartFailure: a batch event failed with a status other than 400.
	ErrBatchStartFailure = errors.New(BatchStartFailure)
	// ErrBatchVersionExhausted: the version-conflict cap was reached.
	ErrBatchVersionExhausted = errors.New(BatchVersionExhausted)
	// ErrChunkTransport: a chunk upload did not produce an HTTP response.
	ErrChunkTransport = errors.New(ChunkTransportError)
	// ErrChunkRejected: a chunk upload returned a non-success status.
	ErrChunkRejected = errors.New(ChunkRejected)
	// ErrChunkSerialization: a chunk could not be encoded. Programmer error.
	ErrChunkSerialization = errors.New(ChunkSerializationError)
)

// StatusError describes a non-success HTTP response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("unexpected status %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// StatusCodeOf returns the HTTP status carried by err, or 0 if there is none.
func StatusCodeOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

func join(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return errors.Join(sentinel, cause)
}

// NewAuthFailure is fatal: neither retryable nor skippable.
func NewAuthFailure(message string, cause error) *BatchError {
	return NewBatchError("auth", message, join(ErrAuthFailure, cause), false, false)
}

// NewBatchStartConflict is retryable: the caller bumps the version and re-announces.
func NewBatchStartConflict(batchRunID string, cause error) *BatchError {
	return NewBatchError("batchrun", fmt.Sprintf("batch run %s already exists or is invalid", batchRunID), join(ErrBatchStartConflict, cause), false, true)
}

// NewBatchStartFailure is retryable by the orchestrator's backoff loop.
func NewBatchStartFailure(batchRunID string, cause error) *BatchError {
	return NewBatchError("batchrun", fmt.Sprintf("batch event for %s failed", batchRunID), join(ErrBatchStartFailure, cause), false, true)
}

// NewBatchVersionExhausted is fatal for the current run.
func NewBatchVersionExhausted(batchName string, attempts int) *BatchError {
	return NewBatchError("batchrun", fmt.Sprintf("batch %s still conflicting after %d versions", batchName, attempts), ErrBatchVersionExhausted, false, false)
}

// NewChunkTransportError is retryable.
func NewChunkTransportError(chunkIndex int, cause error) *BatchError {
	return NewBatchError("delivery", fmt.Sprintf("chunk %d transport failure", chunkIndex), join(ErrChunkTransport, cause), false, true)
}

// NewChunkRejected is skippable: the chunk is recorded as failed and siblings continue.
func NewChunkRejected(chunkIndex int, cause error) *BatchError {
	return NewBatchError("delivery", fmt.Sprintf("chunk %d rejected", chunkIndex), join(ErrChunkRejected, cause), true, false)
}

// NewChunkSerializationError is fatal.
func NewChunkSerializationError(chunkIndex int, cause error) *BatchError {
	return NewBatchError("delivery", fmt.Sprintf("chunk %d could not be serialized", chunkIndex), join(ErrChunkSerialization, cause), false, false)
}
