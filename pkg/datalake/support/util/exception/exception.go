// Package exception provides the error types shared by the export pipeline.
// Errors are classified as retryable or skippable so that retry policies can decide
// whether a failed operation is attempted again.
package exception

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
)

var (
	registryMu sync.RWMutex
	// registry maps names used in configuration (retryable_exceptions) to sentinel errors.
	registry = make(map[string]error)
)

// RegisterErrorType makes sentinel matchable by name in IsErrorOfType.
// It panics on an empty name or a nil sentinel.
func RegisterErrorType(name string, sentinel error) {
	if name == "" {
		panic("exception: empty error type name")
	}
	if sentinel == nil {
		panic(fmt.Sprintf("exception: nil sentinel for %q", name))
	}
	registryMu.Lock()
	registry[name] = sentinel
	registryMu.Unlock()
}

// IsErrorTypeRegistered reports whether name was registered with RegisterErrorType.
func IsErrorTypeRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}

// BatchError is the error type raised by the export pipeline.
type BatchError struct {
	// Module is the component that failed ("auth", "batchrun", "delivery", "source", "export").
	Module  string
	Message string
	Cause   error

	retryable bool
	skippable bool
}

// NewBatchError creates a BatchError with explicit classification.
func NewBatchError(module, message string, cause error, skippable, retryable bool) *BatchError {
	return &BatchError{Module: module, Message: message, Cause: cause, retryable: retryable, skippable: skippable}
}

// NewBatchErrorf creates a fatal BatchError with a formatted message.
// A trailing error argument becomes the cause; it is not consumed by the format.
func NewBatchErrorf(module, format string, a ...any) *BatchError {
	var cause error
	if n := len(a); n > 0 {
		if err, ok := a[n-1].(error); ok && strings.Count(format, "%") <= n-1 {
			cause, a = err, a[:n-1]
		}
	}
	return &BatchError{Module: module, Message: fmt.Sprintf(format, a...), Cause: cause}
}

func (e *BatchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

func (e *BatchError) Unwrap() error { return e.Cause }

func (e *BatchError) IsRetryable() bool { return e.retryable }

func (e *BatchError) IsSkippable() bool { return e.skippable }

// IsTemporary reports whether err is worth retrying. The outermost BatchError decides;
// other errors are judged by their message.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	var be *BatchError
	if errors.As(err, &be) {
		return be.IsRetryable()
	}
	msg := err.Error()
	for _, s := range []string{"timeout", "connection refused", "connection reset", "EOF"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// IsFatal reports whether err is a BatchError that is neither retryable nor skippable.
func IsFatal(err error) bool {
	var be *BatchError
	if !errors.As(err, &be) {
		return false
	}
	return !be.IsRetryable() && !be.IsSkippable()
}

// IsErrorOfType matches err against a registered name, a Go type name such as "*url.Error",
// or a substring of any message in the chain.
func IsErrorOfType(err error, name string) bool {
	if err == nil {
		return false
	}

	registryMu.RLock()
	sentinel, ok := registry[name]
	registryMu.RUnlock()
	if ok && errors.Is(err, sentinel) {
		return true
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		if strings.Contains(e.Error(), name) {
			return true
		}
		if t := reflect.TypeOf(e); t.String() == name || (t.Kind() == reflect.Pointer && t.Elem().String() == name) {
			return true
		}
	}
	return false
}

func init() {
	RegisterErrorType(AuthFailure, ErrAuthFailure)
	RegisterErrorType(BatchStartConflict, ErrBatchStartConflict)
	RegisterErrorType(BatchStartFailure, ErrBatchStartFailure)
	RegisterErrorType(BatchVersionExhausted, ErrBatchVersionExhausted)
	RegisterErrorType(ChunkTransportError, ErrChunkTransport)
	RegisterErrorType(ChunkRejected, ErrChunkRejected)
	RegisterErrorType(ChunkSerializationError, ErrChunkSerialization)

	RegisterErrorType("io.EOF", io.EOF)
	RegisterErrorType("io.ErrUnexpectedEOF", io.ErrUnexpectedEOF)
	RegisterErrorType("context.DeadlineExceeded", context.DeadlineExceeded)
	RegisterErrorType("context.Canceled", context.Canceled)
}
