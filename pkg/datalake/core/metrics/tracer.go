package metrics

import (
	"context"
)

// Tracer is an abstract interface for distributed tracing of the export pipeline.
type Tracer interface {
	// StartSpan starts a span named name as a child of the span in ctx.
	// Returns the context carrying the new span and a function ending it.
	StartSpan(ctx context.Context, name string, attributes map[string]interface{}) (context.Context, func())

	// RecordError records an error in the current span.
	// module: the component where the error occurred (e.g. "auth", "delivery").
	RecordError(ctx context.Context, module string, err error)

	// RecordEvent records an event in the current span.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
