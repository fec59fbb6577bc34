package metrics

import (
	"go.uber.org/fx"
)

// Module provides the no-op recorder and tracer. The infrastructure modules replace them
// with Prometheus and OpenTelemetry implementations through fx.Decorate.
var Module = fx.Options(
	fx.Provide(NewNoOpMetricRecorder),
	fx.Provide(NewNoOpTracer),
)
