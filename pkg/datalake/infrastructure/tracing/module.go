package tracing

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/tigerroll/datalake-export/pkg/datalake/core/config"
	metrics "github.com/tigerroll/datalake-export/pkg/datalake/core/metrics"
)

// Module provides the OpenTelemetry tracer provider and replaces the no-op tracer.
var Module = fx.Options(
	fx.Provide(newLifecycleTracerProvider),
	fx.Decorate(func(_ metrics.Tracer, tp trace.TracerProvider) metrics.Tracer {
		return NewOpenTelemetryTracer(tp)
	}),
)

func newLifecycleTracerProvider(lc fx.Lifecycle, cfg *config.Config) (trace.TracerProvider, error) {
	tp, shutdown, err := NewTracerProvider(context.Background(), cfg.Datalake.Telemetry)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error {
		return shutdown(ctx)
	}})
	return tp, nil
}
