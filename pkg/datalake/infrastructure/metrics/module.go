package metrics

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/datalake-export/pkg/datalake/core/config"
	metrics "github.com/tigerroll/datalake-export/pkg/datalake/core/metrics"
	logger "github.com/tigerroll/datalake-export/pkg/datalake/support/util/logger"
)

type pushParams struct {
	fx.In
	Lifecycle   fx.Lifecycle
	Config      *config.Config
	Recorder    *PrometheusRecorder
	Environment string `name:"environmentName" optional:"true"`
}

// Module replaces the no-op recorder with PrometheusRecorder and pushes its registry on shutdown.
var Module = fx.Options(
	fx.Provide(NewPrometheusRecorder),
	fx.Decorate(func(_ metrics.MetricRecorder, r *PrometheusRecorder) metrics.MetricRecorder {
		return r
	}),
	fx.Invoke(registerPush),
)

func registerPush(p pushParams) {
	pusher := NewPusher(p.Config.Datalake.Metrics, p.Recorder.GetRegistry())
	if pusher == nil {
		return
	}
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			grouping := map[string]string{"batch_name": p.Config.Datalake.Export.BatchName}
			if p.Environment != "" {
				grouping["environment"] = p.Environment
			}
			// A failed push must not change the outcome of the export.
			if err := pusher.Push(ctx, grouping); err != nil {
				logger.Warnf("%v", err)
			}
			return nil
		},
	})
}
