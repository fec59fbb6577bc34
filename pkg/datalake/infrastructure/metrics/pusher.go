package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/tigerroll/datalake-export/pkg/datalake/core/config"
	logger "github.com/tigerroll/datalake-export/pkg/datalake/support/util/logger"
)

// Pusher sends the collected metrics to a Prometheus Pushgateway once the export ends.
type Pusher struct {
	url      string
	jobName  string
	gatherer prometheus.Gatherer
}

// NewPusher creates a Pusher, or returns nil when no Pushgateway is configured.
func NewPusher(cfg config.MetricsConfig, gatherer prometheus.Gatherer) *Pusher {
	if cfg.PushgatewayURL == "" {
		return nil
	}
	return &Pusher{url: cfg.PushgatewayURL, jobName: cfg.JobName, gatherer: gatherer}
}

// Push replaces the metrics of the job on the gateway. A nil Pusher does nothing.
func (p *Pusher) Push(ctx context.Context, grouping map[string]string) error {
	if p == nil {
		return nil
	}
	pusher := push.New(p.url, p.jobName).Gatherer(p.gatherer)
	for name, value := range grouping {
		pusher = pusher.Grouping(name, value)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", p.url, err)
	}
	logger.Debugf("Metrics pushed to %s (job %s).", p.url, p.jobName)
	return nil
}
