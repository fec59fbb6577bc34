package export

import (
	"go.uber.org/fx"

	"github.com/tigerroll/datalake-export/pkg/datalake/auth"
	"github.com/tigerroll/datalake-export/pkg/datalake/batchrun"
	"github.com/tigerroll/datalake-export/pkg/datalake/client"
	"github.com/tigerroll/datalake-export/pkg/datalake/core/config"
	"github.com/tigerroll/datalake-export/pkg/datalake/core/metrics"
	"github.com/tigerroll/datalake-export/pkg/datalake/delivery"
	"github.com/tigerroll/datalake-export/pkg/datalake/infrastructure/repository"
	"github.com/tigerroll/datalake-export/pkg/datalake/source"
	"github.com/tigerroll/datalake-export/pkg/datalake/support/util/logger"
)

// DefaultEnvironment is selected when no environment name is supplied.
const DefaultEnvironment = "dev"

type environmentParams struct {
	fx.In
	Config *config.Config
	Name   string `name:"environmentName" optional:"true"`
}

// NewEnvironmentProvider resolves the selected environment. An unknown environment fails startup.
func NewEnvironmentProvider(p environmentParams) (config.EnvironmentConfig, error) {
	name := p.Name
	if name == "" {
		name = DefaultEnvironment
	}
	env, err := p.Config.Environment(name)
	if err != nil {
		return config.EnvironmentConfig{}, err
	}
	logger.Debugf("Environment %s: %v", name, p.Config.MaskedEnvironment(env))
	return env, nil
}

// NewAPIProvider creates the REST client for the selected environment.
func NewAPIProvider(env config.EnvironmentConfig, cfg *config.ExportConfig) (client.API, error) {
	c, err := client.NewClient(env.BaseURL, cfg.HTTPTimeout(), nil)
	if err != nil {
		return nil, err
	}
	logger.Infof("Exporting to %s", c.BaseURL())
	return c, nil
}

func newAuthenticator(api client.API, recorder metrics.MetricRecorder, tracer metrics.Tracer) Authenticator {
	return auth.NewSessionAuthenticator(api, recorder, tracer)
}

func newBatchManager(api client.API, cfg *config.ExportConfig, recorder metrics.MetricRecorder, tracer metrics.Tracer) BatchManager {
	return batchrun.NewManager(api, cfg, recorder, tracer)
}

func newDeliverer(api client.API, cfg *config.ExportConfig, recorder metrics.MetricRecorder, tracer metrics.Tracer) Deliverer {
	return delivery.NewEngine(api, cfg, recorder, tracer)
}

type orchestratorParams struct {
	fx.In
	Config        *config.ExportConfig
	Environment   config.EnvironmentConfig
	Authenticator Authenticator
	Batches       BatchManager
	Delivery      Deliverer
	Source        source.Source
	Runs          repository.RunRepository
	Recorder      metrics.MetricRecorder
	Tracer        metrics.Tracer
}

// NewOrchestratorProvider assembles the Orchestrator from the application graph.
func NewOrchestratorProvider(p orchestratorParams) *Orchestrator {
	return NewOrchestrator(p.Config, p.Environment, Dependencies{
		Authenticator: p.Authenticator,
		Batches:       p.Batches,
		Delivery:      p.Delivery,
		Source:        p.Source,
		Runs:          p.Runs,
		Recorder:      p.Recorder,
		Tracer:        p.Tracer,
	})
}

// Module provides the export pipeline for the selected environment.
var Module = fx.Options(
	fx.Provide(
		NewEnvironmentProvider,
		NewAPIProvider,
		newAuthenticator,
		newBatchManager,
		newDeliverer,
		NewOrchestratorProvider,
	),
)
