package source

import (
	"go.uber.org/fx"

	"github.com/tigerroll/datalake-export/pkg/datalake/core/config"
)

// NewSourceProvider creates the configured Source.
func NewSourceProvider(cfg *config.Config) (Source, error) {
	return New(cfg.Datalake.Source)
}

// Module provides the configured record source.
var Module = fx.Options(
	fx.Provide(NewSourceProvider),
)
