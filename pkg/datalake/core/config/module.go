package config

import "go.uber.org/fx"

// NewExportConfigProvider extracts *ExportConfig so that pipeline components depend only on it.
func NewExportConfigProvider(cfg *Config) *ExportConfig {
	return &cfg.Datalake.Export
}

// Module provides configuration-related components to Fx.
var Module = fx.Options(
	fx.Provide(NewConfigProvider),
	fx.Provide(NewExportConfigProvider),
	fx.Provide(func() EnvironmentExpander {
		return NewOsEnvironmentExpander()
	}),
)
