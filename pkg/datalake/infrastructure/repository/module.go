package repository

import (
	"context"
	"strings"

	"go.uber.org/fx"

	"github.com/tigerroll/datalake-export/pkg/datalake/core/config"
)

// NewRunRepository creates the repository selected by cfg.Type. An empty type or "inmemory"
// keeps the history in memory.
func NewRunRepository(cfg config.RepositoryConfig) (RunRepository, error) {
	switch t := strings.ToLower(cfg.Type); t {
	case "", "inmemory":
		return NewInMemoryRunRepository(), nil
	default:
		return Open(t, cfg.Database)
	}
}

func newLifecycleRunRepository(lc fx.Lifecycle, cfg *config.Config) (RunRepository, error) {
	repo, err := NewRunRepository(cfg.Datalake.Repository)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error {
		return repo.Close()
	}})
	return repo, nil
}

// Module provides the configured RunRepository and closes it on shutdown.
var Module = fx.Options(
	fx.Provide(newLifecycleRunRepository),
)
