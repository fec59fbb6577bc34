// Package source provides the record sources the export consumes. A source yields the
// ordered record sequence once; the pipeline never validates or transforms its contents.
package source

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tigerroll/datalake-export/pkg/datalake/core/config"
	model "github.com/tigerroll/datalake-export/pkg/datalake/core/domain/model"
	"github.com/tigerroll/datalake-export/pkg/datalake/support/util/configbinder"
	"github.com/tigerroll/datalake-export/pkg/datalake/support/util/exception"
	"github.com/tigerroll/datalake-export/pkg/datalake/support/util/logger"
)

// Source yields the records of one export.
type Source interface {
	Read(ctx context.Context) ([]model.Record, error)
}

// Properties are the settings shared by the file based sources.
type Properties struct {
	Path string `yaml:"path"`
	// Schema is "datapoint" (default) or "generic" for the json source.
	Schema string `yaml:"schema"`
	// Parallelism is the parquet reader's column parallelism.
	Parallelism int64 `yaml:"parallelism"`
}

// Factory creates a Source from bound properties.
type Factory func(props Properties) (Source, error)

var (
	registry   = make(map[string]Factory)
	registryMu sync.RWMutex
)

// Register makes a source type available to New.
func Register(sourceType string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[sourceType]; exists {
		logger.Warnf("Source type '%s' already registered. Overwriting.", sourceType)
	}
	registry[sourceType] = factory
}

// Types lists the registered source types.
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// New creates the source selected by cfg.Type with cfg.Properties bound onto Properties.
func New(cfg config.SourceConfig) (Source, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, exception.NewBatchErrorf("source", "unknown source type '%s' (known: %v)", cfg.Type, Types())
	}

	var props Properties
	if err := configbinder.BindProperties(cfg.Properties, &props); err != nil {
		return nil, exception.NewBatchError("source", fmt.Sprintf("invalid properties for source '%s'", cfg.Type), err, false, false)
	}
	return factory(props)
}

func init() {
	Register("static", func(Properties) (Source, error) { return NewStaticSource(), nil })
	Register("json", func(p Properties) (Source, error) { return NewJSONFileSource(p) })
	Register("parquet", func(p Properties) (Source, error) { return NewParquetFileSource(p) })
}
