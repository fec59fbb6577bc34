// Package app assembles the export application with uber-fx and runs it once.
package app

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/datalake-export/pkg/datalake/core/config"
	"github.com/tigerroll/datalake-export/pkg/datalake/core/metrics"
	"github.com/tigerroll/datalake-export/pkg/datalake/export"
	infraMetrics "github.com/tigerroll/datalake-export/pkg/datalake/infrastructure/metrics"
	"github.com/tigerroll/datalake-export/pkg/datalake/infrastructure/repository"
	"github.com/tigerroll/datalake-export/pkg/datalake/infrastructure/tracing"
	"github.com/tigerroll/datalake-export/pkg/datalake/source"
	"github.com/tigerroll/datalake-export/pkg/datalake/support/util/logger"
)

const (
	startTimeout = 30 * time.Second
	stopTimeout  = 30 * time.Second
)

// exitCodes carries the exit code of the finished export run. It is buffered so the export
// goroutine never blocks on it.
type exitCodes chan int

func newExitCodes() exitCodes {
	return make(exitCodes, 1)
}

// Options returns the application graph. extra options are appended last, so they may
// replace providers (e.g. fx.Decorate in tests).
func Options(appCtx context.Context, embeddedConfig config.EmbeddedConfig, envFilePath, envName string, extra ...fx.Option) fx.Option {
	return fx.Options(
		fx.Supply(
			embeddedConfig,
			fx.Annotate(envFilePath, fx.ResultTags(`name:"envFilePath"`)),
			fx.Annotate(envName, fx.ResultTags(`name:"environmentName"`)),
			fx.Annotate(appCtx, fx.As(new(context.Context)), fx.ResultTags(`name:"appCtx"`)),
		),
		logger.Module,
		config.Module,
		metrics.Module,
		infraMetrics.Module,
		tracing.Module,
		repository.Module,
		source.Module,
		export.Module,

		fx.Provide(newExitCodes),
		fx.Invoke(fx.Annotate(startExport, fx.ParamTags(
			"",              // lc fx.Lifecycle
			"",              // shutdowner fx.Shutdowner
			"",              // orchestrator *export.Orchestrator
			"",              // codes exitCodes
			`name:"appCtx"`, // appCtx context.Context
		))),
		fx.Options(extra...),
	)
}

// RunApplication runs the export once and returns the process exit code:
// export.ExitSuccess, export.ExitFailed, or export.ExitCrashed when the application could not be
// assembled or started.
// A shutdown request (SIGINT, SIGTERM) cancels the run; the exit code is still the one of the
// export, which logs out before it returns.
func RunApplication(appCtx context.Context, embeddedConfig config.EmbeddedConfig, envFilePath, envName string, extra ...fx.Option) (code int) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Panic recovered during application startup: %v", r)
			code = export.ExitCrashed
		}
	}()

	runCtx, cancelRun := context.WithCancel(appCtx)
	defer cancelRun()

	var codes exitCodes
	app := fx.New(Options(runCtx, embeddedConfig, envFilePath, envName, append(extra[:len(extra):len(extra)], fx.Populate(&codes))...))
	if err := app.Err(); err != nil {
		logger.Errorf("Failed to assemble application: %v", err)
		return export.ExitCrashed
	}

	startCtx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		logger.Errorf("Failed to start application: %v", err)
		return export.ExitCrashed
	}

	select {
	case code = <-codes:
	case sig := <-app.Wait():
		select {
		case code = <-codes:
		default:
			logger.Warnf("Shutdown requested (%v), cancelling the export.", sig.Signal)
			cancelRun()
			code = <-codes
		}
	}

	stopCtx, cancelStop := context.WithTimeout(context.Background(), stopTimeout)
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		logger.Warnf("Application stopped with errors: %v", err)
	}
	return code
}

// startExport runs the orchestrator in the background once the application has started,
// publishes the run's exit code on codes and shuts the application down.
func startExport(lc fx.Lifecycle, shutdowner fx.Shutdowner, orchestrator *export.Orchestrator, codes exitCodes, appCtx context.Context) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				code := export.ExitCrashed
				defer func() {
					if r := recover(); r != nil {
						logger.Errorf("Panic recovered in export: %v", r)
						code = export.ExitCrashed
					}
					codes <- code
					logger.Infof("Requesting application shutdown (exit code %d).", code)
					if err := shutdowner.Shutdown(fx.ExitCode(code)); err != nil {
						logger.Errorf("Failed to shutdown application: %v", err)
					}
				}()

				result := orchestrator.Run(appCtx)
				code = result.ExitCode()
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			logger.Infof("Application is shutting down.")
			return nil
		},
	})
}
