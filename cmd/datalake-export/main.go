package main

import (
	"context"
	_ "embed"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tigerroll/datalake-export/internal/app"
	"github.com/tigerroll/datalake-export/pkg/datalake/export"
	"github.com/tigerroll/datalake-export/pkg/datalake/support/util/logger"
)

// embeddedConfig is the default configuration. Values can be overridden through the .env file
// and DATALAKE_* environment variables.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

var exitCode = export.ExitCrashed

var rootCmd = &cobra.Command{
	Use:   "datalake-export [env]",
	Short: "Export the configured dataset to the data lake",
	Long: `datalake-export logs in to the data lake of the selected environment, announces a batch run,
uploads the dataset in chunks and closes the batch run.

Exit codes: 0 exported, 1 export failed, 2 failed before the export started.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		envName := export.DefaultEnvironment
		if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
			envName = strings.ToLower(strings.TrimSpace(args[0]))
		}

		envFilePath := os.Getenv("ENV_FILE_PATH")
		if envFilePath == "" {
			envFilePath = ".env"
		}

		exitCode = app.RunApplication(cmd.Context(), embeddedConfig, envFilePath, envName)
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Errorf("%v", err)
		stop()
		os.Exit(export.ExitCrashed)
	}
	stop()
	os.Exit(exitCode)
}
