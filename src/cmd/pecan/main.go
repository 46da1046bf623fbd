// Package main provides the pecan CLI: the live telemetry dashboard and the
// headless services around it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pecan-telemetry/src/config"
	"pecan-telemetry/src/logger"
	"pecan-telemetry/src/pipeline"
)

var appConfig *config.Config

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pecan",
	Short: "PECAN - live CAN telemetry for the race car",
	Long: `PECAN decodes CAN frames from the car and keeps a rolling, in-memory
history of every message for the pit dashboard and LLM tools.

It supports two modes:
- Local Mode: in-memory broker fed by the built-in simulator (default)
- Distributed Mode: frames consumed from Redpanda

Mode is auto-detected based on the REDPANDA_BROKERS environment variable.
Settings may also come from a TOML file (PECAN_CONFIG, default
~/.config/pecan/config.toml); environment variables win.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		appConfig, err = config.LoadFromEnv()
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd, ingestCmd, simulateCmd, replayCmd, mcpCmd, bridgeCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, WrapError(err))
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// headlessLogger logs to the rotating file when PECAN_LOG_FILE is set and
// to the console otherwise.
func headlessLogger() (logger.Logger, func()) {
	if appConfig.LogFile != "" {
		fl := logger.NewFileLogger(appConfig.LogFile)
		return fl, func() { fl.Close() }
	}
	return logger.NewConsoleLogger(), func() {}
}

// quietLogger is for commands that own the terminal or stdio: the file
// logger when configured, otherwise nothing.
func quietLogger() (logger.Logger, func()) {
	if appConfig.LogFile != "" {
		fl := logger.NewFileLogger(appConfig.LogFile)
		return fl, func() { fl.Close() }
	}
	return logger.NewSilentLogger(), func() {}
}

// sourceLabel describes where a pipeline's frames come from.
func sourceLabel(p *pipeline.Pipeline) string {
	if p.Mode == pipeline.DistributedMode {
		return fmt.Sprintf("redpanda/%s", appConfig.Topic)
	}
	return "simulator"
}
