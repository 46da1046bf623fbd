package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"pecan-telemetry/src/bridge"
	"pecan-telemetry/src/broker"
	"pecan-telemetry/src/pipeline"
	"pecan-telemetry/src/tui"
)

var (
	dashboardRecord bool
	dashboardWS     string
)

// dashboardCmd runs the live dashboard
var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show live telemetry in the terminal",
	Long: `Show the live telemetry dashboard.

Local Mode (default): frames come from the built-in simulator
Distributed Mode: frames are consumed from Redpanda
--ws URL: frames come from a remote WebSocket bridge

Use --record to also archive every sample to Postgres (needs POSTGRES_DSN).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, closeLog := quietLogger()
		defer closeLog()

		ctx, cancel := signalContext()
		defer cancel()

		opts := pipeline.Options{
			Record: dashboardRecord,
			// Dashboards must not share a group with headless ingest or each
			// would see only part of the stream.
			GroupID: "pecan-dashboard-" + uuid.NewString(),
		}
		if dashboardWS != "" {
			opts.Broker = broker.NewInMemoryBroker()
		}

		p, err := pipeline.New(ctx, appConfig, log, opts)
		if err != nil {
			return fmt.Errorf("failed to create pipeline: %w", err)
		}
		defer p.Close()

		p.Start(ctx)
		label := sourceLabel(p)
		if dashboardWS != "" {
			src := bridge.NewSource(dashboardWS, p.Broker, log, bridge.WithSourceTopic(appConfig.Topic))
			go src.Run(ctx)
			label = dashboardWS
		}

		err = tui.Run(p.Store, label)
		cancel()
		p.Wait()
		return err
	},
}

func init() {
	dashboardCmd.Flags().BoolVar(&dashboardRecord, "record", false, "archive samples to Postgres")
	dashboardCmd.Flags().StringVar(&dashboardWS, "ws", "", "read frames from a WebSocket bridge URL instead")
}
