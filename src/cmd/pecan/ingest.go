package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pecan-telemetry/src/bridge"
	"pecan-telemetry/src/broker"
	"pecan-telemetry/src/pipeline"
)

var (
	ingestRecord bool
	ingestWS     string
	ingestEvery  time.Duration
	ingestStart  bool
)

// ingestCmd runs the pipeline without a UI
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Decode frames headlessly and log store statistics",
	Long: `Run the ingest pipeline without a dashboard.

Useful on the pit server to archive a session (--record) or to check that
frames are flowing. Store statistics are logged periodically.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, closeLog := headlessLogger()
		defer closeLog()

		ctx, cancel := signalContext()
		defer cancel()

		opts := pipeline.Options{Record: ingestRecord, FromStart: ingestStart}
		if ingestWS != "" {
			opts.Broker = broker.NewInMemoryBroker()
		}

		p, err := pipeline.New(ctx, appConfig, log, opts)
		if err != nil {
			return fmt.Errorf("failed to create pipeline: %w", err)
		}
		defer p.Close()

		log.Info("Starting ingest in %s mode (topic %s, window %v)", p.Mode, appConfig.Topic, p.Store.RetentionWindow())
		p.Start(ctx)
		if ingestWS != "" {
			src := bridge.NewSource(ingestWS, p.Broker, log, bridge.WithSourceTopic(appConfig.Topic))
			go src.Run(ctx)
		}

		ticker := time.NewTicker(ingestEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Info("Shutting down...")
				p.Wait()
				return nil
			case <-ticker.C:
				st := p.Store.Stats()
				log.Info("Messages: %d, samples: %d, memory: %.2f MB", st.TotalMessages, st.TotalSamples, st.MemoryEstimateMB)
				if p.Recorder != nil {
					log.Info("Archived: %d, dropped: %d", p.Recorder.Saved(), p.Recorder.Dropped())
				}
			}
		}
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestRecord, "record", false, "archive samples to Postgres")
	ingestCmd.Flags().StringVar(&ingestWS, "ws", "", "read frames from a WebSocket bridge URL instead")
	ingestCmd.Flags().BoolVar(&ingestStart, "from-start", false, "read the Redpanda topic from its first retained frame")
	ingestCmd.Flags().DurationVar(&ingestEvery, "stats-every", 10*time.Second, "how often to log store statistics")
}
