package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"pecan-telemetry/src/bridge"
	"pecan-telemetry/src/broker"
	"pecan-telemetry/src/decode"
	"pecan-telemetry/src/logger"
	"pecan-telemetry/src/simulate"
)

var (
	simulateRate  int
	simulateServe string

	replayRate  float64
	replayBatch int
	replayLoop  bool
	replayServe string
)

// simulateCmd publishes synthetic frames
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Publish synthetic CAN frames",
	Long: `Publish synthetic frames for every catalog message.

With REDPANDA_BROKERS set, frames go to Redpanda. Otherwise use --serve to
expose them over a WebSocket bridge for "pecan dashboard --ws".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, closeLog := headlessLogger()
		defer closeLog()

		catalog, err := decode.LoadCatalog(appConfig.CatalogPath)
		if err != nil {
			return err
		}

		cfg := simulate.DefaultGeneratorConfig()
		cfg.Rate = simulateRate
		cfg.Topic = appConfig.Topic

		return publishFrames(log, simulateServe, func(pub broker.Broker) runner {
			return simulate.NewGenerator(catalog, pub, cfg, log)
		})
	},
}

// replayCmd publishes a recorded CSV log
var replayCmd = &cobra.Command{
	Use:   "replay <log.csv>",
	Short: "Replay a recorded CAN log",
	Long: `Replay a CSV log with timestamp, CAN id and data bytes per row.

Rows that cannot be parsed are skipped. Frames are sent in batches paced
by --rate (frames per second).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log, closeLog := headlessLogger()
		defer closeLog()

		if replayRate <= 0 {
			return errors.New("--rate must be positive")
		}

		frames, skipped, err := simulate.LoadCSVFile(args[0])
		if err != nil {
			return err
		}
		if skipped > 0 {
			log.Info("Skipped %d unparseable rows", skipped)
		}

		cfg := simulate.DefaultReplayConfig()
		cfg.Topic = appConfig.Topic
		cfg.Loop = replayLoop
		cfg.BatchSize = replayBatch
		cfg.Interval = time.Duration(float64(time.Second) * float64(replayBatch) / replayRate)

		return publishFrames(log, replayServe, func(pub broker.Broker) runner {
			return simulate.NewReplayer(frames, pub, cfg, log)
		})
	},
}

type runner interface {
	Run(ctx context.Context) error
}

// publishFrames runs a frame source against Redpanda in distributed mode,
// or against an in-memory broker served over WebSocket at addr.
func publishFrames(log logger.Logger, addr string, build func(broker.Broker) runner) error {
	ctx, cancel := signalContext()
	defer cancel()

	var brk broker.Broker
	if len(appConfig.RedpandaBrokers) > 0 {
		rp, err := broker.NewRedpandaBroker(appConfig.RedpandaBrokers, log, broker.WithClientID("pecan-simulator"))
		if err != nil {
			return fmt.Errorf("failed to create Redpanda broker: %w", err)
		}
		brk = rp
	} else {
		if addr == "" {
			return errors.New("no destination: set REDPANDA_BROKERS or pass --serve")
		}
		brk = broker.NewInMemoryBroker()
	}
	defer brk.Close()

	if addr != "" {
		srv := &http.Server{Addr: addr, Handler: bridge.NewServer(brk, log)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Bridge server failed: %v", err)
				cancel()
			}
		}()
		defer srv.Close()
		log.Info("Serving frames on ws://%s", addr)
	}

	err := build(brk).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func init() {
	simulateCmd.Flags().IntVar(&simulateRate, "rate", simulate.DefaultGeneratorConfig().Rate, "frames per second")
	simulateCmd.Flags().StringVar(&simulateServe, "serve", "", "serve frames over WebSocket at this address (e.g. :9080)")

	def := simulate.DefaultReplayConfig()
	replayCmd.Flags().Float64Var(&replayRate, "rate", 500, "frames per second")
	replayCmd.Flags().IntVar(&replayBatch, "batch", def.BatchSize, "frames per batch")
	replayCmd.Flags().BoolVar(&replayLoop, "loop", def.Loop, "restart from the beginning at the end of the log")
	replayCmd.Flags().StringVar(&replayServe, "serve", "", "serve frames over WebSocket at this address (e.g. :9080)")
}
