package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"pecan-telemetry/src/bridge"
	"pecan-telemetry/src/mcp"
	"pecan-telemetry/src/pipeline"
)

var (
	mcpRecord  bool
	bridgeAddr string
)

// mcpCmd serves the telemetry store to LLM clients
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve live telemetry over MCP (stdio)",
	Long: `Run the ingest pipeline and expose the telemetry store as MCP tools
over stdio. With POSTGRES_DSN set and --record, archived samples are also
queryable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// stdout carries the protocol.
		log, closeLog := quietLogger()
		defer closeLog()

		ctx, cancel := signalContext()
		defer cancel()

		p, err := pipeline.New(ctx, appConfig, log, pipeline.Options{Record: mcpRecord, GroupID: "pecan-mcp"})
		if err != nil {
			return fmt.Errorf("failed to create pipeline: %w", err)
		}
		defer p.Close()
		p.Start(ctx)

		opts := []mcp.Option{mcp.WithLogger(log)}
		if p.Archive != nil {
			opts = append(opts, mcp.WithArchive(p.Archive))
		}
		err = mcp.NewServer(p.Store, opts...).Run()
		cancel()
		p.Wait()
		return err
	},
}

// bridgeCmd relays broker topics to WebSocket clients
var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Relay CAN frames and stats to WebSocket clients",
	Long: `Relay the CAN frame and system stats topics to every connected
WebSocket client. The ingest pipeline runs too, so in local mode the
simulator feeds the bridge.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, closeLog := headlessLogger()
		defer closeLog()

		ctx, cancel := signalContext()
		defer cancel()

		p, err := pipeline.New(ctx, appConfig, log, pipeline.Options{GroupID: "pecan-bridge-ingest"})
		if err != nil {
			return fmt.Errorf("failed to create pipeline: %w", err)
		}
		defer p.Close()
		p.Start(ctx)

		srv := &http.Server{Addr: bridgeAddr, Handler: bridge.NewServer(p.Broker, log)}
		go func() {
			<-ctx.Done()
			srv.Close()
		}()

		log.Info("Bridge listening on %s (%s mode)", bridgeAddr, p.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("bridge server failed: %w", err)
		}
		p.Wait()
		return nil
	},
}

func init() {
	mcpCmd.Flags().BoolVar(&mcpRecord, "record", false, "archive samples to Postgres and expose them")
	bridgeCmd.Flags().StringVar(&bridgeAddr, "addr", bridge.DefaultAddr, "listen address")
}
