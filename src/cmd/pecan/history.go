package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"pecan-telemetry/src/config"
	"pecan-telemetry/src/store"
)

var (
	historySince time.Duration
	historyLimit int
)

// historyCmd prints archived samples
var historyCmd = &cobra.Command{
	Use:   "history <message-id>",
	Short: "Print archived samples from Postgres",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if appConfig.PostgresDSN == "" {
			return fmt.Errorf("history requires %s", config.EnvPostgresDSN)
		}

		ctx, cancel := signalContext()
		defer cancel()

		pg, err := store.NewPostgresStore(ctx, appConfig.PostgresDSN)
		if err != nil {
			return err
		}
		defer pg.Close()

		since := time.Now().Add(-historySince).UnixMilli()
		samples, err := pg.GetSamples(ctx, args[0], since, historyLimit)
		if err != nil {
			return fmt.Errorf("failed to query archive: %w", err)
		}

		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("TIME", "SIGNALS")
		for _, s := range samples {
			names := make([]string, 0, len(s.Signals))
			for name := range s.Signals {
				names = append(names, name)
			}
			sort.Strings(names)

			parts := make([]string, 0, len(names))
			for _, name := range names {
				sig := s.Signals[name]
				parts = append(parts, fmt.Sprintf("%s=%g%s", name, sig.Reading, sig.Unit))
			}
			ts := time.UnixMilli(s.Timestamp).Format("15:04:05.000")
			t.Row(ts, strings.Join(parts, " "))
		}
		fmt.Fprintln(cmd.OutOrStdout(), t.String())
		return nil
	},
}

func init() {
	historyCmd.Flags().DurationVar(&historySince, "since", time.Hour, "how far back to look")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 100, "maximum rows")
}
