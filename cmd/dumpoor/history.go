package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/docker/go-units"
	"github.com/ethpandaops/dumpoor/pkg/ledger"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded upload attempts",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of attempts to show (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if !cfg.Ledger.Enabled {
		return fmt.Errorf("ledger is not enabled in config")
	}

	ctx := cmd.Context()

	store := ledger.NewStore(log, &cfg.Ledger)
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("starting ledger: %w", err)
	}

	defer func() {
		if err := store.Stop(); err != nil {
			log.WithError(err).Warn("Failed to close ledger")
		}
	}()

	attempts, err := store.List(ctx, historyLimit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "ID\tSTARTED\tFILE\tTRANSPORT\tSTATUS\tREMOTE\tSIZE\tDURATION\tANSWER")

	for _, a := range attempts {
		status := a.Status
		if a.Code != "" {
			status += " (" + a.Code + ")"
		}

		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			a.ID,
			a.StartedAt.Format(time.RFC3339),
			filepath.Base(a.File),
			a.Transport,
			status,
			a.RemoteStatus,
			units.HumanSize(float64(a.BytesTotal)),
			a.Duration.Round(time.Millisecond),
			a.Answer,
		)
	}

	return tw.Flush()
}
