package main

import (
	"fmt"

	"github.com/ethpandaops/dumpoor/pkg/collector"
	"github.com/ethpandaops/dumpoor/pkg/metrics"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a stub crash collector",
	Long: `Run a local collector that accepts Socorro (/submit) and Caliper
(/crash_upload) multipart reports and stores them in collector.storage_dir.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	srv := collector.NewServer(log, &cfg.Collector, m)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting collector: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gCtx.Done()

		log.Info("Shutting down collector")

		return srv.Stop()
	})

	if m != nil {
		metricsServer := metrics.NewServer(log, cfg.Metrics.Listen, m)
		if err := metricsServer.Start(gCtx); err != nil {
			stop()
			_ = g.Wait()

			return fmt.Errorf("starting metrics server: %w", err)
		}

		g.Go(func() error {
			<-gCtx.Done()

			return metricsServer.Stop()
		})
	}

	return g.Wait()
}
