package main

import (
	"fmt"

	"github.com/ethpandaops/dumpoor/pkg/dumps"
	"github.com/ethpandaops/dumpoor/pkg/metrics"
	"github.com/ethpandaops/dumpoor/pkg/upload"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var watchSendExisting bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Upload dumps as they appear in the dump directory",
	Long: `Watch dumps.dir and upload each new dump once it has not been
written to for dumps.debounce. Serves prometheus metrics on
metrics.listen when metrics.enabled is set.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVar(&watchSendExisting, "send-existing", true,
		"upload dumps already present when the watcher starts")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	uploader, err := upload.NewFromConfig(ctx, log, cfg)
	if err != nil {
		return fmt.Errorf("creating uploader: %w", err)
	}

	var extra []upload.Handler

	var metricsServer metrics.Server

	if cfg.Metrics.Enabled {
		m := metrics.New()
		extra = append(extra, m.Handler())
		metricsServer = metrics.NewServer(log, cfg.Metrics.Listen, m)
	}

	handler, cleanup, err := sessionHandlers(ctx, cfg, extra...)
	if err != nil {
		return err
	}
	defer cleanup()

	watcher := dumps.NewWatcher(log, &cfg.Dumps, dumps.NewSender(log, uploader, handler),
		dumps.WatcherOptions{SendExisting: watchSendExisting})

	g, gCtx := errgroup.WithContext(ctx)

	if metricsServer != nil {
		if err := metricsServer.Start(gCtx); err != nil {
			return fmt.Errorf("starting metrics server: %w", err)
		}

		g.Go(func() error {
			<-gCtx.Done()

			return metricsServer.Stop()
		})
	}

	if err := watcher.Start(gCtx); err != nil {
		stop()
		_ = g.Wait()

		return fmt.Errorf("starting watcher: %w", err)
	}

	g.Go(func() error {
		<-gCtx.Done()

		log.Info("Shutting down watcher")

		return watcher.Stop()
	})

	return g.Wait()
}
