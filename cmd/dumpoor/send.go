package main

import (
	"fmt"

	"github.com/ethpandaops/dumpoor/pkg/dumps"
	"github.com/ethpandaops/dumpoor/pkg/upload"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Upload every dump in the dump directory",
	Long: `Upload all dumps found in dumps.dir, oldest first, one at a time.
Delivered dumps are deleted; failed ones stay for the next run.`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	pending, err := dumps.NewLister(&cfg.Dumps).List()
	if err != nil {
		return err
	}

	if len(pending) == 0 {
		log.WithField("dir", cfg.Dumps.Dir).Info("No dumps to send")

		return nil
	}

	uploader, err := upload.NewFromConfig(ctx, log, cfg)
	if err != nil {
		return fmt.Errorf("creating uploader: %w", err)
	}

	handler, cleanup, err := sessionHandlers(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	summary, err := dumps.NewSender(log, uploader, handler).Send(ctx, pending)
	if err != nil {
		return err
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d dumps failed to upload", summary.Failed, len(pending))
	}

	return nil
}
