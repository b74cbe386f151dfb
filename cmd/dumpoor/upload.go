package main

import (
	"errors"
	"fmt"

	"github.com/ethpandaops/dumpoor/pkg/upload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	uploadFile string
	uploadURL  string
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload a single crash dump",
	Long: `Upload one dump file to the configured (or given) collector URL.
The dump is deleted once the collector accepts it. The command exits
non-zero when the upload fails.`,
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().StringVar(&uploadFile, "file", "", "path to the dump file")
	uploadCmd.Flags().StringVar(&uploadURL, "url", "",
		"collector URL (http, https, ftp or s3); overrides upload.url")

	_ = uploadCmd.MarkFlagRequired("file")
}

func runUpload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if uploadURL != "" {
		cfg.Upload.URL = uploadURL
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

	handler, cleanup, err := sessionHandlers(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	session, err := uploader.Submit(ctx, uploadFile, handler)
	if err != nil {
		if errors.Is(err, upload.ErrDumpNotFound) {
			return fmt.Errorf("dump %s does not exist", uploadFile)
		}

		return fmt.Errorf("submitting dump: %w", err)
	}

	<-session.Done()

	res := session.Result()

	fields := logrus.Fields{
		"file":     res.File,
		"endpoint": res.Endpoint,
		"status":   res.RemoteStatus,
		"answer":   string(res.Body),
	}

	if !res.Succeeded() {
		log.WithFields(fields).WithField("code", res.Code).Error("Upload failed")

		return fmt.Errorf("upload failed: %w", res.Err)
	}

	log.WithFields(fields).WithField("deleted", res.Deleted).Info("Upload finished")

	return nil
}
