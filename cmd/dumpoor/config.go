package main

import (
	"fmt"
	"net/url"
	"os"

	"github.com/ethpandaops/dumpoor/pkg/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const maskedSecret = "********"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging config files, environment
overrides and defaults. Secrets are masked.`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)

	if err := enc.Encode(maskSecrets(*cfg)); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	return enc.Close()
}

// maskSecrets returns a copy of cfg with credentials replaced.
func maskSecrets(cfg config.Config) config.Config {
	mask := func(s *string) {
		if *s != "" {
			*s = maskedSecret
		}
	}

	mask(&cfg.Upload.FTP.Password)
	mask(&cfg.Upload.S3.AccessKeyID)
	mask(&cfg.Upload.S3.SecretAccessKey)
	mask(&cfg.Ledger.Postgres.Password)

	if u, err := url.Parse(cfg.Upload.URL); err == nil && u.User != nil {
		cfg.Upload.URL = u.Redacted()
	}

	return cfg
}
