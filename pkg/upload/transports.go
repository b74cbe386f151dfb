package upload

import (
	"context"
	"fmt"

	"github.com/ethpandaops/dumpoor/pkg/config"
	"github.com/sirupsen/logrus"
)

// NewFromConfig builds an Uploader with every transport wired and the
// endpoint set from cfg.Upload.URL (when present).
func NewFromConfig(ctx context.Context, log logrus.FieldLogger, cfg *config.Config) (*Uploader, error) {
	httpT, err := NewHTTPTransport(log, &cfg.Upload.HTTP, nil)
	if err != nil {
		return nil, fmt.Errorf("creating http transport: %w", err)
	}

	ftpT := NewFTPTransport(log, &cfg.Upload.FTP, StaticAuthenticator{
		Username: cfg.Upload.FTP.Username,
		Password: cfg.Upload.FTP.Password,
	})

	s3T := NewS3Transport(log, &cfg.Upload.S3)

	bps, err := cfg.Upload.BytesPerSecond()
	if err != nil {
		return nil, fmt.Errorf("parsing rate limit: %w", err)
	}

	fields := make([]Field, 0, len(cfg.Upload.HTTP.ExtraFields)+4)
	for _, f := range cfg.Upload.HTTP.ExtraFields {
		fields = append(fields, Field{Name: f.Name, Value: f.Value})
	}

	if cfg.Upload.HTTP.IncludeHostInfo {
		hostFields, err := HostFields(ctx)
		if err != nil {
			log.WithError(err).Warn("Host info unavailable, sending dumps without it")
		} else {
			fields = append(fields, hostFields...)
		}
	}

	u := New(log, Options{
		Product: Product{
			Name:    cfg.Product.Name,
			Version: cfg.Product.Version,
		},
		Fields:         fields,
		BytesPerSecond: bps,
	}, httpT, ftpT, s3T)

	if cfg.Upload.URL != "" {
		if err := u.SetURL(cfg.Upload.URL); err != nil {
			return nil, err
		}
	}

	return u, nil
}
