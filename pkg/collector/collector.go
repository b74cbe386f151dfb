package collector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethpandaops/dumpoor/pkg/config"
	"github.com/ethpandaops/dumpoor/pkg/fsutil"
	"github.com/ethpandaops/dumpoor/pkg/metrics"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// Server is a minimal crash collector accepting multipart dump uploads.
type Server interface {
	Start(ctx context.Context) error
	Stop() error

	// Addr returns the bound listen address once started.
	Addr() string
}

var _ Server = (*server)(nil)

type server struct {
	log     logrus.FieldLogger
	cfg     *config.CollectorConfig
	metrics *metrics.Metrics

	store      *reportStore
	maxReport  int64
	limiters   *rateLimiterMap
	httpServer *http.Server
	addr       string
	wg         sync.WaitGroup
	done       chan struct{}
}

// NewServer creates a collector. m may be nil.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.CollectorConfig,
	m *metrics.Metrics,
) Server {
	return &server{
		log:     log.WithField("component", "collector"),
		cfg:     cfg,
		metrics: m,
		done:    make(chan struct{}),
	}
}

// Start prepares the storage directory and starts serving.
func (s *server) Start(_ context.Context) error {
	owner, err := fsutil.ParseOwner(s.cfg.Owner)
	if err != nil {
		return fmt.Errorf("parsing owner: %w", err)
	}

	s.maxReport, err = s.cfg.MaxReportBytes()
	if err != nil {
		return fmt.Errorf("parsing max report size: %w", err)
	}

	s.store, err = newReportStore(s.cfg.StorageDir, owner)
	if err != nil {
		return fmt.Errorf("preparing storage: %w", err)
	}

	if s.cfg.RateLimit.Enabled {
		s.limiters = newRateLimiterMap(s.cfg.RateLimit.RequestsPerMinute, s.done)
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Listen, err)
	}

	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithFields(logrus.Fields{
			"listen":  s.addr,
			"storage": s.cfg.StorageDir,
		}).Info("Collector starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *server) Stop() error {
	close(s.done)

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	return nil
}

func (s *server) Addr() string {
	return s.addr
}
