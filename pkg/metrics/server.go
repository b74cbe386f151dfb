package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

// Server exposes the metrics over HTTP.
type Server interface {
	Start(ctx context.Context) error
	Stop() error

	// Addr returns the bound listen address once started.
	Addr() string
}

var _ Server = (*server)(nil)

type server struct {
	log        logrus.FieldLogger
	listen     string
	metrics    *Metrics
	httpServer *http.Server
	addr       string
	wg         sync.WaitGroup
}

// NewServer creates a metrics server listening on listen.
func NewServer(log logrus.FieldLogger, listen string, m *Metrics) Server {
	return &server{
		log:     log.WithField("component", "metrics"),
		listen:  listen,
		metrics: m,
	}
}

func (s *server) Start(_ context.Context) error {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))

	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.listen, err)
	}

	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("Metrics server error")
		}
	}()

	s.log.WithField("addr", s.addr).Info("Metrics server started")

	return nil
}

func (s *server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	s.wg.Wait()

	return err
}

func (s *server) Addr() string {
	return s.addr
}
