package metrics

import (
	"github.com/ethpandaops/dumpoor/pkg/upload"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dumpoor"

// Metrics holds the dumpoor collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	sessions      *prometheus.CounterVec
	bytesSent     *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	progressing   prometheus.Gauge
	reportsStored *prometheus.CounterVec
}

// New creates and registers the dumpoor metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Total number of finished upload sessions",
			},
			[]string{"transport", "status"},
		),
		bytesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_sent_total",
				Help:      "Total number of dump bytes handed to the network",
			},
			[]string{"transport"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_duration_seconds",
				Help:      "Duration of upload sessions",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"transport"},
		),
		progressing: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "session_in_progress",
				Help:      "1 while an upload session is transferring bytes",
			},
		),
		reportsStored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collector_reports_total",
				Help:      "Total number of crash reports received by the collector",
			},
			[]string{"route", "result"},
		),
	}

	m.registry.MustRegister(
		m.sessions,
		m.bytesSent,
		m.duration,
		m.progressing,
		m.reportsStored,
	)

	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ReportReceived counts a report handled by the collector.
func (m *Metrics) ReportReceived(route string, stored bool) {
	result := "stored"
	if !stored {
		result = "rejected"
	}

	m.reportsStored.WithLabelValues(route, result).Inc()
}

// Handler returns an upload.Handler that feeds session events into m.
func (m *Metrics) Handler() upload.Handler {
	return &sessionObserver{m: m}
}

type sessionObserver struct {
	m       *Metrics
	started bool
}

func (o *sessionObserver) OnProgress(int64, int64) {
	if !o.started {
		o.started = true
		o.m.progressing.Set(1)
	}
}

func (o *sessionObserver) OnError(upload.ErrorEvent) {}

func (o *sessionObserver) OnFinished(res *upload.Result) {
	o.started = false
	o.m.progressing.Set(0)

	o.m.sessions.WithLabelValues(res.Transport, string(res.Status)).Inc()
	o.m.bytesSent.WithLabelValues(res.Transport).Add(float64(res.BytesSent))
	o.m.duration.WithLabelValues(res.Transport).Observe(res.Duration.Seconds())
}
