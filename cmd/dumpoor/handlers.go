package main

import (
	"context"
	"fmt"

	"github.com/ethpandaops/dumpoor/pkg/config"
	"github.com/ethpandaops/dumpoor/pkg/ledger"
	"github.com/ethpandaops/dumpoor/pkg/upload"
	"github.com/sirupsen/logrus"
)

// progressStep is the share of the dump between two progress log lines.
const progressStep = 10

// progressLogger logs session progress in progressStep percent steps.
type progressLogger struct {
	log  logrus.FieldLogger
	last int64
}

func (p *progressLogger) OnProgress(sent, total int64) {
	if total <= 0 {
		return
	}

	pct := sent * 100 / total
	if pct < p.last+progressStep && sent != total {
		return
	}

	p.last = pct

	p.log.WithFields(logrus.Fields{
		"sent":  sent,
		"total": total,
	}).Infof("Upload progress %d%%", pct)
}

func (p *progressLogger) OnError(ev upload.ErrorEvent) {
	p.log.WithError(ev.Err).WithFields(logrus.Fields{
		"code":   ev.Code,
		"status": ev.RemoteStatus,
	}).Debug("Upload error event")
}

func (p *progressLogger) OnFinished(*upload.Result) {
	p.last = 0
}

// sessionHandlers builds the handler chain for upload sessions. The
// returned cleanup releases the ledger when one was opened.
func sessionHandlers(
	ctx context.Context,
	cfg *config.Config,
	extra ...upload.Handler,
) (upload.Handler, func(), error) {
	handlers := append([]upload.Handler{&progressLogger{log: log}}, extra...)
	cleanup := func() {}

	if cfg.Ledger.Enabled {
		store := ledger.NewStore(log, &cfg.Ledger)
		if err := store.Start(ctx); err != nil {
			return nil, nil, fmt.Errorf("starting ledger: %w", err)
		}

		handlers = append(handlers, ledger.NewRecorder(log, store))
		cleanup = func() {
			if err := store.Stop(); err != nil {
				log.WithError(err).Warn("Failed to close ledger")
			}
		}
	}

	return upload.MultiHandler(handlers...), cleanup, nil
}
