package dumps

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethpandaops/dumpoor/pkg/upload"
	"github.com/sirupsen/logrus"
)

// Submitter starts upload sessions. *upload.Uploader implements it.
type Submitter interface {
	Submit(ctx context.Context, path string, h upload.Handler) (*upload.Session, error)
}

// Summary reports the outcome of a Send run.
type Summary struct {
	Sent    int
	Failed  int
	Skipped int
	Results []*upload.Result
}

// Sender pushes dumps through a single uploader one at a time.
type Sender struct {
	log      logrus.FieldLogger
	uploader Submitter
	handler  upload.Handler
}

// NewSender creates a Sender. h receives the events of every session and
// may be nil.
func NewSender(log logrus.FieldLogger, uploader Submitter, h upload.Handler) *Sender {
	return &Sender{
		log:      log.WithField("component", "sender"),
		uploader: uploader,
		handler:  h,
	}
}

// SendOne uploads a single dump and waits for its session to finish.
func (s *Sender) SendOne(ctx context.Context, path string) (*upload.Result, error) {
	session, err := s.uploader.Submit(ctx, path, s.handler)
	if err != nil {
		return nil, err
	}

	return session.Wait(ctx)
}

// Send uploads dumps in order. Each session finishes before the next one is
// submitted. Dumps that disappeared in the meantime are skipped.
func (s *Sender) Send(ctx context.Context, dumps []Dump) (*Summary, error) {
	summary := &Summary{Results: make([]*upload.Result, 0, len(dumps))}

	for i, d := range dumps {
		log := s.log.WithFields(logrus.Fields{
			"file":  d.Path,
			"index": i + 1,
			"total": len(dumps),
		})

		res, err := s.SendOne(ctx, d.Path)
		if err != nil {
			var dumpErr *upload.DumpError
			if errors.As(err, &dumpErr) {
				log.WithError(err).Warn("Skipping unreadable dump")

				summary.Skipped++

				continue
			}

			return summary, fmt.Errorf("sending %s: %w", d.Path, err)
		}

		summary.Results = append(summary.Results, res)

		if res.Succeeded() {
			summary.Sent++
		} else {
			summary.Failed++
		}
	}

	s.log.WithFields(logrus.Fields{
		"sent":    summary.Sent,
		"failed":  summary.Failed,
		"skipped": summary.Skipped,
	}).Info("Dump run complete")

	return summary, nil
}
