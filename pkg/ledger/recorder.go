package ledger

import (
	"context"
	"time"

	"github.com/ethpandaops/dumpoor/pkg/upload"
	"github.com/sirupsen/logrus"
)

const recordTimeout = 5 * time.Second

// Recorder is an upload.Handler that writes every finished session to the
// ledger. Recording failures are logged and never affect the upload.
type Recorder struct {
	log   logrus.FieldLogger
	store Store
}

var _ upload.Handler = (*Recorder)(nil)

// NewRecorder creates a Recorder writing to store.
func NewRecorder(log logrus.FieldLogger, store Store) *Recorder {
	return &Recorder{
		log:   log.WithField("component", "ledger-recorder"),
		store: store,
	}
}

func (r *Recorder) OnProgress(int64, int64) {}

func (r *Recorder) OnError(upload.ErrorEvent) {}

func (r *Recorder) OnFinished(res *upload.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	attempt, err := r.store.Record(ctx, res)
	if err != nil {
		r.log.WithError(err).WithField("file", res.File).Warn("Failed to record upload attempt")

		return
	}

	r.log.WithFields(logrus.Fields{
		"id":     attempt.ID,
		"status": attempt.Status,
	}).Debug("Recorded upload attempt")
}
