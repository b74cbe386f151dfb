package upload

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

// writeDump creates a dump file of size bytes and returns its path.
func writeDump(t *testing.T, name string, size int) string {
	t.Helper()

	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	return path
}

type recordedEvent struct {
	kind   string
	sent   int64
	total  int64
	err    ErrorEvent
	result *Result
}

// eventRecorder is a Handler that records every event in delivery order.
type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) OnProgress(sent, total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, recordedEvent{kind: "progress", sent: sent, total: total})
}

func (r *eventRecorder) OnError(ev ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, recordedEvent{kind: "error", err: ev})
}

func (r *eventRecorder) OnFinished(res *Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, recordedEvent{kind: "finished", result: res})
}

func (r *eventRecorder) snapshot() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]recordedEvent(nil), r.events...)
}

func (r *eventRecorder) count(kind string) int {
	n := 0

	for _, ev := range r.snapshot() {
		if ev.kind == kind {
			n++
		}
	}

	return n
}

// assertEventContract checks progress* -> error? -> finished, with
// increasing progress bounded by the total.
func (r *eventRecorder) assertEventContract(t *testing.T) {
	t.Helper()

	events := r.snapshot()
	require.NotEmpty(t, events)
	assert.Equal(t, "finished", events[len(events)-1].kind, "finished must be last")

	var last int64

	seenError := false

	for i, ev := range events {
		switch ev.kind {
		case "progress":
			assert.False(t, seenError, "progress after error at event %d", i)
			assert.Greater(t, ev.sent, last, "progress must advance at event %d", i)
			assert.LessOrEqual(t, ev.sent, ev.total, "progress beyond total at event %d", i)

			last = ev.sent
		case "error":
			assert.False(t, seenError, "more than one error event")

			seenError = true
		case "finished":
			assert.Equal(t, len(events)-1, i, "finished must be delivered once, last")
		}
	}
}

func waitSession(t *testing.T, s *Session) *Result {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := s.Wait(ctx)
	require.NoError(t, err)
	require.NotNil(t, res)

	return res
}

// blockingTransport holds every Send until release is closed.
type blockingTransport struct {
	mu      sync.Mutex
	calls   int
	urls    []string
	started chan struct{}
	release chan struct{}
}

func newBlockingTransport() *blockingTransport {
	return &blockingTransport{
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
}

func (b *blockingTransport) Name() string { return "blocking" }

func (b *blockingTransport) Schemes() []string { return []string{"http"} }

func (b *blockingTransport) Send(ctx context.Context, p *Payload) (*Reply, error) {
	b.mu.Lock()
	b.calls++
	b.urls = append(b.urls, p.URL.String())
	b.mu.Unlock()

	b.started <- struct{}{}

	<-b.release

	if _, err := io.Copy(io.Discard, p.Body); err != nil {
		return nil, err
	}

	return &Reply{Status: 200, Body: []byte("ok")}, nil
}

func (b *blockingTransport) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.calls
}
