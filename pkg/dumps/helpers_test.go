package dumps

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethpandaops/dumpoor/pkg/upload"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func writeFile(t *testing.T, dir, name string, size int, modTime time.Time) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))

	if !modTime.IsZero() {
		require.NoError(t, os.Chtimes(path, modTime, modTime))
	}

	return path
}

// memTransport accepts every dump except those listed in reject.
type memTransport struct {
	mu       sync.Mutex
	received []string
	reject   map[string]bool
}

func (m *memTransport) Name() string { return "mem" }

func (m *memTransport) Schemes() []string { return []string{"http"} }

func (m *memTransport) Send(_ context.Context, p *upload.Payload) (*upload.Reply, error) {
	if _, err := io.Copy(io.Discard, p.Body); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.received = append(m.received, p.FileName)

	if m.reject[p.FileName] {
		return &upload.Reply{Status: 500}, &upload.TransferError{Code: upload.CodeRemoteRejected, Status: 500}
	}

	return &upload.Reply{Status: 200, Body: []byte("ok")}, nil
}

func (m *memTransport) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.received...)
}

func newTestUploader(t *testing.T, transport upload.Transport) *upload.Uploader {
	t.Helper()

	u := upload.New(testLogger(), upload.Options{
		Product: upload.Product{Name: "demo", Version: "1.0"},
	}, transport)
	require.NoError(t, u.SetURL("http://collector.invalid/submit"))

	return u
}
