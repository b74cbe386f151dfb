package dumps

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethpandaops/dumpoor/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, dir string, transport *memTransport, opts WatcherOptions) Watcher {
	t.Helper()

	cfg := &config.DumpsConfig{Dir: dir, Debounce: 50 * time.Millisecond}
	sender := NewSender(testLogger(), newTestUploader(t, transport), nil)

	w := NewWatcher(testLogger(), cfg, sender, opts)
	require.NoError(t, w.Start(context.Background()))

	t.Cleanup(func() { _ = w.Stop() })

	return w
}

func TestWatcher_UploadsNewDump(t *testing.T) {
	dir := t.TempDir()
	transport := &memTransport{}

	startWatcher(t, dir, transport, WatcherOptions{})

	path := writeFile(t, dir, "crash.dmp", 512, time.Time{})
	writeFile(t, dir, "ignored.txt", 512, time.Time{})

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)

		return os.IsNotExist(err)
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, []string{"crash.dmp"}, transport.names())
}

func TestWatcher_DebouncesRepeatedWrites(t *testing.T) {
	dir := t.TempDir()
	transport := &memTransport{}

	startWatcher(t, dir, transport, WatcherOptions{})

	path := filepath.Join(dir, "growing.dmp")

	f, err := os.Create(path)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := f.Write([]byte("chunk"))
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}

	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		return len(transport.names()) > 0
	}, 5*time.Second, 20*time.Millisecond)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, []string{"growing.dmp"}, transport.names())
}

func TestWatcher_SendsExistingDumps(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	writeFile(t, dir, "b.dmp", 1, base.Add(time.Minute))
	writeFile(t, dir, "a.dmp", 1, base)

	transport := &memTransport{}
	startWatcher(t, dir, transport, WatcherOptions{SendExisting: true})

	require.Eventually(t, func() bool {
		return len(transport.names()) == 2
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, []string{"a.dmp", "b.dmp"}, transport.names())
}

func TestWatcher_StartFailsForMissingDirectory(t *testing.T) {
	cfg := &config.DumpsConfig{Dir: filepath.Join(t.TempDir(), "missing")}
	w := NewWatcher(testLogger(), cfg, NewSender(testLogger(), newTestUploader(t, &memTransport{}), nil), WatcherOptions{})

	require.Error(t, w.Start(context.Background()))
}
