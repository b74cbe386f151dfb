package ledger

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/ethpandaops/dumpoor/pkg/config"
	"github.com/ethpandaops/dumpoor/pkg/upload"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func newTestStore(t *testing.T) Store {
	t.Helper()

	s := NewStore(testLogger(), &config.LedgerConfig{
		Enabled: true,
		Driver:  "sqlite",
		SQLite:  config.SQLiteDatabaseConfig{Path: ":memory:"},
	})
	require.NoError(t, s.Start(context.Background()))

	t.Cleanup(func() { _ = s.Stop() })

	return s
}

func finishedResult(file string) *upload.Result {
	return &upload.Result{
		File:         file,
		Endpoint:     "http://collector.example.com/submit",
		Transport:    "http",
		Status:       upload.StatusFinished,
		Body:         []byte("CrashID=bp-42"),
		RemoteStatus: 200,
		BytesSent:    1024,
		BytesTotal:   1024,
		StartedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Duration:     1500 * time.Millisecond,
		Deleted:      true,
	}
}

func TestStore_RecordAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Record(ctx, finishedResult("/crashes/a.dmp"))
	require.NoError(t, err)

	failed := &upload.Result{
		File:         "/crashes/b.dmp",
		Endpoint:     "ftp://files.example.com/",
		Transport:    "ftp",
		Status:       upload.StatusFailed,
		RemoteStatus: 530,
		Code:         upload.CodeAuthenticationFailed,
		Err:          errors.New("login incorrect"),
	}

	recorded, err := s.Record(ctx, failed)
	require.NoError(t, err)
	assert.NotZero(t, recorded.ID)

	attempts, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, attempts, 2)

	// Newest first.
	assert.Equal(t, "/crashes/b.dmp", attempts[0].File)
	assert.Equal(t, "failed", attempts[0].Status)
	assert.Equal(t, upload.CodeAuthenticationFailed.String(), attempts[0].Code)
	assert.Equal(t, 530, attempts[0].RemoteStatus)
	assert.Equal(t, "login incorrect", attempts[0].Error)

	assert.Equal(t, "finished", attempts[1].Status)
	assert.Equal(t, "CrashID=bp-42", attempts[1].Answer)
	assert.Empty(t, attempts[1].Code)
	assert.Equal(t, 1500*time.Millisecond, attempts[1].Duration)
	assert.True(t, attempts[1].Deleted)
}

func TestStore_ListLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, f := range []string{"a", "b", "c"} {
		_, err := s.Record(ctx, finishedResult(f))
		require.NoError(t, err)
	}

	attempts, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, "c", attempts[0].File)
	assert.Equal(t, "b", attempts[1].File)
}

func TestStore_ListByFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, f := range []string{"a", "b", "a"} {
		_, err := s.Record(ctx, finishedResult(f))
		require.NoError(t, err)
	}

	attempts, err := s.ListByFile(ctx, "a")
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Less(t, attempts[0].ID, attempts[1].ID)
}

func TestStore_UnsupportedDriver(t *testing.T) {
	s := NewStore(testLogger(), &config.LedgerConfig{Driver: "mysql"})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestRecorder_OnFinished(t *testing.T) {
	s := newTestStore(t)

	rec := NewRecorder(testLogger(), s)
	rec.OnProgress(1, 2)
	rec.OnError(upload.ErrorEvent{})
	rec.OnFinished(finishedResult("/crashes/z.dmp"))

	attempts, err := s.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, "/crashes/z.dmp", attempts[0].File)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{name: "short", in: "ok", n: 10, want: "ok"},
		{name: "exact", in: "abcd", n: 4, want: "abcd"},
		{name: "cut", in: "abcdef", n: 3, want: "abc"},
		{name: "multibyte boundary", in: "aé", n: 2, want: "a"},
		{name: "long answer", in: strings.Repeat("x", 600), n: maxAnswerLength, want: strings.Repeat("x", maxAnswerLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncate(tt.in, tt.n))
		})
	}
}
