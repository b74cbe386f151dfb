package dumps

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ethpandaops/dumpoor/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLister_List(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	writeFile(t, dir, "newest.dmp", 10, base.Add(2*time.Hour))
	writeFile(t, dir, "oldest.dmp", 20, base)
	writeFile(t, dir, "middle.DMP", 30, base.Add(time.Hour))
	writeFile(t, dir, "notes.txt", 40, base)

	dumps, err := NewLister(&config.DumpsConfig{Dir: dir}).List()
	require.NoError(t, err)
	require.Len(t, dumps, 3)

	assert.Equal(t, "oldest.dmp", filepath.Base(dumps[0].Path))
	assert.Equal(t, "middle.DMP", filepath.Base(dumps[1].Path))
	assert.Equal(t, "newest.dmp", filepath.Base(dumps[2].Path))
	assert.Equal(t, int64(20), dumps[0].Size)
	assert.True(t, dumps[0].ModTime.Equal(base))
}

func TestLister_CustomExtensions(t *testing.T) {
	dir := t.TempDir()

	writeFile(t, dir, "a.dmp", 1, time.Time{})
	writeFile(t, dir, "b.core", 1, time.Time{})
	writeFile(t, dir, "c.mdmp", 1, time.Time{})

	dumps, err := NewLister(&config.DumpsConfig{
		Dir:        dir,
		Extensions: []string{"core", ".MDMP"},
	}).List()
	require.NoError(t, err)

	names := make([]string, 0, len(dumps))
	for _, d := range dumps {
		names = append(names, filepath.Base(d.Path))
	}

	assert.ElementsMatch(t, []string{"b.core", "c.mdmp"}, names)
}

func TestLister_MissingDirectory(t *testing.T) {
	_, err := NewLister(&config.DumpsConfig{Dir: filepath.Join(t.TempDir(), "nope")}).List()
	require.Error(t, err)
}

func TestDump_HumanSize(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{size: 0, want: "0B"},
		{size: 1500, want: "1.5kB"},
		{size: 2_000_000, want: "2MB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Dump{Size: tt.size}.HumanSize())
		})
	}
}
