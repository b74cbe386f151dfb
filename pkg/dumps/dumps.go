package dumps

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/ethpandaops/dumpoor/pkg/config"
)

// Dump is a crash dump waiting in the dump directory.
type Dump struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// HumanSize returns the dump size in human readable form.
func (d Dump) HumanSize() string {
	return units.HumanSize(float64(d.Size))
}

// Lister finds pending dumps.
type Lister interface {
	// List returns the pending dumps, oldest first.
	List() ([]Dump, error)
}

type lister struct {
	dir        string
	extensions []string
}

var _ Lister = (*lister)(nil)

// NewLister creates a Lister for the configured dump directory.
func NewLister(cfg *config.DumpsConfig) Lister {
	return &lister{
		dir:        cfg.Dir,
		extensions: normalizeExtensions(cfg.Extensions),
	}
}

func (l *lister) List() ([]Dump, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("reading dump directory: %w", err)
	}

	dumps := make([]Dump, 0, len(entries))

	for _, entry := range entries {
		if !entry.Type().IsRegular() || !hasExtension(entry.Name(), l.extensions) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}

		dumps = append(dumps, Dump{
			Path:    filepath.Join(l.dir, entry.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.SliceStable(dumps, func(i, j int) bool {
		if dumps[i].ModTime.Equal(dumps[j].ModTime) {
			return dumps[i].Path < dumps[j].Path
		}

		return dumps[i].ModTime.Before(dumps[j].ModTime)
	})

	return dumps, nil
}

func normalizeExtensions(exts []string) []string {
	if len(exts) == 0 {
		exts = config.DefaultDumpExtensions
	}

	out := make([]string, 0, len(exts))

	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}

		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}

		out = append(out, ext)
	}

	return out
}

func hasExtension(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))

	for _, e := range exts {
		if ext == e {
			return true
		}
	}

	return false
}
