package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ethpandaops/dumpoor/pkg/fsutil"
)

// Report describes a stored submission. It is written next to the dump as
// <id>.json.
type Report struct {
	ID         string            `json:"id"`
	Route      string            `json:"route"`
	Product    string            `json:"product,omitempty"`
	Version    string            `json:"version,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
	FileName   string            `json:"file_name"`
	Size       int64             `json:"size"`
	RemoteAddr string            `json:"remote_addr"`
	UserAgent  string            `json:"user_agent,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
}

type reportStore struct {
	dir   string
	owner *fsutil.Owner
}

func newReportStore(dir string, owner *fsutil.Owner) (*reportStore, error) {
	if err := fsutil.MkdirAll(dir, 0o755, owner); err != nil {
		return nil, err
	}

	return &reportStore{dir: dir, owner: owner}, nil
}

func (rs *reportStore) dumpPath(id string) string {
	return filepath.Join(rs.dir, id+".dmp")
}

func (rs *reportStore) metaPath(id string) string {
	return filepath.Join(rs.dir, id+".json")
}

// writeDump copies r into the dump file for id and returns its size.
func (rs *reportStore) writeDump(id string, r io.Reader) (int64, error) {
	f, err := fsutil.CreateExclusive(rs.dumpPath(id), 0o640, rs.owner)
	if err != nil {
		return 0, fmt.Errorf("creating dump file: %w", err)
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}

	if err != nil {
		rs.discard(id)

		return 0, err
	}

	return n, nil
}

func (rs *reportStore) writeMeta(report *Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	if err := fsutil.WriteFile(rs.metaPath(report.ID), data, 0o640, rs.owner); err != nil {
		return fmt.Errorf("writing report metadata: %w", err)
	}

	return nil
}

// discard removes whatever was stored for id.
func (rs *reportStore) discard(id string) {
	_ = os.Remove(rs.dumpPath(id))
	_ = os.Remove(rs.metaPath(id))
}
