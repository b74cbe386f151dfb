package fsutil

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Owner is the UID/GID applied to files written for other users, such as
// dumps stored by the collector.
type Owner struct {
	UID int
	GID int
}

// ParseOwner parses "UID:GID", or a bare "UID" meaning the same GID.
// An empty string yields nil, which leaves ownership untouched.
func ParseOwner(owner string) (*Owner, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, nil
	}

	uidPart, gidPart, found := strings.Cut(owner, ":")
	if !found {
		gidPart = uidPart
	}

	uid, err := strconv.Atoi(uidPart)
	if err != nil || uid < 0 {
		return nil, fmt.Errorf("invalid UID %q in owner %q", uidPart, owner)
	}

	gid, err := strconv.Atoi(gidPart)
	if err != nil || gid < 0 {
		return nil, fmt.Errorf("invalid GID %q in owner %q", gidPart, owner)
	}

	return &Owner{UID: uid, GID: gid}, nil
}

func (o *Owner) String() string {
	if o == nil {
		return ""
	}

	return fmt.Sprintf("%d:%d", o.UID, o.GID)
}

// Chown applies o to path. A nil owner is a no-op.
func (o *Owner) Chown(path string) error {
	if o == nil {
		return nil
	}

	if err := os.Chown(path, o.UID, o.GID); err != nil {
		return fmt.Errorf("chown %s to %s: %w", path, o, err)
	}

	return nil
}

// MkdirAll creates path and hands it to owner.
func MkdirAll(path string, perm os.FileMode, owner *Owner) error {
	if err := os.MkdirAll(path, perm); err != nil {
		return err
	}

	return owner.Chown(path)
}

// CreateExclusive creates a new file, failing if path already exists, and
// hands it to owner.
func CreateExclusive(path string, perm os.FileMode, owner *Owner) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return nil, err
	}

	if err := owner.Chown(path); err != nil {
		_ = f.Close()
		_ = os.Remove(path)

		return nil, err
	}

	return f, nil
}

// WriteFile writes data to a new file at path owned by owner.
func WriteFile(path string, data []byte, perm os.FileMode, owner *Owner) error {
	f, err := CreateExclusive(path, perm, owner)
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()

		return err
	}

	return f.Close()
}
