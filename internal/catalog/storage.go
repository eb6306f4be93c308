package catalog

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/depot-pkg/depot/internal/shared"
)

// Storage reads and writes artifact files under a root directory laid out
// as <group>/<artifact>/<version>/<file>.
type Storage struct {
	root string
}

// NewStorage constructs Storage rooted at root.
func NewStorage(root string) *Storage {
	return &Storage{root: root}
}

// Path returns the on-disk location of a coordinate.
func (s *Storage) Path(c Coordinate) string {
	return filepath.Join(s.root, filepath.FromSlash(c.Path()))
}

// Open opens the file of a coordinate for reading.
func (s *Storage) Open(c Coordinate) (*os.File, error) {
	f, err := os.Open(s.Path(c))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("catalog: open %s: %w", c, shared.ErrNotFound)
		}
		return nil, fmt.Errorf("catalog: open %s: %w", c, err)
	}
	return f, nil
}

// Write streams r into the file of a coordinate. The content lands in a
// hidden temporary file first and is linked into place once complete, so
// readers never observe a partial file. An existing file is never replaced;
// Write returns shared.ErrConflict instead.
func (s *Storage) Write(c Coordinate, r io.Reader) (string, int64, error) {
	dst := s.Path(c)
	if _, err := os.Lstat(dst); err == nil {
		return "", 0, fmt.Errorf("catalog: %s already on disk: %w", c, shared.ErrConflict)
	}
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("catalog: prepare %s: %w", c, err)
	}
	tmp, err := os.CreateTemp(dir, ".upload-"+uuid.NewString()+"-*")
	if err != nil {
		return "", 0, fmt.Errorf("catalog: create temp for %s: %w", c, err)
	}
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}
	n, err := io.Copy(tmp, r)
	if err != nil {
		cleanup()
		return "", 0, fmt.Errorf("catalog: write %s: %w", c, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", 0, fmt.Errorf("catalog: sync %s: %w", c, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("catalog: close %s: %w", c, err)
	}
	defer os.Remove(tmp.Name())
	if err := os.Link(tmp.Name(), dst); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", 0, fmt.Errorf("catalog: %s already on disk: %w", c, shared.ErrConflict)
		}
		return "", 0, fmt.Errorf("catalog: commit %s: %w", c, err)
	}
	return dst, n, nil
}
