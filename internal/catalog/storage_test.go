package catalog

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/depot-pkg/depot/internal/shared"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestStorageWriteAndOpen(t *testing.T) {
	root := t.TempDir()
	store := NewStorage(root)
	coord := Coordinate{Group: "com/example", Artifact: "lib", Version: "1.0", Classifier: "sources"}

	path, n, err := store.Write(coord, strings.NewReader("payload"))
	require.NoError(t, err)
	require.EqualValues(t, 7, n)
	require.Equal(t, filepath.Join(root, "com", "example", "lib", "1.0", "lib-1.0-sources.jar"), path)

	f, err := store.Open(coord)
	require.NoError(t, err)
	defer f.Close()
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, "payload", string(body))

	idx := NewIndex()
	require.NoError(t, idx.Scan(root))
	require.True(t, idx.ContainsFile(coord))
}

func TestStorageOpenMissing(t *testing.T) {
	store := NewStorage(t.TempDir())
	_, err := store.Open(Coordinate{Group: "g", Artifact: "a", Version: "1"})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestStorageFailedWriteLeavesNothing(t *testing.T) {
	root := t.TempDir()
	store := NewStorage(root)
	coord := Coordinate{Group: "g", Artifact: "a", Version: "1"}

	_, _, err := store.Write(coord, failingReader{})
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Dir(store.Path(coord)))
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestStorageWriteNeverReplacesExistingFile(t *testing.T) {
	root := t.TempDir()
	store := NewStorage(root)
	coord := Coordinate{Group: "com/example", Artifact: "lib", Version: "1.0"}
	dst := store.Path(coord)
	require.NoError(t, os.MkdirAll(filepath.Join(filepath.Dir(dst), "extra"), 0o755))
	require.NoError(t, os.WriteFile(dst, []byte("original"), 0o644))

	idx := NewIndex()
	require.NoError(t, idx.Scan(root))
	require.False(t, idx.ContainsFile(coord))

	_, _, err := store.Write(coord, strings.NewReader("clobbered"))
	require.ErrorIs(t, err, shared.ErrConflict)

	body, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "original", string(body))

	entries, err := os.ReadDir(filepath.Dir(dst))
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
