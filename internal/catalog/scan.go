package catalog

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// minLeafDepth is group + artifact + version.
const minLeafDepth = 3

// Scan walks root and tracks every artifact file found in a version leaf:
// a directory with no subdirectories at least three levels below root. The
// leaf is the version, its parent the artifact, and the rest the group.
// Any walk error aborts the scan.
func (i *Index) Scan(root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
				return nil
			}
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		segments := strings.Split(filepath.ToSlash(rel), "/")
		if rel == "." || len(segments) < minLeafDepth {
			return nil
		}
		n := len(segments)
		group := strings.Join(segments[:n-2], "/")
		artifact, version := segments[n-2], segments[n-1]
		for _, entry := range entries {
			name := entry.Name()
			if !entry.Type().IsRegular() || strings.HasPrefix(name, ".") {
				continue
			}
			classifier, extension, ok := SplitFilename(artifact, version, name)
			if !ok {
				continue
			}
			i.Register(Coordinate{
				Group:      group,
				Artifact:   artifact,
				Version:    version,
				Classifier: classifier,
				Extension:  extension,
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("catalog: scan %s: %w", root, err)
	}
	return nil
}
