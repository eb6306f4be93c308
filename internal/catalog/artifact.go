package catalog

import (
	"sort"
	"sync"
)

// File is one tracked (version, classifier, extension) triple.
type File struct {
	Version    string `json:"version"`
	Classifier string `json:"classifier,omitempty"`
	Extension  string `json:"extension"`
}

// Artifact groups every tracked file of one (group, artifact) pair.
type Artifact struct {
	GroupID    string
	ArtifactID string

	mu    sync.RWMutex
	files map[File]struct{}
}

// NewArtifact constructs an empty artifact record.
func NewArtifact(group, artifact string) *Artifact {
	return &Artifact{GroupID: group, ArtifactID: artifact, files: make(map[File]struct{})}
}

// AddVersion tracks a triple. An empty extension means DefaultExtension.
// It reports whether the triple was new.
func (a *Artifact) AddVersion(f File) bool {
	if f.Extension == "" {
		f.Extension = DefaultExtension
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.files[f]; ok {
		return false
	}
	a.files[f] = struct{}{}
	return true
}

// Tracks reports whether any file of version is tracked.
func (a *Artifact) Tracks(version string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for f := range a.files {
		if f.Version == version {
			return true
		}
	}
	return false
}

// TracksClassifier reports whether version is tracked with classifier under any extension.
func (a *Artifact) TracksClassifier(version, classifier string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for f := range a.files {
		if f.Version == version && f.Classifier == classifier {
			return true
		}
	}
	return false
}

// TracksFile reports whether the exact triple is tracked.
func (a *Artifact) TracksFile(f File) bool {
	if f.Extension == "" {
		f.Extension = DefaultExtension
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.files[f]
	return ok
}

// Files lists the tracked triples ordered by version, classifier and extension.
func (a *Artifact) Files() []File {
	a.mu.RLock()
	out := make([]File, 0, len(a.files))
	for f := range a.files {
		out = append(out, f)
	}
	a.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Version != out[j].Version {
			return out[i].Version < out[j].Version
		}
		if out[i].Classifier != out[j].Classifier {
			return out[i].Classifier < out[j].Classifier
		}
		return out[i].Extension < out[j].Extension
	})
	return out
}

func (a *Artifact) len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.files)
}
