package catalog

import (
	"fmt"
	"sync"

	"github.com/depot-pkg/depot/internal/shared"
)

type artifactKey struct {
	group    string
	artifact string
}

// Index is the in-memory catalog of locally present artifacts. Reads are
// shared, registrations and reservations are exclusive.
type Index struct {
	mu        sync.RWMutex
	artifacts map[artifactKey]*Artifact
	inflight  map[Coordinate]struct{}
}

// NewIndex constructs an empty index.
func NewIndex() *Index {
	return &Index{
		artifacts: make(map[artifactKey]*Artifact),
		inflight:  make(map[Coordinate]struct{}),
	}
}

// Contains reports whether any file of the artifact is tracked.
func (i *Index) Contains(group, artifact string) bool {
	_, ok := i.Get(group, artifact)
	return ok
}

// ContainsVersion narrows Contains to one version.
func (i *Index) ContainsVersion(group, artifact, version string) bool {
	a, ok := i.Get(group, artifact)
	return ok && a.Tracks(version)
}

// ContainsClassifier narrows ContainsVersion to one classifier. The empty
// classifier matches only files without one.
func (i *Index) ContainsClassifier(group, artifact, version, classifier string) bool {
	a, ok := i.Get(group, artifact)
	return ok && a.TracksClassifier(version, classifier)
}

// ContainsFile reports whether the exact coordinate is tracked.
func (i *Index) ContainsFile(c Coordinate) bool {
	a, ok := i.Get(c.Group, c.Artifact)
	return ok && a.TracksFile(c.File())
}

// Get returns the artifact record for (group, artifact).
func (i *Index) Get(group, artifact string) (*Artifact, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	a, ok := i.artifacts[artifactKey{group, artifact}]
	return a, ok
}

// AddArtifact inserts a record unless one exists for the same key, in which
// case the existing record is returned.
func (i *Index) AddArtifact(a *Artifact) *Artifact {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.addArtifactLocked(a)
}

func (i *Index) addArtifactLocked(a *Artifact) *Artifact {
	key := artifactKey{a.GroupID, a.ArtifactID}
	if existing, ok := i.artifacts[key]; ok {
		return existing
	}
	if a.files == nil {
		a.files = make(map[File]struct{})
	}
	i.artifacts[key] = a
	return a
}

// Register tracks the coordinate, creating its artifact on first sight.
// It reports whether the triple was new.
func (i *Index) Register(c Coordinate) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.registerLocked(c)
}

func (i *Index) registerLocked(c Coordinate) bool {
	a := i.addArtifactLocked(NewArtifact(c.Group, c.Artifact))
	return a.AddVersion(c.File())
}

// Reserve claims a coordinate for a writer. At most one writer holds a
// coordinate at a time, and a tracked coordinate cannot be claimed.
func (i *Index) Reserve(c Coordinate) (*Reservation, error) {
	c = normalize(c)
	i.mu.Lock()
	defer i.mu.Unlock()
	if a, ok := i.artifacts[artifactKey{c.Group, c.Artifact}]; ok && a.TracksFile(c.File()) {
		return nil, fmt.Errorf("catalog: %s already exists: %w", c, shared.ErrConflict)
	}
	if _, busy := i.inflight[c]; busy {
		return nil, fmt.Errorf("catalog: %s is being written: %w", c, shared.ErrConflict)
	}
	i.inflight[c] = struct{}{}
	return &Reservation{index: i, coord: c}, nil
}

// Len reports the number of tracked files.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	total := 0
	for _, a := range i.artifacts {
		total += a.len()
	}
	return total
}

// Reservation is a writer's claim on one coordinate. Exactly one of Commit
// or Release takes effect; later calls are no-ops.
type Reservation struct {
	index *Index
	coord Coordinate
	once  sync.Once
}

// Commit registers the coordinate and drops the claim.
func (r *Reservation) Commit() {
	r.once.Do(func() {
		r.index.mu.Lock()
		defer r.index.mu.Unlock()
		delete(r.index.inflight, r.coord)
		r.index.registerLocked(r.coord)
	})
}

// Release drops the claim without registering anything.
func (r *Reservation) Release() {
	r.once.Do(func() {
		r.index.mu.Lock()
		defer r.index.mu.Unlock()
		delete(r.index.inflight, r.coord)
	})
}

func normalize(c Coordinate) Coordinate {
	c.Extension = c.extension()
	return c
}
