// Package artifacts serves and accepts artifact files, enforcing permissions
// and falling back to the upstream mirror on a local miss.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sync/singleflight"

	"github.com/depot-pkg/depot/internal/catalog"
	"github.com/depot-pkg/depot/internal/mirror"
	"github.com/depot-pkg/depot/internal/rbac"
	"github.com/depot-pkg/depot/internal/shared"
)

// Fetcher resolves a local miss. *mirror.Mirror satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, c catalog.Coordinate) (string, error)
}

// Service composes the permission graph, the index, local storage and the mirror.
type Service struct {
	graph   *rbac.Service
	index   *catalog.Index
	storage *catalog.Storage
	mirror  Fetcher
	logger  *slog.Logger
	flights singleflight.Group
}

// NewService constructs Service. A nil mirror disables fallback.
func NewService(graph *rbac.Service, index *catalog.Index, storage *catalog.Storage, mirror Fetcher, logger *slog.Logger) *Service {
	return &Service{graph: graph, index: index, storage: storage, mirror: mirror, logger: logger}
}

// Get opens the file of c for identity. Files missing locally are mirrored,
// registered in the index and then served.
func (s *Service) Get(ctx context.Context, identity string, c catalog.Coordinate) (*os.File, error) {
	if err := s.authorize(identity, c, rbac.Read); err != nil {
		return nil, err
	}
	if !s.index.ContainsFile(c) {
		if err := s.resolveMiss(ctx, c); err != nil {
			return nil, err
		}
	}
	return s.storage.Open(c)
}

// Put stores body as the file of c. A coordinate that is already tracked or
// being written by someone else is a conflict.
func (s *Service) Put(ctx context.Context, identity string, c catalog.Coordinate, body io.Reader) error {
	if err := s.authorize(identity, c, rbac.Write); err != nil {
		return err
	}
	res, err := s.index.Reserve(c)
	if err != nil {
		return err
	}
	if _, _, err := s.storage.Write(c, body); err != nil {
		res.Release()
		return err
	}
	res.Commit()
	s.logger.Info("artifact uploaded", slog.String("identity", identity), slog.String("coordinate", c.String()))
	return nil
}

func (s *Service) authorize(identity string, c catalog.Coordinate, min rbac.Level) error {
	level, err := s.graph.PermissionFor(identity, c.Group, c.Artifact)
	if err != nil {
		return err
	}
	if !level.AtLeast(min) {
		return fmt.Errorf("artifacts: %s needs %s on %s/%s: %w", identity, min, c.Group, c.Artifact, shared.ErrForbidden)
	}
	return nil
}

// resolveMiss fetches c from the mirror once, however many requests ask for
// it concurrently.
func (s *Service) resolveMiss(ctx context.Context, c catalog.Coordinate) error {
	if s.mirror == nil {
		return fmt.Errorf("artifacts: %s: %w", c, shared.ErrNotFound)
	}
	_, err, _ := s.flights.Do(c.Path(), func() (any, error) {
		if s.index.ContainsFile(c) {
			return nil, nil
		}
		res, err := s.index.Reserve(c)
		if err != nil {
			if errors.Is(err, shared.ErrConflict) {
				return nil, fmt.Errorf("artifacts: %s is being uploaded: %w", c, shared.ErrNotFound)
			}
			return nil, err
		}
		if _, err := s.mirror.Fetch(context.WithoutCancel(ctx), c); err != nil {
			res.Release()
			return nil, err
		}
		res.Commit()
		return nil, nil
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mirror.ErrDisabled), errors.Is(err, mirror.ErrUnreachable),
		errors.Is(err, mirror.ErrNotFound), errors.Is(err, mirror.ErrUpstream):
		return fmt.Errorf("artifacts: %s: %v: %w", c, err, shared.ErrNotFound)
	case errors.Is(err, shared.ErrConflict):
		// An untracked file already sits at the coordinate's path.
		return fmt.Errorf("artifacts: %s: %v: %w", c, err, shared.ErrNotFound)
	default:
		return err
	}
}
