package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/depot-pkg/depot/internal/auth"
	"github.com/depot-pkg/depot/internal/platform/cache"
	"github.com/depot-pkg/depot/internal/rbac"
	"github.com/depot-pkg/depot/internal/snapshot"
)

// Snapshot document names.
const (
	PermissionsDocument = "permissions"
	CredentialsDocument = "credentials"
)

// OpenSnapshotStore selects the configured snapshot backend. The returned
// close function releases backend connections.
func OpenSnapshotStore(ctx context.Context, cfg *Config) (snapshot.Store, func() error, error) {
	switch cfg.SnapshotBackend {
	case SnapshotBackendRedis:
		client, err := cache.New(ctx, cache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		return snapshot.NewRedisStore(client, ""), client.Close, nil
	case SnapshotBackendFile, "":
		return snapshot.NewFileStore(cfg.SnapshotDir), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("app: unknown snapshot backend %q", cfg.SnapshotBackend)
	}
}

// State is the persisted graph and credential data.
type State struct {
	Permissions rbac.Snapshot
	Credentials auth.Snapshot
}

// LoadState reads both documents. Missing documents yield empty state.
func LoadState(ctx context.Context, store snapshot.Store) (State, error) {
	var state State
	if _, err := snapshot.LoadInto(ctx, store, PermissionsDocument, &state.Permissions); err != nil {
		return State{}, err
	}
	if _, err := snapshot.LoadInto(ctx, store, CredentialsDocument, &state.Credentials); err != nil {
		return State{}, err
	}
	return state, nil
}

// SaveState writes both documents. Both are attempted even if one fails.
func SaveState(ctx context.Context, store snapshot.Store, graph *rbac.Service, creds *auth.Store, logger *slog.Logger) error {
	var firstErr error
	if err := snapshot.SaveFrom(ctx, store, PermissionsDocument, graph.Snapshot()); err != nil {
		logger.Error("save permissions snapshot", slog.Any("error", err))
		firstErr = err
	}
	if err := snapshot.SaveFrom(ctx, store, CredentialsDocument, creds.Snapshot()); err != nil {
		logger.Error("save credentials snapshot", slog.Any("error", err))
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
