package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"github.com/depot-pkg/depot/cmd/depot/cli"
	"github.com/depot-pkg/depot/internal/app"
	"github.com/depot-pkg/depot/internal/artifacts"
	"github.com/depot-pkg/depot/internal/auth"
	"github.com/depot-pkg/depot/internal/catalog"
	"github.com/depot-pkg/depot/internal/mirror"
	"github.com/depot-pkg/depot/internal/observability"
	"github.com/depot-pkg/depot/internal/rbac"
)

const shutdownTimeout = 10 * time.Second

func main() {
	hashFile := pflag.String("hash-password", "", "replace the plaintext password in `FILE` with its bcrypt verifier and exit")
	cost := pflag.Int("cost", 12, "bcrypt cost used by --hash-password")
	pflag.Parse()

	if *hashFile != "" {
		if *cost < bcrypt.MinCost || *cost > bcrypt.MaxCost {
			fmt.Fprintf(os.Stderr, "cost must be between %d and %d\n", bcrypt.MinCost, bcrypt.MaxCost)
			os.Exit(2)
		}
		if _, err := cli.HashPasswordFile(*hashFile, *cost); err != nil {
			fmt.Fprintf(os.Stderr, "hash password: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if err := os.MkdirAll(cfg.StorageRoot, 0o755); err != nil {
		logger.Error("create storage root", slog.Any("error", err))
		os.Exit(1)
	}

	store, closeStore, err := app.OpenSnapshotStore(ctx, cfg)
	if err != nil {
		logger.Error("open snapshot store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("snapshot store close", slog.Any("error", err))
		}
	}()

	state, err := app.LoadState(ctx, store)
	if err != nil {
		logger.Error("load state", slog.Any("error", err))
		os.Exit(1)
	}

	graph := rbac.NewService(cfg.AnonymousUsername)
	if err := graph.Initialize(state.Permissions, cfg.AdminUsername); err != nil {
		logger.Error("initialize permissions", slog.Any("error", err))
		os.Exit(1)
	}
	creds := auth.NewStore(cfg.AnonymousUsername, cfg.BcryptCost)
	if err := creds.Initialize(cfg.AdminUsername, []byte(cfg.AdminHash), state.Credentials.Verifiers()); err != nil {
		logger.Error("initialize credentials", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	index := catalog.NewIndex()
	if err := index.Scan(cfg.StorageRoot); err != nil {
		logger.Error("scan storage root", slog.Any("error", err))
		os.Exit(1)
	}
	metrics.TrackIndexedFiles(index.Len)
	logger.Info("storage indexed", slog.String("root", cfg.StorageRoot), slog.Int("files", index.Len()))

	storage := catalog.NewStorage(cfg.StorageRoot)
	upstream := mirror.New(mirror.Options{
		Enabled:       cfg.MirrorEnabled,
		Upstream:      cfg.MirrorUpstream,
		ProbeInterval: cfg.MirrorProbeInterval,
		ProbeTimeout:  cfg.MirrorProbeTimeout,
		FetchTimeout:  cfg.MirrorFetchTimeout,
		MaxRetries:    cfg.MirrorMaxRetries,
	}, storage, metrics, logger)
	go upstream.Run(ctx)

	authz := rbac.Middleware{Service: graph, Logger: logger}
	artifactService := artifacts.NewService(graph, index, storage, upstream, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Authenticator:      creds,
		Graph:              graph,
		Upstream:           upstream,
		IdentityHandler:    auth.NewHandler(logger, creds, graph, authz),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, graph, authz),
		ArtifactHandler:    artifacts.NewHandler(logger, artifactService, cfg.AnonymousUsername),
		Metrics:            metrics,
	})

	serveErr := app.Serve(ctx, app.NewServer(cfg, router), logger, shutdownTimeout)
	if serveErr != nil {
		logger.Error("http server", slog.Any("error", serveErr))
	}

	saveCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.SaveState(saveCtx, store, graph, creds, logger); err != nil {
		logger.Error("persist state", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("state persisted")
	if serveErr != nil {
		os.Exit(1)
	}
}
