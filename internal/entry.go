// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/api"
	"github.com/starford/ansuz/internal/graph"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/noteservice"
	"github.com/starford/ansuz/internal/pipeline"
	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/syncer"
	"github.com/starford/ansuz/internal/watcher"
)

// Option configures Run.
type Option func(*runOptions)

type runOptions struct {
	config *Config
}

// WithConfig supplies the engine configuration.
func WithConfig(cfg *Config) Option {
	return func(o *runOptions) {
		o.config = cfg
	}
}

// engine bundles the constructed core components.
type engine struct {
	logger *slog.Logger
	store  storage.Provider
	graph  graph.Store
	sync   *syncer.Syncer
	svc    *noteservice.Service
}

// buildEngine constructs logger, storage, graph store, optional embedding
// pipeline, syncer, and service from config. The graph store must be closed
// by the caller. An unreachable embedder is not fatal: the engine comes up
// in degraded mode with semantic operations unavailable.
func buildEngine(ctx context.Context, cfg *Config) (*engine, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	g, err := graph.Open(cfg.Graph.Driver, cfg.Graph.Path)
	if err != nil {
		return nil, fmt.Errorf("init graph store: %w", err)
	}

	var pipe *pipeline.Pipeline
	if cfg.Embedding.Enabled() {
		embedder, embErr := pipeline.NewHTTPEmbedder(pipeline.HTTPEmbedderConfig{
			BaseURL:    cfg.Embedding.BaseURL,
			APIKeyEnv:  cfg.Embedding.APIKeyEnv,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		})
		if embErr == nil {
			pipe, embErr = pipeline.New(ctx, g, embedder, 0, 0, logger)
		}
		if embErr != nil {
			logger.Warn("embedder unavailable, running degraded",
				slog.String("error", embErr.Error()))
			pipe = nil
		}
	} else {
		logger.Info("no embedding endpoint configured, semantic sync disabled")
	}

	sync := syncer.New(store, g, pipe, logger)
	svc := noteservice.NewService(store, g, sync, pipe, logger)

	return &engine{
		logger: logger,
		store:  store,
		graph:  g,
		sync:   sync,
		svc:    svc,
	}, nil
}

// Run starts the HTTP server and the vault watcher.
func Run(ctx context.Context, opts ...Option) error {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := o.config

	eng, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.graph.Close()
	logger := eng.logger

	logger.Info("configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("graph_driver", cfg.Graph.Driver),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Initial sync so the graph mirrors the vault before serving.
	report, err := eng.sync.Full(ctx)
	if err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	} else {
		logger.Info("initial sync complete",
			slog.Int("notes", report.Structural.Notes),
			slog.Int("embedded", report.Semantic.Processed))
	}

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()
	eng.svc.SetNotifier(broker)

	apiRouter := api.NewRouter(eng.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, cfg.Vault.Path)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Mount("/api/v1", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Vault watcher drives the sync passes and SSE notifications.
	g.Go(func() error {
		return watcher.Watch(gCtx, eng.sync, cfg.Vault.Path, cfg.Sync.Debounce, logger,
			func(stats models.StructuralStats) {
				broker.PublishSyncCompleted(stats)
			})
	})

	g.Go(func() error {
		logger.Info("starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("context cancelled, initiating shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("server stopped")
	return nil
}

// RunSync performs a one-shot full sync and returns its report.
func RunSync(ctx context.Context, cfg *Config) (models.SyncReport, error) {
	eng, err := buildEngine(ctx, cfg)
	if err != nil {
		return models.SyncReport{}, err
	}
	defer eng.graph.Close()
	return eng.sync.Full(ctx)
}

// RunMCP serves the MCP tools over stdio until the client disconnects.
func RunMCP(ctx context.Context, cfg *Config) error {
	eng, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.graph.Close()

	// MCP clients expect the graph to be current when tools run.
	if _, err := eng.sync.Full(ctx); err != nil {
		eng.logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	srv := mcpserver.New(eng.svc, eng.store)
	return srv.ServeStdio()
}
