// Command flumed runs the workflow engine behind an HTTP API.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/arkadian-io/flume/integrations"
	"github.com/arkadian-io/flume/internal/config"
	"github.com/arkadian-io/flume/internal/engine"
	"github.com/arkadian-io/flume/internal/httpapi"
	"github.com/arkadian-io/flume/internal/persistence"
	"github.com/arkadian-io/flume/pkg/api"
	"github.com/arkadian-io/flume/pkg/nodes"
	"github.com/arkadian-io/flume/pkg/registry"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	execStore, credStore, closeStores, err := openStores(cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeStores()

	catalog := integrations.NewCatalog(credStore)
	catalog.Register(integrations.DescriptorWebhook(), integrations.NewWebhook(nil))
	if cfg.OpenAI.APIKey != "" {
		catalog.Register(integrations.DescriptorOpenAI(), integrations.NewOpenAI(cfg.OpenAI.APIKey))
	}

	reg := registry.New()
	err = nodes.RegisterBuiltins(reg, nodes.Config{
		Logger: logger,
		Resolve: func(id string) (nodes.Caller, bool) {
			return catalog.Resolve(id)
		},
	})
	if err != nil {
		logger.Error("failed to register built-in nodes", "error", err)
		os.Exit(1)
	}

	eng := engine.New(engine.Config{
		Registry:           reg,
		Observer:           api.NewLoggingObserver(logger),
		Store:              execStore,
		DefaultConcurrency: cfg.Engine.Concurrency,
		HistoryLimit:       cfg.Engine.HistoryLimit,
	})

	srv := httpapi.NewServer(eng, reg, catalog, credStore, logger)
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("server shutdown error", "error", err)
			_ = server.Close()
		}
		logger.Info("server stopped")
	}
}

// openStores wires execution and credential persistence. With no path
// configured both live in memory; otherwise a single SQLite file backs
// both, with credentials sealed when a key is set.
func openStores(cfg *config.Config, logger *slog.Logger) (persistence.ExecutionStore, persistence.CredentialStore, func(), error) {
	if cfg.Store.Path == "" {
		logger.Info("using in-memory store")
		mem := persistence.NewInMemoryStore()
		return mem, mem, func() {}, nil
	}

	db, err := sql.Open("sqlite", cfg.Store.Path)
	if err != nil {
		return nil, nil, nil, err
	}

	var sealer *persistence.Sealer
	if cfg.Store.CredentialKey != "" {
		sealer, err = persistence.NewSealer(cfg.Store.CredentialKey)
		if err != nil {
			db.Close()
			return nil, nil, nil, err
		}
	} else {
		logger.Warn("no credential key configured, credentials stored unsealed")
	}

	store, err := persistence.NewSQLiteStore(db, sealer)
	if err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	logger.Info("using sqlite store", "path", cfg.Store.Path, "sealed", sealer != nil)
	return store, store, func() { db.Close() }, nil
}
