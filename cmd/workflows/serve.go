package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/anuj67851/genai-workflow-maker/pkg/config"
	"github.com/anuj67851/genai-workflow-maker/pkg/datastore"
	"github.com/anuj67851/genai-workflow-maker/pkg/engine"
	"github.com/anuj67851/genai-workflow-maker/pkg/extract"
	"github.com/anuj67851/genai-workflow-maker/pkg/model"
	"github.com/anuj67851/genai-workflow-maker/pkg/server"
	"github.com/anuj67851/genai-workflow-maker/pkg/storage"
	"github.com/anuj67851/genai-workflow-maker/pkg/tools"
	"github.com/anuj67851/genai-workflow-maker/pkg/vector"
)

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("workflows version %s\n", version)
	return nil
}

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Host string `help:"Listen host (overrides config)."`
	Port int    `help:"Listen port (overrides config)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	store, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open workflow store: %w", err)
	}
	defer store.Close()

	data, err := datastore.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open data store: %w", err)
	}
	defer data.Close()

	llm, err := model.NewOpenAIClient(cfg.LLM.OpenAI())
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	var reranker model.RerankService
	if cfg.Rerank.Enabled {
		rc, err := model.NewRerankClient(cfg.Rerank.RerankClient())
		if err != nil {
			return fmt.Errorf("failed to create rerank client: %w", err)
		}
		reranker = rc
	}

	vectors, err := vector.NewProvider(cfg.Vector)
	if err != nil {
		return fmt.Errorf("failed to create vector store: %w", err)
	}
	defer vectors.Close()

	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry); err != nil {
		return fmt.Errorf("failed to register builtin tools: %w", err)
	}

	extractor := extract.NewService()
	eng, err := engine.New(engine.Services{
		Chat:      llm,
		Embedder:  llm,
		Reranker:  reranker,
		Store:     store,
		Tools:     registry,
		Vectors:   vectors,
		Data:      data,
		Extractor: extractor,
	})
	if err != nil {
		return err
	}

	srv := server.New(eng, store, registry, extractor, server.Config{
		UploadDir:      cfg.Uploads.Dir,
		MaxUploadBytes: int64(cfg.Uploads.MaxFileSizeMB) << 20,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server listening",
		"addr", addr,
		"database", cfg.Database.Driver,
		"vector_store", vectors.Name())
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
