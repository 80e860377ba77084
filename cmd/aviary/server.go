package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aviary-ai/aviary/internal/api"
	"github.com/aviary-ai/aviary/internal/chat"
	"github.com/aviary-ai/aviary/internal/config"
	"github.com/aviary-ai/aviary/internal/history"
	"github.com/aviary-ai/aviary/internal/ingest"
	"github.com/aviary-ai/aviary/internal/llm"
	"github.com/aviary-ai/aviary/internal/retrieval"
	"github.com/aviary-ai/aviary/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the aviary server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func logLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "aviary version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.Log.Level),
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Wire the chat pipeline.
	llmClient := llm.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.ChatModel, cfg.OpenAI.EmbedModel)
	retriever := retrieval.New(store, llmClient)
	aggregator := history.New(store)
	orchestrator := chat.New(store, retriever, aggregator, llmClient)
	ingestor := ingest.New(store, llmClient)

	handler := api.NewHandler(api.Deps{
		Store:     store,
		Sender:    orchestrator,
		Ingestor:  ingestor,
		UploadDir: cfg.Storage.UploadDir,
	})
	srv := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
		Handler: handler,
	}

	mcpSrv := api.NewMCPServer(api.MCPDeps{Store: store, Retriever: retriever})
	sseSrv := server.NewSSEServer(mcpSrv)
	mcpAddr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.MCPPort)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("aviary listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		slog.Info("MCP server listening", "addr", mcpAddr)
		if err := sseSrv.Start(mcpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sseSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("MCP server shutdown", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
