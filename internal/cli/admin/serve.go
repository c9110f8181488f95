package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/docchat/internal/api/handlers"
	"github.com/cloo-solutions/docchat/internal/cli"
	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/jobs"
	"github.com/cloo-solutions/docchat/internal/loader"
	"github.com/cloo-solutions/docchat/internal/server"
	"github.com/cloo-solutions/docchat/internal/watch"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat API server",
		Long: `Start the docchat HTTP API.

With the pgvector backend the server answers from the index written by
"docchatd ingest". With the memory backend the corpus is built from
DOCCHAT_DOCS_PATH at startup.`,
		RunE: runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides DOCCHAT_PORT)")
	cmd.Flags().Bool("watch", false, "Rebuild the memory index when documents change")
	cmd.Flags().Duration("interval", 30*time.Second, "Minimum time between rebuilds with --watch")
	addDatabaseFlags(cmd.Flags())
	cmd.Flags().AddFlagSet(cli.BuildFlags())

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(contextOrBackground(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		a.cfg.Port = port
	}

	if err := a.prepareIndex(ctx); err != nil {
		return err
	}

	watchDocs, _ := cmd.Flags().GetBool("watch")
	if watchDocs {
		if a.cfg.UsesPostgres() {
			return fmt.Errorf("--watch on serve requires the memory backend; use \"docchatd ingest --watch\" for pgvector")
		}
		interval, _ := cmd.Flags().GetDuration("interval")
		worker, err := a.startReindexWorker(ctx, interval)
		if err != nil {
			return err
		}
		defer worker.Stop()
	}

	router := server.NewRouter(server.RouterConfig{
		ChatHandler:   handlers.NewChatHandler(a.queryEngine()),
		HealthHandler: handlers.NewHealthHandler(a.index),
		Logger:        a.log,
	})

	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("starting server", zap.String("port", a.cfg.Port), zap.String("backend", a.cfg.IndexBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}
	a.log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	a.log.Info("server exited")
	return nil
}

// prepareIndex builds the memory index, or checks that the pgvector index
// exists. Neither an empty corpus nor a missing table stops the server.
func (a *app) prepareIndex(ctx context.Context) error {
	if a.cfg.UsesPostgres() {
		exists, err := a.index.Exists(ctx)
		if err != nil {
			return fmt.Errorf("failed to check index: %w", err)
		}
		if !exists {
			a.log.Warn("index not found; run \"docchatd ingest\" before chatting", zap.String("index", a.cfg.IndexName))
		}
		return nil
	}

	builder, err := a.corpusBuilder(ctx)
	if err != nil {
		return err
	}
	result, err := builder.Build(ctx, a.cfg.DocsPath)
	switch {
	case errors.Is(err, domain.ErrEmptyCorpus):
		a.log.Warn("no documents indexed; chat requests will fail until the corpus is populated",
			zap.String("source", a.cfg.DocsPath))
		return nil
	case err != nil:
		return fmt.Errorf("failed to build index: %w", err)
	}
	a.log.Info("memory index ready", zap.Int("chunks", result.ChunksPersisted))
	return nil
}

func (a *app) startReindexWorker(ctx context.Context, interval time.Duration) (*jobs.Worker, error) {
	if loader.IsS3URI(a.cfg.DocsPath) {
		return nil, fmt.Errorf("--watch is not supported for S3 sources")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("--interval must be positive")
	}
	builder, err := a.corpusBuilder(ctx)
	if err != nil {
		return nil, err
	}

	watcher, err := watch.New(a.parser().Accepts, a.log)
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(a.cfg.DocsPath); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	go func() {
		watcher.Run(ctx)
		_ = watcher.Close()
	}()

	worker := jobs.NewWorker(jobs.NewReindexProcessor(builder, a.cfg.DocsPath, watcher, a.log), interval, a.log)
	go worker.Start(ctx)
	a.log.Info("watching documents", zap.String("source", a.cfg.DocsPath), zap.Duration("interval", interval))
	return worker, nil
}
