package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cloo-solutions/changichirp/internal/api/handlers"
	"github.com/cloo-solutions/changichirp/internal/config"
	"github.com/cloo-solutions/changichirp/internal/domain"
	"github.com/cloo-solutions/changichirp/internal/index"
	"github.com/cloo-solutions/changichirp/internal/jobs"
	"github.com/cloo-solutions/changichirp/internal/logger"
	"github.com/cloo-solutions/changichirp/internal/server"
	"github.com/cloo-solutions/changichirp/internal/service"
	"github.com/cloo-solutions/changichirp/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat API server",
		Long:  "Load the current index generation and answer questions over HTTP",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides CHIRP_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger.Setup(cfg.Debug)

	if cfg.HasSentry() {
		// 10% sampling in production, everything in development
		sampleRate := 0.1
		if cfg.Environment == "development" {
			sampleRate = 1.0
		}
		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Warnf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")

	store, closeStore, err := openStore(ctx, cfg, !noMigrate)
	if err != nil {
		return err
	}
	defer closeStore()

	embedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	llm, err := newTextGenerator(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create text generator: %w", err)
	}

	ix, err := index.Open(ctx, store, embedder.Dimensions(), embedder.Model())
	switch {
	case errors.Is(err, domain.ErrIndexNotFound):
		log.Warn("no index generation published yet; answering with refusals until one is")
	case err != nil:
		return err
	default:
		log.WithFields(log.Fields{
			"generation": ix.Manifest().Generation,
			"chunks":     ix.Len(),
			"model":      ix.Manifest().Model,
		}).Info("index loaded")
	}
	holder := index.NewHolder(ix)

	var reloadWorker *jobs.Worker
	if cfg.ReloadInterval > 0 {
		reloader := jobs.NewIndexReloader(store, holder, embedder.Dimensions(), embedder.Model())
		reloadWorker = jobs.NewWorker(reloader, cfg.ReloadInterval)
		go reloadWorker.Start(ctx)
		log.Infof("index reloader started (every %s)", cfg.ReloadInterval)
	}

	retriever := service.NewRetriever(embedder, holder, service.RetrieverConfig{
		K:               cfg.RetrievalK,
		SimilarityFloor: cfg.SimilarityFloor,
	})
	generator := service.NewGenerator(llm, cfg.RetryPolicy())
	verifier := service.NewVerifier(service.VerifierConfig{
		ClaimThreshold:  cfg.VerifyClaimThreshold,
		PartialMinRatio: cfg.VerifyPartialRatio,
	})
	querySvc := service.NewQueryService(retriever, generator, verifier, service.QueryConfig{
		K:              cfg.RetrievalK,
		RequestTimeout: cfg.RequestTimeout,
	})

	router := server.NewRouter(server.RouterConfig{
		ChatHandler:  handlers.NewChatHandler(querySvc),
		IndexHandler: handlers.NewIndexHandler(holder),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down...")

	if reloadWorker != nil {
		reloadWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited")
	return nil
}
