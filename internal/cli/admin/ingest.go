package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cloo-solutions/changichirp/internal/cli"
	"github.com/cloo-solutions/changichirp/internal/config"
	"github.com/cloo-solutions/changichirp/internal/index"
	"github.com/cloo-solutions/changichirp/internal/loader"
	"github.com/cloo-solutions/changichirp/internal/logger"
	"github.com/cloo-solutions/changichirp/internal/service"
	"github.com/cloo-solutions/changichirp/internal/telemetry"
)

// IngestCmd returns the ingest command
func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Build and publish a new index generation",
		Long: `Load scraped pages, chunk and embed them, and publish the result as a new
index generation. The generation being served stays in place if anything fails.`,
		Example: "  chirpd ingest --data scraped_data.jsonl",
		RunE:    runIngest,
	}

	cmd.Flags().StringP("data", "d", "", "Scraped data file (JSON lines or a JSON array)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

type ingestOutput struct {
	*service.IngestReport
	Loaded      int `json:"loaded"`
	Unparseable int `json:"unparseable"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger.Setup(cfg.Debug)

	if cfg.HasSentry() {
		shutdownTelemetry, err := telemetry.Init(telemetry.Config{DSN: cfg.SentryDSN, Environment: cfg.Environment})
		if err != nil {
			log.Warnf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}
	ctx, tx := telemetry.StartTransaction(ctx, "chirpd ingest", "cli.ingest")
	defer tx.End()

	dataPath, _ := cmd.Flags().GetString("data")
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")

	loaded, err := loader.New().LoadFile(dataPath)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"documents": len(loaded.Documents),
		"skipped":   loaded.Skipped,
	}).Info("scraped data loaded")

	store, closeStore, err := openStore(ctx, cfg, !noMigrate)
	if err != nil {
		return err
	}
	defer closeStore()

	embedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	chunker, err := newChunker(cfg)
	if err != nil {
		return err
	}

	svc := service.NewIngestionService(chunker, embedder, store, service.IngestConfig{
		Concurrency: cfg.IngestConcurrency,
		Metric:      index.Metric(cfg.SimilarityMetric),
	})
	report, err := svc.Run(ctx, loaded.Documents)
	if err != nil {
		tx.SetError(err)
		return fmt.Errorf("ingestion failed: %w", err)
	}

	out := ingestOutput{IngestReport: report, Loaded: len(loaded.Documents), Unparseable: loaded.Skipped}
	if cli.OutputJSON(cmd) {
		return json.NewEncoder(os.Stdout).Encode(out)
	}
	fmt.Printf("Published generation %s\n", report.Generation)
	fmt.Printf("  documents: %d indexed, %d skipped, %d duplicates, %d unparseable\n",
		report.Documents, report.Skipped, report.Duplicates, loaded.Skipped)
	fmt.Printf("  chunks:    %d\n", report.Chunks)
	fmt.Printf("  took:      %s\n", report.Duration.Round(time.Millisecond))
	return nil
}
