package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/cloo-solutions/changichirp/internal/domain"
	"github.com/cloo-solutions/changichirp/internal/index"
	"github.com/cloo-solutions/changichirp/internal/telemetry"
)

const DefaultIngestConcurrency = 4

// DocumentEmbedder embeds passages for the index.
type DocumentEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Model() string
}

type IngestConfig struct {
	Concurrency int
	Metric      index.Metric
}

// IngestReport summarizes one ingestion run.
type IngestReport struct {
	Documents  int           `json:"documents"`
	Skipped    int           `json:"skipped"`
	Duplicates int           `json:"duplicates"`
	Chunks     int           `json:"chunks"`
	Generation string        `json:"generation"`
	Duration   time.Duration `json:"duration"`
}

// IngestionService turns documents into a published index generation.
type IngestionService struct {
	chunker  *Chunker
	embedder DocumentEmbedder
	store    index.Store
	cfg      IngestConfig
}

// NewIngestionService creates a new IngestionService
func NewIngestionService(chunker *Chunker, embedder DocumentEmbedder, store index.Store, cfg IngestConfig) *IngestionService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultIngestConcurrency
	}
	if cfg.Metric == "" {
		cfg.Metric = index.MetricCosine
	}
	return &IngestionService{chunker: chunker, embedder: embedder, store: store, cfg: cfg}
}

// Run chunks and embeds docs, builds a new index and saves it. Blank or
// invalid documents are skipped, then documents repeating an earlier source
// URL are dropped. Any embedding failure aborts the run before anything is saved,
// leaving the published generation untouched.
func (s *IngestionService) Run(ctx context.Context, docs []*domain.RawDocument) (*IngestReport, error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "ingest.run", telemetry.SpanAttributes{
		Operation: "ingest",
		Model:     s.embedder.Model(),
	})
	defer span.End()

	report := &IngestReport{}
	unique := make([]*domain.RawDocument, 0, len(docs))
	seen := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		// blank pages are dropped before dedup so they never shadow a later
		// copy of the same URL that has content
		if err := domain.ValidateRawDocument(doc); err != nil {
			if errors.Is(err, domain.ErrEmptyDocument) {
				log.WithField("source_url", doc.SourceURL).Warn("Skipping empty document")
			}
			report.Skipped++
			continue
		}
		if _, ok := seen[doc.SourceURL]; ok {
			report.Duplicates++
			continue
		}
		seen[doc.SourceURL] = struct{}{}
		unique = append(unique, doc)
	}

	var (
		mu      sync.Mutex
		entries []index.Entry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, doc := range unique {
		g.Go(func() error {
			docEntries, err := s.embedDocument(gctx, doc)
			if err != nil {
				return fmt.Errorf("failed to ingest %s: %w", doc.SourceURL, err)
			}

			mu.Lock()
			entries = append(entries, docEntries...)
			report.Documents++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.SetError(err)
		return nil, err
	}
	if len(entries) == 0 {
		return nil, domain.ErrNothingToIndex
	}

	ix, err := index.Build(entries, index.BuildOptions{
		Dimensions: s.embedder.Dimensions(),
		Metric:     s.cfg.Metric,
		Model:      s.embedder.Model(),
	})
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to build index: %w", err)
	}
	if err := s.store.Save(ctx, ix); err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to save index: %w", err)
	}

	report.Chunks = ix.Len()
	report.Generation = ix.Manifest().Generation
	report.Duration = time.Since(start)

	log.WithFields(log.Fields{
		"generation": report.Generation,
		"documents":  report.Documents,
		"chunks":     report.Chunks,
		"skipped":    report.Skipped,
		"duplicates": report.Duplicates,
	}).Info("Published index generation")
	return report, nil
}

func (s *IngestionService) embedDocument(ctx context.Context, doc *domain.RawDocument) ([]index.Entry, error) {
	chunks, err := s.chunker.Split(doc)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = embeddingText(c)
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	entries := make([]index.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = index.Entry{Chunk: c, Vector: vectors[i]}
	}
	return entries, nil
}

// embeddingText prefixes the passage with its page title so that short
// passages keep their topic.
func embeddingText(c domain.Chunk) string {
	if c.Title == "" {
		return c.Text
	}
	return c.Title + "\n\n" + c.Text
}
