package admin

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/cloo-solutions/changichirp/internal/config"
	"github.com/cloo-solutions/changichirp/internal/database"
	"github.com/cloo-solutions/changichirp/internal/embedding"
	"github.com/cloo-solutions/changichirp/internal/gemini"
	"github.com/cloo-solutions/changichirp/internal/index"
	"github.com/cloo-solutions/changichirp/internal/openai"
	"github.com/cloo-solutions/changichirp/internal/repository"
	"github.com/cloo-solutions/changichirp/internal/service"
	"github.com/cloo-solutions/changichirp/internal/storage"
)

// openStore returns the configured index store and a func releasing its
// connections.
func openStore(ctx context.Context, cfg *config.Config, migrate bool) (index.Store, func(), error) {
	switch cfg.IndexStore {
	case config.StoreS3:
		if cfg.S3Endpoint != "" && !cfg.HasS3() {
			log.Warn("S3 endpoint set without static credentials, falling back to the default AWS credential chain")
		}
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    cfg.S3Endpoint != "",
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Infof("S3 bucket '%s' ready", cfg.S3Bucket)
		return storage.NewIndexStore(s3Client, cfg.IndexPrefix), func() {}, nil

	case config.StorePostgres:
		if migrate {
			if err := database.Migrate(cfg.DatabaseURL); err != nil {
				return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		log.Info("connected to database")
		return repository.NewIndexRepository(pool), pool.Close, nil

	default:
		return index.NewFileStore(cfg.IndexDir), func() {}, nil
	}
}

// newEmbedder builds the embedding client for the configured provider.
func newEmbedder(ctx context.Context, cfg *config.Config) (*embedding.Client, error) {
	var (
		provider   embedding.Provider
		dimensions = cfg.EmbeddingDimensions
	)
	switch cfg.EmbeddingProvider {
	case config.ProviderGemini:
		if !cfg.HasGemini() {
			return nil, gemini.ErrNoAPIKey
		}
		models, err := gemini.NewModels(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		provider = gemini.NewEmbedder(models, cfg.EmbeddingModel)
		if dimensions <= 0 {
			dimensions = gemini.DefaultEmbeddingDimensions
		}
	default:
		if !cfg.HasOpenAI() {
			return nil, openai.ErrNoAPIKey
		}
		api := openai.NewAPIClient(openai.Config{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL})
		provider = openai.NewEmbedder(api, cfg.EmbeddingModel)
		if dimensions <= 0 {
			dimensions = openai.DefaultEmbeddingDimensions
		}
	}

	return embedding.NewClient(provider, embedding.Config{
		Dimensions: dimensions,
		BatchSize:  cfg.EmbedBatchSize,
		RateLimit:  cfg.EmbedRateLimit,
		Retry:      cfg.RetryPolicy(),
	}), nil
}

// newTextGenerator builds the chat model for the configured provider.
func newTextGenerator(ctx context.Context, cfg *config.Config) (service.TextGenerator, error) {
	switch cfg.GenerationProvider {
	case config.ProviderGemini:
		if !cfg.HasGemini() {
			return nil, gemini.ErrNoAPIKey
		}
		models, err := gemini.NewModels(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		return gemini.NewGenerator(models, gemini.ChatConfig{
			Model:       cfg.GenerationModel,
			Temperature: service.DefaultTemperature,
			TopP:        service.DefaultTopP,
			MaxTokens:   service.DefaultMaxOutputTokens,
		}), nil
	default:
		if !cfg.HasOpenAI() {
			return nil, openai.ErrNoAPIKey
		}
		api := openai.NewAPIClient(openai.Config{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL})
		return openai.NewChatGenerator(api, openai.ChatConfig{
			Model:       cfg.GenerationModel,
			Temperature: service.DefaultTemperature,
			TopP:        service.DefaultTopP,
			MaxTokens:   service.DefaultMaxOutputTokens,
		}), nil
	}
}

func newChunker(cfg *config.Config) (*service.Chunker, error) {
	return service.NewChunker(service.ChunkConfig{
		MaxTokens:     cfg.ChunkMaxTokens,
		OverlapTokens: cfg.ChunkOverlapTokens,
	})
}
