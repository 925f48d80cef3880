package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/cloo-solutions/changichirp/internal/retry"
)

// Index store backends.
const (
	StoreFile     = "file"
	StoreS3       = "s3"
	StorePostgres = "postgres"
)

// Model providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`

	IndexStore  string `envconfig:"INDEX_STORE" default:"file"`
	IndexDir    string `envconfig:"INDEX_DIR" default:"./data/index"`
	IndexPrefix string `envconfig:"INDEX_PREFIX" default:"index"`
	DatabaseURL string `envconfig:"DATABASE_URL"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"changichirp-index"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	EmbeddingProvider   string  `envconfig:"EMBEDDING_PROVIDER" default:"openai"`
	EmbeddingModel      string  `envconfig:"EMBEDDING_MODEL"`
	EmbeddingDimensions int     `envconfig:"EMBEDDING_DIMENSIONS"`
	EmbedBatchSize      int     `envconfig:"EMBED_BATCH_SIZE" default:"64"`
	EmbedRateLimit      float64 `envconfig:"EMBED_RATE_LIMIT" default:"0"`

	GenerationProvider string `envconfig:"GENERATION_PROVIDER" default:"openai"`
	GenerationModel    string `envconfig:"GENERATION_MODEL"`

	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`
	GeminiAPIKey  string `envconfig:"GEMINI_API_KEY"`

	ChunkMaxTokens     int `envconfig:"CHUNK_MAX_TOKENS" default:"256"`
	ChunkOverlapTokens int `envconfig:"CHUNK_OVERLAP_TOKENS" default:"48"`

	RetrievalK       int     `envconfig:"RETRIEVAL_K" default:"5"`
	SimilarityFloor  float32 `envconfig:"SIMILARITY_FLOOR" default:"0.25"`
	SimilarityMetric string  `envconfig:"SIMILARITY_METRIC" default:"cosine"`

	RemoteTimeout    time.Duration `envconfig:"REMOTE_TIMEOUT" default:"20s"`
	RequestTimeout   time.Duration `envconfig:"REQUEST_TIMEOUT" default:"60s"`
	RetryMaxAttempts int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"4"`
	RetryBaseDelay   time.Duration `envconfig:"RETRY_BASE_DELAY" default:"500ms"`
	RetryMaxDelay    time.Duration `envconfig:"RETRY_MAX_DELAY" default:"8s"`
	RetryJitter      float64       `envconfig:"RETRY_JITTER" default:"0.2"`

	IngestConcurrency int           `envconfig:"INGEST_CONCURRENCY" default:"4"`
	ReloadInterval    time.Duration `envconfig:"RELOAD_INTERVAL" default:"1m"`

	VerifyClaimThreshold float64 `envconfig:"VERIFY_CLAIM_THRESHOLD" default:"0.6"`
	VerifyPartialRatio   float64 `envconfig:"VERIFY_PARTIAL_RATIO" default:"0.34"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("CHIRP", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks settings that depend on each other.
func (c *Config) Validate() error {
	switch c.IndexStore {
	case StoreFile:
		if c.IndexDir == "" {
			return fmt.Errorf("INDEX_DIR is required for the file index store")
		}
	case StoreS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 index store")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres index store")
		}
	default:
		return fmt.Errorf("unknown INDEX_STORE %q", c.IndexStore)
	}

	for name, p := range map[string]string{"EMBEDDING_PROVIDER": c.EmbeddingProvider, "GENERATION_PROVIDER": c.GenerationProvider} {
		if p != ProviderOpenAI && p != ProviderGemini {
			return fmt.Errorf("unknown %s %q", name, p)
		}
	}
	if c.ChunkMaxTokens <= 0 {
		return fmt.Errorf("CHUNK_MAX_TOKENS must be positive, got %d", c.ChunkMaxTokens)
	}
	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasGemini() bool {
	return c.GeminiAPIKey != ""
}

func (c *Config) HasSentry() bool {
	return c.SentryDSN != ""
}

// RetryPolicy builds the policy shared by embedding and generation calls.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:    c.RetryMaxAttempts,
		BaseDelay:      c.RetryBaseDelay,
		MaxDelay:       c.RetryMaxDelay,
		Jitter:         c.RetryJitter,
		AttemptTimeout: c.RemoteTimeout,
	}
}
