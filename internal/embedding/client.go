package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/cloo-solutions/changichirp/internal/domain"
	"github.com/cloo-solutions/changichirp/internal/retry"
)

const DefaultBatchSize = 64

var (
	// ErrEmptyText is returned when one of the inputs is blank
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongCount is returned when the provider answers with a different number of vectors
	ErrWrongCount = errors.New("embedding response has wrong number of vectors")
	// ErrWrongDimensions is returned when a vector has an unexpected length
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
)

// Provider is a remote embedding model. EmbedBatch must return one vector per
// input in input order, and should wrap errors that are not worth retrying
// with retry.Permanent.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

type Config struct {
	Dimensions int
	BatchSize  int
	// RateLimit caps provider requests per second. Zero disables pacing.
	RateLimit float64
	Retry     retry.Policy
}

// Client batches, paces and retries calls to a Provider and checks every
// vector it hands back.
type Client struct {
	provider   Provider
	dimensions int
	batchSize  int
	limiter    *rate.Limiter
	policy     retry.Policy
}

// NewClient creates a new embedding Client
func NewClient(provider Provider, cfg Config) *Client {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return &Client{
		provider:   provider,
		dimensions: cfg.Dimensions,
		batchSize:  batchSize,
		limiter:    limiter,
		policy:     cfg.Retry,
	}
}

// Dimensions returns the vector length every call produces.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Model returns the provider's model identifier.
func (c *Client) Model() string {
	return c.provider.Model()
}

// Embed returns one vector per text, in order. Provider outages that survive
// the retry policy are reported as domain.ErrEmbeddingUnavailable.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, ErrEmptyText
		}
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		vectors, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, domain.WithCause(domain.ErrEmbeddingUnavailable, err)
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// EmbedQuery embeds a single text.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *Client) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var vectors [][]float32
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("failed to wait for rate limiter: %w", err)
			}
		}

		got, err := c.provider.EmbedBatch(ctx, batch)
		if err != nil {
			return err
		}
		if err := c.check(got, len(batch)); err != nil {
			return retry.Permanent(err)
		}
		vectors = got
		return nil
	})
	if err != nil {
		log.WithFields(log.Fields{
			"model": c.provider.Model(),
			"batch": len(batch),
		}).Warnf("Embedding batch failed: %v", err)
		return nil, fmt.Errorf("failed to embed batch: %w", err)
	}
	return vectors, nil
}

func (c *Client) check(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: got %d, expected %d", ErrWrongCount, len(vectors), want)
	}
	if c.dimensions <= 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != c.dimensions {
			return fmt.Errorf("%w: vector %d has %d, expected %d", ErrWrongDimensions, i, len(v), c.dimensions)
		}
	}
	return nil
}
