package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/cloo-solutions/changichirp/internal/domain"
	"github.com/cloo-solutions/changichirp/internal/index"
	"github.com/cloo-solutions/changichirp/internal/telemetry"
)

const (
	// MaxRetries is how many times one generation may fail to load before
	// the reloader stops trying it
	MaxRetries = 3
)

// IndexReloader swaps newly published index generations into the serving
// holder. A generation that fails to load or validate leaves the current
// index in place.
type IndexReloader struct {
	store      index.Store
	holder     *index.Holder
	dimensions int
	model      string

	mu       sync.Mutex
	failures map[string]int
}

// NewIndexReloader creates a new IndexReloader instance
func NewIndexReloader(store index.Store, holder *index.Holder, dimensions int, model string) *IndexReloader {
	return &IndexReloader{
		store:      store,
		holder:     holder,
		dimensions: dimensions,
		model:      model,
		failures:   make(map[string]int),
	}
}

// ProcessJobs implements the JobProcessor interface
func (r *IndexReloader) ProcessJobs(ctx context.Context) error {
	generation, err := r.store.Current(ctx)
	if errors.Is(err, domain.ErrIndexNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read current generation: %w", err)
	}

	if current := r.holder.Current(); current != nil && current.Manifest().Generation == generation {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failures[generation] >= MaxRetries {
		return nil
	}

	ix, err := index.Open(ctx, r.store, r.dimensions, r.model)
	if err != nil {
		r.failures[generation]++
		if r.failures[generation] >= MaxRetries {
			log.WithField("generation", generation).Errorf("Giving up on index generation after %d attempts: %v", MaxRetries, err)
			telemetry.CaptureMessage(ctx, fmt.Sprintf("index generation %s abandoned after %d failed loads", generation, MaxRetries))
		}
		return fmt.Errorf("failed to load generation %s: %w", generation, err)
	}
	if loaded := ix.Manifest().Generation; loaded != generation {
		// a newer generation was published between Current and Load
		generation = loaded
	}

	previous := r.holder.Swap(ix)
	delete(r.failures, generation)

	fields := log.Fields{
		"generation": generation,
		"chunks":     ix.Len(),
	}
	if previous != nil {
		fields["previous"] = previous.Manifest().Generation
	}
	log.WithFields(fields).Info("Index generation loaded")
	telemetry.AddBreadcrumb(ctx, "index", "generation "+generation+" loaded")
	return nil
}
