package index

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Store persists index generations. Save publishes atomically: Load keeps
// returning the previous generation until the new one is complete.
type Store interface {
	Save(ctx context.Context, ix *Index) error
	// Load returns the current generation or domain.ErrIndexNotFound.
	Load(ctx context.Context) (*Index, error)
	// Current returns the current generation identifier or domain.ErrIndexNotFound.
	Current(ctx context.Context) (string, error)
}

// Open loads the current generation from store and checks it against the
// embedder that will query it.
func Open(ctx context.Context, store Store, dimensions int, model string) (*Index, error) {
	ix, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := ix.Validate(dimensions, model); err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	return ix, nil
}

// Holder owns the index being served. Readers call Current for each request;
// a reload replaces the whole index with Swap.
type Holder struct {
	ptr atomic.Pointer[Index]
}

// NewHolder creates a Holder serving ix, which may be nil.
func NewHolder(ix *Index) *Holder {
	h := &Holder{}
	if ix != nil {
		h.ptr.Store(ix)
	}
	return h
}

// Current returns the served index, or nil when none is loaded.
func (h *Holder) Current() *Index {
	return h.ptr.Load()
}

// Swap installs ix and returns the index it replaced.
func (h *Holder) Swap(ix *Index) *Index {
	return h.ptr.Swap(ix)
}
