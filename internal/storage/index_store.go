package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/cloo-solutions/changichirp/internal/domain"
	"github.com/cloo-solutions/changichirp/internal/index"
)

// ObjectStore is the object API the index store needs
type ObjectStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	DeleteObject(ctx context.Context, key string) error
}

var contentTypes = map[string]string{
	index.ManifestFile: "application/json",
	index.ChunksFile:   "application/x-ndjson",
	index.VectorsFile:  "application/octet-stream",
	index.CurrentFile:  "text/plain",
}

// IndexStore keeps index generations in a bucket under
// <prefix>/generations/<generation>/ with <prefix>/CURRENT naming the one
// being served.
type IndexStore struct {
	objects ObjectStore
	prefix  string
}

// NewIndexStore creates a new IndexStore
func NewIndexStore(objects ObjectStore, prefix string) *IndexStore {
	return &IndexStore{objects: objects, prefix: strings.Trim(prefix, "/")}
}

func (s *IndexStore) key(parts ...string) string {
	return path.Join(append([]string{s.prefix}, parts...)...)
}

// Save uploads every bundle file, then writes CURRENT. A failed upload leaves
// CURRENT pointing at the previous generation and removes the files of the
// partial one.
func (s *IndexStore) Save(ctx context.Context, ix *index.Index) error {
	bundle, err := index.Encode(ix)
	if err != nil {
		return err
	}
	gen := ix.Manifest().Generation

	var uploaded []string
	for _, name := range []string{index.ChunksFile, index.VectorsFile, index.ManifestFile} {
		key := s.key("generations", gen, name)
		if err := s.objects.PutObject(ctx, key, bundle.Files()[name], contentTypes[name]); err != nil {
			s.discard(ctx, gen, uploaded)
			return domain.WithCause(domain.ErrStorageOperationFail, fmt.Errorf("failed to upload %s: %w", name, err))
		}
		uploaded = append(uploaded, key)
	}
	if err := s.objects.PutObject(ctx, s.key(index.CurrentFile), []byte(gen+"\n"), contentTypes[index.CurrentFile]); err != nil {
		return domain.WithCause(domain.ErrStorageOperationFail, fmt.Errorf("failed to publish generation %s: %w", gen, err))
	}

	log.WithFields(log.Fields{"generation": gen, "prefix": s.prefix, "count": ix.Len()}).Info("Published index generation")
	return nil
}

func (s *IndexStore) discard(ctx context.Context, gen string, keys []string) {
	for _, key := range keys {
		if err := s.objects.DeleteObject(context.WithoutCancel(ctx), key); err != nil {
			log.WithFields(log.Fields{"generation": gen, "key": key}).Warnf("Failed to remove partial upload: %v", err)
		}
	}
}

// Current returns the generation named by CURRENT.
func (s *IndexStore) Current(ctx context.Context) (string, error) {
	data, err := s.objects.GetObject(ctx, s.key(index.CurrentFile))
	if errors.Is(err, ErrObjectNotFound) {
		return "", domain.ErrIndexNotFound
	}
	if err != nil {
		return "", domain.WithCause(domain.ErrStorageOperationFail, err)
	}
	gen := strings.TrimSpace(string(data))
	if gen == "" {
		return "", domain.ErrIndexNotFound
	}
	return gen, nil
}

// Load downloads and decodes the current generation.
func (s *IndexStore) Load(ctx context.Context) (*index.Index, error) {
	gen, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}

	var bundle index.Bundle
	for name, dst := range map[string]*[]byte{
		index.ManifestFile: &bundle.Manifest,
		index.ChunksFile:   &bundle.Chunks,
		index.VectorsFile:  &bundle.Vectors,
	} {
		data, err := s.objects.GetObject(ctx, s.key("generations", gen, name))
		if errors.Is(err, ErrObjectNotFound) {
			return nil, domain.WithCause(domain.ErrIndexCorrupt, fmt.Errorf("generation %s is missing %s", gen, name))
		}
		if err != nil {
			return nil, domain.WithCause(domain.ErrStorageOperationFail, err)
		}
		*dst = data
	}
	return index.Decode(&bundle)
}
