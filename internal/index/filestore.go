package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/cloo-solutions/changichirp/internal/domain"
)

// FileStore keeps generations under dir/generations/<generation>/ and names
// the current one in dir/CURRENT.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at dir
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) generationDir(gen string) string {
	return filepath.Join(s.dir, "generations", gen)
}

// Save writes the bundle, then points CURRENT at it.
func (s *FileStore) Save(ctx context.Context, ix *Index) error {
	bundle, err := Encode(ix)
	if err != nil {
		return err
	}
	gen := ix.Manifest().Generation
	dir := s.generationDir(gen)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create generation dir: %w", err)
	}
	for name, data := range bundle.Files() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeFileAtomic(filepath.Join(dir, name), data); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	if err := writeFileAtomic(filepath.Join(s.dir, CurrentFile), []byte(gen+"\n")); err != nil {
		return fmt.Errorf("failed to publish generation %s: %w", gen, err)
	}

	log.WithFields(log.Fields{"generation": gen, "dir": dir, "count": ix.Len()}).Info("Published index generation")
	return nil
}

// Current returns the generation named by CURRENT.
func (s *FileStore) Current(ctx context.Context) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, CurrentFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", domain.ErrIndexNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", CurrentFile, err)
	}
	gen := strings.TrimSpace(string(data))
	if gen == "" {
		return "", domain.ErrIndexNotFound
	}
	return gen, nil
}

// Load reads the current generation.
func (s *FileStore) Load(ctx context.Context) (*Index, error) {
	gen, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	dir := s.generationDir(gen)

	var bundle Bundle
	for name, dst := range map[string]*[]byte{
		ManifestFile: &bundle.Manifest,
		ChunksFile:   &bundle.Chunks,
		VectorsFile:  &bundle.Vectors,
	} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, domain.WithCause(domain.ErrIndexCorrupt, fmt.Errorf("generation %s: %w", gen, err))
		}
		*dst = data
	}
	return Decode(&bundle)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
