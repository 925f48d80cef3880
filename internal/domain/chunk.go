package domain

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// chunkNamespace scopes chunk IDs so they never collide with other UUIDv5 users.
var chunkNamespace = uuid.MustParse("6f1c8a52-3b0e-5d7a-9c41-2e8f0b7d4a19")

// Chunk is a contiguous span of one document's body sized for retrieval.
type Chunk struct {
	ID          string
	DocumentRef string // RawDocument.SourceURL
	Title       string
	Text        string
	Position    int // byte offset of Text within the document body
	TokenCount  int
}

// End returns the byte offset just past the chunk within the document body.
func (c Chunk) End() int {
	return c.Position + len(c.Text)
}

// ChunkID derives the deterministic ID of the chunk starting at position in
// the document identified by sourceURL.
func ChunkID(sourceURL string, position int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(sourceURL+"#"+strconv.Itoa(position))).String()
}

// ValidateChunk validates a Chunk instance
func ValidateChunk(c *Chunk) error {
	if c == nil {
		return fmt.Errorf("chunk cannot be nil")
	}
	if c.ID == "" {
		return fmt.Errorf("chunk ID is required")
	}
	if c.DocumentRef == "" {
		return fmt.Errorf("chunk DocumentRef is required")
	}
	if c.Text == "" {
		return fmt.Errorf("chunk Text is required")
	}
	if c.Position < 0 {
		return fmt.Errorf("chunk Position cannot be negative")
	}
	if c.TokenCount < 0 {
		return fmt.Errorf("chunk TokenCount cannot be negative")
	}
	return nil
}
