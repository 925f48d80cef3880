package service

import (
	"fmt"
	"iter"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cloo-solutions/changichirp/internal/domain"
)

// ChunkConfig controls how documents are split into passages. Sizes are in
// whitespace-delimited tokens.
type ChunkConfig struct {
	MaxTokens     int
	OverlapTokens int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxTokens:     256,
		OverlapTokens: 48,
	}
}

// boundary strength after a token
const (
	breakNone      = 0
	breakSentence  = 1
	breakLine      = 1
	breakParagraph = 2
)

type token struct {
	start, end int // byte span in the body
	brk        int // strength of the break that follows this token
}

// Chunker splits documents into overlapping passages that together cover the
// whole body.
type Chunker struct {
	cfg ChunkConfig
}

// NewChunker validates cfg and creates a Chunker. An overlap that would leave
// no room for new text is clamped to half the window.
func NewChunker(cfg ChunkConfig) (*Chunker, error) {
	if cfg.MaxTokens <= 0 || cfg.OverlapTokens < 0 {
		return nil, domain.WithCause(domain.ErrInvalidChunkConfig,
			fmt.Errorf("max_tokens=%d overlap_tokens=%d", cfg.MaxTokens, cfg.OverlapTokens))
	}
	if cfg.OverlapTokens >= cfg.MaxTokens {
		cfg.OverlapTokens = cfg.MaxTokens / 2
	}
	return &Chunker{cfg: cfg}, nil
}

// Config returns the effective configuration.
func (c *Chunker) Config() ChunkConfig {
	return c.cfg
}

// Chunks returns the passages of doc in position order. The sequence is lazy
// and can be ranged over any number of times. A blank body fails with
// domain.ErrEmptyDocument.
//
// Every chunk's Text is doc.Body[Position:Position+len(Text)]. The first chunk
// starts at 0, the last one ends at len(doc.Body), and each chunk starts at
// or before the end of the previous one, so the body is rebuilt by appending
// each chunk's text past the previous chunk's end.
func (c *Chunker) Chunks(doc *domain.RawDocument) (iter.Seq[domain.Chunk], error) {
	if doc == nil || doc.IsBlank() {
		return nil, domain.ErrEmptyDocument
	}
	tokens := tokenize(doc.Body)

	return func(yield func(domain.Chunk) bool) {
		n := len(tokens)
		s, prevEnd := 0, 0
		for s < n {
			end := n
			if n-s > c.cfg.MaxTokens {
				end = c.cut(tokens, s, prevEnd)
			}

			startByte := 0
			if s > 0 {
				startByte = tokens[s].start
			}
			endByte := len(doc.Body)
			if end < n {
				endByte = tokens[end].start
			}

			chunk := domain.Chunk{
				ID:          domain.ChunkID(doc.SourceURL, startByte),
				DocumentRef: doc.SourceURL,
				Title:       doc.Title,
				Text:        doc.Body[startByte:endByte],
				Position:    startByte,
				TokenCount:  end - s,
			}
			if !yield(chunk) || end >= n {
				return
			}

			// a chunk cut short at a boundary keeps as much overlap as
			// still moves the window forward
			s, prevEnd = max(end-c.cfg.OverlapTokens, s+1), end
		}
	}, nil
}

// Split collects all chunks of doc.
func (c *Chunker) Split(doc *domain.RawDocument) ([]domain.Chunk, error) {
	seq, err := c.Chunks(doc)
	if err != nil {
		return nil, err
	}
	return slices.Collect(seq), nil
}

// cut picks the exclusive end token for a window starting at s. It prefers
// the strongest boundary in the back half of the window, then any boundary
// in the front half, and only then cuts at the window edge. The end always
// lies past floor, the end of the previous chunk.
func (c *Chunker) cut(tokens []token, s, floor int) int {
	limit := s + c.cfg.MaxTokens
	minEnd := s + max(c.cfg.MaxTokens/2, 1)

	best, bestBrk := 0, breakNone
	for end := limit; end >= max(minEnd, floor+1); end-- {
		if brk := tokens[end-1].brk; brk > bestBrk {
			best, bestBrk = end, brk
		}
	}
	if best > 0 {
		return best
	}
	for end := minEnd - 1; end > max(s, floor); end-- {
		if tokens[end-1].brk > breakNone {
			return end
		}
	}
	return limit
}

func tokenize(body string) []token {
	tokens := make([]token, 0, len(body)/5)
	inWord := false
	for i, r := range body {
		space := unicode.IsSpace(r)
		switch {
		case !space && !inWord:
			tokens = append(tokens, token{start: i})
			inWord = true
		case space && inWord:
			tokens[len(tokens)-1].end = i
			inWord = false
		}
	}
	if inWord {
		tokens[len(tokens)-1].end = len(body)
	}

	for i := range tokens {
		gapEnd := len(body)
		if i+1 < len(tokens) {
			gapEnd = tokens[i+1].start
		}
		tokens[i].brk = breakAfter(body[tokens[i].start:tokens[i].end], body[tokens[i].end:gapEnd])
	}
	return tokens
}

func breakAfter(word, gap string) int {
	switch strings.Count(gap, "\n") {
	case 0:
	case 1:
		return breakLine
	default:
		return breakParagraph
	}
	if endsSentence(word) {
		return breakSentence
	}
	return breakNone
}

func endsSentence(word string) bool {
	word = strings.TrimRight(word, `"')]}»”’`)
	r, _ := utf8.DecodeLastRuneInString(word)
	return r == '.' || r == '!' || r == '?'
}
