package domain

// Confidence grades how well an answer is supported by retrieved passages.
type Confidence string

const (
	ConfidenceGrounded Confidence = "grounded"
	ConfidencePartial  Confidence = "partial"
	ConfidenceRefused  Confidence = "refused"
)

// ScoredChunk is one ranked retrieval hit.
type ScoredChunk struct {
	Chunk Chunk
	Score float32
	Rank  int
}

// RetrievalResult is the ranked context handed to the generator, best first.
type RetrievalResult struct {
	Items []ScoredChunk
	// Generation is the index generation that was searched.
	Generation string
}

// IsEmpty reports whether nothing cleared the similarity floor.
func (r RetrievalResult) IsEmpty() bool {
	return len(r.Items) == 0
}

// Sources returns the distinct source URLs in rank order.
func (r RetrievalResult) Sources() []string {
	seen := make(map[string]struct{}, len(r.Items))
	out := make([]string, 0, len(r.Items))
	for _, item := range r.Items {
		ref := item.Chunk.DocumentRef
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	return out
}

// Answer is the response returned for one question.
type Answer struct {
	Text       string
	Citations  []string
	Confidence Confidence
}

// NewRefusal creates a refused Answer carrying message.
func NewRefusal(message string) Answer {
	return Answer{
		Text:       message,
		Citations:  []string{},
		Confidence: ConfidenceRefused,
	}
}
