package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"github.com/cloo-solutions/changichirp/internal/domain"
	"github.com/cloo-solutions/changichirp/internal/retry"
)

// Fixed user-facing messages.
const (
	NoInformationMessage = "I couldn't find specific information about that in Changi Airport's resources. " +
		"Please check the official website or contact Changi Airport directly for the most accurate details."
	UnavailableMessage   = "I'm having trouble accessing the knowledge base. Please try again later."
	EmptyQuestionMessage = "Please ask a question about Changi Airport or Jewel Changi Airport."
)

const systemPrompt = `You are ChangiChirp, a helpful assistant for Changi Airport and Jewel Changi Airport in Singapore.
Answer only from the numbered context passages you are given. If they do not contain the answer, say that you don't know.
Do not make up facts, opening hours, prices or locations. Answer in a clear, concise and helpful manner.
If the answer contains multiple points, use bullet points.`

// Generation settings used when the caller does not override them.
const (
	DefaultTemperature     = 0.3
	DefaultTopP            = 0.9
	DefaultMaxOutputTokens = 1024
)

var disclaimerPattern = regexp.MustCompile(`(?i)\b(?:as an ai language model|i am an ai|i don['’]t have real-time information)[^.]*\.?`)

// TextGenerator is a remote language model that answers one prompt.
type TextGenerator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	Model() string
}

// Generator drafts answers from retrieved passages.
type Generator struct {
	llm    TextGenerator
	policy retry.Policy
}

// NewGenerator creates a new Generator
func NewGenerator(llm TextGenerator, policy retry.Policy) *Generator {
	return &Generator{llm: llm, policy: policy}
}

// Generate drafts an answer to question grounded in result. An empty result
// is answered with a refusal without calling the model. Failures that survive
// the retry policy are reported as domain.ErrGenerationUnavailable.
func (g *Generator) Generate(ctx context.Context, question string, result domain.RetrievalResult) (domain.Answer, error) {
	if result.IsEmpty() {
		return domain.NewRefusal(NoInformationMessage), nil
	}

	prompt := BuildPrompt(question, result)

	var reply string
	err := g.policy.Do(ctx, func(ctx context.Context) error {
		out, err := g.llm.Generate(ctx, systemPrompt, prompt)
		if err != nil {
			return err
		}
		reply = out
		return nil
	})
	if err != nil {
		log.WithField("model", g.llm.Model()).Warnf("Answer generation failed: %v", err)
		return domain.Answer{}, domain.WithCause(domain.ErrGenerationUnavailable, err)
	}

	text := formatAnswer(reply)
	if text == "" {
		return domain.NewRefusal(NoInformationMessage), nil
	}
	return domain.Answer{
		Text:       text,
		Citations:  result.Sources(),
		Confidence: domain.ConfidenceGrounded,
	}, nil
}

// BuildPrompt labels every passage with its rank, title and source URL and
// appends the question.
func BuildPrompt(question string, result domain.RetrievalResult) string {
	var sb strings.Builder
	sb.WriteString("Context:\n")
	for _, item := range result.Items {
		title := item.Chunk.Title
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(&sb, "\n[%d] %s (%s)\n", item.Rank, title, item.Chunk.DocumentRef)
		sb.WriteString(strings.TrimSpace(item.Chunk.Text))
		sb.WriteString("\n")
	}
	sb.WriteString("\nQuestion: ")
	sb.WriteString(question)
	sb.WriteString("\n\nAnswer:")
	return sb.String()
}

// formatAnswer strips model disclaimers, capitalises the first letter and
// makes sure the text ends with terminal punctuation. Blank input stays blank.
func formatAnswer(answer string) string {
	answer = strings.TrimSpace(disclaimerPattern.ReplaceAllString(answer, ""))
	if answer == "" {
		return ""
	}

	if last, _ := utf8.DecodeLastRuneInString(answer); !strings.ContainsRune(".!?", last) {
		answer = strings.TrimRight(answer, ".,;:") + "."
	}

	first, size := utf8.DecodeRuneInString(answer)
	if unicode.IsLower(first) {
		answer = string(unicode.ToUpper(first)) + answer[size:]
	}
	return answer
}
