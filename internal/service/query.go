package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"

	"github.com/cloo-solutions/changichirp/internal/domain"
	"github.com/cloo-solutions/changichirp/internal/telemetry"
)

const (
	DefaultRequestTimeout = 60 * time.Second

	TimeoutMessage = "The request took too long to answer. Please try again."
)

// Canned replies for small talk, keyed by the lower-cased question without
// trailing punctuation.
var smallTalk = map[string]string{
	"hi":        "Hello! I'm here to help with information about Changi Airport and Jewel Changi. What would you like to know?",
	"hello":     "Hi there! I can help you find information about Changi Airport facilities, services, and more. What would you like to know?",
	"thanks":    "You're welcome! Is there anything else you'd like to know about Changi Airport?",
	"thank you": "You're welcome! Feel free to ask if you have more questions about Changi Airport.",
	"help":      "I can help you find information about Changi Airport's facilities, services, shopping, dining, and more. Just ask me a question!",
}

// ContextRetriever finds the passages used to answer a question.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string, k int) (domain.RetrievalResult, error)
}

// AnswerDrafter turns retrieved passages into a draft answer.
type AnswerDrafter interface {
	Generate(ctx context.Context, question string, result domain.RetrievalResult) (domain.Answer, error)
}

type QueryConfig struct {
	// K is the number of passages retrieved per question. Zero uses the
	// retriever's default.
	K int
	// RequestTimeout bounds one whole question. Zero uses the default.
	RequestTimeout time.Duration
}

// QueryService answers questions end to end: retrieve, draft, verify.
type QueryService struct {
	retriever ContextRetriever
	drafter   AnswerDrafter
	verifier  *Verifier
	cfg       QueryConfig
}

// NewQueryService creates a new QueryService
func NewQueryService(retriever ContextRetriever, drafter AnswerDrafter, verifier *Verifier, cfg QueryConfig) *QueryService {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if verifier == nil {
		verifier = NewVerifier(VerifierConfig{})
	}
	return &QueryService{retriever: retriever, drafter: drafter, verifier: verifier, cfg: cfg}
}

// Ask answers question. It never fails: every error degrades to a refused
// Answer carrying an explanatory message.
func (s *QueryService) Ask(ctx context.Context, question string) domain.Answer {
	question = NormalizeQuestion(question)
	if question == "" {
		return domain.NewRefusal(EmptyQuestionMessage)
	}
	if reply, ok := smallTalk[strings.ToLower(strings.TrimRight(question, "?.!, "))]; ok {
		return domain.NewRefusal(reply)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	ctx, span := telemetry.StartSpan(ctx, "query.ask", telemetry.SpanAttributes{Operation: "ask"})
	defer span.End()

	result, err := s.retriever.Retrieve(ctx, question, s.cfg.K)
	if err != nil {
		return s.fail(ctx, span, "retrieve", err)
	}
	span.SetAttributes(telemetry.SpanAttributes{Generation: result.Generation})

	draft, err := s.drafter.Generate(ctx, question, result)
	if err != nil {
		return s.fail(ctx, span, "generate", err)
	}

	answer := s.verifier.Verify(draft, result)
	log.WithFields(log.Fields{
		"generation": result.Generation,
		"passages":   len(result.Items),
		"confidence": answer.Confidence,
		"citations":  len(answer.Citations),
	}).Debug("Answered question")
	return answer
}

func (s *QueryService) fail(ctx context.Context, span *telemetry.Span, stage string, err error) domain.Answer {
	entry := log.WithField("stage", stage)

	switch {
	case errors.Is(err, context.Canceled):
		entry.Info("Question abandoned by caller")
		return domain.NewRefusal(UnavailableMessage)
	case errors.Is(err, context.DeadlineExceeded):
		entry.Warnf("Question timed out: %v", err)
		span.SetStatus(sentry.SpanStatusDeadlineExceeded)
		return domain.NewRefusal(TimeoutMessage)
	default:
		entry.Errorf("Failed to answer question: %v", err)
		span.SetStatus(sentry.SpanStatusInternalError)
		telemetry.CaptureError(ctx, err)
		return domain.NewRefusal(UnavailableMessage)
	}
}

// NormalizeQuestion trims the question and collapses inner whitespace.
func NormalizeQuestion(q string) string {
	return strings.Join(strings.Fields(q), " ")
}
