package service

import (
	"regexp"
	"strings"

	"github.com/cloo-solutions/changichirp/internal/domain"
)

// Verification thresholds used when the caller does not override them.
const (
	DefaultClaimThreshold  = 0.6
	DefaultPartialMinRatio = 0.34
)

const uncertaintyNote = "Note: parts of this answer could not be confirmed from Changi Airport's resources. " +
	"Please check the official website for the latest details."

var (
	bulletPrefix    = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)
	sentenceEnd     = regexp.MustCompile(`[.!?]["')\]]*\s+`)
	dontKnowPattern = regexp.MustCompile(`(?i)\b(?:i don['’]t know|i do not know|i['’]m not sure|i am not sure|i couldn['’]t find|i could not find|i don['’]t have (?:any |enough )?information|(?:is|are) not (?:mentioned|provided|included) in the (?:provided )?context)\b`)
)

type VerifierConfig struct {
	// ClaimThreshold is the share of a claim's content terms one passage
	// must contain for the claim to count as supported.
	ClaimThreshold float64
	// PartialMinRatio is the share of supported claims below which the
	// draft is refused.
	PartialMinRatio float64
}

// Verifier checks a draft answer against the passages it was generated from.
// It is deterministic and makes no remote calls.
type Verifier struct {
	cfg VerifierConfig
}

// NewVerifier creates a new Verifier
func NewVerifier(cfg VerifierConfig) *Verifier {
	if cfg.ClaimThreshold <= 0 || cfg.ClaimThreshold > 1 {
		cfg.ClaimThreshold = DefaultClaimThreshold
	}
	if cfg.PartialMinRatio <= 0 || cfg.PartialMinRatio > 1 {
		cfg.PartialMinRatio = DefaultPartialMinRatio
	}
	return &Verifier{cfg: cfg}
}

type claimCheck struct {
	claim     string
	supported bool
	// best is the index into the retrieval items of the strongest support
	best int
}

// Verify grades draft against result:
//   - every checkable claim supported: grounded, text unchanged
//   - at least PartialMinRatio of them supported: partial, text annotated
//   - otherwise: refused with the fixed no-information response
//
// Citations are the sources of the passages that support the kept claims,
// in rank order.
func (v *Verifier) Verify(draft domain.Answer, result domain.RetrievalResult) domain.Answer {
	if draft.Confidence == domain.ConfidenceRefused {
		return draft
	}
	if result.IsEmpty() || strings.TrimSpace(draft.Text) == "" {
		return domain.NewRefusal(NoInformationMessage)
	}

	claims := splitClaims(draft.Text)
	if len(claims) == 0 || dontKnowPattern.MatchString(claims[0]) {
		return domain.NewRefusal(NoInformationMessage)
	}

	passages := make([]map[string]struct{}, len(result.Items))
	for i, item := range result.Items {
		passages[i] = termSet(item.Chunk.Title + "\n" + item.Chunk.Text)
	}

	checks := make([]claimCheck, 0, len(claims))
	for _, claim := range claims {
		terms := contentTerms(claim)
		if len(terms) == 0 {
			continue
		}
		check := claimCheck{claim: claim, best: -1}
		bestSupport := 0.0
		for i, passage := range passages {
			if s := support(terms, passage); s > bestSupport {
				bestSupport, check.best = s, i
			}
		}
		check.supported = bestSupport >= v.cfg.ClaimThreshold
		checks = append(checks, check)
	}
	if len(checks) == 0 {
		return domain.NewRefusal(NoInformationMessage)
	}

	supporting := make([]bool, len(result.Items))
	supported := 0
	for _, c := range checks {
		if c.supported {
			supported++
			supporting[c.best] = true
		}
	}
	citations := citedSources(result, supporting)

	ratio := float64(supported) / float64(len(checks))
	switch {
	case supported == len(checks):
		return domain.Answer{Text: draft.Text, Citations: citations, Confidence: domain.ConfidenceGrounded}
	case supported > 0 && ratio >= v.cfg.PartialMinRatio:
		return domain.Answer{
			Text:       strings.TrimRight(draft.Text, " \n") + "\n\n" + uncertaintyNote,
			Citations:  citations,
			Confidence: domain.ConfidencePartial,
		}
	default:
		return domain.NewRefusal(NoInformationMessage)
	}
}

func support(terms []string, passage map[string]struct{}) float64 {
	found := 0
	for _, t := range terms {
		if _, ok := passage[t]; ok {
			found++
		}
	}
	return float64(found) / float64(len(terms))
}

func citedSources(result domain.RetrievalResult, supporting []bool) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for i, item := range result.Items {
		if !supporting[i] {
			continue
		}
		if _, ok := seen[item.Chunk.DocumentRef]; ok {
			continue
		}
		seen[item.Chunk.DocumentRef] = struct{}{}
		out = append(out, item.Chunk.DocumentRef)
	}
	return out
}

// splitClaims breaks text into bullet lines and sentences.
func splitClaims(text string) []string {
	var claims []string
	for line := range strings.Lines(text) {
		line = strings.TrimSpace(bulletPrefix.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		rest := line
		for {
			loc := sentenceEnd.FindStringIndex(rest)
			if loc == nil {
				break
			}
			if s := strings.TrimSpace(rest[:loc[1]]); s != "" {
				claims = append(claims, s)
			}
			rest = rest[loc[1]:]
		}
		if s := strings.TrimSpace(rest); s != "" {
			claims = append(claims, s)
		}
	}
	return claims
}
