package service

import (
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
)

// minOverlapWordLength filters filler words out of the overlap computation:
// only query words longer than this participate.
const minOverlapWordLength = 2

// webFacts are the measurements the confidence rules read, computed once
// per assessment.
type webFacts struct {
	resultCount  int
	totalContent int
	absoluteURLs int
	overlap      float64
}

type webConfidenceRule struct {
	name           string
	predicate      func(f *webFacts) bool
	confidence     float64
	recommendation entity.Recommendation
}

var webConfidenceTable = []webConfidenceRule{
	{
		name:           "no_results",
		predicate:      func(f *webFacts) bool { return f.resultCount == 0 },
		confidence:     0.0,
		recommendation: entity.RecommendAskForClarification,
	},
	{
		name: "strong_web_evidence",
		predicate: func(f *webFacts) bool {
			return f.totalContent >= 500 && f.absoluteURLs >= 1 && f.overlap >= 0.3
		},
		confidence:     0.8,
		recommendation: entity.RecommendUseWeb,
	},
	{
		name: "moderate_web_evidence",
		predicate: func(f *webFacts) bool {
			return f.totalContent >= 200 && f.overlap > 0
		},
		confidence:     0.6,
		recommendation: entity.RecommendUseWeb,
	},
	{
		name:           "thin_web_evidence",
		predicate:      func(f *webFacts) bool { return f.totalContent >= 100 },
		confidence:     0.4,
		recommendation: entity.RecommendUseWebWithCaution,
	},
	{
		name:           "unusable_web_results",
		predicate:      func(f *webFacts) bool { return true },
		confidence:     0.2,
		recommendation: entity.RecommendAskForClarification,
	},
}

// ConfidenceAssessor scores web results for relevance before they are
// fused into the prompt. Pure and deterministic, like the sufficiency
// assessor it mirrors.
type ConfidenceAssessor struct {
	logger *zap.Logger
}

func NewConfidenceAssessor(logger *zap.Logger) *ConfidenceAssessor {
	return &ConfidenceAssessor{
		logger: logger.With(zap.String("component", "confidence-assessor")),
	}
}

// Assess runs the decision table over the search results.
func (c *ConfidenceAssessor) Assess(query string, results []entity.WebResult) *entity.Assessment {
	facts := c.measure(query, results)

	for _, rule := range webConfidenceTable {
		if !rule.predicate(facts) {
			continue
		}
		a := &entity.Assessment{
			Confidence:     rule.confidence,
			Recommendation: rule.recommendation,
			Reason:         rule.name,
		}
		return a.Validate()
	}

	// Unreachable: the last row always matches.
	return (&entity.Assessment{Recommendation: entity.RecommendBasicResponse}).Validate()
}

func (c *ConfidenceAssessor) measure(query string, results []entity.WebResult) *webFacts {
	facts := &webFacts{resultCount: len(results)}
	if len(results) == 0 {
		return facts
	}

	var combined strings.Builder
	for _, r := range results {
		facts.totalContent += len(r.Snippet)
		if r.HasAbsoluteURL() {
			facts.absoluteURLs++
		}
		combined.WriteString(strings.ToLower(r.Snippet))
		combined.WriteByte(' ')
	}
	facts.overlap = queryOverlap(query, combined.String())
	return facts
}

// queryOverlap is the fraction of distinct query words (longer than
// minOverlapWordLength) that appear anywhere in the combined result
// content. Queries with no qualifying words overlap nothing.
func queryOverlap(query, loweredContent string) float64 {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(words))
	matched := 0
	for _, w := range words {
		if len([]rune(w)) <= minOverlapWordLength {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		if strings.Contains(loweredContent, w) {
			matched++
		}
	}
	if len(seen) == 0 {
		return 0
	}
	return float64(matched) / float64(len(seen))
}
