package service

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
)

var (
	dateTokenPattern = regexp.MustCompile(`(?i)\b((19|20)\d{2}|january|february|march|april|may|june|july|august|september|october|november|december|\d{1,2}[./-]\d{1,2})\b`)
	statTokenPattern = regexp.MustCompile(`\b\d+([.,]\d+)?%?\b`)
	bareYearPattern  = regexp.MustCompile(`^(19|20)\d{2}$`)
)

// hasStatToken reports whether content carries a numeric statistic token.
// A bare 4-digit year is a date token, not a statistic.
func hasStatToken(content string) bool {
	for _, tok := range statTokenPattern.FindAllString(content, -1) {
		if !bareYearPattern.MatchString(tok) {
			return true
		}
	}
	return false
}

// sufficiencyFacts are the measurements every rule predicate reads. They
// are computed once per assessment so the table stays side-effect free.
type sufficiencyFacts struct {
	chunkCount     int
	hasOverride    bool
	statistical    bool
	career         bool
	datesInChunks  bool
	statsInChunks  bool
	careerInChunks bool
	yearCoverage   int
	totalContent   int
	avgDistance    float64
}

// sufficiencyRule is one row of the decision table. Rows are evaluated
// top to bottom; the first predicate that holds wins.
type sufficiencyRule struct {
	name           string
	predicate      func(f *sufficiencyFacts) bool
	confidence     float64
	recommendation entity.Recommendation
}

var sufficiencyTable = []sufficiencyRule{
	{
		name:           "no_chunks",
		predicate:      func(f *sufficiencyFacts) bool { return f.chunkCount == 0 },
		confidence:     0.0,
		recommendation: entity.RecommendWebSearch,
	},
	{
		name:           "override_present",
		predicate:      func(f *sufficiencyFacts) bool { return f.hasOverride && !f.statistical },
		confidence:     0.9,
		recommendation: entity.RecommendUseRAG,
	},
	{
		name: "statistical_with_data",
		predicate: func(f *sufficiencyFacts) bool {
			return f.statistical && f.datesInChunks && f.statsInChunks
		},
		confidence:     0.8,
		recommendation: entity.RecommendUseRAG,
	},
	{
		name: "career_query_thin_coverage",
		predicate: func(f *sufficiencyFacts) bool {
			return f.statistical && f.career && f.yearCoverage < 2 && !f.careerInChunks
		},
		confidence:     0.2,
		recommendation: entity.RecommendWebSearch,
	},
	{
		name: "statistical_without_data",
		predicate: func(f *sufficiencyFacts) bool {
			return f.statistical && !f.datesInChunks && !f.statsInChunks
		},
		confidence:     0.3,
		recommendation: entity.RecommendWebSearch,
	},
	{
		name: "rich_and_close",
		predicate: func(f *sufficiencyFacts) bool {
			return f.totalContent > 300 && f.avgDistance < 0.6
		},
		confidence:     0.7,
		recommendation: entity.RecommendUseRAG,
	},
	{
		name: "usable_with_fallback",
		predicate: func(f *sufficiencyFacts) bool {
			return f.totalContent > 100 && f.avgDistance < 0.8
		},
		confidence:     0.5,
		recommendation: entity.RecommendUseRAGWithWebFallback,
	},
	{
		name:           "insufficient",
		predicate:      func(f *sufficiencyFacts) bool { return true },
		confidence:     0.2,
		recommendation: entity.RecommendWebSearch,
	},
}

// SufficiencyAssessor scores retrieved context against query intent and
// emits a routing recommendation. Pure and deterministic: identical
// inputs always produce equal assessments.
type SufficiencyAssessor struct {
	analyzer *QueryAnalyzer
	logger   *zap.Logger
}

// NewSufficiencyAssessor wires the assessor to the shared query analyzer.
func NewSufficiencyAssessor(analyzer *QueryAnalyzer, logger *zap.Logger) *SufficiencyAssessor {
	return &SufficiencyAssessor{
		analyzer: analyzer,
		logger:   logger.With(zap.String("component", "sufficiency-assessor")),
	}
}

// Assess runs the decision table over the retrieved chunks.
func (s *SufficiencyAssessor) Assess(query string, chunks []*entity.Chunk) *entity.Assessment {
	facts := s.measure(query, chunks)

	for _, rule := range sufficiencyTable {
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

func (s *SufficiencyAssessor) measure(query string, chunks []*entity.Chunk) *sufficiencyFacts {
	facts := &sufficiencyFacts{
		chunkCount:  len(chunks),
		statistical: s.analyzer.IsStatistical(query),
		career:      s.analyzer.IsCareerQuery(query),
	}
	if len(chunks) == 0 {
		return facts
	}

	contents := make([]string, 0, len(chunks))
	var distanceSum float64
	for _, c := range chunks {
		content := c.Content()
		contents = append(contents, content)
		facts.totalContent += len(content)
		distanceSum += c.Distance()

		if c.IsOverride() {
			facts.hasOverride = true
		}
		if !facts.datesInChunks && dateTokenPattern.MatchString(content) {
			facts.datesInChunks = true
		}
		if !facts.statsInChunks && hasStatToken(content) {
			facts.statsInChunks = true
		}
		if !facts.careerInChunks && containsCareerKeyword(content) {
			facts.careerInChunks = true
		}
	}
	facts.avgDistance = distanceSum / float64(len(chunks))
	facts.yearCoverage = DistinctYears(contents)
	return facts
}

func containsCareerKeyword(content string) bool {
	lower := strings.ToLower(content)
	for _, kw := range []string{"career", "total", "all-time", "all time", "lifetime"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
