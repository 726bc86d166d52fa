package service

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// QueryType buckets a query for clarification templates and logging.
type QueryType string

const (
	QueryTypeCurrentStats    QueryType = "current_stats"
	QueryTypeHistoricalStats QueryType = "historical_stats"
	QueryTypeNewsEvents      QueryType = "news_events"
	QueryTypeSchedule        QueryType = "schedule"
	QueryTypeComparison      QueryType = "comparison"
	QueryTypePrediction      QueryType = "prediction"
	QueryTypeGeneral         QueryType = "general"
)

// DefaultStatisticalPatterns is the curated regex set that marks a query
// as statistical. Configuration may replace it wholesale.
var DefaultStatisticalPatterns = []string{
	`(?i)\bhow (many|much|often)\b`,
	`(?i)\b(average|avg|mean|per (game|race|season))\b`,
	`(?i)\b(specific|exact|precise|detailed) (data|stats|statistics|numbers|figures)\b`,
	`(?i)\b(stats?|statistics|records?|results?|standings?|rankings?|leaderboard)\b`,
	`(?i)\b(points?|goals?|wins?|podiums?|poles?|assists?|rebounds?|championships?|titles?)\b`,
	`(?i)\b(compare|compared|versus|vs\.?)\b`,
	`(?i)\b(predict|prediction|forecast|odds|chances|who will)\b`,
	`(?i)\b(schedule|fixtures?|next (game|race|match|round)|upcoming (game|race|match))\b`,
	`(?i)\bwhen (is|does|do|will)\b`,
	`(?i)\b(recommend|suggest|should i)\b`,
}

// DefaultCareerIndicators mark career-wide statistical asks.
var DefaultCareerIndicators = []string{
	"career", "total", "all-time", "all time", "lifetime", "overall",
}

// DefaultGreetings are treated as small talk for generation parameters.
var DefaultGreetings = []string{
	"hi", "hello", "hey", "yo", "sup", "howdy", "good morning",
	"good afternoon", "good evening", "how are you", "what's up",
	"thanks", "thank you",
}

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// GenerationParams are the LLM caps chosen per query type.
type GenerationParams struct {
	MaxTokens   int
	Temperature float64
}

// QueryAnalyzerConfig carries the configurable term lists. Empty slices
// fall back to the package defaults.
type QueryAnalyzerConfig struct {
	StatisticalPatterns []string
	CareerIndicators    []string
	Greetings           []string
}

// QueryAnalyzer classifies query intent: statistical vs general, career
// scope, query type, and the generation parameters each implies. Pure
// after construction; safe for concurrent use.
type QueryAnalyzer struct {
	statistical      []*regexp.Regexp
	careerIndicators []string
	greetings        map[string]struct{}

	comparisonRe *regexp.Regexp
	predictionRe *regexp.Regexp
	scheduleRe   *regexp.Regexp
	newsRe       *regexp.Regexp
	currentRe    *regexp.Regexp
}

// NewQueryAnalyzer compiles the pattern lists. Invalid patterns are logged
// and skipped; an empty surviving set falls back to the defaults.
func NewQueryAnalyzer(cfg QueryAnalyzerConfig, logger *zap.Logger) *QueryAnalyzer {
	log := logger.With(zap.String("component", "query-analyzer"))

	patterns := cfg.StatisticalPatterns
	if len(patterns) == 0 {
		patterns = DefaultStatisticalPatterns
	}
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			log.Warn("Skipping invalid statistical pattern",
				zap.String("pattern", p), zap.Error(err))
			continue
		}
		compiled = append(compiled, re)
	}
	if len(compiled) == 0 {
		for _, p := range DefaultStatisticalPatterns {
			compiled = append(compiled, regexp.MustCompile(p))
		}
	}

	indicators := cfg.CareerIndicators
	if len(indicators) == 0 {
		indicators = DefaultCareerIndicators
	}

	greetingList := cfg.Greetings
	if len(greetingList) == 0 {
		greetingList = DefaultGreetings
	}
	greetings := make(map[string]struct{}, len(greetingList))
	for _, g := range greetingList {
		greetings[strings.ToLower(g)] = struct{}{}
	}

	return &QueryAnalyzer{
		statistical:      compiled,
		careerIndicators: indicators,
		greetings:        greetings,
		comparisonRe:     regexp.MustCompile(`(?i)\b(compare|compared|versus|vs\.?|better than|worse than)\b`),
		predictionRe:     regexp.MustCompile(`(?i)\b(predict|prediction|forecast|odds|chances|who will|will .{0,24}win)\b`),
		scheduleRe:       regexp.MustCompile(`(?i)\b(schedule|fixtures?|next (game|race|match|round)|upcoming|when (is|does|do|will))\b`),
		newsRe:           regexp.MustCompile(`(?i)\b(news|latest|updates?|recently|happened|announc)\b`),
		currentRe:        regexp.MustCompile(`(?i)\b(current|currently|this (season|year|week)|today|right now|so far)\b`),
	}
}

// IsStatistical reports whether the query matches the statistical set.
func (a *QueryAnalyzer) IsStatistical(query string) bool {
	for _, re := range a.statistical {
		if re.MatchString(query) {
			return true
		}
	}
	return false
}

// IsCareerQuery reports whether the query asks about career-wide totals:
// a career indicator with no 4-digit year. A query carrying both is
// treated as season-specific.
func (a *QueryAnalyzer) IsCareerQuery(query string) bool {
	lower := strings.ToLower(query)
	hasIndicator := false
	for _, ind := range a.careerIndicators {
		if strings.Contains(lower, ind) {
			hasIndicator = true
			break
		}
	}
	return hasIndicator && !yearPattern.MatchString(query)
}

// IsSmallTalk reports whether the query is a greeting or similarly light
// chatter that should get short, warm generation parameters. Membership
// is list-based: a short ambiguous follow-up ("any updates?") is not
// small talk, it leans on the conversation context instead.
func (a *QueryAnalyzer) IsSmallTalk(query string) bool {
	normalized := strings.ToLower(strings.TrimSpace(query))
	normalized = strings.Trim(normalized, "!?.,:; ")
	if _, ok := a.greetings[normalized]; ok {
		return true
	}
	words := strings.Fields(normalized)
	if len(words) == 0 || len(words) > 3 {
		return false
	}
	_, ok := a.greetings[words[0]]
	return ok
}

// Type buckets the query for clarification templates.
func (a *QueryAnalyzer) Type(query string) QueryType {
	switch {
	case a.comparisonRe.MatchString(query):
		return QueryTypeComparison
	case a.predictionRe.MatchString(query):
		return QueryTypePrediction
	case a.scheduleRe.MatchString(query):
		return QueryTypeSchedule
	case a.newsRe.MatchString(query):
		return QueryTypeNewsEvents
	case a.IsStatistical(query):
		if yearPattern.MatchString(query) || a.IsCareerQuery(query) {
			return QueryTypeHistoricalStats
		}
		return QueryTypeCurrentStats
	default:
		return QueryTypeGeneral
	}
}

// Params picks generation parameters: small talk 150 tokens at 0.9,
// analytical 600 at 0.4, default 400 at 0.7. Voice turns halve the token
// budget.
func (a *QueryAnalyzer) Params(query string, voice bool) GenerationParams {
	var p GenerationParams
	switch {
	case a.IsSmallTalk(query):
		p = GenerationParams{MaxTokens: 150, Temperature: 0.9}
	case a.IsStatistical(query):
		p = GenerationParams{MaxTokens: 600, Temperature: 0.4}
	default:
		p = GenerationParams{MaxTokens: 400, Temperature: 0.7}
	}
	if voice {
		p.MaxTokens /= 2
	}
	return p
}

// ContainsYear reports whether text carries a 4-digit year token.
func ContainsYear(text string) bool {
	return yearPattern.MatchString(text)
}

// DistinctYears returns the set size of 4-digit year tokens in the texts.
func DistinctYears(texts []string) int {
	seen := make(map[string]struct{})
	for _, t := range texts {
		for _, y := range yearPattern.FindAllString(t, -1) {
			seen[y] = struct{}{}
		}
	}
	return len(seen)
}
