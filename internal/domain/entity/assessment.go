package entity

// Recommendation routes the pipeline after an assessment.
type Recommendation string

const (
	RecommendUseRAG                Recommendation = "USE_RAG"
	RecommendWebSearch             Recommendation = "WEB_SEARCH"
	RecommendUseRAGWithWebFallback Recommendation = "USE_RAG_WITH_WEB_FALLBACK"
	RecommendUseWeb                Recommendation = "USE_WEB"
	RecommendUseWebWithCaution     Recommendation = "USE_WEB_WITH_CAUTION"
	RecommendAskForClarification   Recommendation = "ASK_FOR_CLARIFICATION"
	RecommendBasicResponse         Recommendation = "BASIC_RESPONSE"
)

var knownRecommendations = map[Recommendation]struct{}{
	RecommendUseRAG:                {},
	RecommendWebSearch:             {},
	RecommendUseRAGWithWebFallback: {},
	RecommendUseWeb:                {},
	RecommendUseWebWithCaution:     {},
	RecommendAskForClarification:   {},
	RecommendBasicResponse:         {},
}

// Assessment is the output of the sufficiency and confidence assessors.
type Assessment struct {
	Confidence     float64
	Recommendation Recommendation
	Reason         string
}

// Validate coerces a malformed assessment into a safe one: unknown
// recommendations collapse to BASIC_RESPONSE, confidence is clamped to
// [0, 1]. Returns the receiver for chaining.
func (a *Assessment) Validate() *Assessment {
	if _, ok := knownRecommendations[a.Recommendation]; !ok {
		a.Recommendation = RecommendBasicResponse
		a.Confidence = 0.0
	}
	if a.Confidence < 0 {
		a.Confidence = 0
	}
	if a.Confidence > 1 {
		a.Confidence = 1
	}
	return a
}

// WantsWeb reports whether this assessment asks for a web search.
func (a *Assessment) WantsWeb() bool {
	return a.Recommendation == RecommendWebSearch ||
		a.Recommendation == RecommendUseRAGWithWebFallback
}
