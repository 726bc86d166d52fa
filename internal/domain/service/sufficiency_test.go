package service

import (
	"testing"

	"go.uber.org/zap"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
)

func mustChunk(t *testing.T, id, content string, meta entity.ChunkMetadata, distance float64) *entity.Chunk {
	t.Helper()
	c, err := entity.NewChunk(id, content, meta, distance)
	if err != nil {
		t.Fatalf("chunk %s: %v", id, err)
	}
	return c
}

func newSufficiency(t *testing.T) *SufficiencyAssessor {
	t.Helper()
	return NewSufficiencyAssessor(newAnalyzer(t), zap.NewNop())
}

func TestSufficiency_NoChunks(t *testing.T) {
	s := newSufficiency(t)

	a := s.Assess("how many wins does he have", nil)
	if a.Recommendation != entity.RecommendWebSearch {
		t.Fatalf("expected WEB_SEARCH, got %s", a.Recommendation)
	}
	if a.Confidence != 0.0 {
		t.Fatalf("expected confidence 0.0, got %v", a.Confidence)
	}
}

func TestSufficiency_OverrideWinsForNonStatistical(t *testing.T) {
	s := newSufficiency(t)

	chunks := []*entity.Chunk{
		mustChunk(t, "o1", "Never use the hashtag #X.",
			entity.ChunkMetadata{IsOverride: true, SourceType: entity.SourceTypeOverride}, 0.4),
	}
	a := s.Assess("write me a social post about cats", chunks)
	if a.Recommendation != entity.RecommendUseRAG {
		t.Fatalf("expected USE_RAG, got %s", a.Recommendation)
	}
	if a.Confidence != 0.9 {
		t.Fatalf("expected confidence 0.9, got %v", a.Confidence)
	}
}

func TestSufficiency_OverrideDoesNotShortCircuitStatistical(t *testing.T) {
	s := newSufficiency(t)

	// Statistical query with an override chunk that has no data tokens:
	// the override row is skipped and the statistical rows decide.
	chunks := []*entity.Chunk{
		mustChunk(t, "o1", "Always answer politely.",
			entity.ChunkMetadata{IsOverride: true}, 0.4),
	}
	a := s.Assess("how many podiums does he have", chunks)
	if a.Recommendation == entity.RecommendUseRAG && a.Confidence == 0.9 {
		t.Fatal("override row must not fire for statistical queries")
	}
}

func TestSufficiency_StatisticalWithData(t *testing.T) {
	s := newSufficiency(t)

	chunks := []*entity.Chunk{
		mustChunk(t, "c1", "In the 2022 season he scored 454 points with 15 podiums.",
			entity.ChunkMetadata{SourceType: "f1_data"}, 0.5),
	}
	a := s.Assess("how many points did he score in 2022", chunks)
	if a.Recommendation != entity.RecommendUseRAG {
		t.Fatalf("expected USE_RAG, got %s", a.Recommendation)
	}
	if a.Confidence != 0.8 {
		t.Fatalf("expected confidence 0.8, got %v", a.Confidence)
	}
}

func TestSufficiency_CareerQueryThinCoverage(t *testing.T) {
	s := newSufficiency(t)

	// One season's chunk, one distinct year, no career keyword: the KB
	// cannot answer a career-wide ask.
	chunks := []*entity.Chunk{
		mustChunk(t, "c1", "During the 2022 season he stood on the podium again and again.",
			entity.ChunkMetadata{SourceType: "f1_data"}, 0.5),
	}
	a := s.Assess("how many total podiums does he have?", chunks)
	if a.Recommendation != entity.RecommendWebSearch {
		t.Fatalf("expected WEB_SEARCH, got %s", a.Recommendation)
	}
	if a.Confidence != 0.2 {
		t.Fatalf("expected confidence 0.2, got %v", a.Confidence)
	}
	if a.Reason != "career_query_thin_coverage" {
		t.Fatalf("expected career_query_thin_coverage, got %s", a.Reason)
	}
}

func TestSufficiency_CareerKeywordInChunksSuffices(t *testing.T) {
	s := newSufficiency(t)

	chunks := []*entity.Chunk{
		mustChunk(t, "c1", "His career total stands at 104 podiums as of October 2024.",
			entity.ChunkMetadata{SourceType: "f1_data"}, 0.5),
	}
	a := s.Assess("how many total podiums does he have?", chunks)
	// Date + stat tokens present, so the statistical-with-data row fires
	// before the career row is ever consulted.
	if a.Recommendation != entity.RecommendUseRAG {
		t.Fatalf("expected USE_RAG, got %s", a.Recommendation)
	}
	if a.Confidence != 0.8 {
		t.Fatalf("expected confidence 0.8, got %v", a.Confidence)
	}
}

func TestSufficiency_StatisticalWithoutData(t *testing.T) {
	s := newSufficiency(t)

	chunks := []*entity.Chunk{
		mustChunk(t, "c1", "He is widely considered one of the greats of the sport.",
			entity.ChunkMetadata{}, 0.5),
	}
	a := s.Assess("show me his stats", chunks)
	if a.Recommendation != entity.RecommendWebSearch {
		t.Fatalf("expected WEB_SEARCH, got %s", a.Recommendation)
	}
	if a.Confidence != 0.3 {
		t.Fatalf("expected confidence 0.3, got %v", a.Confidence)
	}
}

func TestSufficiency_RichCloseContent(t *testing.T) {
	s := newSufficiency(t)

	long := make([]byte, 350)
	for i := range long {
		long[i] = 'a'
	}
	chunks := []*entity.Chunk{
		mustChunk(t, "c1", string(long), entity.ChunkMetadata{}, 0.3),
	}
	a := s.Assess("tell me about his driving style", chunks)
	if a.Recommendation != entity.RecommendUseRAG {
		t.Fatalf("expected USE_RAG, got %s", a.Recommendation)
	}
	if a.Confidence != 0.7 {
		t.Fatalf("expected confidence 0.7, got %v", a.Confidence)
	}
}

func TestSufficiency_ModerateContentWantsFallback(t *testing.T) {
	s := newSufficiency(t)

	content := make([]byte, 150)
	for i := range content {
		content[i] = 'b'
	}
	chunks := []*entity.Chunk{
		mustChunk(t, "c1", string(content), entity.ChunkMetadata{}, 0.7),
	}
	a := s.Assess("tell me about his driving style", chunks)
	if a.Recommendation != entity.RecommendUseRAGWithWebFallback {
		t.Fatalf("expected USE_RAG_WITH_WEB_FALLBACK, got %s", a.Recommendation)
	}
	if a.Confidence != 0.5 {
		t.Fatalf("expected confidence 0.5, got %v", a.Confidence)
	}
}

func TestSufficiency_ThinDistantContent(t *testing.T) {
	s := newSufficiency(t)

	chunks := []*entity.Chunk{
		mustChunk(t, "c1", "short note", entity.ChunkMetadata{}, 0.95),
	}
	a := s.Assess("tell me about his driving style", chunks)
	if a.Recommendation != entity.RecommendWebSearch {
		t.Fatalf("expected WEB_SEARCH, got %s", a.Recommendation)
	}
	if a.Confidence != 0.2 {
		t.Fatalf("expected confidence 0.2, got %v", a.Confidence)
	}
}

func TestSufficiency_Deterministic(t *testing.T) {
	s := newSufficiency(t)

	chunks := []*entity.Chunk{
		mustChunk(t, "c1", "In 2021 he won 10 races.", entity.ChunkMetadata{}, 0.4),
		mustChunk(t, "c2", "In 2022 he won 15 races.", entity.ChunkMetadata{}, 0.5),
	}
	first := s.Assess("how many races did he win", chunks)
	for i := 0; i < 10; i++ {
		again := s.Assess("how many races did he win", chunks)
		if *again != *first {
			t.Fatalf("assessment not deterministic: %+v vs %+v", again, first)
		}
	}
}
