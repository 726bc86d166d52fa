package knowledge

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
)

// Document is one embedded piece of source material ready for indexing.
type Document struct {
	ID        string
	Content   string
	Metadata  entity.ChunkMetadata
	Embedding []float32
}

// EmbeddingProvider turns text into vectors.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// VectorStore persists embedded documents and answers nearest-neighbour
// queries. Search returns chunks ordered by ascending distance
// (smaller = closer); filtering and ranking policy live in the retriever,
// not here.
type VectorStore interface {
	Add(ctx context.Context, docs []Document) error
	Search(ctx context.Context, vector []float32, topK int) ([]*entity.Chunk, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	Close() error
}

// InMemoryVectorStore keeps documents in a map and scans them with cosine
// distance. It backs tests and the no-database development mode.
type InMemoryVectorStore struct {
	mu   sync.RWMutex
	docs map[string]Document
}

var _ VectorStore = (*InMemoryVectorStore)(nil)

func NewInMemoryVectorStore() *InMemoryVectorStore {
	return &InMemoryVectorStore{docs: make(map[string]Document)}
}

// Add upserts documents by ID.
func (s *InMemoryVectorStore) Add(ctx context.Context, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range docs {
		if doc.ID == "" {
			return entity.ErrInvalidChunkID
		}
		s.docs[doc.ID] = doc
	}
	return nil
}

// Search scans all documents and returns the topK closest as chunks.
// Ties break by ID so results are stable across runs.
func (s *InMemoryVectorStore) Search(ctx context.Context, vector []float32, topK int) ([]*entity.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if topK <= 0 {
		return nil, nil
	}

	type scored struct {
		doc      Document
		distance float64
	}
	candidates := make([]scored, 0, len(s.docs))
	for _, doc := range s.docs {
		candidates = append(candidates, scored{doc: doc, distance: cosineDistance(vector, doc.Embedding)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].doc.ID < candidates[j].doc.ID
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	chunks := make([]*entity.Chunk, 0, len(candidates))
	for _, c := range candidates {
		chunk, err := entity.NewChunk(c.doc.ID, c.doc.Content, c.doc.Metadata, c.distance)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func (s *InMemoryVectorStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.docs, id)
	return nil
}

func (s *InMemoryVectorStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.docs), nil
}

func (s *InMemoryVectorStore) Close() error { return nil }

// cosineDistance is 1 - cosine similarity, so 0 means identical direction.
// Mismatched or zero vectors count as maximally distant.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

// HashEmbedder produces deterministic character-hash vectors. Not a real
// embedding model; it exists so tests and the development mode can run
// without an embedding service.
type HashEmbedder struct {
	dimension int
}

var _ EmbeddingProvider = (*HashEmbedder)(nil)

func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 64
	}
	return &HashEmbedder{dimension: dimension}
}

func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vector := make([]float32, e.dimension)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		for i, char := range word {
			vector[(int(char)+i)%e.dimension]++
		}
	}

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(math.Sqrt(norm))
		for i := range vector {
			vector[i] /= scale
		}
	}
	return vector, nil
}

func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vector, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vector
	}
	return vectors, nil
}

func (e *HashEmbedder) Dimension() int { return e.dimension }
