package embedding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIEmbedderRequiresKey(t *testing.T) {
	if _, err := NewOpenAIEmbedder("", "", "text-embedding-3-small", 2, nil); err == nil {
		t.Fatal("expected error for missing API key, got nil")
	}
}

func TestOpenAIEmbedderBatchPlacesByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// Data deliberately out of order; indexes decide placement.
		w.Write([]byte(`{
			"object": "list",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0.3, 0.4]},
				{"object": "embedding", "index": 0, "embedding": [0.1, 0.2]}
			],
			"model": "text-embedding-3-small",
			"usage": {"prompt_tokens": 2, "total_tokens": 2}
		}`))
	}))
	defer server.Close()

	embedder, err := NewOpenAIEmbedder("test-key", server.URL, "text-embedding-3-small", 2, nil)
	if err != nil {
		t.Fatalf("failed to create embedder: %v", err)
	}

	vecs, err := embedder.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vecs))
	}
	if vecs[0][0] != 0.1 || vecs[1][0] != 0.3 {
		t.Errorf("vectors not placed by index: got %v", vecs)
	}
}

func TestOpenAIEmbedderCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"object": "list",
			"data": [{"object": "embedding", "index": 0, "embedding": [0.1, 0.2]}],
			"model": "text-embedding-3-small",
			"usage": {"prompt_tokens": 2, "total_tokens": 2}
		}`))
	}))
	defer server.Close()

	embedder, err := NewOpenAIEmbedder("test-key", server.URL, "text-embedding-3-small", 2, nil)
	if err != nil {
		t.Fatalf("failed to create embedder: %v", err)
	}

	if _, err := embedder.EmbedBatch(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error when response count differs from input count")
	}
}
