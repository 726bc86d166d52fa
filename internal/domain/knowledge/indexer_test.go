package knowledge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
)

func TestSplitText(t *testing.T) {
	t.Run("short text is one piece", func(t *testing.T) {
		pieces := SplitText("hello world", 100)
		if len(pieces) != 1 || pieces[0] != "hello world" {
			t.Fatalf("unexpected pieces: %q", pieces)
		}
	})

	t.Run("empty text is no pieces", func(t *testing.T) {
		if pieces := SplitText("   \n\n  ", 100); pieces != nil {
			t.Fatalf("expected nil, got %q", pieces)
		}
	})

	t.Run("splits at paragraph boundary", func(t *testing.T) {
		text := strings.Repeat("x", 60) + "\n\n" + strings.Repeat("y", 60)
		pieces := SplitText(text, 100)
		if len(pieces) != 2 {
			t.Fatalf("expected 2 pieces, got %d: %q", len(pieces), pieces)
		}
		if pieces[0] != strings.Repeat("x", 60) || pieces[1] != strings.Repeat("y", 60) {
			t.Fatalf("paragraphs not preserved: %q", pieces)
		}
	})

	t.Run("splits after sentence end", func(t *testing.T) {
		text := strings.Repeat("a", 70) + ". " + strings.Repeat("b", 50)
		pieces := SplitText(text, 100)
		if len(pieces) != 2 {
			t.Fatalf("expected 2 pieces, got %d: %q", len(pieces), pieces)
		}
		if !strings.HasSuffix(pieces[0], ".") {
			t.Fatalf("first piece should keep its period: %q", pieces[0])
		}
		if pieces[1] != strings.Repeat("b", 50) {
			t.Fatalf("second piece wrong: %q", pieces[1])
		}
	})

	t.Run("splits at word boundary", func(t *testing.T) {
		text := strings.TrimSpace(strings.Repeat("word ", 30))
		pieces := SplitText(text, 100)
		if len(pieces) != 2 {
			t.Fatalf("expected 2 pieces, got %d", len(pieces))
		}
		for _, p := range pieces {
			if len(p) > 100 {
				t.Fatalf("piece over budget: %d chars", len(p))
			}
			if p != strings.TrimSpace(p) {
				t.Fatalf("piece not trimmed: %q", p)
			}
		}
		if strings.Join(pieces, " ") != text {
			t.Fatal("pieces do not reassemble the input")
		}
	})

	t.Run("hard cut without boundaries", func(t *testing.T) {
		pieces := SplitText(strings.Repeat("a", 250), 100)
		if len(pieces) != 3 {
			t.Fatalf("expected 3 pieces, got %d", len(pieces))
		}
		if len(pieces[0]) != 100 || len(pieces[1]) != 100 || len(pieces[2]) != 50 {
			t.Fatalf("unexpected piece sizes: %d, %d, %d", len(pieces[0]), len(pieces[1]), len(pieces[2]))
		}
	})
}

func TestIndexText(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryVectorStore()
	indexer := NewIndexer(NewHashEmbedder(32), store, 80, zap.NewNop())

	text := strings.Repeat("x", 60) + "\n\n" + strings.Repeat("y", 60)
	n, err := indexer.IndexText(ctx, "notes.md", entity.ChunkMetadata{SourceType: entity.SourceTypeFile}, text)
	if err != nil {
		t.Fatalf("IndexText failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 documents, got %d", n)
	}

	count, _ := store.Count(ctx)
	if count != 2 {
		t.Fatalf("store holds %d documents, want 2", count)
	}

	// Re-indexing the same material must not duplicate.
	if _, err := indexer.IndexText(ctx, "notes.md", entity.ChunkMetadata{SourceType: entity.SourceTypeFile}, text); err != nil {
		t.Fatalf("re-index failed: %v", err)
	}
	count, _ = store.Count(ctx)
	if count != 2 {
		t.Fatalf("re-index duplicated documents: %d", count)
	}

	// Source is stamped into every document's metadata.
	vector, _ := NewHashEmbedder(32).Embed(ctx, strings.Repeat("x", 60))
	chunks, _ := store.Search(ctx, vector, 1)
	if len(chunks) != 1 || chunks[0].Source() != "notes.md" {
		t.Fatalf("source not stamped: %+v", chunks)
	}
}

func TestIndexTextEmpty(t *testing.T) {
	indexer := NewIndexer(NewHashEmbedder(8), NewInMemoryVectorStore(), 0, zap.NewNop())
	n, err := indexer.IndexText(context.Background(), "empty.md", entity.ChunkMetadata{}, "   ")
	if err != nil {
		t.Fatalf("IndexText failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 documents, got %d", n)
	}
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embedding service down")
}

func (failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("embedding service down")
}

func (failingEmbedder) Dimension() int { return 8 }

func TestIndexTextEmbedderFailure(t *testing.T) {
	indexer := NewIndexer(failingEmbedder{}, NewInMemoryVectorStore(), 0, zap.NewNop())
	_, err := indexer.IndexText(context.Background(), "notes.md", entity.ChunkMetadata{}, "some text")
	if err == nil {
		t.Fatal("expected error from failing embedder")
	}
}

func TestDocumentID(t *testing.T) {
	a := DocumentID("notes.md", "content")
	b := DocumentID("notes.md", "content")
	c := DocumentID("other.md", "content")
	if a != b {
		t.Fatal("same input must produce the same id")
	}
	if a == c {
		t.Fatal("different sources must produce different ids")
	}
	if len(a) != 32 {
		t.Fatalf("expected 32 hex chars, got %d", len(a))
	}
}
