package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
)

// DefaultChunkSize bounds one indexed piece of text, in bytes.
const DefaultChunkSize = 1000

// Indexer splits source material, embeds every piece, and writes the
// documents into the vector store.
type Indexer struct {
	embedder  EmbeddingProvider
	store     VectorStore
	chunkSize int
	logger    *zap.Logger
}

func NewIndexer(embedder EmbeddingProvider, store VectorStore, chunkSize int, logger *zap.Logger) *Indexer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Indexer{
		embedder:  embedder,
		store:     store,
		chunkSize: chunkSize,
		logger:    logger.With(zap.String("component", "indexer")),
	}
}

// IndexText indexes one source. Returns the number of documents written.
// Document IDs derive from source and content, so re-indexing the same
// material overwrites instead of duplicating.
func (ix *Indexer) IndexText(ctx context.Context, source string, meta entity.ChunkMetadata, text string) (int, error) {
	meta.Source = source

	pieces := SplitText(text, ix.chunkSize)
	if len(pieces) == 0 {
		return 0, nil
	}

	vectors, err := ix.embedder.EmbedBatch(ctx, pieces)
	if err != nil {
		return 0, fmt.Errorf("failed to embed source %s: %w", source, err)
	}
	if len(vectors) != len(pieces) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d pieces", len(vectors), len(pieces))
	}

	docs := make([]Document, len(pieces))
	for i, piece := range pieces {
		docs[i] = Document{
			ID:        DocumentID(source, piece),
			Content:   piece,
			Metadata:  meta,
			Embedding: vectors[i],
		}
	}
	if err := ix.store.Add(ctx, docs); err != nil {
		return 0, fmt.Errorf("failed to store documents for %s: %w", source, err)
	}

	ix.logger.Info("indexed source",
		zap.String("source", source),
		zap.Int("documents", len(docs)))
	return len(docs), nil
}

// DocumentID is a stable content-derived identifier.
func DocumentID(source, content string) string {
	sum := sha256.Sum256([]byte(source + "\x00" + content))
	return hex.EncodeToString(sum[:16])
}

// SplitText cuts text into pieces of at most maxLen bytes, preferring
// paragraph, then line, then sentence, then word boundaries.
func SplitText(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultChunkSize
	}
	remaining := strings.TrimSpace(text)
	if remaining == "" {
		return nil
	}

	var pieces []string
	for len(remaining) > 0 {
		if len(remaining) <= maxLen {
			pieces = append(pieces, remaining)
			break
		}

		cut := splitPoint(remaining, maxLen)
		if cut <= 0 {
			cut = maxLen
		}
		if piece := strings.TrimSpace(remaining[:cut]); piece != "" {
			pieces = append(pieces, piece)
		}
		remaining = strings.TrimLeft(remaining[cut:], " \t\n\r")
	}
	return pieces
}

// splitPoint picks the latest natural boundary within the budget,
// refusing cuts that would leave a fragment shorter than half of it.
func splitPoint(text string, maxLen int) int {
	window := text[:maxLen]

	if idx := strings.LastIndex(window, "\n\n"); idx >= maxLen/2 {
		return idx
	}
	if idx := strings.LastIndex(window, "\n"); idx >= maxLen/2 {
		return idx
	}
	if idx := strings.LastIndex(window, ". "); idx >= maxLen/2 {
		return idx + 1
	}
	if idx := strings.LastIndex(window, " "); idx >= maxLen/3 {
		return idx
	}
	return maxLen
}
