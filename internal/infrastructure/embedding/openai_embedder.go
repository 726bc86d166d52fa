package embedding

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/knowledge"
)

// OpenAIEmbedder generates embeddings through the OpenAI embeddings API,
// or any compatible endpoint when a base URL is configured.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
	logger    *zap.Logger
}

var _ knowledge.EmbeddingProvider = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an OpenAI embedding provider. A zero dimension
// triggers a one-shot probe against the model.
func NewOpenAIEmbedder(apiKey, baseURL, model string, dimension int, logger *zap.Logger) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai embedder requires an API key")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transportCfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		transportCfg.BaseURL = baseURL
	}

	e := &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(transportCfg),
		model:     model,
		dimension: dimension,
		logger:    logger.With(zap.String("component", "openai-embedder")),
	}

	if e.dimension <= 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		probe, err := e.Embed(ctx, "dimension probe")
		if err != nil {
			return nil, fmt.Errorf("failed to probe embedding dimension for model %s: %w", model, err)
		}
		e.dimension = len(probe)
	}

	e.logger.Info("openai embedder initialized",
		zap.String("model", model),
		zap.Int("dimension", e.dimension),
	)
	return e, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding response from openai")
	}
	return vectors[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings request failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	// Place by index; the API documents order but indexes are authoritative.
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("openai embedding index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}
