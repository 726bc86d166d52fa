package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/knowledge"
)

// OllamaEmbedder generates embeddings via the Ollama /api/embed HTTP API.
type OllamaEmbedder struct {
	baseURL   string
	model     string
	dimension int
	client    *http.Client
	logger    *zap.Logger
}

var _ knowledge.EmbeddingProvider = (*OllamaEmbedder)(nil)

// embedRequest matches the Ollama /api/embed payload.
type embedRequest struct {
	Model string      `json:"model"`
	Input interface{} `json:"input"` // string or []string
}

// embedResponse matches the Ollama /api/embed response.
type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaEmbedder creates an Ollama embedding provider. When dimension
// is zero it probes the model once to detect the vector width; a
// configured dimension skips the probe so startup works offline.
func NewOllamaEmbedder(baseURL, model string, dimension int, logger *zap.Logger) (*OllamaEmbedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &OllamaEmbedder{
		baseURL:   baseURL,
		model:     model,
		dimension: dimension,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With(zap.String("component", "ollama-embedder")),
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

	e.logger.Info("ollama embedder initialized",
		zap.String("model", model),
		zap.String("url", baseURL),
		zap.Int("dimension", e.dimension),
	)
	return e, nil
}

// Embed generates an embedding vector for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.doEmbed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding response from ollama")
	}
	return vectors[0], nil
}

// EmbedBatch generates vectors for multiple texts in one call.
// Ollama /api/embed natively supports []string input.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := e.doEmbed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}

// Dimension returns the vector dimension.
func (e *OllamaEmbedder) Dimension() int {
	return e.dimension
}

// doEmbed calls Ollama /api/embed with either string or []string input.
// One retry on network failure; the request body is rebuilt for the
// second attempt.
func (e *OllamaEmbedder) doEmbed(ctx context.Context, input interface{}) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: e.model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	url := e.baseURL + "/api/embed"
	var resp *http.Response
	for attempt := 0; attempt < 2; attempt++ {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if reqErr != nil {
			return nil, fmt.Errorf("failed to create request: %w", reqErr)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err = e.client.Do(req)
		if err == nil {
			break
		}
		if attempt == 0 {
			e.logger.Warn("ollama embed request failed, retrying", zap.Error(err))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("ollama embed request failed after retry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama embed returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("failed to decode embed response: %w", err)
	}
	if len(embedResp.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama returned empty embeddings array")
	}
	return embedResp.Embeddings, nil
}
