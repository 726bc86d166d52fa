package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/infrastructure/config"
	"go.uber.org/zap"
)

// KindAnthropic selects the Anthropic Messages API provider.
const KindAnthropic = "anthropic"

const anthropicVersion = "2023-06-01"

func init() {
	RegisterFactory(KindAnthropic, func(cfg config.LLMProviderConfig, logger *zap.Logger) (Provider, error) {
		return NewAnthropic(cfg, logger), nil
	})
}

// Anthropic talks to the Messages API. Differences from the OpenAI
// format: the system prompt is a top-level field, message content is a
// list of typed blocks, and max_tokens is mandatory.
type Anthropic struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// NewAnthropic creates a Messages API client for one endpoint.
func NewAnthropic(cfg config.LLMProviderConfig, logger *zap.Logger) *Anthropic {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &Anthropic{
		name:    cfg.Name,
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  newCompletionHTTPClient(),
		logger:  logger.With(zap.String("provider", cfg.Name)),
	}
}

// Compile-time interface check
var _ Provider = (*Anthropic)(nil)

func (p *Anthropic) Name() string { return p.name }

// --- Anthropic Messages API types ---

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicResponse struct {
	Content []anthropicBlock `json:"content"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate implements Provider.
func (p *Anthropic) Generate(ctx context.Context, req Request) (string, error) {
	apiReq := anthropicRequest{
		Model:       p.model,
		MaxTokens:   req.MaxTokens,
		System:      req.System,
		Temperature: req.Temperature,
		Messages: []anthropicMessage{{
			Role:    "user",
			Content: []anthropicBlock{{Type: "text", Text: req.Prompt}},
		}},
	}
	if apiReq.MaxTokens == 0 {
		apiReq.MaxTokens = 1024 // the Messages API rejects requests without max_tokens
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, truncateBody(respBody))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("API error: %s", apiResp.Error.Message)
	}

	var sb strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	content := strings.TrimSpace(sb.String())
	if content == "" {
		return "", fmt.Errorf("response carried no text content")
	}
	return content, nil
}
