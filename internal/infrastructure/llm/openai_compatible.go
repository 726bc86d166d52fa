package llm

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/infrastructure/config"
	"go.uber.org/zap"
)

// KindOpenAI selects the chat-completions provider.
const KindOpenAI = "openai"

func init() {
	RegisterFactory(KindOpenAI, func(cfg config.LLMProviderConfig, logger *zap.Logger) (Provider, error) {
		return NewOpenAICompatible(cfg, logger), nil
	})
}

// OpenAICompatible talks to any chat-completions endpoint: OpenAI,
// OpenRouter, Together, Ollama, vLLM and friends all speak this format.
type OpenAICompatible struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// newCompletionHTTPClient builds the HTTP client shared by completion
// providers. Transport-level timeouts only: DialContext fails fast on
// unreachable hosts, ResponseHeaderTimeout covers model think time
// before the first byte. No total Timeout; cancellation comes from the
// request context.
func newCompletionHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 300 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}
	return &http.Client{Transport: transport}
}

// NewOpenAICompatible creates a chat-completions client for one endpoint.
func NewOpenAICompatible(cfg config.LLMProviderConfig, logger *zap.Logger) *OpenAICompatible {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAICompatible{
		name:    cfg.Name,
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  newCompletionHTTPClient(),
		logger:  logger.With(zap.String("provider", cfg.Name)),
	}
}

// Compile-time interface check
var _ Provider = (*OpenAICompatible)(nil)

func (p *OpenAICompatible) Name() string { return p.name }

// --- OpenAI Chat Completions API types ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate implements Provider.
func (p *OpenAICompatible) Generate(ctx context.Context, req Request) (string, error) {
	apiReq := chatRequest{
		Model:       p.model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.System != "" {
		apiReq.Messages = append(apiReq.Messages, chatMessage{Role: "system", Content: req.System})
	}
	apiReq.Messages = append(apiReq.Messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(apiReq)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

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

	var apiResp chatResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("API error: %s", apiResp.Error.Message)
	}
	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("response carried no choices")
	}

	content := strings.TrimSpace(apiResp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("response carried empty content")
	}
	return content, nil
}

// truncateBody keeps error messages readable when an endpoint answers
// with a whole HTML page instead of JSON.
func truncateBody(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
