package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Request is a single-shot completion request. The orchestrator sends
// the assembled prompt as the single user message; System carries only
// the short character header, for providers with a system channel.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Provider is one completion backend.
type Provider interface {
	// Name returns the configured endpoint identifier (e.g. "openrouter").
	Name() string

	// Generate runs one completion and returns the assistant text.
	Generate(ctx context.Context, req Request) (string, error)
}

// --- Provider Factory Registry ---
// Provider implementations register themselves via init().
// Adding a new kind = implement Provider + RegisterFactory("kind", New).

// ProviderFactory creates a Provider from one endpoint config.
type ProviderFactory func(cfg config.LLMProviderConfig, logger *zap.Logger) (Provider, error)

var (
	factoryMu sync.RWMutex
	factories = map[string]ProviderFactory{}
)

// RegisterFactory registers a provider factory under a kind name.
func RegisterFactory(kind string, factory ProviderFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[kind] = factory
}

// NewProvider builds a Provider for cfg.Kind. An empty kind defaults to
// "openai", which covers every compatible chat-completions endpoint.
func NewProvider(cfg config.LLMProviderConfig, logger *zap.Logger) (Provider, error) {
	kind := cfg.Kind
	if kind == "" {
		kind = KindOpenAI
	}

	factoryMu.RLock()
	factory, ok := factories[kind]
	if !ok {
		available := make([]string, 0, len(factories))
		for k := range factories {
			available = append(available, k)
		}
		factoryMu.RUnlock()
		return nil, fmt.Errorf("unknown provider kind %q (available: %v)", kind, available)
	}
	factoryMu.RUnlock()

	return factory(cfg, logger)
}
