package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/service"
	apperrors "github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/pkg/errors"
)

// Config is the full application configuration tree.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge"`
	WebSearch WebSearchConfig `mapstructure:"web_search"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Character CharacterConfig `mapstructure:"character"`
	Prompt    PromptConfig    `mapstructure:"prompt"`
	Events    EventsConfig    `mapstructure:"events"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`

	// Domain routing is declarative: domains, high-signal indicator
	// tokens, and the ambiguous-term list all come from configuration.
	Domains            []DomainConfig      `mapstructure:"domains"`
	ExplicitIndicators []IndicatorConfig   `mapstructure:"explicit_indicators"`
	AmbiguousTerms     []string            `mapstructure:"ambiguous_terms"`
	QueryAnalysis      QueryAnalysisConfig `mapstructure:"query_analysis"`

	// loadArg and sources record how this config was produced, so the
	// file watcher knows what to watch and Reload repeats the same load.
	loadArg string
	sources []string
}

// Sources returns the config files this configuration was read from,
// in merge order. Empty when only defaults and environment applied.
func (c *Config) Sources() []string {
	return c.sources
}

// Reload re-runs the load that produced this configuration.
func (c *Config) Reload() (*Config, error) {
	return Load(c.loadArg)
}

// ServerConfig covers the HTTP API and the websocket endpoint.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release
}

// TelegramConfig configures the Telegram frontend.
type TelegramConfig struct {
	BotToken string  `mapstructure:"bot_token"`
	AllowIDs []int64 `mapstructure:"allow_ids"` // empty = open
	PrefsDSN string  `mapstructure:"prefs_dsn"` // per-chat preference store
}

// DatabaseConfig selects the session store engine.
type DatabaseConfig struct {
	Type string `mapstructure:"type"` // sqlite, postgres
	DSN  string `mapstructure:"dsn"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json, console
	OutputPath string `mapstructure:"output_path"`
}

// PipelineConfig tunes the orchestrator and its failure containment.
type PipelineConfig struct {
	MaxResponseTime time.Duration `mapstructure:"max_response_time"`
	MinStageBudget  time.Duration `mapstructure:"min_stage_budget"`

	Stages  StageConfig   `mapstructure:"stages"`
	Breaker BreakerConfig `mapstructure:"breaker"`
}

// StageConfig holds per-stage default deadlines. Each stage actually
// runs under min(default, remaining request budget).
type StageConfig struct {
	Context   time.Duration `mapstructure:"context"`
	Retrieval time.Duration `mapstructure:"retrieval"`
	WebSearch time.Duration `mapstructure:"web_search"`
	LLM       time.Duration `mapstructure:"llm"`
	Write     time.Duration `mapstructure:"write"`
}

// BreakerConfig tunes the circuit-breaker registry.
type BreakerConfig struct {
	Threshold int           `mapstructure:"threshold"`
	Cooldown  time.Duration `mapstructure:"cooldown"`
}

// RateLimitConfig selects the per-user throttle backend.
type RateLimitConfig struct {
	Backend     string        `mapstructure:"backend"` // memory, redis
	MinInterval time.Duration `mapstructure:"min_interval"`
	Redis       RedisConfig   `mapstructure:"redis"`
}

// RedisConfig is only read when the rate-limit backend is redis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MemoryConfig tunes the per-session conversation window.
type MemoryConfig struct {
	MaxTurns     int           `mapstructure:"max_turns"`
	ContextTurns int           `mapstructure:"context_turns"`
	Retention    time.Duration `mapstructure:"retention"`
	ReapInterval time.Duration `mapstructure:"reap_interval"`
}

// KnowledgeConfig configures retrieval and the embedding store.
type KnowledgeConfig struct {
	StoreType     string         `mapstructure:"store_type"` // lancedb, memory
	StorePath     string         `mapstructure:"store_path"`
	Table         string         `mapstructure:"table"`
	TopK          int            `mapstructure:"top_k"`
	CloseDistance float64        `mapstructure:"close_distance"`
	ChunkSize     int            `mapstructure:"chunk_size"`
	Embedder      EmbedderConfig `mapstructure:"embedder"`
}

// EmbedderConfig selects the embedding provider.
type EmbedderConfig struct {
	Provider  string `mapstructure:"provider"` // ollama, openai, hash
	OllamaURL string `mapstructure:"ollama_url"`
	Model     string `mapstructure:"model"`
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	Dimension int    `mapstructure:"dimension"`
}

// WebSearchConfig tunes the external search chain.
type WebSearchConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	ProviderTimeout time.Duration `mapstructure:"provider_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MaxResults      int           `mapstructure:"max_results"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	CacheSize       int           `mapstructure:"cache_size"`
	SearxURL        string        `mapstructure:"searx_url"` // optional third provider
	UserAgent       string        `mapstructure:"user_agent"`
}

// LLMConfig configures completion providers, tried in priority order.
type LLMConfig struct {
	Timeout    time.Duration       `mapstructure:"timeout"`
	MaxRetries int                 `mapstructure:"max_retries"`
	Providers  []LLMProviderConfig `mapstructure:"providers"`
}

// LLMProviderConfig is one OpenAI-compatible or Anthropic endpoint.
type LLMProviderConfig struct {
	Name     string `mapstructure:"name"`
	Kind     string `mapstructure:"kind"` // openai, anthropic
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	Priority int    `mapstructure:"priority"`
}

// CharacterConfig points at the persona card.
type CharacterConfig struct {
	Path string `mapstructure:"path"`
}

// PromptConfig bounds the assembled prompt.
type PromptConfig struct {
	MaxChars int `mapstructure:"max_chars"`
}

// EventsConfig configures the pipeline event journal.
type EventsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DomainConfig is one declarative knowledge domain.
type DomainConfig struct {
	Name             string   `mapstructure:"name"`
	Keywords         []string `mapstructure:"keywords"`
	SourceTypeTags   []string `mapstructure:"source_type_tags"`
	OverridePrefixes []string `mapstructure:"override_prefixes"`
	PriorityBoost    float64  `mapstructure:"priority_boost"`
	Emoji            string   `mapstructure:"emoji"`
}

// IndicatorConfig maps one high-signal token to its domain.
type IndicatorConfig struct {
	Token  string `mapstructure:"token"`
	Domain string `mapstructure:"domain"`
}

// QueryAnalysisConfig carries the intent-analysis term lists: the
// statistical regex set, the career-scope indicators, and the greeting
// list treated as small talk.
type QueryAnalysisConfig struct {
	StatisticalPatterns []string `mapstructure:"statistical_patterns"`
	CareerIndicators    []string `mapstructure:"career_indicators"`
	Greetings           []string `mapstructure:"greetings"`
}

// Load reads configuration in layers: defaults, then the global
// ~/.daredevil/config.yaml, then the first project-local config.yaml,
// then DAREDEVIL_* environment variables. A non-empty path skips the
// search and reads exactly that file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")

	var sources []string
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		sources = append(sources, path)
	} else {
		v.SetConfigName("config")

		v.AddConfigPath(HomeDir())
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read global config: %w", err)
			}
		} else {
			sources = append(sources, v.ConfigFileUsed())
		}

		for _, localDir := range []string{"./config", "."} {
			localPath := filepath.Join(localDir, "config.yaml")
			if _, err := os.Stat(localPath); err == nil {
				local := viper.New()
				local.SetConfigFile(localPath)
				if err := local.ReadInConfig(); err == nil {
					_ = v.MergeConfigMap(local.AllSettings())
					sources = append(sources, localPath)
				}
				break
			}
		}
	}

	v.SetEnvPrefix("DAREDEVIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.loadArg = path
	cfg.sources = sources

	applyFallbacks(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the rest of the stack cannot work with.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "sqlite", "postgres":
	default:
		return apperrors.NewInvalidInputError(fmt.Sprintf("unknown database type %q", c.Database.Type))
	}
	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		return apperrors.NewInvalidInputError(fmt.Sprintf("unknown rate-limit backend %q", c.RateLimit.Backend))
	}
	switch c.Knowledge.StoreType {
	case "lancedb", "memory":
	default:
		return apperrors.NewInvalidInputError(fmt.Sprintf("unknown knowledge store type %q", c.Knowledge.StoreType))
	}
	switch c.Knowledge.Embedder.Provider {
	case "ollama", "openai", "hash":
	default:
		return apperrors.NewInvalidInputError(fmt.Sprintf("unknown embedder provider %q", c.Knowledge.Embedder.Provider))
	}
	if c.Pipeline.MaxResponseTime <= 0 {
		return apperrors.NewInvalidInputError("pipeline.max_response_time must be positive")
	}
	for _, d := range c.Domains {
		if d.Name == "" {
			return apperrors.NewInvalidInputError("domain declarations need a name")
		}
	}
	for _, ind := range c.ExplicitIndicators {
		if ind.Token == "" || ind.Domain == "" {
			return apperrors.NewInvalidInputError("explicit indicators need token and domain")
		}
	}
	return nil
}

// applyFallbacks fills the slice-valued settings viper defaults handle
// poorly. Explicit configuration always wins.
func applyFallbacks(cfg *Config) {
	if len(cfg.Domains) == 0 {
		cfg.Domains = DefaultDomains()
	}
	if len(cfg.ExplicitIndicators) == 0 {
		cfg.ExplicitIndicators = DefaultIndicators()
	}
	if len(cfg.AmbiguousTerms) == 0 {
		cfg.AmbiguousTerms = DefaultAmbiguousTerms()
	}
	if len(cfg.QueryAnalysis.StatisticalPatterns) == 0 {
		cfg.QueryAnalysis.StatisticalPatterns = service.DefaultStatisticalPatterns
	}
	if len(cfg.QueryAnalysis.CareerIndicators) == 0 {
		cfg.QueryAnalysis.CareerIndicators = service.DefaultCareerIndicators
	}
	if len(cfg.QueryAnalysis.Greetings) == 0 {
		cfg.QueryAnalysis.Greetings = service.DefaultGreetings
	}
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	// Database
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "daredevil.db")

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "stdout")

	// Pipeline
	v.SetDefault("pipeline.max_response_time", "45s")
	v.SetDefault("pipeline.min_stage_budget", "2s")
	v.SetDefault("pipeline.stages.context", "3s")
	v.SetDefault("pipeline.stages.retrieval", "8s")
	v.SetDefault("pipeline.stages.web_search", "15s")
	v.SetDefault("pipeline.stages.llm", "30s")
	v.SetDefault("pipeline.stages.write", "3s")
	v.SetDefault("pipeline.breaker.threshold", 5)
	v.SetDefault("pipeline.breaker.cooldown", "300s")

	// Rate limiting
	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.min_interval", "2s")
	v.SetDefault("rate_limit.redis.addr", "localhost:6379")
	v.SetDefault("rate_limit.redis.db", 0)

	// Session memory
	v.SetDefault("memory.max_turns", 50)
	v.SetDefault("memory.context_turns", 10)
	v.SetDefault("memory.retention", "168h")
	v.SetDefault("memory.reap_interval", "1h")

	// Knowledge
	v.SetDefault("knowledge.store_type", "lancedb")
	v.SetDefault("knowledge.store_path", "./data/knowledge")
	v.SetDefault("knowledge.table", "chunks")
	v.SetDefault("knowledge.top_k", 5)
	v.SetDefault("knowledge.close_distance", 0.8)
	v.SetDefault("knowledge.chunk_size", 1000)
	v.SetDefault("knowledge.embedder.provider", "ollama")
	v.SetDefault("knowledge.embedder.ollama_url", "http://localhost:11434")
	v.SetDefault("knowledge.embedder.model", "nomic-embed-text")
	v.SetDefault("knowledge.embedder.dimension", 768)

	// Web search
	v.SetDefault("web_search.timeout", "15s")
	v.SetDefault("web_search.provider_timeout", "10s")
	v.SetDefault("web_search.max_retries", 2)
	v.SetDefault("web_search.max_results", 3)
	v.SetDefault("web_search.cache_ttl", "5m")
	v.SetDefault("web_search.cache_size", 256)
	v.SetDefault("web_search.user_agent", "daredevil-bot/1.0")

	// LLM
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("llm.max_retries", 2)

	// Character card
	v.SetDefault("character.path", "./config/character.yaml")

	// Prompt assembly
	v.SetDefault("prompt.max_chars", 16000)

	// Events journal
	v.SetDefault("events.enabled", true)
	v.SetDefault("events.path", "./data/events.jsonl")
	v.SetDefault("events.max_size_mb", 64)

	// Metrics
	v.SetDefault("metrics.enabled", true)
}
