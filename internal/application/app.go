package application

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/knowledge"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/repository"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/service"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/infrastructure/config"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/infrastructure/embedding"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/infrastructure/eventbus"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/infrastructure/llm"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/infrastructure/monitoring"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/infrastructure/persistence"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/infrastructure/prompt"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/infrastructure/retrieval"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/infrastructure/throttle"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/infrastructure/vectorstore"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/infrastructure/websearch"
	httpserver "github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/interfaces/http"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/interfaces/telegram"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/interfaces/websocket"
)

// App wires every layer of the bot together and owns the lifecycle of
// the pieces that need starting and stopping.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	// Conversation stores
	db          *gorm.DB
	sessionRepo repository.SessionRepository
	memory      *service.SessionMemory

	// Language services
	classifier  *service.DomainClassifier
	tracker     *service.DomainTracker
	analyzer    *service.QueryAnalyzer
	sufficiency *service.SufficiencyAssessor
	confidence  *service.ConfidenceAssessor

	// Eventing and observability
	bus       eventbus.Bus
	metrics   *monitoring.Metrics
	traces    *monitoring.TraceLog
	collector *monitoring.Collector

	// Resilience
	breakers     *service.BreakerRegistry
	limiter      service.RateLimiter
	redisLimiter *throttle.RedisRateLimiter

	// Knowledge
	embedder  knowledge.EmbeddingProvider
	store     knowledge.VectorStore
	lance     *vectorstore.LanceDBStore
	indexer   *knowledge.Indexer
	retriever *retrieval.Retriever

	// Web search and generation
	searcher *websearch.Searcher
	router   *llm.Router
	client   *llm.Client

	// Prompt assembly
	cards   *prompt.CardStore
	builder *prompt.Builder
	watcher *config.Watcher

	orchestrator *Orchestrator

	// Frontends
	httpServer *httpserver.Server
	hub        *websocket.Hub
	telegram   *telegram.Adapter

	cancel context.CancelFunc
}

// NewApp builds the full application, frontends included.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	return newApp(cfg, logger, true)
}

// NewAppCLI builds the pipeline without the HTTP and Telegram frontends,
// for one-shot commands and the terminal UI.
func NewAppCLI(cfg *config.Config, logger *zap.Logger) (*App, error) {
	return newApp(cfg, logger, false)
}

func newApp(cfg *config.Config, logger *zap.Logger, withFrontends bool) (*App, error) {
	if err := config.Bootstrap(logger); err != nil {
		return nil, fmt.Errorf("failed to bootstrap home directory: %w", err)
	}

	a := &App{cfg: cfg, logger: logger}

	if err := a.initStores(); err != nil {
		return nil, err
	}
	if err := a.initLanguage(); err != nil {
		return nil, err
	}
	if err := a.initEventing(); err != nil {
		return nil, err
	}
	if err := a.initResilience(); err != nil {
		return nil, err
	}
	if err := a.initKnowledge(); err != nil {
		return nil, err
	}
	if err := a.initWebSearch(); err != nil {
		return nil, err
	}
	if err := a.initLLM(); err != nil {
		return nil, err
	}
	if err := a.initPrompting(); err != nil {
		return nil, err
	}
	if err := a.initPipeline(); err != nil {
		return nil, err
	}
	if withFrontends {
		if err := a.initFrontends(); err != nil {
			return nil, err
		}
	}

	return a, nil
}

func (a *App) initStores() error {
	a.logger.Info("Initializing conversation stores",
		zap.String("database", a.cfg.Database.Type))

	db, err := persistence.NewDBConnection(&a.cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open session database: %w", err)
	}
	a.db = db
	a.sessionRepo = persistence.NewGormSessionRepository(db)

	a.memory = service.NewSessionMemory(a.sessionRepo, service.SessionMemoryConfig{
		MaxTurns:     a.cfg.Memory.MaxTurns,
		ContextTurns: a.cfg.Memory.ContextTurns,
		Retention:    a.cfg.Memory.Retention,
		ReapInterval: a.cfg.Memory.ReapInterval,
	}, a.logger)

	return nil
}

func (a *App) initLanguage() error {
	a.logger.Info("Initializing language services",
		zap.Int("domains", len(a.cfg.Domains)))

	domains, indicators, ambiguous := languageSettings(a.cfg)
	a.classifier = service.NewDomainClassifier(domains, indicators, ambiguous, a.logger)
	a.tracker = service.NewDomainTracker()
	a.analyzer = service.NewQueryAnalyzer(service.QueryAnalyzerConfig{
		StatisticalPatterns: a.cfg.QueryAnalysis.StatisticalPatterns,
		CareerIndicators:    a.cfg.QueryAnalysis.CareerIndicators,
		Greetings:           a.cfg.QueryAnalysis.Greetings,
	}, a.logger)
	a.sufficiency = service.NewSufficiencyAssessor(a.analyzer, a.logger)
	a.confidence = service.NewConfidenceAssessor(a.logger)

	return nil
}

func (a *App) initEventing() error {
	a.logger.Info("Initializing event bus",
		zap.Bool("journal", a.cfg.Events.Enabled))

	if a.cfg.Events.Enabled {
		bus, err := eventbus.NewJournalBus(eventbus.JournalConfig{
			Path:       a.cfg.Events.Path,
			BufferSize: 256,
			MaxSize:    int64(a.cfg.Events.MaxSizeMB) << 20,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("failed to open event journal: %w", err)
		}
		a.bus = bus
	} else {
		a.bus = eventbus.NewInMemoryBus(a.logger, 256)
	}

	if a.cfg.Metrics.Enabled {
		a.metrics = monitoring.NewMetrics()
		a.traces = monitoring.NewTraceLog(100)
		a.collector = monitoring.NewCollector(a.metrics, a.traces, a.logger)
		a.collector.Attach(a.bus)
	}

	return nil
}

func (a *App) initResilience() error {
	a.logger.Info("Initializing resilience layer",
		zap.Int("breaker_threshold", a.cfg.Pipeline.Breaker.Threshold),
		zap.String("rate_limit_backend", a.cfg.RateLimit.Backend))

	a.breakers = service.NewBreakerRegistry(
		a.cfg.Pipeline.Breaker.Threshold,
		a.cfg.Pipeline.Breaker.Cooldown,
		a.logger,
	)
	a.breakers.SetTransitionHook(func(name string, open bool, failures int) {
		state := "closed"
		if open {
			state = "open"
		}
		a.bus.Publish(context.Background(), eventbus.NewEvent(
			eventbus.EventTypeBreakerStateChange,
			eventbus.BreakerStateChangePayload{Service: name, State: state, Failures: failures},
		))
	})

	switch a.cfg.RateLimit.Backend {
	case "redis":
		rl, err := throttle.NewRedisRateLimiter(throttle.Config{
			Addr:        a.cfg.RateLimit.Redis.Addr,
			Password:    a.cfg.RateLimit.Redis.Password,
			DB:          a.cfg.RateLimit.Redis.DB,
			MinInterval: a.cfg.RateLimit.MinInterval,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("failed to connect redis rate limiter: %w", err)
		}
		a.limiter = rl
		a.redisLimiter = rl
	default:
		a.limiter = service.NewMemoryRateLimiter(a.cfg.RateLimit.MinInterval, a.logger)
	}

	return nil
}

func (a *App) initKnowledge() error {
	kc := a.cfg.Knowledge
	a.logger.Info("Initializing knowledge layer",
		zap.String("store", kc.StoreType),
		zap.String("embedder", kc.Embedder.Provider))

	switch kc.Embedder.Provider {
	case "ollama":
		emb, err := embedding.NewOllamaEmbedder(kc.Embedder.OllamaURL, kc.Embedder.Model, kc.Embedder.Dimension, a.logger)
		if err != nil {
			return fmt.Errorf("failed to configure ollama embedder: %w", err)
		}
		a.embedder = emb
	case "openai":
		emb, err := embedding.NewOpenAIEmbedder(kc.Embedder.APIKey, kc.Embedder.BaseURL, kc.Embedder.Model, kc.Embedder.Dimension, a.logger)
		if err != nil {
			return fmt.Errorf("failed to configure openai embedder: %w", err)
		}
		a.embedder = emb
	default:
		a.embedder = knowledge.NewHashEmbedder(kc.Embedder.Dimension)
	}

	switch kc.StoreType {
	case "lancedb":
		store, err := vectorstore.NewLanceDBStore(kc.StorePath, kc.Table, kc.Embedder.Dimension, a.logger)
		if err != nil {
			return fmt.Errorf("failed to open lancedb store: %w", err)
		}
		a.store = store
		a.lance = store
	default:
		a.store = knowledge.NewInMemoryVectorStore()
	}

	a.indexer = knowledge.NewIndexer(a.embedder, a.store, kc.ChunkSize, a.logger)
	a.retriever = retrieval.NewRetriever(a.embedder, a.store, a.classifier, a.breakers, a.logger)

	return nil
}

func (a *App) initWebSearch() error {
	wc := a.cfg.WebSearch
	a.logger.Info("Initializing web search",
		zap.Bool("searxng", wc.SearxURL != ""))

	providers := []websearch.Provider{
		&websearch.Wikipedia{UserAgent: wc.UserAgent},
		&websearch.DuckDuckGo{UserAgent: wc.UserAgent},
	}
	if wc.SearxURL != "" {
		providers = append(providers, &websearch.SearxNG{
			BaseURL:   wc.SearxURL,
			UserAgent: wc.UserAgent,
		})
	}

	cache := websearch.NewCache(wc.CacheTTL, wc.CacheSize)
	a.searcher = websearch.NewSearcher(providers, a.breakers, cache,
		wc.Timeout, wc.ProviderTimeout, wc.MaxRetries, a.logger)

	return nil
}

func (a *App) initLLM() error {
	a.logger.Info("Initializing LLM providers",
		zap.Int("configured", len(a.cfg.LLM.Providers)))

	a.router = llm.NewRouter(a.logger)
	for _, pc := range a.cfg.LLM.Providers {
		p, err := llm.NewProvider(pc, a.logger)
		if err != nil {
			return fmt.Errorf("failed to configure llm provider %s: %w", pc.Name, err)
		}
		a.router.AddProvider(p, pc.Priority)
	}
	if len(a.cfg.LLM.Providers) == 0 {
		a.logger.Warn("No LLM providers configured; every response will degrade to a fallback")
	}

	a.client = llm.NewClient(a.router, a.breakers, a.cfg.LLM.Timeout, a.cfg.LLM.MaxRetries, a.logger)

	return nil
}

func (a *App) initPrompting() error {
	a.logger.Info("Initializing prompt assembly",
		zap.String("character", a.cfg.Character.Path))

	a.cards = prompt.NewCardStore(a.cfg.Character.Path, a.logger)
	a.builder = prompt.NewBuilder(a.cfg.Prompt.MaxChars, a.logger)

	watcher, err := config.NewWatcher(a.onConfigChange, a.logger)
	if err != nil {
		a.logger.Warn("Config watcher unavailable, hot reload disabled", zap.Error(err))
		return nil
	}
	a.watcher = watcher
	if err := watcher.Add(a.cards.Path()); err != nil {
		a.logger.Warn("Cannot watch character card", zap.String("path", a.cards.Path()), zap.Error(err))
	}
	for _, src := range a.cfg.Sources() {
		if err := watcher.Add(src); err != nil {
			a.logger.Warn("Cannot watch config file", zap.String("path", src), zap.Error(err))
		}
	}

	return nil
}

func (a *App) initPipeline() error {
	a.logger.Info("Initializing response pipeline",
		zap.Duration("max_response_time", a.cfg.Pipeline.MaxResponseTime))

	a.orchestrator = NewOrchestrator(Deps{
		Limiter:       a.limiter,
		Memory:        a.memory,
		Classifier:    a.classifier,
		Tracker:       a.tracker,
		Analyzer:      a.analyzer,
		Sufficiency:   a.sufficiency,
		WebConfidence: a.confidence,
		Retriever:     a.retriever,
		Searcher:      a.searcher,
		Generator:     a.client,
		Prompts:       a.builder,
		Cards:         a.cards,
		Bus:           a.bus,
		Logger:        a.logger,
	}, Settings{
		MaxResponseTime: a.cfg.Pipeline.MaxResponseTime,
		MinStageBudget:  a.cfg.Pipeline.MinStageBudget,
		ContextBudget:   a.cfg.Pipeline.Stages.Context,
		RetrievalBudget: a.cfg.Pipeline.Stages.Retrieval,
		WebSearchBudget: a.cfg.Pipeline.Stages.WebSearch,
		LLMBudget:       a.cfg.Pipeline.Stages.LLM,
		WriteBudget:     a.cfg.Pipeline.Stages.Write,
		TopK:            a.cfg.Knowledge.TopK,
		MaxWebResults:   a.cfg.WebSearch.MaxResults,
	})

	return nil
}

func (a *App) initFrontends() error {
	a.logger.Info("Initializing frontends")

	a.hub = websocket.NewHub(a.orchestrator, a.logger)
	a.httpServer = httpserver.NewServer(httpserver.Config{
		Host: a.cfg.Server.Host,
		Port: a.cfg.Server.Port,
		Mode: a.cfg.Server.Mode,
	}, a.orchestrator, a.memory, a.breakers, a.traces, a.metrics, a.hub.Handler(), a.logger)

	if a.cfg.Telegram.BotToken == "" {
		a.logger.Info("Telegram frontend disabled: no bot token")
		return nil
	}

	prefsDSN := a.cfg.Telegram.PrefsDSN
	if prefsDSN == "" {
		prefsDSN = filepath.Join(config.HomeDir(), "data", "telegram_prefs.db")
	}
	adapter, err := telegram.NewAdapter(telegram.Config{
		BotToken: a.cfg.Telegram.BotToken,
		AllowIDs: a.cfg.Telegram.AllowIDs,
		PrefsDSN: prefsDSN,
	}, a.orchestrator, a.memory, a.breakers, a.logger)
	if err != nil {
		return fmt.Errorf("failed to start telegram adapter: %w", err)
	}
	a.telegram = adapter

	return nil
}

// onConfigChange reacts to watched file edits: the character card reloads
// in place, anything else re-runs the config load and refreshes the
// domain declarations. Pipeline budgets stay as booted; they need a restart.
func (a *App) onConfigChange(path string) {
	if path == a.cards.Path() {
		if err := a.cards.Reload(); err != nil {
			a.logger.Warn("Character card reload failed, keeping previous card", zap.Error(err))
		}
		return
	}

	fresh, err := a.cfg.Reload()
	if err != nil {
		a.logger.Warn("Config reload failed, keeping previous settings", zap.Error(err))
		return
	}
	domains, indicators, ambiguous := languageSettings(fresh)
	a.classifier.Reload(domains, indicators, ambiguous)
	a.logger.Info("Domain declarations reloaded",
		zap.String("trigger", path),
		zap.Int("domains", len(domains)))
}

// Start brings the background work and frontends up. Non-blocking: the
// HTTP server and Telegram poller run on their own goroutines.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.memory.StartReaper(runCtx)
	if a.watcher != nil {
		a.watcher.Start(runCtx)
	}
	if a.httpServer != nil {
		if err := a.httpServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start http server: %w", err)
		}
	}
	if a.telegram != nil {
		if err := a.telegram.Start(runCtx); err != nil {
			return fmt.Errorf("failed to start telegram adapter: %w", err)
		}
	}

	a.logger.Info("Daredevil is up",
		zap.String("persona", a.cards.Card().Name),
		zap.Bool("telegram", a.telegram != nil),
		zap.Bool("http", a.httpServer != nil),
	)
	return nil
}

// Stop shuts everything down in reverse dependency order. Frontends
// first so no new queries arrive while the stores close.
func (a *App) Stop(ctx context.Context) error {
	a.logger.Info("Shutting down")

	if a.telegram != nil {
		a.telegram.Stop()
	}
	if a.hub != nil {
		a.hub.Shutdown()
	}
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.logger.Warn("HTTP server shutdown error", zap.Error(err))
		}
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.bus != nil {
		a.bus.Close()
	}
	if a.lance != nil {
		if err := a.lance.Close(); err != nil {
			a.logger.Warn("LanceDB close error", zap.Error(err))
		}
	}
	if a.redisLimiter != nil {
		if err := a.redisLimiter.Close(); err != nil {
			a.logger.Warn("Redis limiter close error", zap.Error(err))
		}
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.logger.Warn("Session database close error", zap.Error(err))
			}
		}
	}

	a.logger.Info("Shutdown complete")
	return nil
}

// languageSettings maps the declarative config onto the classifier's
// domain model.
func languageSettings(cfg *config.Config) ([]service.Domain, []service.ExplicitIndicator, []string) {
	domains := make([]service.Domain, 0, len(cfg.Domains))
	for _, d := range cfg.Domains {
		domains = append(domains, service.Domain{
			Name:             d.Name,
			Keywords:         d.Keywords,
			SourceTypeTags:   d.SourceTypeTags,
			OverridePrefixes: d.OverridePrefixes,
			PriorityBoost:    d.PriorityBoost,
			Emoji:            d.Emoji,
		})
	}
	indicators := make([]service.ExplicitIndicator, 0, len(cfg.ExplicitIndicators))
	for _, ind := range cfg.ExplicitIndicators {
		indicators = append(indicators, service.ExplicitIndicator{
			Token:  ind.Token,
			Domain: ind.Domain,
		})
	}
	return domains, indicators, cfg.AmbiguousTerms
}

// Accessors for the command layer and the terminal UI.

func (a *App) Orchestrator() *Orchestrator        { return a.orchestrator }
func (a *App) Config() *config.Config             { return a.cfg }
func (a *App) Logger() *zap.Logger                { return a.logger }
func (a *App) Memory() *service.SessionMemory     { return a.memory }
func (a *App) Indexer() *knowledge.Indexer        { return a.indexer }
func (a *App) Store() knowledge.VectorStore       { return a.store }
func (a *App) Breakers() *service.BreakerRegistry { return a.breakers }
func (a *App) Traces() *monitoring.TraceLog       { return a.traces }
func (a *App) Metrics() *monitoring.Metrics       { return a.metrics }
func (a *App) Bus() eventbus.Bus                  { return a.bus }
func (a *App) Cards() *prompt.CardStore           { return a.cards }
func (a *App) Router() *llm.Router                { return a.router }
func (a *App) Embedder() knowledge.EmbeddingProvider { return a.embedder }
