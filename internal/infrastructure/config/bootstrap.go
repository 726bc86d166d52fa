package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// AppName is the canonical application name.
const AppName = "daredevil"

// HomeDir returns the bot's configuration home: ~/.daredevil
func HomeDir() string {
	return filepath.Join(os.Getenv("HOME"), "."+AppName)
}

// Bootstrap ensures ~/.daredevil exists with its default content. Called
// once at startup. Safe to call repeatedly: only missing items are created,
// user edits are never overwritten.
func Bootstrap(logger *zap.Logger) error {
	root := HomeDir()

	dirs := []string{
		root,
		filepath.Join(root, "data"),
		filepath.Join(root, "knowledge"),
		filepath.Join(root, "logs"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	defaults := map[string]string{
		filepath.Join(root, "config.yaml"):    fmt.Sprintf(defaultConfigTemplate, root),
		filepath.Join(root, "character.yaml"): defaultCharacterCard,
	}

	created := 0
	for path, content := range defaults {
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			logger.Warn("Failed to write default file", zap.String("path", path), zap.Error(err))
			continue
		}
		created++
	}

	if created > 0 {
		logger.Info("Daredevil bootstrap complete",
			zap.String("home", root),
			zap.Int("files_created", created),
		)
	} else {
		logger.Debug("Daredevil home directory OK", zap.String("home", root))
	}

	return nil
}

// ──────────────────────────────────────────────────────────────
// Embedded default file contents
// ──────────────────────────────────────────────────────────────

const defaultConfigTemplate = `# ═══════════════════════════════════════════════════════════════
# Daredevil Configuration
# Auto-generated on first launch — feel free to edit.
# Environment variables win over this file: DAREDEVIL_LLM_TIMEOUT etc.
# ═══════════════════════════════════════════════════════════════

# ─── HTTP API Server ─────────────────────────────────────────
server:
  host: 0.0.0.0
  port: 8080
  mode: release                # debug | release

# ─── Telegram Bot ────────────────────────────────────────────
# Leave bot_token empty to disable the Telegram frontend.
telegram:
  bot_token: ""                # Get from @BotFather
  allow_ids: []                # Allowed user IDs; empty = open
  prefs_dsn: ""                # Per-chat preference store (defaults beside the session db)

# ─── Session Database ────────────────────────────────────────
database:
  type: sqlite                 # sqlite | postgres
  dsn: %[1]s/data/daredevil.db

# ─── Logging ─────────────────────────────────────────────────
log:
  level: info                  # debug | info | warn | error
  format: json                 # json | console
  output_path: stdout

# ─── Response Pipeline ───────────────────────────────────────
# Hard ceiling per query and per-stage deadlines. Every stage runs
# under the smaller of its own deadline and the remaining budget.
pipeline:
  max_response_time: 45s
  min_stage_budget: 2s
  stages:
    context: 3s
    retrieval: 8s
    web_search: 15s
    llm: 30s
    write: 3s
  breaker:
    threshold: 5               # Consecutive failures before a circuit opens
    cooldown: 300s             # Open duration before a half-open probe

# ─── Rate Limiting ───────────────────────────────────────────
rate_limit:
  backend: memory              # memory | redis
  min_interval: 2s             # Minimum gap between queries per user
  redis:
    addr: localhost:6379
    password: ""
    db: 0

# ─── Session Memory ──────────────────────────────────────────
memory:
  max_turns: 50                # Stored turns per session
  context_turns: 10            # Turns folded into each prompt
  retention: 168h              # Idle sessions older than this are reaped
  reap_interval: 1h

# ─── Knowledge Base ──────────────────────────────────────────
# Vector retrieval over seeded material. Seed with: daredevil seed
knowledge:
  store_type: lancedb          # lancedb | memory
  store_path: %[1]s/data/knowledge
  table: chunks
  top_k: 5
  chunk_size: 1000
  embedder:
    provider: ollama           # ollama | openai | hash
    ollama_url: http://localhost:11434
    model: nomic-embed-text
    dimension: 768

# ─── Web Search ──────────────────────────────────────────────
web_search:
  timeout: 15s
  provider_timeout: 10s
  max_retries: 2
  max_results: 3
  cache_ttl: 5m
  searx_url: ""                # Optional self-hosted SearxNG instance

# ─── LLM Providers ───────────────────────────────────────────
# Tried in ascending priority order; the router fails over on error.
llm:
  timeout: 30s
  max_retries: 2
  providers: []
  # Example:
  # providers:
  #   - name: openai
  #     kind: openai
  #     base_url: https://api.openai.com/v1
  #     api_key: sk-...
  #     model: gpt-4o-mini
  #     priority: 1
  #   - name: claude
  #     kind: anthropic
  #     api_key: sk-ant-...
  #     model: claude-3-5-sonnet-20241022
  #     priority: 2

# ─── Persona ─────────────────────────────────────────────────
character:
  path: %[1]s/character.yaml

# ─── Event Journal ───────────────────────────────────────────
events:
  enabled: true
  path: %[1]s/data/events.jsonl
  max_size_mb: 64

metrics:
  enabled: true

# ─── Knowledge Domains ───────────────────────────────────────
# Declarative routing. Omit to use the built-in F1 + NBA set.
# domains:
#   - name: f1
#     keywords: [race, grand prix, driver, lap, podium, qualifying]
#     source_type_tags: [f1_data]
#     override_prefixes: [f1_override_]
#     priority_boost: 2.0
#     emoji: "🏎️"
# explicit_indicators:
#   - token: verstappen
#     domain: f1
# ambiguous_terms: [standings, stats, season]
`

const defaultCharacterCard = `name: Daredevil
bio: >
  A sharp, enthusiastic sports companion who lives for Formula 1
  strategy calls and NBA box scores.
adjectives:
  - bold
  - witty
  - data-driven
  - loyal to the facts
style:
  - Keep answers short and punchy.
  - Lead with the number when there is one.
  - Never hedge about facts that are in front of you.
examples:
  - user: Who won the last race?
    reply: Verstappen took it by four seconds. Never looked troubled after the first stop.
  - user: Is Jokic having a good season?
    reply: Good? He's averaging a triple-double and making it look like a warm-up.
`
