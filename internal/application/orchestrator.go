package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/service"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/infrastructure/eventbus"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/infrastructure/llm"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/infrastructure/prompt"
	apperrors "github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/pkg/errors"
)

// Pipeline defaults. Settings zero values fall back to these.
const (
	DefaultMaxResponseTime = 45 * time.Second
	DefaultMinStageBudget  = 2 * time.Second
	DefaultContextBudget   = 3 * time.Second
	DefaultRetrievalBudget = 8 * time.Second
	DefaultWebSearchBudget = 15 * time.Second
	DefaultLLMBudget       = 30 * time.Second
	DefaultWriteBudget     = 3 * time.Second
	DefaultTopK            = 5
	DefaultMaxWebResults   = 3
)

// Stage names used in events, metrics and logs.
const (
	stageContextLoad    = "context_load"
	stageClassification = "classification"
	stageRAGSearch      = "rag_search"
	stageWebSearch      = "web_search"
	stageLLMGeneration  = "llm_generation"
)

// minAnswerConfidence is the floor below which both assessments must fall
// before the pipeline gives up on answering and asks for clarification.
const minAnswerConfidence = 0.3

// paragraphThreshold is the content length after which completions are
// regrouped into short paragraphs.
const paragraphThreshold = 120

// Default user-visible fallback wording. Fixed strings, set once at init.
const (
	defaultLLMFailureText  = "I'm having trouble putting an answer together right now. Give me a moment and ask again."
	defaultCircuitOpenText = "My answer engine is cooling down after a rough patch. Try again in a few minutes."
	defaultTimeoutText     = "That one took longer than I allow myself. Ask again, or narrow it down a little."
	defaultUltimateText    = "Something went wrong on my side. Please try again."
)

// FallbackTexts are the fixed user-visible strings for each failure
// branch. Empty fields fall back to the defaults.
type FallbackTexts struct {
	LLMFailure  string
	CircuitOpen string
	Timeout     string
	Ultimate    string
}

// Settings tunes the pipeline. Zero values fall back to the defaults.
type Settings struct {
	MaxResponseTime time.Duration
	MinStageBudget  time.Duration
	ContextBudget   time.Duration
	RetrievalBudget time.Duration
	WebSearchBudget time.Duration
	LLMBudget       time.Duration
	WriteBudget     time.Duration
	TopK            int
	MaxWebResults   int
	Fallbacks       FallbackTexts
}

func (s Settings) withDefaults() Settings {
	if s.MaxResponseTime <= 0 {
		s.MaxResponseTime = DefaultMaxResponseTime
	}
	if s.MinStageBudget <= 0 {
		s.MinStageBudget = DefaultMinStageBudget
	}
	if s.ContextBudget <= 0 {
		s.ContextBudget = DefaultContextBudget
	}
	if s.RetrievalBudget <= 0 {
		s.RetrievalBudget = DefaultRetrievalBudget
	}
	if s.WebSearchBudget <= 0 {
		s.WebSearchBudget = DefaultWebSearchBudget
	}
	if s.LLMBudget <= 0 {
		s.LLMBudget = DefaultLLMBudget
	}
	if s.WriteBudget <= 0 {
		s.WriteBudget = DefaultWriteBudget
	}
	if s.TopK <= 0 {
		s.TopK = DefaultTopK
	}
	if s.MaxWebResults <= 0 {
		s.MaxWebResults = DefaultMaxWebResults
	}
	if s.Fallbacks.LLMFailure == "" {
		s.Fallbacks.LLMFailure = defaultLLMFailureText
	}
	if s.Fallbacks.CircuitOpen == "" {
		s.Fallbacks.CircuitOpen = defaultCircuitOpenText
	}
	if s.Fallbacks.Timeout == "" {
		s.Fallbacks.Timeout = defaultTimeoutText
	}
	if s.Fallbacks.Ultimate == "" {
		s.Fallbacks.Ultimate = defaultUltimateText
	}
	return s
}

// Retriever is the knowledge search dependency. It owns the rag_search
// breaker and returns nothing when retrieval is unavailable.
type Retriever interface {
	Retrieve(ctx context.Context, queryText string, domainFilter *service.Domain, k int) []*entity.Chunk
}

// Searcher is the web search dependency. It owns the web_search breaker
// and returns nothing when search is unavailable.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) []entity.WebResult
}

// Generator is the completion dependency. It owns the llm breaker and
// reports its state through error kinds.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
}

// ConversationStore is the session-memory dependency.
type ConversationStore interface {
	Append(ctx context.Context, sessionID string, userKey int64, role entity.Role, content string) error
	ContextFor(ctx context.Context, sessionID string) (string, error)
}

// Deps carries the orchestrator's collaborators.
type Deps struct {
	Limiter       service.RateLimiter
	Memory        ConversationStore
	Classifier    *service.DomainClassifier
	Tracker       *service.DomainTracker
	Analyzer      *service.QueryAnalyzer
	Sufficiency   *service.SufficiencyAssessor
	WebConfidence *service.ConfidenceAssessor
	Retriever     Retriever
	Searcher      Searcher
	Generator     Generator
	Prompts       *prompt.Builder
	Cards         *prompt.CardStore
	Bus           eventbus.Bus
	Logger        *zap.Logger
}

// Orchestrator drives one query through the whole pipeline: admission,
// memory, classification, retrieval, assessment, optional web search,
// prompt assembly, generation and post-processing. Handle is total for
// admitted queries: it returns a Response on every path, panics included.
type Orchestrator struct {
	deps     Deps
	settings Settings
	logger   *zap.Logger
	now      func() time.Time
}

// NewOrchestrator wires the pipeline.
func NewOrchestrator(deps Deps, settings Settings) *Orchestrator {
	return &Orchestrator{
		deps:     deps,
		settings: settings.withDefaults(),
		logger:   deps.Logger.With(zap.String("component", "orchestrator")),
		now:      time.Now,
	}
}

// SetClock replaces the time source. Test hook.
func (o *Orchestrator) SetClock(now func() time.Time) { o.now = now }

// Handle answers one query. A rate-limited query returns nil and nothing
// else does: every admitted query produces exactly one Response, within
// MaxResponseTime plus scheduling slack.
func (o *Orchestrator) Handle(ctx context.Context, query *entity.Query, source string) (resp *entity.Response) {
	if query == nil {
		return nil
	}

	start := o.now()
	sessionID := query.SessionID()
	if sessionID == "" {
		sessionID = fmt.Sprintf("user-%d", query.UserKey())
	}

	// 1. Admission. Dropped queries leave no trace but the event.
	if !o.deps.Limiter.Admit(query.UserKey(), start) {
		o.logger.Info("Query dropped by rate limiter",
			zap.String("request_id", query.RequestID()),
			zap.String("source", source),
		)
		o.publish(eventbus.EventTypeRateLimited, eventbus.RateLimitedPayload{
			SessionID: sessionID,
			Source:    source,
		})
		return nil
	}

	o.publish(eventbus.EventTypeQueryReceived, eventbus.QueryReceivedPayload{
		QueryID:   query.RequestID(),
		SessionID: sessionID,
		Source:    source,
		Voice:     query.Voice(),
		Chars:     len(query.Text()),
	})

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Pipeline panic",
				zap.String("request_id", query.RequestID()),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			o.publish(eventbus.EventTypeFallbackUsed, eventbus.FallbackUsedPayload{
				QueryID: query.RequestID(),
				Stage:   "pipeline",
				Reason:  "panic",
			})
			resp = &entity.Response{
				Content: o.settings.Fallbacks.Ultimate,
				Method:  entity.MethodUltimateFallback,
				Error:   fmt.Sprintf("panic: %v", r),
			}
		}
		o.publish(eventbus.EventTypeResponseReady, eventbus.ResponseReadyPayload{
			QueryID:    query.RequestID(),
			Method:     string(resp.Method),
			PrefixTag:  resp.PrefixTag,
			Chars:      len(resp.Content),
			DurationMs: o.now().Sub(start).Milliseconds(),
		})
	}()

	ctx, cancel := context.WithTimeout(ctx, o.settings.MaxResponseTime)
	defer cancel()

	return o.run(ctx, query, sessionID, newBudget(o.settings.MaxResponseTime, o.settings.MinStageBudget, start, o.now))
}

func (o *Orchestrator) run(ctx context.Context, query *entity.Query, sessionID string, bud *budget) *entity.Response {
	log := o.logger.With(
		zap.String("request_id", query.RequestID()),
		zap.String("session_id", sessionID),
	)

	// 2. Conversation context.
	conversation := o.loadConversation(ctx, query, sessionID, bud, log)

	// 3. The user turn goes in before anything downstream can fail.
	o.writeTurn(ctx, sessionID, query.UserKey(), entity.RoleUser, query.Text(), bud, log)

	// 4. Domain classification, then commit the session-domain update.
	stageStart := o.now()
	verdict := o.deps.Classifier.Classify(query.Text(), o.deps.Tracker.Current(query.UserKey()), query.UserKey())
	if verdict.SessionUpdate != nil {
		o.deps.Tracker.Commit(verdict.SessionUpdate)
	}
	var domain *service.Domain
	if verdict.HasDomain() {
		if d, ok := o.deps.Classifier.Lookup(verdict.Primary); ok {
			domain = &d
		}
	}
	o.stageDone(query.RequestID(), stageClassification, stageStart, true, verdict.Primary)

	if bud.Exhausted() {
		return o.timeoutFallback(query, stageClassification, bud, log)
	}

	// 5. Retrieval. A greeting with no active domain never needs evidence;
	// everything else asks the knowledge base, filtered to the classified
	// domain. Short follow-ups inside a domain ("any updates?") still
	// retrieve, with the session domain carried through.
	skipRetrieval := o.deps.Analyzer.IsSmallTalk(query.Text()) && domain == nil
	var chunks []*entity.Chunk
	if !skipRetrieval {
		stageStart = o.now()
		retrieveCtx, cancel := context.WithTimeout(ctx, bud.Stage(o.settings.RetrievalBudget))
		chunks = o.deps.Retriever.Retrieve(retrieveCtx, query.Text(), domain, o.settings.TopK)
		cancel()
		o.stageDone(query.RequestID(), stageRAGSearch, stageStart, true, fmt.Sprintf("%d chunks", len(chunks)))

		if bud.Exhausted() {
			return o.timeoutFallback(query, stageRAGSearch, bud, log)
		}
	}

	// 6. Sufficiency.
	ragAssessment := &entity.Assessment{
		Confidence:     0.9,
		Recommendation: entity.RecommendBasicResponse,
		Reason:         "small_talk",
	}
	if !skipRetrieval {
		ragAssessment = o.deps.Sufficiency.Assess(query.Text(), chunks)
	}

	// 7. Conditional web search.
	var webResults []entity.WebResult
	var webAssessment *entity.Assessment
	if ragAssessment.WantsWeb() {
		stageStart = o.now()
		searchCtx, cancel := context.WithTimeout(ctx, bud.Stage(o.settings.WebSearchBudget))
		webResults = o.deps.Searcher.Search(searchCtx, query.Text(), o.settings.MaxWebResults)
		cancel()
		webAssessment = o.deps.WebConfidence.Assess(query.Text(), webResults)
		o.stageDone(query.RequestID(), stageWebSearch, stageStart, true, fmt.Sprintf("%d results", len(webResults)))

		if bud.Exhausted() {
			return o.timeoutFallback(query, stageWebSearch, bud, log)
		}
	}

	// 8. Clarification check.
	var clarify *prompt.Clarification
	if needsClarification(ragAssessment, webAssessment) {
		clarify = &prompt.Clarification{
			QueryType: o.deps.Analyzer.Type(query.Text()),
			Domain:    verdict.Primary,
		}
		log.Info("Entering clarification mode",
			zap.String("query_type", string(clarify.QueryType)),
			zap.Float64("rag_confidence", ragAssessment.Confidence),
			zap.Float64("web_confidence", webAssessment.Confidence),
		)
	}

	// 9. Prompt assembly.
	card := o.deps.Cards.Card()
	built := o.deps.Prompts.Build(prompt.Input{
		Now:          o.now(),
		Card:         card,
		Conversation: conversation,
		Domain:       domain,
		Verdict:      verdict,
		Chunks:       chunks,
		WebResults:   webResults,
		Statistical:  o.deps.Analyzer.IsStatistical(query.Text()),
		Clarify:      clarify,
		Query:        query.Text(),
	})

	// 10. Generation.
	params := o.deps.Analyzer.Params(query.Text(), query.Voice())
	stageStart = o.now()
	llmCtx, cancel := context.WithTimeout(ctx, bud.Stage(o.settings.LLMBudget))
	content, err := o.deps.Generator.Generate(llmCtx, llm.Request{
		System:      card.SystemHeader(),
		Prompt:      built,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
	})
	cancel()
	if err != nil {
		o.stageDone(query.RequestID(), stageLLMGeneration, stageStart, false, "")
		return o.generationFallback(ctx, query, sessionID, err, bud, log)
	}
	o.stageDone(query.RequestID(), stageLLMGeneration, stageStart, true, "")

	// 11. Post-process: paragraph shaping, then citations for web results
	// that carry a real URL.
	content = formatParagraphs(content)
	content = appendCitations(content, webResults)

	// 12. Assistant turn, stored without the prefix tag.
	o.writeTurn(ctx, sessionID, query.UserKey(), entity.RoleAssistant, content, bud, log)

	// 13. Route and return.
	method, tag := route(clarify != nil, hasOverrideChunk(chunks), verdict, domain, len(chunks) > 0, len(webResults) > 0)
	if tag != "" {
		content = tag + " " + content
	}

	log.Info("Response ready",
		zap.String("method", string(method)),
		zap.String("domain", verdict.Primary),
		zap.Int("chunks", len(chunks)),
		zap.Int("web_results", len(webResults)),
		zap.Duration("elapsed", bud.Elapsed()),
	)

	return &entity.Response{
		Content:   content,
		PrefixTag: tag,
		Sources:   buildSources(chunks, webResults),
		Method:    method,
	}
}

func (o *Orchestrator) loadConversation(ctx context.Context, query *entity.Query, sessionID string, bud *budget, log *zap.Logger) string {
	stageStart := o.now()
	loadCtx, cancel := context.WithTimeout(ctx, bud.Stage(o.settings.ContextBudget))
	conversation, err := o.deps.Memory.ContextFor(loadCtx, sessionID)
	cancel()
	if err != nil {
		// Store trouble degrades to an empty window, never to a failure.
		log.Warn("Conversation load failed", zap.Error(err))
		conversation = ""
	}
	o.stageDone(query.RequestID(), stageContextLoad, stageStart, err == nil, "")
	return conversation
}

func (o *Orchestrator) writeTurn(ctx context.Context, sessionID string, userKey int64, role entity.Role, content string, bud *budget, log *zap.Logger) {
	if strings.TrimSpace(content) == "" {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, bud.Stage(o.settings.WriteBudget))
	defer cancel()
	if err := o.deps.Memory.Append(writeCtx, sessionID, userKey, role, content); err != nil {
		log.Warn("Session write failed",
			zap.String("role", string(role)),
			zap.Error(err),
		)
	}
}

// generationFallback converts a completion error into the matching canned
// response. Post-processing is skipped; the assistant turn is still
// recorded so the conversation reflects what the user saw.
func (o *Orchestrator) generationFallback(ctx context.Context, query *entity.Query, sessionID string, err error, bud *budget, log *zap.Logger) *entity.Response {
	var (
		method   entity.Method
		text     string
		reason   string
		timedOut bool
	)
	switch {
	case apperrors.IsBreakerOpen(err):
		method, text, reason = entity.MethodCircuitOpenFallback, o.settings.Fallbacks.CircuitOpen, "breaker_open"
	case apperrors.IsDeadline(err):
		method, text, reason = entity.MethodTimeoutFallback, o.settings.Fallbacks.Timeout, "deadline"
		timedOut = true
	default:
		method, text, reason = entity.MethodLLMFailureFallback, o.settings.Fallbacks.LLMFailure, "llm_error"
	}

	log.Warn("Generation failed, serving fallback",
		zap.String("method", string(method)),
		zap.Error(err),
	)
	o.publish(eventbus.EventTypeFallbackUsed, eventbus.FallbackUsedPayload{
		QueryID: query.RequestID(),
		Stage:   stageLLMGeneration,
		Reason:  reason,
	})

	if !timedOut {
		o.writeTurn(ctx, sessionID, query.UserKey(), entity.RoleAssistant, text, bud, log)
	}

	return &entity.Response{
		Content:  text,
		Method:   method,
		Error:    err.Error(),
		TimedOut: timedOut,
	}
}

// timeoutFallback fires when the remaining budget fell under the floor
// between stages. The assistant turn is not written; "user turn stored,
// no assistant reply" is the documented state after a timeout.
func (o *Orchestrator) timeoutFallback(query *entity.Query, stage string, bud *budget, log *zap.Logger) *entity.Response {
	log.Warn("Response budget exhausted",
		zap.String("after_stage", stage),
		zap.Duration("elapsed", bud.Elapsed()),
	)
	o.publish(eventbus.EventTypeFallbackUsed, eventbus.FallbackUsedPayload{
		QueryID: query.RequestID(),
		Stage:   stage,
		Reason:  "budget_exhausted",
	})
	return &entity.Response{
		Content:  o.settings.Fallbacks.Timeout,
		Method:   entity.MethodTimeoutFallback,
		Error:    "response budget exhausted after " + stage,
		TimedOut: true,
	}
}

func (o *Orchestrator) stageDone(queryID, stage string, started time.Time, success bool, detail string) {
	o.publish(eventbus.EventTypeStageCompleted, eventbus.StageCompletedPayload{
		QueryID:    queryID,
		Stage:      stage,
		DurationMs: o.now().Sub(started).Milliseconds(),
		Success:    success,
		Detail:     detail,
	})
}

// publish emits a pipeline event. A fresh context keeps events flowing
// after the request deadline has fired.
func (o *Orchestrator) publish(eventType string, payload interface{}) {
	if o.deps.Bus == nil {
		return
	}
	o.deps.Bus.Publish(context.Background(), eventbus.NewEvent(eventType, payload))
}

// needsClarification fires only when web evidence was actually gathered:
// a missing web assessment means the pipeline degraded, not that the
// question is unanswerable.
func needsClarification(rag, web *entity.Assessment) bool {
	if web == nil {
		return false
	}
	if rag.Confidence < minAnswerConfidence && web.Confidence < minAnswerConfidence {
		return true
	}
	return rag.Recommendation == entity.RecommendAskForClarification &&
		web.Recommendation == entity.RecommendAskForClarification
}

// route picks the response method and its prefix tag from what the
// pipeline actually used. Overrides outrank every other tag; an in-domain
// RAG answer carries the domain's own emoji.
func route(clarify, hasOverride bool, verdict *entity.DomainVerdict, domain *service.Domain, hasChunks, hasWeb bool) (entity.Method, string) {
	var method entity.Method
	switch {
	case clarify:
		method = entity.MethodSmartClarification
	case hasChunks && hasWeb:
		method = entity.MethodHybridRAGWeb
	case hasWeb:
		method = entity.MethodWebOnly
	case hasChunks && verdict != nil && verdict.IsMultiDomain():
		method = entity.MethodMultiDomainRAG
	case hasChunks:
		method = entity.MethodStandardRAG
	default:
		method = entity.MethodBasicLLM
	}

	var tag string
	switch {
	case hasOverride:
		tag = entity.TagOverride
	case clarify:
		tag = entity.TagClarification
	case method == entity.MethodMultiDomainRAG:
		tag = entity.TagMultiDomain
	case hasWeb:
		tag = entity.TagWeb
	case method == entity.MethodStandardRAG:
		if domain != nil {
			tag = domain.Emoji
		}
	default:
		tag = entity.TagBasic
	}
	return method, tag
}

func hasOverrideChunk(chunks []*entity.Chunk) bool {
	for _, c := range chunks {
		if c != nil && c.IsOverride() {
			return true
		}
	}
	return false
}

// formatParagraphs regroups a long single-block completion into
// paragraphs of two to three sentences. Content that already carries line
// breaks is left alone.
func formatParagraphs(content string) string {
	if len(content) <= paragraphThreshold || strings.Contains(content, "\n") {
		return content
	}
	sentences := llm.SplitSentences(content)
	if len(sentences) <= 3 {
		return content
	}

	var paragraphs []string
	for i := 0; i < len(sentences); {
		size := 3
		rem := len(sentences) - i
		// Four sentences left split 2+2 rather than 3+1.
		if rem == 4 {
			size = 2
		} else if rem < size {
			size = rem
		}
		paragraphs = append(paragraphs, strings.Join(sentences[i:i+size], " "))
		i += size
	}
	return strings.Join(paragraphs, "\n\n")
}

// appendCitations adds a plain-text source list for web results with a
// real URL. Suggestion-only results never appear.
func appendCitations(content string, web []entity.WebResult) string {
	seen := make(map[string]struct{})
	var cited []entity.WebResult
	for _, r := range web {
		if !r.HasAbsoluteURL() {
			continue
		}
		if _, dup := seen[r.URL]; dup {
			continue
		}
		seen[r.URL] = struct{}{}
		cited = append(cited, r)
	}
	if len(cited) == 0 {
		return content
	}

	var sb strings.Builder
	sb.WriteString(content)
	sb.WriteString("\n\nSources:")
	for _, r := range cited {
		sb.WriteString("\n- ")
		if title := strings.TrimSpace(r.Title); title != "" {
			sb.WriteString(title + " (" + r.URL + ")")
		} else {
			sb.WriteString(r.URL)
		}
	}
	return sb.String()
}

// buildSources lists provenance for the response: override directives,
// knowledge base documents, then cited web URLs, deduplicated in that
// order.
func buildSources(chunks []*entity.Chunk, web []entity.WebResult) []string {
	var sources []string
	seen := make(map[string]struct{})
	add := func(s string) {
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		sources = append(sources, s)
	}

	for _, c := range chunks {
		if c == nil || !c.IsOverride() {
			continue
		}
		if src := c.Source(); src != "" {
			add("Overrides: " + src)
		} else {
			add("Overrides")
		}
	}
	for _, c := range chunks {
		if c == nil || c.IsOverride() {
			continue
		}
		if src := c.Source(); src != "" {
			add("KB: " + src)
		}
	}
	for _, r := range web {
		if r.HasAbsoluteURL() {
			add("Web: " + r.URL)
		}
	}
	return sources
}
