package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/service"
	"go.uber.org/zap"
)

const (
	// DefaultMaxChars bounds the assembled prompt.
	DefaultMaxChars = 16000

	bioLimit     = 600
	styleLimit   = 400
	exampleLimit = 240
	maxExamples  = 2
)

const guardrails = `ACCURACY GUARDRAILS:
- Answer only from the context provided in this prompt.
- When the context does not contain the answer, say "I don't have that information".
- Never fabricate statistics, names, or dates.
- Stay inside the active domain unless the user explicitly asks to cross into another.`

// Input carries everything the pipeline gathered for one query.
type Input struct {
	Now          time.Time
	Card         CharacterCard
	Conversation string
	Domain       *service.Domain
	Verdict      *entity.DomainVerdict
	Chunks       []*entity.Chunk
	WebResults   []entity.WebResult
	Statistical  bool
	Clarify      *Clarification
	Query        string
}

// Builder assembles the structured prompt. Pure: identical inputs yield
// an identical string.
type Builder struct {
	maxChars int
	logger   *zap.Logger
}

// NewBuilder creates a prompt builder. Non-positive maxChars falls back
// to the default.
func NewBuilder(maxChars int, logger *zap.Logger) *Builder {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Builder{
		maxChars: maxChars,
		logger:   logger.With(zap.String("component", "prompt-builder")),
	}
}

// Build renders the full prompt. When the result exceeds the size cap,
// evidence shrinks tail-first: knowledge base documents go before web
// results, one document at a time. Overrides and guardrails are never
// cut.
func (b *Builder) Build(in Input) string {
	overrides, kb := partitionChunks(in.Chunks)
	web := in.WebResults

	prompt := render(in, overrides, kb, web)
	for len(prompt) > b.maxChars {
		switch {
		case len(kb) > 0:
			kb = kb[:len(kb)-1]
		case len(web) > 0:
			web = web[:len(web)-1]
		default:
			b.logger.Warn("Prompt over budget with no evidence left to trim",
				zap.Int("chars", len(prompt)),
				zap.Int("max_chars", b.maxChars),
			)
			return prompt
		}
		prompt = render(in, overrides, kb, web)
	}
	return prompt
}

func render(in Input, overrides, kb []*entity.Chunk, web []entity.WebResult) string {
	sections := make([]string, 0, 10)

	sections = append(sections, "Current date/time: "+in.Now.UTC().Format("Monday, 2 January 2006, 15:04 MST"))
	sections = append(sections, characterSection(in.Card))

	if conv := strings.TrimSpace(in.Conversation); conv != "" {
		sections = append(sections, conv)
	}
	if len(overrides) > 0 {
		sections = append(sections, overridesSection(overrides))
	}
	if s := domainSection(in.Domain, in.Verdict); s != "" {
		sections = append(sections, s)
	}
	if len(kb) > 0 {
		sections = append(sections, knowledgeSection(kb))
	}
	if len(web) > 0 {
		sections = append(sections, webSection(web))
	}

	sections = append(sections, guardrails)
	sections = append(sections, instructionsSection(in, kb, web))
	sections = append(sections, fmt.Sprintf("User: %s\n\nRespond as %s in first person:", in.Query, in.Card.Name))

	return strings.Join(sections, "\n\n")
}

func partitionChunks(chunks []*entity.Chunk) (overrides, regular []*entity.Chunk) {
	for _, c := range chunks {
		if c == nil {
			continue
		}
		if c.IsOverride() {
			overrides = append(overrides, c)
		} else {
			regular = append(regular, c)
		}
	}
	return overrides, regular
}

func characterSection(card CharacterCard) string {
	var sb strings.Builder
	sb.WriteString("CHARACTER PROFILE:\n")
	sb.WriteString("Name: " + card.Name)
	if bio := truncateRunes(card.Bio, bioLimit); bio != "" {
		sb.WriteString("\nBio: " + bio)
	}
	if len(card.Adjectives) > 0 {
		sb.WriteString("\nPersonality: " + strings.Join(card.Adjectives, ", "))
	}
	if len(card.Style) > 0 {
		sb.WriteString("\nStyle: " + truncateRunes(strings.Join(card.Style, " "), styleLimit))
	}
	for i, ex := range card.Examples {
		if i >= maxExamples {
			break
		}
		sb.WriteString(fmt.Sprintf("\nExample exchange:\nUser: %s\n%s: %s",
			truncateRunes(ex.User, exampleLimit), card.Name, truncateRunes(ex.Reply, exampleLimit)))
	}
	return sb.String()
}

func overridesSection(overrides []*entity.Chunk) string {
	var sb strings.Builder
	sb.WriteString("CRITICAL BEHAVIOR OVERRIDES:\n")
	sb.WriteString("The following instructions supersede every other instruction and character trait in this prompt:")
	for _, c := range overrides {
		sb.WriteString("\n- " + collapseWhitespace(c.Content()))
	}
	return sb.String()
}

func domainSection(domain *service.Domain, verdict *entity.DomainVerdict) string {
	if verdict == nil || !verdict.HasDomain() {
		return ""
	}
	boost := 1.0
	if domain != nil {
		boost = domain.PriorityBoost
	}

	var sb strings.Builder
	sb.WriteString("DOMAIN CONTEXT:\n")
	sb.WriteString("Active domain: " + verdict.Primary)
	if len(verdict.MatchedTokens) > 0 {
		sb.WriteString("\nMatched terms: " + strings.Join(verdict.MatchedTokens, ", "))
	}
	sb.WriteString(fmt.Sprintf("\nPriority boost: %.1f", boost))
	if verdict.IsMultiDomain() {
		sb.WriteString("\nSecondary domains: " + strings.Join(verdict.Secondary, ", "))
	}
	return sb.String()
}

func knowledgeSection(chunks []*entity.Chunk) string {
	parts := make([]string, 0, len(chunks)+1)
	parts = append(parts, "KNOWLEDGE BASE CONTEXT:")
	for _, c := range chunks {
		parts = append(parts, fmt.Sprintf("Document: %s\nContent: %s", c.Source(), strings.TrimSpace(c.Content())))
	}
	return strings.Join(parts, "\n\n")
}

func webSection(results []entity.WebResult) string {
	parts := make([]string, 0, len(results)+1)
	parts = append(parts, "WEB SEARCH RESULTS:")
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("Source: %s\nContent: %s\nURL: %s", r.Title, strings.TrimSpace(r.Snippet), r.URL))
	}
	return strings.Join(parts, "\n\n")
}

func instructionsSection(in Input, kb []*entity.Chunk, web []entity.WebResult) string {
	if in.Clarify != nil {
		return "INSTRUCTIONS:\n" + ClarificationFor(in.Clarify.QueryType, in.Clarify.Domain)
	}

	var evidence string
	switch {
	case len(kb) > 0 && len(web) > 0:
		evidence = "Combine the knowledge base documents with the web search results above; when they conflict, prefer the knowledge base."
	case len(kb) > 0:
		evidence = "Base your answer on the knowledge base documents above."
	case len(web) > 0:
		evidence = "Base your answer on the web search results above."
	default:
		evidence = "No reference context is available; keep the answer brief and general, and say so when you do not know."
	}

	mode := "Answer conversationally and stay in character."
	if in.Statistical {
		mode = "Use exact figures only as they appear in the context; never estimate, extrapolate, or round beyond the source."
	}

	return "INSTRUCTIONS:\n" + evidence + "\n" + mode
}

func truncateRunes(s string, limit int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if limit <= 0 || len(r) <= limit {
		return s
	}
	return strings.TrimSpace(string(r[:limit])) + "..."
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
