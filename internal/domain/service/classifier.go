package service

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
)

// MinSwitchConfidence is the bar a keyword match must clear before the
// classifier abandons the session's current domain for a new one.
const MinSwitchConfidence = 0.8

// secondaryScoreRatio: domains scoring at least this fraction of the top
// score become secondary matches (multi-domain queries).
const secondaryScoreRatio = 0.6

// Filler words stripped before the ambiguity check.
var fillerWords = map[string]struct{}{
	"tell": {}, "me": {}, "show": {}, "give": {},
	"about": {}, "the": {}, "some": {}, "any": {},
}

// Domain is one declaratively-configured topical partition of the
// knowledge base.
type Domain struct {
	Name             string
	Keywords         []string
	SourceTypeTags   []string
	OverridePrefixes []string
	PriorityBoost    float64
	Emoji            string
}

// ExplicitIndicator maps a high-signal token (a proper noun living in
// exactly one domain) to its domain. Order matters: the first indicator
// found in the query wins.
type ExplicitIndicator struct {
	Token  string
	Domain string
}

// DomainTracker remembers each user's current domain across turns. The
// classifier only reads snapshots; commits go through the orchestrator.
type DomainTracker struct {
	mu      sync.RWMutex
	current map[int64]string
}

// NewDomainTracker creates an empty tracker.
func NewDomainTracker() *DomainTracker {
	return &DomainTracker{current: make(map[int64]string)}
}

// Current returns the user's current domain ("" when none).
func (t *DomainTracker) Current(userKey int64) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current[userKey]
}

// Commit applies a classifier-produced domain update.
func (t *DomainTracker) Commit(update *entity.DomainUpdate) {
	if update == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current[update.UserKey] = update.Domain
}

// Clear forgets a user's current domain.
func (t *DomainTracker) Clear(userKey int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.current, userKey)
}

// DomainClassifier routes queries to zero, one or several domains using
// keyword scores, explicit indicators and conversation context. Classify
// is pure against a snapshot of the declarations and the caller-supplied
// current domain; the returned verdict carries any session-domain update
// as a delta for the orchestrator to commit.
type DomainClassifier struct {
	mu             sync.RWMutex
	domains        []Domain
	indicators     []ExplicitIndicator
	ambiguousTerms map[string]struct{}
	logger         *zap.Logger
}

// NewDomainClassifier builds a classifier. Indicators naming unknown
// domains are dropped with a warning.
func NewDomainClassifier(domains []Domain, indicators []ExplicitIndicator, ambiguousTerms []string, logger *zap.Logger) *DomainClassifier {
	c := &DomainClassifier{
		logger: logger.With(zap.String("component", "domain-classifier")),
	}
	c.Reload(domains, indicators, ambiguousTerms)
	return c
}

// Reload swaps the declarations. Used by the config hot-reload watcher;
// in-flight classifications keep the snapshot they started with.
func (c *DomainClassifier) Reload(domains []Domain, indicators []ExplicitIndicator, ambiguousTerms []string) {
	known := make(map[string]struct{}, len(domains))
	normalized := make([]Domain, len(domains))
	for i, d := range domains {
		if d.PriorityBoost <= 0 {
			d.PriorityBoost = 1.0
		}
		normalized[i] = d
		known[d.Name] = struct{}{}
	}

	kept := make([]ExplicitIndicator, 0, len(indicators))
	for _, ind := range indicators {
		if _, ok := known[ind.Domain]; !ok {
			c.logger.Warn("Dropping explicit indicator for unknown domain",
				zap.String("token", ind.Token),
				zap.String("domain", ind.Domain))
			continue
		}
		kept = append(kept, ExplicitIndicator{
			Token:  strings.ToLower(ind.Token),
			Domain: ind.Domain,
		})
	}

	ambiguous := make(map[string]struct{}, len(ambiguousTerms))
	for _, term := range ambiguousTerms {
		ambiguous[strings.ToLower(term)] = struct{}{}
	}

	c.mu.Lock()
	c.domains = normalized
	c.indicators = kept
	c.ambiguousTerms = ambiguous
	c.mu.Unlock()
}

// Lookup returns a domain declaration by name.
func (c *DomainClassifier) Lookup(name string) (Domain, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, d := range c.domains {
		if d.Name == name {
			return d, true
		}
	}
	return Domain{}, false
}

// Domains returns a copy of the declarations in declaration order.
func (c *DomainClassifier) Domains() []Domain {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Domain, len(c.domains))
	copy(out, c.domains)
	return out
}

type domainScore struct {
	domain  Domain
	score   float64
	matched []string
}

// Classify routes one query. currentDomain is the session's domain
// snapshot ("" when the user has none yet).
func (c *DomainClassifier) Classify(query string, currentDomain string, userKey int64) *entity.DomainVerdict {
	c.mu.RLock()
	domains := c.domains
	indicators := c.indicators
	ambiguous := c.ambiguousTerms
	c.mu.RUnlock()

	lower := strings.ToLower(query)

	// Explicit indicators short-circuit everything and force the session
	// domain.
	for _, ind := range indicators {
		if strings.Contains(lower, ind.Token) {
			return &entity.DomainVerdict{
				Primary:       ind.Domain,
				Confidence:    0.95,
				Reason:        entity.ReasonExplicitIndicator,
				MatchedTokens: []string{ind.Token},
				SessionUpdate: &entity.DomainUpdate{UserKey: userKey, Domain: ind.Domain},
			}
		}
	}

	// Ambiguity rule: a query made of vague terms sticks to the current
	// domain.
	if currentDomain != "" && c.isAmbiguous(lower, ambiguous) {
		return &entity.DomainVerdict{
			Primary:           currentDomain,
			Confidence:        0.7,
			Reason:            entity.ReasonAmbiguousContext,
			IsContextOverride: true,
		}
	}

	// Keyword scoring.
	scores := make([]domainScore, 0, len(domains))
	for _, d := range domains {
		var occurrences int
		var matched []string
		for _, kw := range d.Keywords {
			kwLower := strings.ToLower(kw)
			if n := strings.Count(lower, kwLower); n > 0 {
				occurrences += n
				matched = append(matched, kwLower)
			}
		}
		if occurrences == 0 {
			continue
		}
		scores = append(scores, domainScore{
			domain:  d,
			score:   float64(occurrences) * d.PriorityBoost,
			matched: matched,
		})
	}

	if len(scores) == 0 {
		return &entity.DomainVerdict{Reason: entity.ReasonNone}
	}

	// Ties break by declaration order: only a strictly greater score wins.
	top := scores[0]
	for _, s := range scores[1:] {
		if s.score > top.score {
			top = s
		}
	}

	confidence := 0.5 + 0.1*float64(len(top.matched))
	if confidence > 0.9 {
		confidence = 0.9
	}

	// Sticky-domain rule: a weak match does not move an established
	// conversation to another domain.
	if currentDomain != "" && top.domain.Name != currentDomain && confidence < MinSwitchConfidence {
		return &entity.DomainVerdict{
			Primary:           currentDomain,
			Confidence:        confidence,
			Reason:            entity.ReasonStickyHold,
			IsContextOverride: true,
		}
	}

	var secondary []string
	for _, s := range scores {
		if s.domain.Name == top.domain.Name {
			continue
		}
		if s.score >= top.score*secondaryScoreRatio {
			secondary = append(secondary, s.domain.Name)
		}
	}

	verdict := &entity.DomainVerdict{
		Primary:       top.domain.Name,
		Secondary:     secondary,
		Confidence:    confidence,
		Reason:        entity.ReasonKeywordMatch,
		MatchedTokens: top.matched,
	}
	if top.domain.Name != currentDomain {
		verdict.SessionUpdate = &entity.DomainUpdate{UserKey: userKey, Domain: top.domain.Name}
	}
	return verdict
}

// isAmbiguous checks whether, after stripping filler words, at least 70%
// of the remaining tokens are configured ambiguous terms. A query that is
// all filler counts as ambiguous.
func (c *DomainClassifier) isAmbiguous(lowerQuery string, ambiguous map[string]struct{}) bool {
	if len(ambiguous) == 0 {
		return false
	}
	tokens := strings.FieldsFunc(lowerQuery, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})

	var remaining, vague int
	for _, tok := range tokens {
		if _, filler := fillerWords[tok]; filler {
			continue
		}
		remaining++
		if _, ok := ambiguous[tok]; ok {
			vague++
		}
	}
	if remaining == 0 {
		return len(tokens) > 0
	}
	return float64(vague)/float64(remaining) >= 0.7
}
