package service

import (
	"testing"

	"go.uber.org/zap"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
)

func testDomains() []Domain {
	return []Domain{
		{
			Name:             "nba",
			Keywords:         []string{"nba", "basketball", "lakers", "playoffs", "dunk"},
			SourceTypeTags:   []string{"nba_data", "basketball"},
			OverridePrefixes: []string{"NBA:", "BASKETBALL:"},
			PriorityBoost:    1.2,
			Emoji:            "🏀",
		},
		{
			Name:             "f1",
			Keywords:         []string{"f1", "formula", "grand prix", "podium", "pit stop"},
			SourceTypeTags:   []string{"f1_data", "racing"},
			OverridePrefixes: []string{"F1:"},
			PriorityBoost:    1.0,
			Emoji:            "🏎️",
		},
	}
}

func testIndicators() []ExplicitIndicator {
	return []ExplicitIndicator{
		{Token: "lebron", Domain: "nba"},
		{Token: "verstappen", Domain: "f1"},
	}
}

func testAmbiguousTerms() []string {
	return []string{"stats", "updates", "latest", "news", "scores", "results", "standings", "info"}
}

func newClassifier() *DomainClassifier {
	return NewDomainClassifier(testDomains(), testIndicators(), testAmbiguousTerms(), zap.NewNop())
}

func TestClassifier_KeywordMatch(t *testing.T) {
	c := newClassifier()

	v := c.Classify("who won the nba playoffs", "", 1)
	if v.Primary != "nba" {
		t.Fatalf("expected nba, got %q", v.Primary)
	}
	if v.Reason != entity.ReasonKeywordMatch {
		t.Fatalf("expected keyword_match, got %s", v.Reason)
	}
	// Two matched keywords: 0.5 + 0.2.
	if v.Confidence != 0.7 {
		t.Fatalf("expected confidence 0.7, got %v", v.Confidence)
	}
	if v.SessionUpdate == nil || v.SessionUpdate.Domain != "nba" {
		t.Fatalf("expected session update to nba, got %+v", v.SessionUpdate)
	}
}

func TestClassifier_NoMatch(t *testing.T) {
	c := newClassifier()

	v := c.Classify("write me a poem please", "", 1)
	if v.HasDomain() {
		t.Fatalf("expected no domain, got %q", v.Primary)
	}
	if v.Reason != entity.ReasonNone {
		t.Fatalf("expected reason none, got %s", v.Reason)
	}
	if v.SessionUpdate != nil {
		t.Fatal("no-domain verdict must not update the session")
	}
}

func TestClassifier_ExplicitIndicatorOverridesScores(t *testing.T) {
	c := newClassifier()

	// The query is soaked in f1 keywords, but the explicit nba token wins.
	v := c.Classify("lebron at the grand prix podium formula event", "f1", 1)
	if v.Primary != "nba" {
		t.Fatalf("explicit indicator should force nba, got %q", v.Primary)
	}
	if v.Confidence != 0.95 {
		t.Fatalf("expected confidence 0.95, got %v", v.Confidence)
	}
	if v.Reason != entity.ReasonExplicitIndicator {
		t.Fatalf("expected explicit_indicator, got %s", v.Reason)
	}
	if v.SessionUpdate == nil || v.SessionUpdate.Domain != "nba" {
		t.Fatal("explicit indicator must force a session-domain update")
	}
}

func TestClassifier_AmbiguousFollowUpKeepsDomain(t *testing.T) {
	c := newClassifier()

	v := c.Classify("any updates?", "f1", 1)
	if v.Primary != "f1" {
		t.Fatalf("ambiguous follow-up should keep f1, got %q", v.Primary)
	}
	if v.Confidence != 0.7 {
		t.Fatalf("expected confidence 0.7, got %v", v.Confidence)
	}
	if v.Reason != entity.ReasonAmbiguousContext {
		t.Fatalf("expected ambiguous_context, got %s", v.Reason)
	}
	if !v.IsContextOverride {
		t.Fatal("ambiguity verdict should be marked as context override")
	}
	if v.SessionUpdate != nil {
		t.Fatal("keeping the current domain needs no session update")
	}
}

func TestClassifier_AmbiguityNeedsCurrentDomain(t *testing.T) {
	c := newClassifier()

	// Fresh user: the ambiguity rule cannot apply, and nothing matches.
	v := c.Classify("any updates?", "", 1)
	if v.HasDomain() {
		t.Fatalf("fresh user with vague query should get no domain, got %q", v.Primary)
	}
}

func TestClassifier_StickyDomainHolds(t *testing.T) {
	c := newClassifier()

	// One weak f1 keyword while the session is on nba: 0.5 + 0.1 = 0.6,
	// below the switch bar, so nba holds.
	v := c.Classify("that podium celebration was wild", "nba", 1)
	if v.Primary != "nba" {
		t.Fatalf("weak cross-domain match should hold nba, got %q", v.Primary)
	}
	if v.Reason != entity.ReasonStickyHold {
		t.Fatalf("expected sticky_hold, got %s", v.Reason)
	}
	if v.SessionUpdate != nil {
		t.Fatal("sticky hold must not update the session domain")
	}
}

func TestClassifier_StrongMatchSwitchesDomain(t *testing.T) {
	c := newClassifier()

	// Three f1 keywords: 0.5 + 0.3 = 0.8 meets the switch bar.
	v := c.Classify("f1 podium finishers after that pit stop", "nba", 1)
	if v.Primary != "f1" {
		t.Fatalf("strong match should switch to f1, got %q", v.Primary)
	}
	if v.Confidence != 0.8 {
		t.Fatalf("expected confidence 0.8, got %v", v.Confidence)
	}
	if v.SessionUpdate == nil || v.SessionUpdate.Domain != "f1" {
		t.Fatal("switch must carry a session update")
	}
}

func TestClassifier_TieBreaksByDeclarationOrder(t *testing.T) {
	domains := []Domain{
		{Name: "alpha", Keywords: []string{"shared"}, PriorityBoost: 1.0},
		{Name: "beta", Keywords: []string{"shared"}, PriorityBoost: 1.0},
	}
	c := NewDomainClassifier(domains, nil, nil, zap.NewNop())

	v := c.Classify("shared topic question", "", 1)
	if v.Primary != "alpha" {
		t.Fatalf("tie should break by declaration order, got %q", v.Primary)
	}
}

func TestClassifier_PriorityBoostBreaksTie(t *testing.T) {
	c := newClassifier()

	// One keyword each; nba's 1.2 boost beats f1's 1.0.
	v := c.Classify("basketball or formula tonight", "", 1)
	if v.Primary != "nba" {
		t.Fatalf("boost should favor nba, got %q", v.Primary)
	}
	// f1 scored within 60%% of the top: it is a secondary domain.
	if len(v.Secondary) != 1 || v.Secondary[0] != "f1" {
		t.Fatalf("expected f1 secondary, got %v", v.Secondary)
	}
	if !v.IsMultiDomain() {
		t.Fatal("verdict should be multi-domain")
	}
}

func TestClassifier_ConfidenceCap(t *testing.T) {
	c := newClassifier()

	v := c.Classify("nba basketball lakers playoffs dunk legends", "nba", 1)
	if v.Confidence != 0.9 {
		t.Fatalf("confidence should cap at 0.9, got %v", v.Confidence)
	}
}

func TestDomainTracker_CommitAndClear(t *testing.T) {
	tr := NewDomainTracker()

	if got := tr.Current(5); got != "" {
		t.Fatalf("fresh tracker should return empty, got %q", got)
	}
	tr.Commit(&entity.DomainUpdate{UserKey: 5, Domain: "f1"})
	if got := tr.Current(5); got != "f1" {
		t.Fatalf("expected f1, got %q", got)
	}
	tr.Commit(nil) // no-op
	tr.Clear(5)
	if got := tr.Current(5); got != "" {
		t.Fatalf("cleared tracker should return empty, got %q", got)
	}
}

func TestClassifier_ReloadSwapsDeclarations(t *testing.T) {
	c := newClassifier()

	c.Reload([]Domain{
		{Name: "chess", Keywords: []string{"chess", "gambit"}, PriorityBoost: 1.0},
	}, nil, nil)

	v := c.Classify("tell me about the queen's gambit", "", 1)
	if v.Primary != "chess" {
		t.Fatalf("expected chess after reload, got %q", v.Primary)
	}
	if _, ok := c.Lookup("nba"); ok {
		t.Fatal("old domains should be gone after reload")
	}
}
