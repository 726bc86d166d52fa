package entity

// VerdictReason says which classifier rule produced a DomainVerdict.
type VerdictReason string

const (
	ReasonExplicitIndicator VerdictReason = "explicit_indicator"
	ReasonKeywordMatch      VerdictReason = "keyword_match"
	ReasonAmbiguousContext  VerdictReason = "ambiguous_context"
	ReasonStickyHold        VerdictReason = "sticky_hold"
	ReasonNone              VerdictReason = "none"
)

// DomainUpdate is the delta the classifier hands back instead of mutating
// session state itself. The orchestrator commits it atomically.
type DomainUpdate struct {
	UserKey int64
	Domain  string
}

// DomainVerdict is the classifier's routing decision for one query.
// Primary is "" when no domain matched.
type DomainVerdict struct {
	Primary           string
	Secondary         []string
	Confidence        float64
	Reason            VerdictReason
	MatchedTokens     []string
	IsContextOverride bool
	SessionUpdate     *DomainUpdate
}

// HasDomain reports whether a primary domain was chosen.
func (v *DomainVerdict) HasDomain() bool {
	return v.Primary != ""
}

// IsMultiDomain reports whether the query touched more than one domain.
func (v *DomainVerdict) IsMultiDomain() bool {
	return v.Primary != "" && len(v.Secondary) > 0
}
