package entity

// Method names the pipeline path that produced a response.
type Method string

const (
	MethodStandardRAG         Method = "standard_rag"
	MethodMultiDomainRAG      Method = "multi_domain_rag"
	MethodHybridRAGWeb        Method = "hybrid_rag_web"
	MethodWebOnly             Method = "web_only"
	MethodBasicLLM            Method = "basic_llm"
	MethodSmartClarification  Method = "smart_clarification"
	MethodTimeoutFallback     Method = "timeout_fallback"
	MethodCircuitOpenFallback Method = "circuit_open_fallback"
	MethodLLMFailureFallback  Method = "llm_failure_fallback"
	MethodUltimateFallback    Method = "ultimate_fallback"
)

// Prefix tags prepended to response content by the orchestrator.
const (
	TagOverride      = "⚡"
	TagMultiDomain   = "🔄"
	TagWeb           = "🌐"
	TagClarification = "❓"
	TagBasic         = "🤖"
)

// Response is the single atomic result of one admitted query. Error and
// TimedOut describe observable failure modes; content is always non-empty.
type Response struct {
	Content   string   `json:"content"`
	PrefixTag string   `json:"prefix_tag,omitempty"`
	Sources   []string `json:"sources,omitempty"`
	Method    Method   `json:"method"`
	Error     string   `json:"error,omitempty"`
	TimedOut  bool     `json:"timed_out"`
}

// IsFallback reports whether the response came from a failure branch
// rather than a normal pipeline path.
func (r *Response) IsFallback() bool {
	switch r.Method {
	case MethodTimeoutFallback, MethodCircuitOpenFallback,
		MethodLLMFailureFallback, MethodUltimateFallback:
		return true
	}
	return false
}
