package monitoring

import (
	"sync"
	"time"
)

// StageRecord is one pipeline stage's outcome within a query trace.
type StageRecord struct {
	Stage      string `json:"stage"`
	DurationMs int64  `json:"duration_ms"`
	Success    bool   `json:"success"`
	Detail     string `json:"detail,omitempty"`
}

// QueryTrace records one query's trip through the pipeline: which stages
// ran, how long each took, and how the response was ultimately produced.
type QueryTrace struct {
	QueryID    string        `json:"query_id"`
	SessionID  string        `json:"session_id,omitempty"`
	Source     string        `json:"source,omitempty"`
	StartTime  time.Time     `json:"start_time"`
	Stages     []StageRecord `json:"stages,omitempty"`
	Method     string        `json:"method,omitempty"`
	Fallback   string        `json:"fallback,omitempty"`
	DurationMs int64         `json:"duration_ms"`
}

// TraceLog keeps the most recent completed query traces in a ring buffer,
// for inspection via the debug endpoint.
type TraceLog struct {
	mu          sync.RWMutex
	inFlight    map[string]*QueryTrace
	order       []string // in-flight query IDs, oldest first
	completed   []QueryTrace
	maxTraces   int
	maxInFlight int
}

// NewTraceLog creates a trace log keeping up to maxTraces completed traces.
func NewTraceLog(maxTraces int) *TraceLog {
	if maxTraces <= 0 {
		maxTraces = 100
	}
	return &TraceLog{
		inFlight:    make(map[string]*QueryTrace),
		completed:   make([]QueryTrace, 0, maxTraces),
		maxTraces:   maxTraces,
		maxInFlight: 256,
	}
}

// Begin opens a trace for a query entering the pipeline.
func (l *TraceLog) Begin(queryID, sessionID, source string, start time.Time) {
	if queryID == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Drop the oldest orphan if a terminal event never arrived for it
	if len(l.order) >= l.maxInFlight {
		oldest := l.order[0]
		l.order = l.order[1:]
		delete(l.inFlight, oldest)
	}

	l.inFlight[queryID] = &QueryTrace{
		QueryID:   queryID,
		SessionID: sessionID,
		Source:    source,
		StartTime: start,
	}
	l.order = append(l.order, queryID)
}

// Stage appends a stage record to an open trace. Unknown query IDs are ignored.
func (l *TraceLog) Stage(queryID string, record StageRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if trace, ok := l.inFlight[queryID]; ok {
		trace.Stages = append(trace.Stages, record)
	}
}

// Fallback marks an open trace as degraded by the named stage.
func (l *TraceLog) Fallback(queryID, stage string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if trace, ok := l.inFlight[queryID]; ok {
		trace.Fallback = stage
	}
}

// Finish closes a trace and moves it to the completed ring.
func (l *TraceLog) Finish(queryID, method string, durationMs int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	trace, ok := l.inFlight[queryID]
	if !ok {
		return
	}
	delete(l.inFlight, queryID)
	for i, id := range l.order {
		if id == queryID {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}

	trace.Method = method
	trace.DurationMs = durationMs

	if len(l.completed) >= l.maxTraces {
		l.completed = l.completed[1:]
	}
	l.completed = append(l.completed, *trace)
}

// Recent returns up to n completed traces, oldest first.
func (l *TraceLog) Recent(n int) []QueryTrace {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n > len(l.completed) {
		n = len(l.completed)
	}
	result := make([]QueryTrace, n)
	copy(result, l.completed[len(l.completed)-n:])
	return result
}

// InFlight returns a snapshot of traces that have not finished yet.
func (l *TraceLog) InFlight() []QueryTrace {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]QueryTrace, 0, len(l.inFlight))
	for _, id := range l.order {
		if trace, ok := l.inFlight[id]; ok {
			result = append(result, *trace)
		}
	}
	return result
}
