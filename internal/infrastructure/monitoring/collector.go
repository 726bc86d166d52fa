package monitoring

import (
	"context"

	"go.uber.org/zap"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/infrastructure/eventbus"
)

// Collector turns pipeline events into Prometheus metrics and query traces.
//
// It is purely observational: handlers never veto or mutate anything, and
// events with unexpected payloads (such as replayed journal entries, which
// decode to maps) are skipped so only live traffic is counted.
type Collector struct {
	metrics *Metrics
	traces  *TraceLog
	logger  *zap.Logger
}

// NewCollector creates a collector feeding the given metrics and trace log.
func NewCollector(metrics *Metrics, traces *TraceLog, logger *zap.Logger) *Collector {
	return &Collector{
		metrics: metrics,
		traces:  traces,
		logger:  logger.With(zap.String("component", "metrics-collector")),
	}
}

// Attach subscribes the collector to every pipeline event type.
func (c *Collector) Attach(bus eventbus.Bus) {
	bus.Subscribe(eventbus.EventTypeQueryReceived, c.onQueryReceived)
	bus.Subscribe(eventbus.EventTypeStageCompleted, c.onStageCompleted)
	bus.Subscribe(eventbus.EventTypeResponseReady, c.onResponseReady)
	bus.Subscribe(eventbus.EventTypeFallbackUsed, c.onFallbackUsed)
	bus.Subscribe(eventbus.EventTypeBreakerStateChange, c.onBreakerStateChange)
	bus.Subscribe(eventbus.EventTypeRateLimited, c.onRateLimited)
}

func (c *Collector) onQueryReceived(_ context.Context, ev eventbus.Event) {
	p, ok := ev.Payload().(eventbus.QueryReceivedPayload)
	if !ok {
		return
	}
	c.metrics.RecordQuery(p.Source)
	c.traces.Begin(p.QueryID, p.SessionID, p.Source, ev.Timestamp())
}

func (c *Collector) onStageCompleted(_ context.Context, ev eventbus.Event) {
	p, ok := ev.Payload().(eventbus.StageCompletedPayload)
	if !ok {
		return
	}
	c.metrics.RecordStage(p.Stage, float64(p.DurationMs)/1000, p.Success)
	c.traces.Stage(p.QueryID, StageRecord{
		Stage:      p.Stage,
		DurationMs: p.DurationMs,
		Success:    p.Success,
		Detail:     p.Detail,
	})
}

func (c *Collector) onResponseReady(_ context.Context, ev eventbus.Event) {
	p, ok := ev.Payload().(eventbus.ResponseReadyPayload)
	if !ok {
		return
	}
	c.metrics.RecordResponse(p.Method, float64(p.DurationMs)/1000)
	c.traces.Finish(p.QueryID, p.Method, p.DurationMs)
}

func (c *Collector) onFallbackUsed(_ context.Context, ev eventbus.Event) {
	p, ok := ev.Payload().(eventbus.FallbackUsedPayload)
	if !ok {
		return
	}
	c.metrics.RecordFallback(p.Stage)
	c.traces.Fallback(p.QueryID, p.Stage)
}

func (c *Collector) onBreakerStateChange(_ context.Context, ev eventbus.Event) {
	p, ok := ev.Payload().(eventbus.BreakerStateChangePayload)
	if !ok {
		return
	}
	c.metrics.SetBreakerOpen(p.Service, p.State == "open")
	c.logger.Debug("Breaker state observed",
		zap.String("service", p.Service),
		zap.String("state", p.State),
	)
}

func (c *Collector) onRateLimited(_ context.Context, ev eventbus.Event) {
	p, ok := ev.Payload().(eventbus.RateLimitedPayload)
	if !ok {
		return
	}
	c.metrics.RecordRateLimited(p.Source)
}
