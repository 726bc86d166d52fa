package eventbus

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event 管道事件接口
type Event interface {
	Type() string
	Timestamp() time.Time
	Payload() any
}

// BaseEvent 基础事件实现
type BaseEvent struct {
	EventType      string
	EventTimestamp time.Time
	EventPayload   any
}

// Type 返回事件类型
func (e *BaseEvent) Type() string {
	return e.EventType
}

// Timestamp 返回事件时间戳
func (e *BaseEvent) Timestamp() time.Time {
	return e.EventTimestamp
}

// Payload 返回事件载荷
func (e *BaseEvent) Payload() any {
	return e.EventPayload
}

// NewEvent 创建新事件
func NewEvent(eventType string, payload any) *BaseEvent {
	return &BaseEvent{
		EventType:      eventType,
		EventTimestamp: time.Now(),
		EventPayload:   payload,
	}
}

// Handler 事件处理函数
type Handler func(ctx context.Context, event Event)

// Bus 事件总线接口
type Bus interface {
	// Publish 发布事件
	Publish(ctx context.Context, event Event)
	// Subscribe 订阅事件
	Subscribe(eventType string, handler Handler)
	// Unsubscribe 取消订阅（移除该类型最近注册的处理器）
	Unsubscribe(eventType string)
	// Close 关闭事件总线
	Close()
}

// InMemoryBus 内存事件总线
//
// 发布是非阻塞的：缓冲满时丢弃事件而不是阻塞请求路径。
type InMemoryBus struct {
	mu        sync.RWMutex
	handlers  map[string][]Handler
	eventChan chan eventWrapper
	closed    bool
	logger    *zap.Logger
	wg        sync.WaitGroup
}

type eventWrapper struct {
	ctx   context.Context
	event Event
}

// NewInMemoryBus 创建内存事件总线
func NewInMemoryBus(logger *zap.Logger, bufferSize int) *InMemoryBus {
	bus := &InMemoryBus{
		handlers:  make(map[string][]Handler),
		eventChan: make(chan eventWrapper, bufferSize),
		logger:    logger,
	}

	// 启动事件分发协程
	bus.wg.Add(1)
	go bus.dispatch()

	return bus
}

// Publish 发布事件
func (b *InMemoryBus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	b.mu.RUnlock()

	// 非阻塞发送
	select {
	case b.eventChan <- eventWrapper{ctx: ctx, event: event}:
		b.logger.Debug("Event published",
			zap.String("type", event.Type()),
		)
	default:
		b.logger.Warn("Event buffer full, dropping event",
			zap.String("type", event.Type()),
		)
	}
}

// Subscribe 订阅事件（"*" 订阅所有类型）
func (b *InMemoryBus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	b.logger.Debug("Handler subscribed",
		zap.String("event_type", eventType),
	)
}

// Unsubscribe 取消订阅
//
// Go 不支持函数比较，所以移除该类型最近注册的处理器。
func (b *InMemoryBus) Unsubscribe(eventType string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlers := b.handlers[eventType]
	if len(handlers) == 0 {
		return
	}
	if len(handlers) == 1 {
		delete(b.handlers, eventType)
		return
	}
	b.handlers[eventType] = handlers[:len(handlers)-1]
}

// Close 关闭事件总线
func (b *InMemoryBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.eventChan)
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Info("Event bus closed")
}

// dispatch 事件分发循环
func (b *InMemoryBus) dispatch() {
	defer b.wg.Done()

	for wrapper := range b.eventChan {
		b.dispatchEvent(wrapper.ctx, wrapper.event)
	}
}

// dispatchEvent 分发单个事件
func (b *InMemoryBus) dispatchEvent(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0)

	// 获取特定类型的处理器
	if h, ok := b.handlers[event.Type()]; ok {
		handlers = append(handlers, h...)
	}

	// 获取通配符处理器
	if h, ok := b.handlers["*"]; ok {
		handlers = append(handlers, h...)
	}
	b.mu.RUnlock()

	// 并行执行处理器
	var wg sync.WaitGroup
	for _, handler := range handlers {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("Handler panicked",
						zap.String("event_type", event.Type()),
						zap.Any("panic", r),
					)
				}
			}()
			h(ctx, event)
		}(handler)
	}
	wg.Wait()
}

// 管道事件类型常量
const (
	EventTypeQueryReceived      = "query_received"
	EventTypeStageCompleted     = "stage_completed"
	EventTypeResponseReady      = "response_ready"
	EventTypeFallbackUsed       = "fallback_used"
	EventTypeBreakerStateChange = "breaker_state_change"
	EventTypeRateLimited        = "rate_limited"
)

// QueryReceivedPayload 查询进入管道事件载荷
type QueryReceivedPayload struct {
	QueryID   string `json:"query_id"`
	SessionID string `json:"session_id"`
	Source    string `json:"source"`
	Voice     bool   `json:"voice,omitempty"`
	Chars     int    `json:"chars"`
}

// StageCompletedPayload 管道阶段完成事件载荷
type StageCompletedPayload struct {
	QueryID    string `json:"query_id"`
	Stage      string `json:"stage"`
	DurationMs int64  `json:"duration_ms"`
	Success    bool   `json:"success"`
	Detail     string `json:"detail,omitempty"`
}

// ResponseReadyPayload 响应返回事件载荷
type ResponseReadyPayload struct {
	QueryID    string `json:"query_id"`
	Method     string `json:"method"`
	PrefixTag  string `json:"prefix_tag,omitempty"`
	Chars      int    `json:"chars"`
	DurationMs int64  `json:"duration_ms"`
}

// FallbackUsedPayload 降级响应事件载荷
type FallbackUsedPayload struct {
	QueryID string `json:"query_id"`
	Stage   string `json:"stage"`
	Reason  string `json:"reason"`
}

// BreakerStateChangePayload 熔断器状态变化事件载荷
type BreakerStateChangePayload struct {
	Service  string `json:"service"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
}

// RateLimitedPayload 限流拒绝事件载荷
type RateLimitedPayload struct {
	SessionID string `json:"session_id"`
	Source    string `json:"source"`
}
