package llm

import (
	"context"
	"time"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/service"
	domainErrors "github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/pkg/errors"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds a single completion attempt.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 2

	retryBaseWait = 500 * time.Millisecond
)

// Client wraps a Provider with the pipeline contract: a hard per-attempt
// timeout, bounded retries with exponential backoff, breaker accounting
// under the llm service, and post-generation sentence capping.
type Client struct {
	provider   Provider
	breakers   *service.BreakerRegistry
	timeout    time.Duration
	maxRetries int
	logger     *zap.Logger
}

// NewClient wires a provider (usually a Router) to the shared breaker
// registry. Non-positive timeout and negative maxRetries fall back to
// the defaults.
func NewClient(provider Provider, breakers *service.BreakerRegistry, timeout time.Duration, maxRetries int, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Client{
		provider:   provider,
		breakers:   breakers,
		timeout:    timeout,
		maxRetries: maxRetries,
		logger:     logger.With(zap.String("component", "llm-client")),
	}
}

// Generate runs one completion. Timeouts and transport errors are
// retried with backoff. A success feeds the breaker and caps the output;
// an error after the last retry records a breaker failure and surfaces
// to the caller, who converts it into a fallback response.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	if !c.breakers.Allow(service.ServiceLLM) {
		c.logger.Info("Skipping completion, circuit open")
		return "", domainErrors.NewBreakerOpenError(service.ServiceLLM)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := retryBaseWait * (1 << (attempt - 1))
			c.logger.Info("Retrying completion",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", c.maxRetries),
				zap.Duration("wait", wait),
				zap.Error(lastErr),
			)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return "", domainErrors.NewDeadlineError("completion abandoned: " + ctx.Err().Error())
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		text, err := c.provider.Generate(attemptCtx, req)
		cancel()

		if err == nil {
			c.breakers.RecordSuccess(service.ServiceLLM)
			return LimitSentences(text), nil
		}
		lastErr = err

		// The pipeline budget expired, not the provider; leave the
		// breaker untouched.
		if ctx.Err() != nil {
			return "", domainErrors.NewDeadlineError("completion abandoned: " + ctx.Err().Error())
		}
	}

	c.breakers.RecordFailure(service.ServiceLLM)
	c.logger.Error("Completion failed after retries",
		zap.Int("attempts", c.maxRetries+1),
		zap.Error(lastErr),
	)
	return "", domainErrors.NewTransientError("completion failed", lastErr)
}
