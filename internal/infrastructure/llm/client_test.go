package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/service"
	domainErrors "github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/pkg/errors"
	"go.uber.org/zap"
)

type scriptedLLM struct {
	replies []string
	errs    []error
	block   bool
	calls   int
	lastReq Request
}

func (s *scriptedLLM) Name() string { return "scripted" }

func (s *scriptedLLM) Generate(ctx context.Context, req Request) (string, error) {
	s.lastReq = req
	i := s.calls
	s.calls++
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return "steady answer.", nil
}

func newTestClient(p Provider, maxRetries int) (*Client, *service.BreakerRegistry) {
	breakers := service.NewBreakerRegistry(5, time.Minute, zap.NewNop())
	client := NewClient(p, breakers, 100*time.Millisecond, maxRetries, zap.NewNop())
	return client, breakers
}

func TestClientSuccessRecordsAndCaps(t *testing.T) {
	long := "One ran. Two ran. Three ran. Four ran. Five ran. Six ran. Seven ran."
	p := &scriptedLLM{replies: []string{long}}
	client, breakers := newTestClient(p, 2)

	breakers.RecordFailure(service.ServiceLLM)

	got, err := client.Generate(context.Background(), Request{Prompt: "q", MaxTokens: 400, Temperature: 0.7})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "One ran. Two ran. Three ran. Four ran. Five ran." {
		t.Errorf("got %q, want five-sentence cap applied", got)
	}
	if f := breakers.State(service.ServiceLLM).Failures; f != 0 {
		t.Errorf("llm failures = %d after success, want 0", f)
	}
	if p.lastReq.MaxTokens != 400 {
		t.Errorf("params not forwarded: %+v", p.lastReq)
	}
}

func TestClientRetriesThenSucceeds(t *testing.T) {
	p := &scriptedLLM{
		errs:    []error{errors.New("connection reset")},
		replies: []string{"", "recovered fine."},
	}
	client, breakers := newTestClient(p, 1)

	got, err := client.Generate(context.Background(), Request{Prompt: "q"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "recovered fine." {
		t.Errorf("got %q", got)
	}
	if p.calls != 2 {
		t.Errorf("calls = %d, want 2", p.calls)
	}
	if f := breakers.State(service.ServiceLLM).Failures; f != 0 {
		t.Errorf("llm failures = %d, want 0", f)
	}
}

func TestClientExhaustedRetriesRecordsFailure(t *testing.T) {
	p := &scriptedLLM{errs: []error{errors.New("down")}}
	client, breakers := newTestClient(p, 0)

	_, err := client.Generate(context.Background(), Request{Prompt: "q"})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if !domainErrors.IsTransient(err) {
		t.Errorf("error = %v, want transient", err)
	}
	if p.calls != 1 {
		t.Errorf("calls = %d, want 1 with maxRetries=0", p.calls)
	}
	if f := breakers.State(service.ServiceLLM).Failures; f != 1 {
		t.Errorf("llm failures = %d, want 1", f)
	}
}

func TestClientBreakerOpenShortCircuits(t *testing.T) {
	p := &scriptedLLM{}
	client, breakers := newTestClient(p, 2)

	for i := 0; i < 5; i++ {
		breakers.RecordFailure(service.ServiceLLM)
	}

	_, err := client.Generate(context.Background(), Request{Prompt: "q"})
	if err == nil {
		t.Fatal("expected breaker-open error")
	}
	if !domainErrors.IsBreakerOpen(err) {
		t.Errorf("error = %v, want breaker open", err)
	}
	if p.calls != 0 {
		t.Errorf("provider called %d times behind open breaker, want 0", p.calls)
	}
}

func TestClientAttemptTimeoutCountsAsFailure(t *testing.T) {
	p := &scriptedLLM{block: true}
	client, breakers := newTestClient(p, 0)

	start := time.Now()
	_, err := client.Generate(context.Background(), Request{Prompt: "q"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("attempt ran %v, want bounded by the 100ms client timeout", elapsed)
	}
	if f := breakers.State(service.ServiceLLM).Failures; f != 1 {
		t.Errorf("llm failures = %d, want 1", f)
	}
}

func TestClientParentDeadlineIsNotProviderFault(t *testing.T) {
	p := &scriptedLLM{block: true}
	breakers := service.NewBreakerRegistry(5, time.Minute, zap.NewNop())
	// Client timeout far above the parent deadline.
	client := NewClient(p, breakers, 10*time.Second, 2, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Generate(ctx, Request{Prompt: "q"})
	if err == nil {
		t.Fatal("expected deadline error")
	}
	if !domainErrors.IsDeadline(err) {
		t.Errorf("error = %v, want deadline", err)
	}
	if f := breakers.State(service.ServiceLLM).Failures; f != 0 {
		t.Errorf("llm failures = %d, want 0 when the request budget expired", f)
	}
}

func TestClientDefaults(t *testing.T) {
	client := NewClient(&scriptedLLM{}, service.NewBreakerRegistry(5, time.Minute, zap.NewNop()), 0, -1, zap.NewNop())
	if client.timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", client.timeout, DefaultTimeout)
	}
	if client.maxRetries != DefaultMaxRetries {
		t.Errorf("maxRetries = %d, want %d", client.maxRetries, DefaultMaxRetries)
	}
}
