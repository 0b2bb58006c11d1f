// Package resilience wraps producers and context providers with retries and
// per-call deadlines.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"reviewbot/internal/review"
)

// Producer matches tasks.Producer.
type Producer interface {
	Run(ctx context.Context, req review.ProducerRequest) (string, error)
}

// Provider matches pipeline.ContextProvider.
type Provider interface {
	Search(ctx context.Context, query, namespace string, topK int) ([]review.Match, error)
}

// Policy controls retries. Attempts counts the first call; values below 1 mean 1.
type Policy struct {
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration

	// Retryable decides whether err is worth another attempt. Nil uses IsRetryable.
	Retryable func(error) bool
}

// DefaultPolicy retries twice with a short exponential backoff.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Backoff: 500 * time.Millisecond, MaxBackoff: 5 * time.Second}
}

// IsRetryable treats cancellation as final, defers to a Retryable() method when
// the error chain has one and retries everything else.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}

func (p Policy) delay(attempt int) time.Duration {
	d := p.Backoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// Do calls fn until it succeeds, the policy gives up or ctx ends. The last
// error is returned wrapped with the attempt count.
func Do(ctx context.Context, p Policy, logger *slog.Logger, op string, fn func(context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}
	if logger == nil {
		logger = slog.Default()
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == attempts || !retryable(err) || ctx.Err() != nil {
			break
		}
		wait := p.delay(attempt)
		logger.Debug("retrying", "op", op, "attempt", attempt, "wait", wait, "error", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w (last error: %v)", op, ctx.Err(), err)
		case <-timer.C:
		}
	}
	if attempts == 1 {
		return err
	}
	return fmt.Errorf("%s failed after retries: %w", op, err)
}

type retryProducer struct {
	next   Producer
	policy Policy
	logger *slog.Logger
}

// RetryProducer retries failed producer calls according to p.
func RetryProducer(next Producer, p Policy, logger *slog.Logger) Producer {
	return &retryProducer{next: next, policy: p, logger: logger}
}

func (r *retryProducer) Run(ctx context.Context, req review.ProducerRequest) (string, error) {
	var out string
	err := Do(ctx, r.policy, r.logger, "producer "+req.Identifier, func(ctx context.Context) error {
		var err error
		out, err = r.next.Run(ctx, req)
		return err
	})
	return out, err
}

type timeoutProducer struct {
	next    Producer
	timeout time.Duration
}

// TimeoutProducer gives every call its own deadline. d <= 0 returns next unchanged.
func TimeoutProducer(next Producer, d time.Duration) Producer {
	if d <= 0 {
		return next
	}
	return &timeoutProducer{next: next, timeout: d}
}

func (t *timeoutProducer) Run(ctx context.Context, req review.ProducerRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Run(ctx, req)
}

type retryProvider struct {
	next   Provider
	policy Policy
	logger *slog.Logger
}

// RetryProvider retries failed context searches according to p.
func RetryProvider(next Provider, p Policy, logger *slog.Logger) Provider {
	return &retryProvider{next: next, policy: p, logger: logger}
}

func (r *retryProvider) Search(ctx context.Context, query, namespace string, topK int) ([]review.Match, error) {
	var out []review.Match
	err := Do(ctx, r.policy, r.logger, "context search", func(ctx context.Context) error {
		var err error
		out, err = r.next.Search(ctx, query, namespace, topK)
		return err
	})
	return out, err
}

type timeoutProvider struct {
	next    Provider
	timeout time.Duration
}

// TimeoutProvider bounds every search. d <= 0 returns next unchanged.
func TimeoutProvider(next Provider, d time.Duration) Provider {
	if d <= 0 {
		return next
	}
	return &timeoutProvider{next: next, timeout: d}
}

func (t *timeoutProvider) Search(ctx context.Context, query, namespace string, topK int) ([]review.Match, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Search(ctx, query, namespace, topK)
}
