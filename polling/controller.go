package polling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/BaSui01/mediaflow/config"
	"github.com/BaSui01/mediaflow/progress"
	"github.com/BaSui01/mediaflow/provider"
	"github.com/BaSui01/mediaflow/types"
)

const instrumentationName = "github.com/BaSui01/mediaflow/polling"

// Profile bounds one polling loop.
type Profile struct {
	Interval time.Duration
	MaxWait  time.Duration
}

// FromConfig converts a configured profile.
func FromConfig(p config.PollProfile) Profile {
	return Profile{Interval: p.Interval, MaxWait: p.MaxWait}
}

// Validate checks the profile bounds.
func (p Profile) Validate() error {
	if p.Interval <= 0 {
		return types.NewError(types.ErrConfiguration, "poll interval must be positive")
	}
	if p.MaxWait < p.Interval {
		return types.NewError(types.ErrConfiguration, "poll max wait must be at least one interval")
	}
	return nil
}

// PollFunc performs one status check.
type PollFunc func(ctx context.Context) (provider.PollResult, error)

// Clock 可注入时钟，测试中使用虚拟时间
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc)
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (realClock) WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d)
}

// Controller drives a poll function until the provider reaches a terminal state,
// the wait budget is exhausted, or the context is cancelled.
type Controller struct {
	reporter progress.Reporter
	clock    Clock
	logger   *zap.Logger
	attempts metric.Int64Counter
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithReporter sets where in-progress percentages are forwarded.
func WithReporter(r progress.Reporter) Option {
	return func(ctl *Controller) { ctl.reporter = r }
}

// NewController creates a polling controller.
func NewController(logger *zap.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		reporter: progress.Nop{},
		clock:    realClock{},
		logger:   logger.With(zap.String("component", "polling")),
	}
	for _, opt := range opts {
		opt(c)
	}

	counter, err := otel.Meter(instrumentationName).Int64Counter("mediaflow.poll.attempts",
		metric.WithDescription("Total number of provider status checks"),
		metric.WithUnit("{attempt}"))
	if err != nil {
		c.logger.Warn("failed to create poll counter", zap.Error(err))
	}
	c.attempts = counter
	return c
}

// Run polls until a terminal result. It returns the outputs on success,
// a GENERATION_FAILED error when the provider reports failure, a TIMEOUT
// error once MaxWait has elapsed and a CANCELLED error when ctx ends.
// Each status check is bounded by the remaining wait budget.
func (c *Controller) Run(ctx context.Context, taskID string, p Profile, poll PollFunc) ([]provider.MediaRef, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	start := c.clock.Now()
	deadline := start.Add(p.MaxWait)
	attempt := 0
	var lastErr error

	for {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(err)
		}

		attempt++
		out, expired := c.attempt(ctx, deadline.Sub(c.clock.Now()), poll)
		result, err := out.result, out.err
		c.record(ctx, result, err)

		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, cancelled(ctx.Err())
			}
			if expired {
				return nil, timedOut(c.clock.Now().Sub(start), attempt, lastErr)
			}
			if !transient(err) {
				return nil, err
			}
			lastErr = err
			c.logger.Warn("transient poll error",
				zap.String("task_id", taskID), zap.Int("attempt", attempt), zap.Error(err))
			progress.EmitProgress(c.reporter, taskID, provider.UnknownProgress)

		case result.State == provider.StateSucceeded:
			c.logger.Debug("poll succeeded",
				zap.String("task_id", taskID), zap.Int("attempts", attempt), zap.Int("outputs", len(result.Outputs)))
			return result.Outputs, nil

		case result.State == provider.StateFailed:
			msg := result.Message
			if msg == "" {
				msg = "provider reported failure"
			}
			return nil, types.NewError(types.ErrGenerationFailed, msg)

		default:
			lastErr = nil
			progress.EmitProgress(c.reporter, taskID, result.Progress)
		}

		select {
		case <-ctx.Done():
			return nil, cancelled(ctx.Err())
		case <-c.clock.After(p.Interval):
		}

		if elapsed := c.clock.Now().Sub(start); elapsed >= p.MaxWait {
			return nil, timedOut(elapsed, attempt, lastErr)
		}
	}
}

type pollOutcome struct {
	result provider.PollResult
	err    error
}

// attempt runs one status check bounded by budget. A check that ignores its
// context is abandoned once the budget runs out; expired reports that case.
func (c *Controller) attempt(ctx context.Context, budget time.Duration, poll PollFunc) (pollOutcome, bool) {
	if budget <= 0 {
		return pollOutcome{err: context.DeadlineExceeded}, ctx.Err() == nil
	}
	pctx, cancel := c.clock.WithTimeout(ctx, budget)
	defer cancel()

	done := make(chan pollOutcome, 1)
	go func() {
		r, err := poll(pctx)
		done <- pollOutcome{result: r, err: err}
	}()

	select {
	case o := <-done:
		expired := o.err != nil && ctx.Err() == nil && errors.Is(pctx.Err(), context.DeadlineExceeded)
		return o, expired
	case <-pctx.Done():
		return pollOutcome{err: pctx.Err()}, ctx.Err() == nil
	}
}

func (c *Controller) record(ctx context.Context, r provider.PollResult, err error) {
	if c.attempts == nil {
		return
	}
	outcome := r.State.String()
	if err != nil {
		outcome = "error"
	}
	c.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// transient reports whether a poll error should be treated as "still running".
// Typed errors are transient only when marked retryable; rate limits never are.
func transient(err error) bool {
	if e, ok := types.AsError(err); ok {
		return e.Retryable && e.Code != types.ErrRateLimit
	}
	return true
}

func timedOut(elapsed time.Duration, attempts int, lastErr error) error {
	e := types.NewError(types.ErrTimeout,
		fmt.Sprintf("generation timed out after %s (%d polls)", elapsed.Round(time.Millisecond), attempts))
	if lastErr != nil {
		e = e.WithCause(lastErr)
	}
	return e
}

func cancelled(cause error) error {
	return types.NewError(types.ErrCancelled, "generation cancelled").WithCause(cause)
}
