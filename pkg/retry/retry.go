// Package retry wraps single remote calls with bounded retry on transient
// failures.
package retry

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/agentstation/rowsync/pkg/constants"
	"github.com/agentstation/rowsync/pkg/errors"
	"github.com/agentstation/rowsync/pkg/logging"
)

// Policy bounds how a call is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`

	// Backoff is the wait between attempts. With Exponential set it is the
	// initial interval.
	Backoff time.Duration `mapstructure:"backoff" yaml:"backoff"`

	// Exponential doubles the wait after every attempt, up to MaxBackoff.
	Exponential bool `mapstructure:"exponential" yaml:"exponential"`

	// MaxBackoff caps exponential waits. Zero uses constants.MaxRetryBackoff.
	MaxBackoff time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
}

// DefaultPolicy returns 5 attempts with a fixed 1.5s wait.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: constants.DefaultMaxAttempts,
		Backoff:     constants.DefaultRetryBackoff,
	}
}

// Validate checks the policy bounds.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return errors.NewValidationError("retry.max_attempts", p.MaxAttempts, "must be at least 1")
	}
	if p.Backoff < 0 {
		return errors.NewValidationError("retry.backoff", p.Backoff, "must not be negative")
	}
	return nil
}

func (p Policy) backOff() backoff.BackOff {
	if !p.Exponential {
		return backoff.NewConstantBackOff(p.Backoff)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Backoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = p.MaxBackoff
	if b.MaxInterval <= 0 {
		b.MaxInterval = constants.MaxRetryBackoff
	}
	b.Reset()
	return b
}

// Option configures a single Do call.
type Option func(*config)

type config struct {
	operation string
	logger    *zerolog.Logger
	notify    func(attempt int, err error, wait time.Duration)
}

// WithOperation names the call in logs and in RetryExhaustedError.
func WithOperation(name string) Option {
	return func(c *config) { c.operation = name }
}

// WithLogger sets the logger for retry events.
func WithLogger(l *zerolog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithNotify registers a callback invoked before every retry wait.
func WithNotify(fn func(attempt int, err error, wait time.Duration)) Option {
	return func(c *config) { c.notify = fn }
}

// Do runs op until it succeeds, fails fatally, or the policy's attempts are
// used up. Fatal errors are returned as-is after one attempt. Running out of
// attempts on transient errors returns a RetryExhaustedError wrapping the
// last error. A cancelled context stops retrying and returns its error.
func Do[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	cfg := config{logger: logging.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	var (
		attempts  int
		last      error
		lastClass Class
	)
	operation := func() (T, error) {
		attempts++
		if err := ctx.Err(); err != nil {
			var zero T
			last, lastClass = err, Fatal
			return zero, backoff.Permanent(err)
		}
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			last, lastClass = err, Fatal
			return res, backoff.Permanent(err)
		}
		last, lastClass = err, Classify(err)
		if lastClass == Fatal {
			return res, backoff.Permanent(err)
		}
		var rl *errors.RateLimitError
		if stderrors.As(err, &rl) && rl.RetryAfter >= time.Second {
			return res, backoff.RetryAfter(int(rl.RetryAfter / time.Second))
		}
		return res, err
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy.backOff()),
		backoff.WithMaxTries(uint(policy.MaxAttempts)),
		backoff.WithNotify(func(_ error, wait time.Duration) {
			cfg.logger.Warn().
				Err(last).
				Str("operation", cfg.operation).
				Int("attempt", attempts).
				Int("max_attempts", policy.MaxAttempts).
				Dur("wait", wait).
				Msg("Transient failure, retrying")
			if cfg.notify != nil {
				cfg.notify(attempts, last, wait)
			}
		}),
	)
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	if lastClass == Transient && last != nil {
		return res, errors.NewRetryExhaustedError(cfg.operation, attempts, last)
	}
	if last != nil {
		return res, last
	}
	return res, err
}

// Call is Do for operations without a result.
func Call(ctx context.Context, policy Policy, op func(ctx context.Context) error, opts ...Option) error {
	_, err := Do(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, opts...)
	return err
}
