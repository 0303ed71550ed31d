// Package retry wraps a transient operation with exponential backoff
// capped by a total time budget: delay starts at Start, grows by Factor
// up to Ceiling, and the whole retry sequence is bounded by Budget.
// Once the budget is exhausted the underlying error is re-raised. A
// successful call resets the schedule for next time.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Policy configures one wrapped operation's retry schedule.
type Policy struct {
	Start   time.Duration // initial delay (d_0)
	Factor  float64       // growth factor per retry
	Ceiling time.Duration // per-delay cap
	Budget  time.Duration // total wall time across all retries
}

// IsTransient classifies an error as retryable. Callers supply this so
// Policy stays agnostic of any one operation's error types.
type IsTransient func(error) bool

// Backoff drives a Policy against repeated invocations of an operation.
// Its internal schedule (current delay, remaining budget) is reset
// between outer Do calls, so a fresh call always starts from d_0 with
// the full budget.
type Backoff struct {
	policy      Policy
	isTransient IsTransient
	log         zerolog.Logger
	name        string
}

// New constructs a Backoff for a named operation.
func New(name string, policy Policy, isTransient IsTransient, log zerolog.Logger) *Backoff {
	if policy.Start <= 0 {
		policy.Start = 100 * time.Millisecond
	}
	if policy.Factor <= 1 {
		policy.Factor = 2
	}
	if policy.Ceiling <= 0 {
		policy.Ceiling = 10 * time.Second
	}
	if policy.Budget <= 0 {
		policy.Budget = 30 * time.Second
	}
	return &Backoff{policy: policy, isTransient: isTransient, log: log, name: name}
}

// Do runs op, retrying on transient errors under the configured
// exponential schedule until it succeeds, a non-transient error occurs,
// the budget is exhausted, or ctx is canceled. On budget exhaustion the
// last error from op is returned unwrapped so callers can inspect it.
func (b *Backoff) Do(ctx context.Context, op func(context.Context) error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = b.policy.Start
	exp.Multiplier = b.policy.Factor
	exp.MaxInterval = b.policy.Ceiling
	exp.MaxElapsedTime = b.policy.Budget
	exp.RandomizationFactor = 0 // deterministic d_n = start * factor^n schedule, not library-default jitter
	exp.Reset()

	for {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if b.isTransient != nil && !b.isTransient(err) {
			return err
		}

		delay := exp.NextBackOff()
		if delay == backoff.Stop {
			b.log.Warn().Str("op", b.name).Err(err).Msg("retry: budget exhausted, re-raising")
			return err
		}

		b.log.Info().Str("op", b.name).Dur("delay", delay).Err(err).Msg("retry: backing off")
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
