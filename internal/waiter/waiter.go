// Package waiter implements the fixed-interval polling primitive used to gate
// every automation step on a perceptual condition.
package waiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is the pause between two evaluations of a predicate.
const DefaultInterval = 50 * time.Millisecond

// ErrTimeout is returned when an opt-in timeout expires before the predicate holds.
var ErrTimeout = errors.New("waiter: condition not met before timeout")

// Predicate reports whether the awaited condition holds. A non-nil error aborts the wait.
type Predicate func(ctx context.Context) (bool, error)

// Sleeper pauses the calling goroutine, returning early if ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Hooks observe the polling loop. Any field may be nil.
type Hooks struct {
	// OnEvaluate runs after each predicate evaluation.
	OnEvaluate func(attempt int, ok bool)
	// OnDone runs once when Wait returns.
	OnDone func(attempts int, elapsed time.Duration, err error)
}

// Waiter polls a predicate until it holds. The zero timeout means wait forever.
type Waiter struct {
	interval time.Duration
	timeout  time.Duration
	sleeper  Sleeper
	hooks    Hooks
	logger   *zap.Logger
}

// Option configures a Waiter.
type Option func(*Waiter)

// WithInterval sets the pause between evaluations.
func WithInterval(d time.Duration) Option {
	return func(w *Waiter) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithTimeout bounds every Wait call. Zero or negative keeps the unbounded default.
func WithTimeout(d time.Duration) Option {
	return func(w *Waiter) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithSleeper replaces the real-time sleeper.
func WithSleeper(s Sleeper) Option {
	return func(w *Waiter) {
		if s != nil {
			w.sleeper = s
		}
	}
}

// WithHooks installs observation hooks.
func WithHooks(h Hooks) Option {
	return func(w *Waiter) { w.hooks = h }
}

// WithLogger sets the logger used for debug tracing.
func WithLogger(l *zap.Logger) Option {
	return func(w *Waiter) {
		if l != nil {
			w.logger = l.Named("waiter")
		}
	}
}

// New creates a Waiter with a 50ms interval and no timeout.
func New(opts ...Option) *Waiter {
	w := &Waiter{
		interval: DefaultInterval,
		sleeper:  timerSleeper{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Interval returns the configured pause between evaluations.
func (w *Waiter) Interval() time.Duration { return w.interval }

// Timeout returns the configured timeout, zero when unbounded.
func (w *Waiter) Timeout() time.Duration { return w.timeout }

// Wait evaluates p, returns when it holds, and otherwise sleeps for the interval
// and tries again. Evaluation time is not subtracted from the interval.
// Without a timeout, Wait only stops early when ctx is done.
func (w *Waiter) Wait(ctx context.Context, p Predicate) (err error) {
	start := time.Now()
	attempts := 0
	if w.hooks.OnDone != nil {
		defer func() { w.hooks.OnDone(attempts, time.Since(start), err) }()
	}

	var deadline time.Time
	if w.timeout > 0 {
		deadline = start.Add(w.timeout)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		attempts++
		ok, err := p(ctx)
		if w.hooks.OnEvaluate != nil {
			w.hooks.OnEvaluate(attempts, ok)
		}
		if err != nil {
			return err
		}
		if ok {
			w.logger.Debug("Condition met", zap.Int("attempts", attempts), zap.Duration("elapsed", time.Since(start)))
			return nil
		}

		if !deadline.IsZero() && !time.Now().Add(w.interval).Before(deadline) {
			return fmt.Errorf("%w after %d attempts (%s)", ErrTimeout, attempts, w.timeout)
		}

		if err := w.sleeper.Sleep(ctx, w.interval); err != nil {
			return err
		}
	}
}

// timerSleeper sleeps on a real timer.
type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
