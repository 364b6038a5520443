// Package poll waits for the side effects of externally triggered jobs by
// checking a condition on a fixed interval until it holds, the attempt
// budget runs out or a wall-clock deadline passes.
package poll

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultInterval    = 5 * time.Second
	DefaultMaxAttempts = 60
)

// Outcome is the terminal state of a polling task.
type Outcome int

const (
	Polling Outcome = iota
	Satisfied
	TimedOut
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Polling:
		return "polling"
	case Satisfied:
		return "satisfied"
	case TimedOut:
		return "timed_out"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Options bounds a polling task. Zero Interval and MaxAttempts take the
// defaults; a zero Timeout leaves only the attempt budget.
type Options struct {
	Interval    time.Duration
	MaxAttempts int
	Timeout     time.Duration
}

// Condition reports whether the awaited rows exist. An error counts as a
// failed attempt.
type Condition func(ctx context.Context) (bool, error)

// Task is a running poll. Stop cancels it; Wait blocks for the outcome.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	outcome  Outcome
	attempts int
	lastErr  error
}

// Start checks cond immediately and then every interval. onTransition, if
// set, is called exactly once with Satisfied or TimedOut. It is not called
// when the task is stopped or ctx ends first.
func Start(ctx context.Context, opts Options, cond Condition, onTransition func(Outcome)) *Task {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}

	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	go t.loop(ctx, opts, cond, onTransition)
	return t
}

// Run polls synchronously and returns the outcome.
func Run(ctx context.Context, opts Options, cond Condition) Outcome {
	return Start(ctx, opts, cond, nil).Wait()
}

func (t *Task) loop(ctx context.Context, opts Options, cond Condition, onTransition func(Outcome)) {
	defer close(t.done)
	defer t.cancel()

	var deadline <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	finish := func(o Outcome) {
		t.mu.Lock()
		t.outcome = o
		t.mu.Unlock()
		if o != Cancelled && onTransition != nil {
			onTransition(o)
		}
	}

	for {
		ok, err := cond(ctx)
		if ctx.Err() != nil {
			finish(Cancelled)
			return
		}
		t.mu.Lock()
		t.attempts++
		t.lastErr = err
		attempts := t.attempts
		t.mu.Unlock()

		if err == nil && ok {
			finish(Satisfied)
			return
		}
		if attempts >= opts.MaxAttempts {
			finish(TimedOut)
			return
		}

		select {
		case <-deadline:
			finish(TimedOut)
			return
		default:
		}

		select {
		case <-ctx.Done():
			finish(Cancelled)
			return
		case <-deadline:
			finish(TimedOut)
			return
		case <-ticker.C:
		}
	}
}

// Stop cancels the task. It is safe to call more than once and after the
// task finished.
func (t *Task) Stop() {
	t.cancel()
}

// Done is closed when the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task ends and returns its outcome.
func (t *Task) Wait() Outcome {
	<-t.done
	return t.Outcome()
}

// Outcome is Polling until the task ends.
func (t *Task) Outcome() Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outcome
}

// Attempts is the number of completed condition checks.
func (t *Task) Attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

// Err is the error from the most recent check, if any.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}
