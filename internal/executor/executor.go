// Package executor wraps store calls with staleness-aware session refresh,
// a per-call timeout and a single retry.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/TobiSchelling/AIVisibility/internal/logger"
)

const (
	DefaultStaleAfter = 90 * time.Second
	DefaultTimeout    = 30 * time.Second
	DefaultRetryDelay = 500 * time.Millisecond

	minTimeout = 8 * time.Second
	maxTimeout = 30 * time.Second
)

// ErrTimeout is returned when a query does not finish within its timeout.
var ErrTimeout = errors.New("query timed out")

// Refresher re-establishes whatever session the queries run on.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context) error

func (f RefresherFunc) Refresh(ctx context.Context) error { return f(ctx) }

// Options configures an Executor. Zero values take the defaults.
type Options struct {
	StaleAfter time.Duration
	Timeout    time.Duration
	RetryDelay time.Duration
	Now        func() time.Time
	Logger     *logger.Logger
}

// Executor tracks the last activity time and runs queries through the
// refresh, timeout and retry policy. It is safe for concurrent use.
type Executor struct {
	mu           sync.Mutex
	lastActivity time.Time

	refresher  Refresher
	staleAfter time.Duration
	timeout    time.Duration
	retryDelay time.Duration
	now        func() time.Time
	log        *logger.Logger
}

// New creates an Executor. The default timeout is kept within 8s..30s and
// the last activity starts at creation time.
func New(r Refresher, opts Options) *Executor {
	e := &Executor{
		refresher:  r,
		staleAfter: opts.StaleAfter,
		timeout:    clampTimeout(opts.Timeout),
		retryDelay: opts.RetryDelay,
		now:        opts.Now,
		log:        opts.Logger,
	}
	if e.staleAfter <= 0 {
		e.staleAfter = DefaultStaleAfter
	}
	if e.retryDelay < 0 {
		e.retryDelay = 0
	} else if e.retryDelay == 0 {
		e.retryDelay = DefaultRetryDelay
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.log == nil {
		e.log = logger.Nop()
	}
	e.lastActivity = e.now()
	return e
}

// Timeout is the default per-call timeout.
func (e *Executor) Timeout() time.Duration { return e.timeout }

// Touch records activity now.
func (e *Executor) Touch() {
	now := e.now()
	e.mu.Lock()
	e.lastActivity = now
	e.mu.Unlock()
}

// LastActivity returns the last recorded activity time.
func (e *Executor) LastActivity() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastActivity
}

// IsStale reports whether the idle time exceeds the stale threshold.
func (e *Executor) IsStale() bool {
	return e.now().Sub(e.LastActivity()) > e.staleAfter
}

// EnsureFresh refreshes the session when stale. Errors are logged only.
func (e *Executor) EnsureFresh(ctx context.Context) {
	if !e.IsStale() {
		return
	}
	e.log.Debug("session stale, refreshing", "idle", e.now().Sub(e.LastActivity()).String())
	e.refresh(ctx)
}

func (e *Executor) refresh(ctx context.Context) {
	if e.refresher == nil {
		return
	}
	if err := e.refresher.Refresh(ctx); err != nil {
		e.log.Warn("session refresh failed", "error", err)
		return
	}
	e.Touch()
}

// Result mirrors the {data, error} pair callers check.
type Result[T any] struct {
	Data T
	Err  error
}

// Execute runs q with the executor's default timeout.
func Execute[T any](ctx context.Context, e *Executor, q func(context.Context) (T, error)) Result[T] {
	return ExecuteTimeout(ctx, e, e.timeout, q)
}

// ExecuteTimeout runs q, refreshing a stale session first. Any failure
// forces a refresh and one retry after a short delay. It never panics;
// the retry's error is returned when both attempts fail. A non-positive
// timeout uses the executor default.
func ExecuteTimeout[T any](ctx context.Context, e *Executor, timeout time.Duration, q func(context.Context) (T, error)) Result[T] {
	if timeout <= 0 {
		timeout = e.timeout
	}

	e.EnsureFresh(ctx)
	e.Touch()

	data, err := run(ctx, timeout, q)
	if err == nil {
		e.Touch()
		return Result[T]{Data: data}
	}

	e.log.Warn("query failed, retrying after refresh", "error", err)
	e.refresh(ctx)

	if e.retryDelay > 0 {
		t := time.NewTimer(e.retryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			var zero T
			return Result[T]{Data: zero, Err: ctx.Err()}
		case <-t.C:
		}
	}

	data, err = run(ctx, timeout, q)
	if err != nil {
		e.log.Error("query retry failed", "error", err)
		var zero T
		return Result[T]{Data: zero, Err: err}
	}
	e.Touch()
	return Result[T]{Data: data}
}

type outcome[T any] struct {
	data T
	err  error
}

// run races q against the timeout. q receives a context that is
// cancelled when the timeout fires so well-behaved queries stop early.
func run[T any](parent context.Context, timeout time.Duration, q func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		var o outcome[T]
		defer func() {
			if r := recover(); r != nil {
				o.err = fmt.Errorf("query panicked: %v", r)
			}
			done <- o
		}()
		o.data, o.err = q(ctx)
	}()

	select {
	case o := <-done:
		return o.data, o.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
			return zero, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return zero, ctx.Err()
	}
}

func clampTimeout(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return DefaultTimeout
	case d < minTimeout:
		return minTimeout
	case d > maxTimeout:
		return maxTimeout
	default:
		return d
	}
}
