package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeRefresher struct {
	calls atomic.Int32
	err   error
}

func (f *fakeRefresher) Refresh(ctx context.Context) error {
	f.calls.Add(1)
	return f.err
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestExecutor(r Refresher, clock *fakeClock) *Executor {
	return New(r, Options{StaleAfter: 90 * time.Second, RetryDelay: -1, Now: clock.Now})
}

func TestFailOnceThenSucceed(t *testing.T) {
	r := &fakeRefresher{}
	e := newTestExecutor(r, &fakeClock{t: time.Unix(0, 0)})

	var attempts int
	res := Execute(context.Background(), e, func(ctx context.Context) (string, error) {
		attempts++
		if attempts == 1 {
			return "", errors.New("connection reset")
		}
		return "ok", nil
	})

	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Data != "ok" {
		t.Errorf("expected 'ok', got %q", res.Data)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
	if r.calls.Load() != 1 {
		t.Errorf("expected one forced refresh, got %d", r.calls.Load())
	}
}

func TestAlwaysFailsReturnsRetryError(t *testing.T) {
	e := newTestExecutor(&fakeRefresher{}, &fakeClock{t: time.Unix(0, 0)})

	var attempts int
	res := Execute(context.Background(), e, func(ctx context.Context) (*int, error) {
		attempts++
		return nil, errors.New("attempt " + string(rune('0'+attempts)))
	})

	if res.Err == nil || res.Err.Error() != "attempt 2" {
		t.Errorf("expected retry error 'attempt 2', got %v", res.Err)
	}
	if res.Data != nil {
		t.Errorf("expected nil data, got %v", res.Data)
	}
	if attempts != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", attempts)
	}
}

func TestPanicIsContained(t *testing.T) {
	e := newTestExecutor(nil, &fakeClock{t: time.Unix(0, 0)})

	res := Execute(context.Background(), e, func(ctx context.Context) (int, error) {
		panic("boom")
	})
	if res.Err == nil {
		t.Fatal("expected error from panicking query")
	}
}

func TestTimeout(t *testing.T) {
	e := newTestExecutor(&fakeRefresher{}, &fakeClock{t: time.Unix(0, 0)})

	var attempts atomic.Int32
	res := ExecuteTimeout(context.Background(), e, 20*time.Millisecond, func(ctx context.Context) (int, error) {
		attempts.Add(1)
		<-ctx.Done()
		time.Sleep(5 * time.Millisecond)
		return 1, nil
	})

	if !errors.Is(res.Err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", res.Err)
	}
	if attempts.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts.Load())
	}
}

func TestStaleRefreshIsBestEffort(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	r := &fakeRefresher{err: errors.New("refresh down")}
	e := newTestExecutor(r, clock)

	clock.Advance(91 * time.Second)
	if !e.IsStale() {
		t.Fatal("expected executor to be stale")
	}

	res := Execute(context.Background(), e, func(ctx context.Context) (int, error) { return 42, nil })
	if res.Err != nil || res.Data != 42 {
		t.Fatalf("expected 42, got %v / %v", res.Data, res.Err)
	}
	if r.calls.Load() != 1 {
		t.Errorf("expected 1 stale refresh, got %d", r.calls.Load())
	}
	if e.IsStale() {
		t.Error("expected activity to be recorded")
	}
}

func TestFreshSkipsRefresh(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	r := &fakeRefresher{}
	e := newTestExecutor(r, clock)

	clock.Advance(30 * time.Second)
	Execute(context.Background(), e, func(ctx context.Context) (int, error) { return 1, nil })
	if r.calls.Load() != 0 {
		t.Errorf("expected no refresh, got %d", r.calls.Load())
	}
}

func TestTouchResetsStaleness(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	e := newTestExecutor(nil, clock)

	clock.Advance(2 * time.Minute)
	if !e.IsStale() {
		t.Fatal("expected stale")
	}
	e.Touch()
	if e.IsStale() {
		t.Error("expected fresh after touch")
	}
	if !e.LastActivity().Equal(clock.Now()) {
		t.Errorf("unexpected last activity %s", e.LastActivity())
	}
}

func TestCancelledContext(t *testing.T) {
	e := New(nil, Options{RetryDelay: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := Execute(ctx, e, func(ctx context.Context) (int, error) {
		return 0, ctx.Err()
	})
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", res.Err)
	}
}

func TestClampTimeout(t *testing.T) {
	tests := []struct{ in, want time.Duration }{
		{0, DefaultTimeout},
		{time.Second, 8 * time.Second},
		{10 * time.Second, 10 * time.Second},
		{time.Minute, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := clampTimeout(tt.in); got != tt.want {
			t.Errorf("clampTimeout(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
	if New(nil, Options{Timeout: time.Hour}).Timeout() != 30*time.Second {
		t.Error("expected configured timeout to be clamped")
	}
}

func TestIndependentExecutors(t *testing.T) {
	c1 := &fakeClock{t: time.Unix(0, 0)}
	c2 := &fakeClock{t: time.Unix(0, 0)}
	e1 := newTestExecutor(nil, c1)
	e2 := newTestExecutor(nil, c2)

	c1.Advance(5 * time.Minute)
	if !e1.IsStale() || e2.IsStale() {
		t.Error("executors should not share activity state")
	}
}
