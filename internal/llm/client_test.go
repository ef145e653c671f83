package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedTransport plays back one step per attempt.
type scriptedTransport struct {
	mu    sync.Mutex
	steps []func(ctx context.Context, emit func(Fragment)) error
	calls int
}

func (s *scriptedTransport) Stream(ctx context.Context, _ string, emit func(Fragment)) error {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.mu.Unlock()
	if i >= len(s.steps) {
		return errors.New("unexpected attempt")
	}
	return s.steps[i](ctx, emit)
}

func fail(err error) func(context.Context, func(Fragment)) error {
	return func(context.Context, func(Fragment)) error { return err }
}

func succeed(parts ...string) func(context.Context, func(Fragment)) error {
	return func(_ context.Context, emit func(Fragment)) error {
		for _, p := range parts {
			emit(Fragment{Text: p})
		}
		return nil
	}
}

// recordingTimer fires immediately and remembers each requested delay.
type recordingTimer struct {
	mu     sync.Mutex
	delays []time.Duration
	c      chan time.Time
}

func (r *recordingTimer) Start(d time.Duration) {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	r.c = make(chan time.Time, 1)
	r.c <- time.Now()
}

func (r *recordingTimer) Stop() {}

func (r *recordingTimer) C() <-chan time.Time { return r.c }

func newTestClient(tr StreamTransport, cfg ClientConfig) (*Client, *recordingTimer) {
	c := NewClient(tr, cfg, testLogger())
	timer := &recordingTimer{}
	c.newTimer = func() backoff.Timer { return timer }
	return c, timer
}

// ========================================
// Call Tests
// ========================================

func TestClient_ConcatenatesFragments(t *testing.T) {
	tr := &scriptedTransport{steps: []func(context.Context, func(Fragment)) error{
		succeed("[{\"title\":", "\"a\"}", "]"),
	}}
	c, _ := newTestClient(tr, ClientConfig{})

	got, err := c.Call(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got != `[{"title":"a"}]` {
		t.Errorf("Call() = %q", got)
	}
}

func TestClient_SkipsChunkErrorsWithoutRetry(t *testing.T) {
	tr := &scriptedTransport{steps: []func(context.Context, func(Fragment)) error{
		func(_ context.Context, emit func(Fragment)) error {
			emit(Fragment{Text: "a"})
			emit(Fragment{Err: errors.New("garbled chunk")})
			emit(Fragment{Text: "b"})
			return nil
		},
	}}
	c, timer := newTestClient(tr, ClientConfig{})

	got, err := c.Call(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got != "ab" {
		t.Errorf("Call() = %q, want %q", got, "ab")
	}
	if tr.calls != 1 {
		t.Errorf("attempts = %d, want 1", tr.calls)
	}
	if len(timer.delays) != 0 {
		t.Errorf("delays = %v, want none", timer.delays)
	}
}

func TestClient_RetriesWithExponentialDelay(t *testing.T) {
	transient := ClassifyStatus(http.StatusServiceUnavailable, "UNAVAILABLE", "overloaded")
	tr := &scriptedTransport{steps: []func(context.Context, func(Fragment)) error{
		fail(transient),
		fail(transient),
		succeed("ok"),
	}}
	c, timer := newTestClient(tr, ClientConfig{MaxAttempts: 3, BaseDelay: time.Second})

	got, err := c.Call(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got != "ok" {
		t.Errorf("Call() = %q, want %q", got, "ok")
	}

	want := []time.Duration{time.Second, 2 * time.Second}
	if len(timer.delays) != len(want) {
		t.Fatalf("delays = %v, want %v", timer.delays, want)
	}
	for i := range want {
		if timer.delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, timer.delays[i], want[i])
		}
	}
}

func TestClient_ExhaustedAfterMaxAttempts(t *testing.T) {
	transient := errors.New("connection reset")
	tr := &scriptedTransport{steps: []func(context.Context, func(Fragment)) error{
		fail(transient), fail(transient), fail(transient), fail(transient),
	}}
	c, timer := newTestClient(tr, ClientConfig{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond})

	_, err := c.Call(context.Background(), "prompt")
	if !errors.Is(err, ErrUpstreamExhausted) {
		t.Fatalf("Call() error = %v, want ErrUpstreamExhausted", err)
	}
	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("Call() error type = %T, want *ExhaustedError", err)
	}
	if ex.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", ex.Attempts)
	}
	if !errors.Is(err, transient) {
		t.Errorf("error should wrap the last attempt's error")
	}
	if tr.calls != 3 {
		t.Errorf("transport calls = %d, want 3", tr.calls)
	}
	if len(timer.delays) != 2 || timer.delays[0] != 500*time.Millisecond || timer.delays[1] != time.Second {
		t.Errorf("delays = %v, want [500ms 1s]", timer.delays)
	}
}

func TestClient_PermanentErrorStopsRetrying(t *testing.T) {
	tr := &scriptedTransport{steps: []func(context.Context, func(Fragment)) error{
		fail(ClassifyStatus(http.StatusBadRequest, "INVALID_ARGUMENT", "bad prompt")),
		succeed("never"),
	}}
	c, _ := newTestClient(tr, ClientConfig{MaxAttempts: 3})

	_, err := c.Call(context.Background(), "prompt")
	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("Call() error = %v, want *ExhaustedError", err)
	}
	if ex.Attempts != 1 || tr.calls != 1 {
		t.Errorf("attempts = %d (transport %d), want 1", ex.Attempts, tr.calls)
	}
}

func TestClient_AttemptTimeoutIsRetried(t *testing.T) {
	tr := &scriptedTransport{steps: []func(context.Context, func(Fragment)) error{
		func(ctx context.Context, _ func(Fragment)) error {
			<-ctx.Done()
			return ctx.Err()
		},
		succeed("late but fine"),
	}}
	c, _ := newTestClient(tr, ClientConfig{AttemptTimeout: 20 * time.Millisecond})

	got, err := c.Call(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got != "late but fine" || tr.calls != 2 {
		t.Errorf("Call() = %q after %d attempts", got, tr.calls)
	}
}

func TestClient_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tr := &scriptedTransport{steps: []func(context.Context, func(Fragment)) error{
		func(ctx context.Context, _ func(Fragment)) error {
			cancel()
			return ctx.Err()
		},
		succeed("unused"),
	}}
	c, _ := newTestClient(tr, ClientConfig{})

	_, err := c.Call(ctx, "prompt")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Call() error = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrUpstreamExhausted) {
		t.Error("cancellation should not be reported as exhaustion")
	}
	if tr.calls != 1 {
		t.Errorf("transport calls = %d, want 1", tr.calls)
	}
}

// ========================================
// IsRetryable Tests
// ========================================

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"429", ClassifyStatus(429, "", ""), true},
		{"500", ClassifyStatus(500, "", ""), true},
		{"503", ClassifyStatus(503, "", ""), true},
		{"400", ClassifyStatus(400, "", ""), false},
		{"401", ClassifyStatus(401, "", ""), false},
		{"not configured", ErrNotConfigured, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"other", io.ErrUnexpectedEOF, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
