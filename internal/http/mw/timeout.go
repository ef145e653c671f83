package mw

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// panicWithStack captures a panic value along with its stack trace.
type panicWithStack struct {
	value interface{}
	stack []byte
}

// TimeoutConfig defines timeout behavior for different path patterns.
type TimeoutConfig struct {
	// Default timeout for most endpoints
	Default time.Duration
	// Extended timeout for requests that run upstream model calls
	Extended time.Duration
	// Path prefixes that get the extended timeout
	ExtendedPatterns []string
}

// DefaultTimeoutConfig gives search and tracking room for a full retry
// sequence on every stage.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Default:          30 * time.Second,
		Extended:         5 * time.Minute,
		ExtendedPatterns: []string{"/api/v1/search", "/api/v1/track"},
	}
}

func (c TimeoutConfig) timeoutFor(path string) time.Duration {
	for _, pattern := range c.ExtendedPatterns {
		if strings.HasPrefix(path, pattern) {
			return c.Extended
		}
	}
	return c.Default
}

// timeoutWriter drops writes once the deadline response has been sent.
type timeoutWriter struct {
	w        http.ResponseWriter
	mu       sync.Mutex
	timedOut bool
	wrote    bool
}

func (tw *timeoutWriter) Header() http.Header { return tw.w.Header() }

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	tw.wrote = true
	return tw.w.Write(b)
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return
	}
	tw.wrote = true
	tw.w.WriteHeader(code)
}

// Timeout returns a middleware that cancels the request context after the
// configured timeout and answers 504 if the handler has not started writing.
// The cancelled context stops in-flight upstream calls and backoff waits.
func Timeout(cfg TimeoutConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			timeout := cfg.timeoutFor(r.URL.Path)
			if timeout <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			tw := &timeoutWriter{w: w}
			done := make(chan struct{})
			panicChan := make(chan *panicWithStack, 1)

			go func() {
				defer func() {
					if p := recover(); p != nil {
						panicChan <- &panicWithStack{
							value: p,
							stack: debug.Stack(),
						}
					}
				}()
				next.ServeHTTP(tw, r.WithContext(ctx))
				close(done)
			}()

			select {
			case <-done:
				return
			case p := <-panicChan:
				// Re-panic so Recoverer logs the original stack.
				panic(fmt.Sprintf("%v\n\nOriginal stack trace:\n%s", p.value, p.stack))
			case <-ctx.Done():
				tw.mu.Lock()
				defer tw.mu.Unlock()
				tw.timedOut = true
				if ctx.Err() == context.DeadlineExceeded && !tw.wrote {
					writeJSONError(w, http.StatusGatewayTimeout, "request timed out")
				}
			}
		})
	}
}
