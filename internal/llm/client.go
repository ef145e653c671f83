package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jmylchreest/pricewatch-api/internal/metrics"
)

// Fragment is one piece of streamed output. A fragment with Err set is a
// chunk that could not be read; it is skipped and does not fail the attempt.
type Fragment struct {
	Text string
	Err  error
}

// StreamTransport issues a single streaming request and delivers fragments
// in arrival order. It returns when the stream ends.
type StreamTransport interface {
	Stream(ctx context.Context, prompt string, emit func(Fragment)) error
}

// ClientConfig controls retries.
type ClientConfig struct {
	MaxAttempts    int           // total attempts, default 3
	BaseDelay      time.Duration // delay before attempt n+1 is BaseDelay*2^(n-1), default 1s
	AttemptTimeout time.Duration // per-attempt bound, default 30s
}

// Client calls the upstream model and returns the concatenated text.
type Client struct {
	transport StreamTransport
	cfg       ClientConfig
	logger    *slog.Logger

	// newTimer overrides the backoff timer; tests use it to skip real sleeps.
	newTimer func() backoff.Timer
}

// NewClient creates a client over the given transport.
func NewClient(transport StreamTransport, cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		transport: transport,
		cfg:       cfg,
		logger:    logger.With("component", "upstream"),
	}
}

// Call sends prompt and returns the full response text.
// Failed attempts are retried with exponential delay until MaxAttempts is
// reached, after which an *ExhaustedError is returned.
func (c *Client) Call(ctx context.Context, prompt string) (string, error) {
	var (
		attempts int
		text     string
		lastErr  error
	)
	start := time.Now()

	op := func() error {
		attempts++
		out, err := c.attempt(ctx, prompt)
		if err == nil {
			text = out
			return nil
		}
		lastErr = err
		metrics.UpstreamAttempts.WithLabelValues("error").Inc()

		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		c.logger.WarnContext(ctx, "upstream attempt failed, retrying",
			"attempt", attempts,
			"max_attempts", c.cfg.MaxAttempts,
			"retry_in", next,
			"error", err,
		)
	}

	var timer backoff.Timer
	if c.newTimer != nil {
		timer = c.newTimer()
	}

	err := backoff.RetryNotifyWithTimer(op, c.backOff(ctx), notify, timer)
	metrics.UpstreamCallDuration.Observe(time.Since(start).Seconds())
	if err == nil {
		metrics.UpstreamAttempts.WithLabelValues("ok").Inc()
		metrics.UpstreamCalls.WithLabelValues("ok").Inc()
		return text, nil
	}

	if errors.Is(err, context.Canceled) || (ctx.Err() != nil && errors.Is(err, ctx.Err())) {
		metrics.UpstreamCalls.WithLabelValues("cancelled").Inc()
		return "", fmt.Errorf("upstream call cancelled after %d attempt(s): %w", attempts, err)
	}

	metrics.UpstreamCalls.WithLabelValues("exhausted").Inc()
	if lastErr == nil {
		lastErr = err
	}
	c.logger.ErrorContext(ctx, "upstream call failed", "attempts", attempts, "error", lastErr)
	return "", &ExhaustedError{Attempts: attempts, Err: lastErr}
}

func (c *Client) attempt(ctx context.Context, prompt string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()

	var sb strings.Builder
	skipped := 0
	err := c.transport.Stream(attemptCtx, prompt, func(f Fragment) {
		if f.Err != nil {
			skipped++
			c.logger.DebugContext(ctx, "skipping unreadable stream chunk", "error", f.Err)
			return
		}
		sb.WriteString(f.Text)
	})
	if skipped > 0 {
		c.logger.WarnContext(ctx, "stream chunks skipped", "count", skipped)
	}
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

// backOff yields BaseDelay, 2*BaseDelay, 4*BaseDelay... with no jitter,
// stopping after MaxAttempts-1 retries or when ctx is done.
func (c *Client) backOff(ctx context.Context) backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.cfg.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         c.cfg.BaseDelay << uint(c.cfg.MaxAttempts),
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxAttempts-1)), ctx)
}
