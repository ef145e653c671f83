package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/jmylchreest/pricewatch-api/internal/version"
)

// PageHints are facts a product page states about itself in its head.
type PageHints struct {
	Title    string
	Price    string
	Currency string
	Image    string
}

func (h *PageHints) empty() bool {
	return h.Title == "" && h.Price == "" && h.Image == ""
}

// PageHintFetcher reads page hints for a product URL.
type PageHintFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*PageHints, error)
}

// CollyHintFetcher fetches a single page with colly and reads its title and
// Open Graph / product meta tags.
type CollyHintFetcher struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewCollyHintFetcher creates a hint fetcher with a per-page timeout.
func NewCollyHintFetcher(timeout time.Duration, logger *slog.Logger) *CollyHintFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CollyHintFetcher{timeout: timeout, logger: logger}
}

// Fetch visits rawURL once. Returns nil hints when the page states nothing useful.
func (f *CollyHintFetcher) Fetch(ctx context.Context, rawURL string) (*PageHints, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := colly.NewCollector(
		colly.MaxDepth(1),
		colly.UserAgent(version.UserAgent()),
	)
	timeout := f.timeout
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < timeout {
		timeout = time.Until(dl)
	}
	c.SetRequestTimeout(timeout)

	hints := &PageHints{}
	c.OnHTML("head", func(e *colly.HTMLElement) {
		hints.Title = firstNonEmpty(
			e.ChildAttr(`meta[property="og:title"]`, "content"),
			e.ChildText("title"),
		)
		hints.Price = firstNonEmpty(
			e.ChildAttr(`meta[property="product:price:amount"]`, "content"),
			e.ChildAttr(`meta[property="og:price:amount"]`, "content"),
		)
		hints.Currency = firstNonEmpty(
			e.ChildAttr(`meta[property="product:price:currency"]`, "content"),
			e.ChildAttr(`meta[property="og:price:currency"]`, "content"),
		)
		hints.Image = e.ChildAttr(`meta[property="og:image"]`, "content")
	})

	var fetchErr error
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("fetch %s: status %d: %w", rawURL, r.StatusCode, err)
	})

	if err := c.Visit(rawURL); err != nil {
		return nil, fmt.Errorf("failed to visit page: %w", err)
	}
	c.Wait()
	if fetchErr != nil {
		return nil, fetchErr
	}

	if hints.empty() {
		f.logger.Debug("page carried no hints", "url", rawURL)
		return nil, nil
	}
	return hints, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
