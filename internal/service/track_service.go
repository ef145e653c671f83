package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/pricewatch-api/internal/metrics"
	"github.com/jmylchreest/pricewatch-api/internal/models"
	"github.com/jmylchreest/pricewatch-api/internal/repository"
)

const refreshLease = 10 * time.Minute

// URLResolver resolves one product URL into a listing, or nil.
type URLResolver interface {
	FetchByURL(ctx context.Context, rawURL string) *models.ProductListing
}

// TrackInput is a request to watch a product.
type TrackInput struct {
	Title       string   `json:"title"`
	URLs        []string `json:"urls"`
	TargetPrice *float64 `json:"targetPrice,omitempty"`
}

// TrackResult is a newly tracked product plus the URLs that did not resolve.
type TrackResult struct {
	Product    *models.TrackedProduct `json:"product"`
	Unresolved []string               `json:"unresolved"`
}

// TrackService manages tracked products and their price history.
type TrackService struct {
	products        repository.TrackedProductRepository
	history         repository.PriceHistoryRepository
	resolver        URLResolver
	maxURLs         int
	refreshInterval time.Duration
	now             func() time.Time
	logger          *slog.Logger
}

// NewTrackService creates a new tracking service.
func NewTrackService(repos *repository.Repositories, resolver URLResolver, maxURLs int, refreshInterval time.Duration, logger *slog.Logger) *TrackService {
	return &TrackService{
		products:        repos.TrackedProduct,
		history:         repos.PriceHistory,
		resolver:        resolver,
		maxURLs:         maxURLs,
		refreshInterval: refreshInterval,
		now:             time.Now,
		logger:          logger.With("component", "track"),
	}
}

// Track resolves each URL in turn and stores the product with whatever
// resolved. It fails with ErrNothingResolved when no URL resolves.
func (s *TrackService) Track(ctx context.Context, userID string, in TrackInput) (*TrackResult, error) {
	urls, err := s.validate(in)
	if err != nil {
		return nil, err
	}

	listings, unresolved := s.resolve(ctx, urls)
	if len(listings) == 0 {
		return nil, ErrNothingResolved
	}

	now := s.now()
	p := &models.TrackedProduct{
		ID:            ulid.Make().String(),
		UserID:        userID,
		Title:         strings.TrimSpace(in.Title),
		URLs:          urls,
		Listings:      listings,
		TargetPrice:   in.TargetPrice,
		LastCheckedAt: &now,
		NextCheckAt:   now.Add(s.refreshInterval),
	}
	if err := s.products.Create(ctx, p); err != nil {
		return nil, err
	}
	s.recordPrices(ctx, p.ID, listings, now)

	s.logger.InfoContext(ctx, "tracking product",
		"tracked_product_id", p.ID,
		"resolved", len(listings),
		"unresolved", len(unresolved),
	)
	return &TrackResult{Product: p, Unresolved: unresolved}, nil
}

func (s *TrackService) validate(in TrackInput) ([]string, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if in.TargetPrice != nil && *in.TargetPrice < 0 {
		return nil, fmt.Errorf("%w: target price must not be negative", ErrInvalidInput)
	}

	seen := make(map[string]bool, len(in.URLs))
	var urls []string
	for _, raw := range in.URLs {
		raw = strings.TrimSpace(raw)
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("%w: %q is not an http(s) URL", ErrInvalidInput, raw)
		}
		if !seen[raw] {
			seen[raw] = true
			urls = append(urls, raw)
		}
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: at least one URL is required", ErrInvalidInput)
	}
	if len(urls) > s.maxURLs {
		return nil, fmt.Errorf("%w: at most %d URLs", ErrInvalidInput, s.maxURLs)
	}
	return urls, nil
}

// resolve fetches URLs sequentially; each fetch spends upstream quota.
func (s *TrackService) resolve(ctx context.Context, urls []string) ([]models.ProductListing, []string) {
	var listings []models.ProductListing
	unresolved := []string{}
	for _, u := range urls {
		if ctx.Err() != nil {
			unresolved = append(unresolved, u)
			continue
		}
		if l := s.resolver.FetchByURL(ctx, u); l != nil {
			listings = append(listings, *l)
		} else {
			unresolved = append(unresolved, u)
		}
	}
	return listings, unresolved
}

func (s *TrackService) recordPrices(ctx context.Context, productID string, listings []models.ProductListing, at time.Time) {
	for _, l := range listings {
		err := s.history.Create(ctx, &models.PricePoint{
			TrackedProductID: productID,
			Platform:         l.Platform,
			URL:              l.SourceURL,
			Price:            l.Price,
			Availability:     l.Availability,
			RecordedAt:       at,
		})
		if err != nil {
			s.logger.WarnContext(ctx, "failed to record price", "tracked_product_id", productID, "error", err)
		}
	}
}

// List returns the user's tracked products.
func (s *TrackService) List(ctx context.Context, userID string) ([]*models.TrackedProduct, error) {
	return s.products.ListByUser(ctx, userID)
}

// Get returns one of the user's tracked products.
func (s *TrackService) Get(ctx context.Context, userID, id string) (*models.TrackedProduct, error) {
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil || p.UserID != userID {
		return nil, ErrNotFound
	}
	return p, nil
}

// History returns up to limit price points of a tracked product, oldest first.
func (s *TrackService) History(ctx context.Context, userID, id string, limit int) ([]*models.PricePoint, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.history.ListByProduct(ctx, id, limit)
}

// Delete stops tracking a product and drops its history.
func (s *TrackService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	return s.products.Delete(ctx, id)
}

// RefreshDue re-resolves up to limit products whose next check is due and
// returns how many were refreshed. Each product is leased before work starts
// so concurrent workers do not pick the same one.
func (s *TrackService) RefreshDue(ctx context.Context, limit int) (int, error) {
	refreshed := 0
	for refreshed < limit {
		if err := ctx.Err(); err != nil {
			return refreshed, err
		}
		now := s.now()
		p, err := s.products.ClaimNextDue(ctx, now, now.Add(refreshLease))
		if err != nil {
			return refreshed, fmt.Errorf("failed to claim tracked product: %w", err)
		}
		if p == nil {
			break
		}
		s.refresh(ctx, p)
		refreshed++
	}
	return refreshed, nil
}

// refresh keeps the previous listings when nothing resolves, so one bad run
// does not blank out a product.
func (s *TrackService) refresh(ctx context.Context, p *models.TrackedProduct) {
	log := s.logger.With("tracked_product_id", p.ID)

	listings, unresolved := s.resolve(ctx, p.URLs)
	now := s.now()
	p.NextCheckAt = now.Add(s.refreshInterval)

	status := "ok"
	switch {
	case len(listings) == 0:
		status = "failed"
	case len(unresolved) > 0:
		status = "partial"
	}
	metrics.TrackedRefreshes.WithLabelValues(status).Inc()

	if len(listings) > 0 {
		p.Listings = listings
		p.LastCheckedAt = &now
		s.recordPrices(ctx, p.ID, listings, now)
	}
	if err := s.products.Update(ctx, p); err != nil {
		log.ErrorContext(ctx, "failed to update tracked product", "error", err)
		return
	}

	if best := p.LowestPrice(); best != nil && p.TargetPrice != nil && best.Price <= *p.TargetPrice {
		log.InfoContext(ctx, "target price reached",
			"platform", best.Platform,
			"price", best.Price,
			"target_price", *p.TargetPrice,
		)
	}
	log.DebugContext(ctx, "tracked product refreshed", "status", status, "unresolved", len(unresolved))
}
