package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jmylchreest/pricewatch-api/internal/llm"
	"github.com/jmylchreest/pricewatch-api/internal/metrics"
	"github.com/jmylchreest/pricewatch-api/internal/models"
)

// Caller sends one prompt upstream and returns the full response text.
// *llm.Client implements it.
type Caller interface {
	Call(ctx context.Context, prompt string) (string, error)
}

var errNoUsableListings = errors.New("upstream returned no usable listings")

// IntelligenceService turns upstream model output into typed product data.
// Every operation except AnalyzeMarket on empty input answers with fallback
// data instead of failing.
type IntelligenceService struct {
	caller Caller
	quota  *llm.QuotaTracker
	hints  PageHintFetcher
	logger *slog.Logger
}

// NewIntelligenceService creates the service. caller may be nil when no
// upstream is configured; hints may be nil to skip page hints.
func NewIntelligenceService(caller Caller, quota *llm.QuotaTracker, hints PageHintFetcher, logger *slog.Logger) *IntelligenceService {
	return &IntelligenceService{
		caller: caller,
		quota:  quota,
		hints:  hints,
		logger: logger.With("component", "intelligence"),
	}
}

// Quota returns the shared upstream quota tracker.
func (s *IntelligenceService) Quota() *llm.QuotaTracker {
	return s.quota
}

// call spends one unit of the shared quota, failing fast when none is left.
func (s *IntelligenceService) call(ctx context.Context, prompt string) (string, error) {
	if s.caller == nil {
		return "", llm.ErrNotConfigured
	}
	if !s.quota.TryAcquire() {
		return "", llm.ErrQuotaExceeded
	}
	return s.caller.Call(ctx, prompt)
}

// SearchAcrossPlatforms returns listings for query. The result is never
// empty: on any failure it holds a single placeholder listing.
func (s *IntelligenceService) SearchAcrossPlatforms(ctx context.Context, query string) []models.ProductListing {
	listings, err := s.search(ctx, query)
	if err != nil {
		s.fallback(ctx, "search", err)
		return []models.ProductListing{placeholderListing(query)}
	}
	return listings
}

func (s *IntelligenceService) search(ctx context.Context, query string) ([]models.ProductListing, error) {
	text, err := s.call(ctx, buildSearchPrompt(query))
	if err != nil {
		return nil, err
	}
	wire, err := llm.DecodeArray[wireListing](text)
	if err != nil {
		return nil, err
	}
	listings := shapeListings(wire)
	if len(listings) == 0 {
		return nil, errNoUsableListings
	}
	return listings, nil
}

// AnalyzeMarket summarizes listings. It fails only with ErrEmptyInput.
func (s *IntelligenceService) AnalyzeMarket(ctx context.Context, listings []models.ProductListing) (*models.MarketAnalysis, error) {
	if len(listings) == 0 {
		return nil, ErrEmptyInput
	}

	text, err := s.call(ctx, buildAnalysisPrompt(listings))
	if err == nil {
		var wire *wireAnalysis
		if wire, err = llm.DecodeObject[wireAnalysis](text); err == nil {
			return shapeAnalysis(wire, listings), nil
		}
	}
	s.fallback(ctx, "analyze", err)
	return fallbackAnalysis(listings), nil
}

// PredictPriceTrends forecasts the next period's price range. history may
// be nil.
func (s *IntelligenceService) PredictPriceTrends(ctx context.Context, listings []models.ProductListing, history []models.PricePoint) *models.PricePrediction {
	text, err := s.call(ctx, buildPredictionPrompt(listings, history))
	if err == nil {
		var wire *wirePrediction
		if wire, err = llm.DecodeObject[wirePrediction](text); err == nil {
			p := shapePrediction(wire)
			if p.NextPeriodRange.Max > 0 {
				return p
			}
			err = errors.New("prediction has no price range")
		}
	}
	s.fallback(ctx, "predict", err)
	return fallbackPrediction(listings)
}

// FetchByURL resolves a product page into a listing. Returns nil when the
// page could not be resolved.
func (s *IntelligenceService) FetchByURL(ctx context.Context, rawURL string) *models.ProductListing {
	platform := PlatformFromURL(rawURL)

	var hints *PageHints
	if s.hints != nil {
		h, err := s.hints.Fetch(ctx, rawURL)
		if err != nil {
			s.logger.DebugContext(ctx, "page hints unavailable", "url", rawURL, "error", err)
		}
		hints = h
	}

	text, err := s.call(ctx, buildFetchPrompt(rawURL, platform, hints))
	if err == nil {
		var wire *wireListing
		if wire, err = llm.DecodeObject[wireListing](text); err == nil {
			if l, ok := shapeListing(*wire); ok {
				l.Platform = platform
				l.SourceURL = rawURL
				return &l
			}
			err = errNoUsableListings
		}
	}
	s.fallback(ctx, "fetch_by_url", err, "url", rawURL)
	return nil
}

func (s *IntelligenceService) fallback(ctx context.Context, op string, err error, attrs ...any) {
	reason := fallbackReason(err)
	metrics.RecordFallback(op, reason)
	s.logger.WarnContext(ctx, "using fallback result",
		append([]any{"operation", op, "reason", reason, "error", err}, attrs...)...,
	)
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, llm.ErrQuotaExceeded):
		return "quota"
	case errors.Is(err, llm.ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, llm.ErrUpstreamExhausted):
		return "exhausted"
	case errors.Is(err, llm.ErrNoJSONFound):
		return "no_json"
	case errors.Is(err, llm.ErrMalformedJSON):
		return "malformed_json"
	case errors.Is(err, errNoUsableListings):
		return "empty"
	default:
		return "invalid"
	}
}
