package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/pricewatch-api/internal/llm"
	"github.com/jmylchreest/pricewatch-api/internal/logging"
	"github.com/jmylchreest/pricewatch-api/internal/metrics"
	"github.com/jmylchreest/pricewatch-api/internal/models"
	"github.com/jmylchreest/pricewatch-api/internal/repository"
)

const maxQueryLength = 200

// SearchCache is a fast lookaside for recent searches, keyed by user and
// normalized query. Get returns nil on a miss.
type SearchCache interface {
	Get(ctx context.Context, userID, normalizedQuery string) (*models.Search, error)
	Set(ctx context.Context, search *models.Search, ttl time.Duration) error
}

// SearchResult is what a caller receives for a search.
type SearchResult struct {
	SearchID   string                  `json:"searchId"`
	Query      string                  `json:"query"`
	Results    []models.ProductListing `json:"results"`
	Insights   models.Insights         `json:"aiInsights"`
	Trace      []string                `json:"trace"`
	Cached     bool                    `json:"cached"`
	Degraded   bool                    `json:"degraded"`
	RetryAfter time.Duration           `json:"-"`
	CreatedAt  time.Time               `json:"createdAt"`
}

// SearchService runs searches for users: cache lookup, workflow, then
// persistence.
type SearchService struct {
	workflow    *Workflow
	searches    repository.SearchRepository
	cache       SearchCache
	storage     *StorageService
	quota       *llm.QuotaTracker
	cacheWindow time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// SearchServiceConfig holds the collaborators of a SearchService.
// Cache, Storage and Quota are optional.
type SearchServiceConfig struct {
	Workflow    *Workflow
	Searches    repository.SearchRepository
	Cache       SearchCache
	Storage     *StorageService
	Quota       *llm.QuotaTracker
	CacheWindow time.Duration
}

// NewSearchService creates a new search service.
func NewSearchService(cfg SearchServiceConfig, logger *slog.Logger) *SearchService {
	return &SearchService{
		workflow:    cfg.Workflow,
		searches:    cfg.Searches,
		cache:       cfg.Cache,
		storage:     cfg.Storage,
		quota:       cfg.Quota,
		cacheWindow: cfg.CacheWindow,
		now:         time.Now,
		logger:      logger.With("component", "search"),
	}
}

// NormalizeQuery collapses whitespace and lowercases the query.
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

// Search answers a query for a user. A matching search made within the cache
// window is returned as is. Otherwise the workflow runs. It holds a quota
// slot from its first stage and gives it back if a later stage fails, so only
// completed runs count. Runs that are not degraded are stored.
func (s *SearchService) Search(ctx context.Context, userID, query string) (*SearchResult, error) {
	query = strings.Join(strings.Fields(query), " ")
	if query == "" {
		return nil, ErrInvalidQuery
	}
	if len(query) > maxQueryLength {
		return nil, fmt.Errorf("%w: longer than %d characters", ErrInvalidQuery, maxQueryLength)
	}
	normalized := NormalizeQuery(query)

	if hit := s.lookup(ctx, userID, normalized); hit != nil {
		return resultFromSearch(hit, true), nil
	}

	state, err := s.workflow.Run(ctx, userID, query)
	if err != nil {
		return nil, err
	}

	search := &models.Search{
		ID:              ulid.Make().String(),
		UserID:          userID,
		Query:           query,
		NormalizedQuery: normalized,
		Results:         state.SearchResults,
		Insights: models.Insights{
			MarketAnalysis:  state.MarketAnalysis,
			PricePrediction: state.PricePrediction,
			Recommendation:  state.Recommendation,
		},
		Trace:     state.Trace,
		CreatedAt: s.now().UTC(),
	}
	ctx = logging.WithSearchID(ctx, search.ID)

	result := resultFromSearch(search, false)
	result.Degraded = state.Degraded()
	if result.Degraded {
		if s.quota != nil {
			result.RetryAfter = s.quota.RetryAfter()
		}
	} else {
		s.store(ctx, search)
	}
	return result, nil
}

// lookup checks the cache, then the database, for a recent identical search.
func (s *SearchService) lookup(ctx context.Context, userID, normalized string) *models.Search {
	if s.cache != nil {
		hit, err := s.cache.Get(ctx, userID, normalized)
		if err != nil {
			s.logger.WarnContext(ctx, "search cache read failed", "error", err)
		} else if hit != nil {
			metrics.SearchCache.WithLabelValues("redis").Inc()
			return hit
		}
	}

	since := s.now().Add(-s.cacheWindow)
	hit, err := s.searches.FindRecent(ctx, userID, normalized, since)
	if err != nil {
		s.logger.WarnContext(ctx, "recent search lookup failed", "error", err)
	}
	if hit == nil {
		metrics.SearchCache.WithLabelValues("miss").Inc()
		return nil
	}

	metrics.SearchCache.WithLabelValues("database").Inc()
	if s.cache != nil {
		if ttl := hit.CreatedAt.Add(s.cacheWindow).Sub(s.now()); ttl > 0 {
			if err := s.cache.Set(ctx, hit, ttl); err != nil {
				s.logger.WarnContext(ctx, "search cache backfill failed", "error", err)
			}
		}
	}
	return hit
}

// store persists the search, writes it through to the cache and archives it.
// Failures are logged; the caller already has its result.
func (s *SearchService) store(ctx context.Context, search *models.Search) {
	if err := s.searches.Create(ctx, search); err != nil {
		s.logger.ErrorContext(ctx, "failed to save search", "error", err)
		return
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, search, s.cacheWindow); err != nil {
			s.logger.WarnContext(ctx, "search cache write failed", "error", err)
		}
	}

	if s.storage != nil && s.storage.IsEnabled() {
		key, err := s.storage.ArchiveSearch(ctx, search)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to archive search", "error", err)
			return
		}
		if err := s.searches.SetArchiveKey(ctx, search.ID, key); err != nil {
			s.logger.WarnContext(ctx, "failed to record archive key", "error", err)
		}
	}
}

// History returns the user's most recent searches.
func (s *SearchService) History(ctx context.Context, userID string, limit int) ([]*models.Search, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.searches.ListByUser(ctx, userID, limit)
}

// Get returns one of the user's searches. Searches already removed from the
// database are read back from the archive when storage is enabled.
func (s *SearchService) Get(ctx context.Context, userID, searchID string) (*models.Search, error) {
	search, err := s.searches.GetByID(ctx, searchID)
	if err != nil {
		return nil, err
	}
	if search != nil {
		if search.UserID != userID {
			return nil, ErrNotFound
		}
		return search, nil
	}

	if s.storage == nil || !s.storage.IsEnabled() {
		return nil, ErrNotFound
	}
	archived, err := s.storage.GetArchivedSearch(ctx, SearchArchiveKey(userID, searchID))
	if err != nil {
		s.logger.DebugContext(ctx, "archived search unavailable", "search_id", searchID, "error", err)
		return nil, ErrNotFound
	}
	return archived, nil
}

func resultFromSearch(s *models.Search, cached bool) *SearchResult {
	return &SearchResult{
		SearchID:  s.ID,
		Query:     s.Query,
		Results:   s.Results,
		Insights:  s.Insights,
		Trace:     s.Trace,
		Cached:    cached,
		CreatedAt: s.CreatedAt,
	}
}
