// Package service contains the business logic layer.
// User ids are the subject claim of the bearer token; users are provisioned on
// first authenticated request.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jmylchreest/pricewatch-api/internal/cache"
	"github.com/jmylchreest/pricewatch-api/internal/config"
	"github.com/jmylchreest/pricewatch-api/internal/llm"
	"github.com/jmylchreest/pricewatch-api/internal/repository"
)

// Services holds all service instances.
type Services struct {
	Intelligence *IntelligenceService
	SearchQuota  *SearchQuotaGate
	Workflow     *Workflow
	Search       *SearchService
	Track        *TrackService
	User         *UserService
	Storage      *StorageService
	Cleanup      *CleanupService
	Cache        *cache.SearchCache // nil when REDIS_URL is unset
	Quota        *llm.QuotaTracker
}

// NewServices creates all service instances.
func NewServices(ctx context.Context, cfg *config.Config, repos *repository.Repositories, logger *slog.Logger) (*Services, error) {
	storageSvc, err := NewStorageService(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage service: %w", err)
	}

	// One tracker per process: the upstream budget is shared by every request.
	quota := llm.NewQuotaTracker(llm.QuotaConfig{
		PerMinute: cfg.UpstreamQuotaPerMinute,
		PerDay:    cfg.UpstreamQuotaPerDay,
		Location:  cfg.QuotaLocation(),
	})

	var caller Caller
	if cfg.UpstreamEnabled() {
		transport := llm.NewGeminiTransport(llm.GeminiConfig{
			APIKey:     cfg.UpstreamAPIKey,
			BaseURL:    cfg.UpstreamBaseURL,
			Model:      cfg.UpstreamModel,
			SearchTool: cfg.UpstreamSearchTool,
		}, &http.Client{})
		caller = llm.NewClient(transport, llm.ClientConfig{
			MaxAttempts:    cfg.UpstreamMaxAttempts,
			BaseDelay:      cfg.UpstreamBaseDelay,
			AttemptTimeout: cfg.UpstreamAttemptTimeout,
		}, logger)
		logger.Info("upstream model configured", "model", cfg.UpstreamModel, "search_tool", cfg.UpstreamSearchTool)
	} else {
		logger.Warn("upstream model NOT configured - all product intelligence will use fallback results")
	}

	var hints PageHintFetcher
	if cfg.PageHintsEnabled {
		hints = NewCollyHintFetcher(cfg.PageHintsTimeout, logger)
	}

	var searchCache *cache.SearchCache
	var cacheIface SearchCache
	if cfg.CacheEnabled() {
		searchCache, err = cache.NewSearchCache(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create search cache: %w", err)
		}
		cacheIface = searchCache
		logger.Info("redis search cache enabled")
	}

	intel := NewIntelligenceService(caller, quota, hints, logger)
	gate := NewSearchQuotaGate(repos.User, cfg.SearchLimit, cfg.SearchLimitWindow, logger)
	workflow := NewWorkflow(gate, intel, logger)

	searchSvc := NewSearchService(SearchServiceConfig{
		Workflow:    workflow,
		Searches:    repos.Search,
		Cache:       cacheIface,
		Storage:     storageSvc,
		Quota:       quota,
		CacheWindow: cfg.SearchCacheWindow,
	}, logger)

	return &Services{
		Intelligence: intel,
		SearchQuota:  gate,
		Workflow:     workflow,
		Search:       searchSvc,
		Track:        NewTrackService(repos, intel, cfg.TrackMaxURLs, cfg.TrackRefreshInterval, logger),
		User:         NewUserService(repos.User, gate, quota, logger),
		Storage:      storageSvc,
		Cleanup:      NewCleanupService(repos.Search, storageSvc, logger),
		Cache:        searchCache,
		Quota:        quota,
	}, nil
}
