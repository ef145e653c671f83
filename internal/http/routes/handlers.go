package routes

import (
	"context"

	"github.com/jmylchreest/pricewatch-api/internal/http/handlers"
)

// SearchHandlers defines the search operations.
type SearchHandlers interface {
	Search(ctx context.Context, input *handlers.SearchInput) (*handlers.SearchOutput, error)
	ListSearches(ctx context.Context, input *handlers.ListSearchesInput) (*handlers.ListSearchesOutput, error)
	GetSearch(ctx context.Context, input *handlers.GetSearchInput) (*handlers.GetSearchOutput, error)
}

// TrackHandlers defines the tracking operations.
type TrackHandlers interface {
	Track(ctx context.Context, input *handlers.TrackInput) (*handlers.TrackOutput, error)
	ListTracked(ctx context.Context, input *struct{}) (*handlers.ListTrackedOutput, error)
	GetTracked(ctx context.Context, input *handlers.TrackedIDInput) (*handlers.GetTrackedOutput, error)
	PriceHistory(ctx context.Context, input *handlers.PriceHistoryInput) (*handlers.PriceHistoryOutput, error)
	DeleteTracked(ctx context.Context, input *handlers.TrackedIDInput) (*struct{}, error)
}

// UsageHandlers defines the usage operations.
type UsageHandlers interface {
	GetUsage(ctx context.Context, input *struct{}) (*handlers.GetUsageOutput, error)
}

// Handlers holds every handler the API registers.
type Handlers struct {
	HealthCheck func(ctx context.Context, input *struct{}) (*handlers.HealthCheckOutput, error)
	Livez       func(ctx context.Context, input *struct{}) (*handlers.LivezOutput, error)
	Readyz      func(ctx context.Context, input *struct{}) (*handlers.ReadyzOutput, error)

	Search SearchHandlers
	Track  TrackHandlers
	Usage  UsageHandlers
}
