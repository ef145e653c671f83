package handlers

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/jmylchreest/pricewatch-api/internal/models"
	"github.com/jmylchreest/pricewatch-api/internal/service"
)

// Searcher runs and reads back searches.
type Searcher interface {
	Search(ctx context.Context, userID, query string) (*service.SearchResult, error)
	History(ctx context.Context, userID string, limit int) ([]*models.Search, error)
	Get(ctx context.Context, userID, searchID string) (*models.Search, error)
}

// SearchHandler handles search endpoints.
type SearchHandler struct {
	searches Searcher
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(searches Searcher) *SearchHandler {
	return &SearchHandler{searches: searches}
}

// SearchInput is a product search request.
type SearchInput struct {
	Body struct {
		Query string `json:"query" maxLength:"500" doc:"Free-text product query, e.g. 'logitech m331 wireless mouse'"`
	}
}

// SearchOutput is a product search response. Retry-After is set when the
// result was degraded by the shared upstream quota.
type SearchOutput struct {
	RetryAfter string `header:"Retry-After"`
	Body       *service.SearchResult
}

// Search runs the search workflow for the caller.
func (h *SearchHandler) Search(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	res, err := h.searches.Search(ctx, userID, input.Body.Query)
	if err != nil {
		return nil, toHTTPError(ctx, "search", err)
	}

	out := &SearchOutput{Body: res}
	if res.Degraded && res.RetryAfter > 0 {
		out.RetryAfter = strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds())))
	}
	return out, nil
}

// SearchSummary is one entry of a user's search history.
type SearchSummary struct {
	ID          string    `json:"id"`
	Query       string    `json:"query"`
	ResultCount int       `json:"resultCount"`
	LowestPrice *float64  `json:"lowestPrice,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ListSearchesInput is a search history request.
type ListSearchesInput struct {
	Limit int `query:"limit" default:"20" minimum:"1" maximum:"100" doc:"Maximum number of searches to return"`
}

// ListSearchesOutput is a search history response.
type ListSearchesOutput struct {
	Body struct {
		Searches []SearchSummary `json:"searches"`
	}
}

// ListSearches returns the caller's recent searches, newest first.
func (h *SearchHandler) ListSearches(ctx context.Context, input *ListSearchesInput) (*ListSearchesOutput, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	searches, err := h.searches.History(ctx, userID, input.Limit)
	if err != nil {
		return nil, toHTTPError(ctx, "list_searches", err)
	}

	out := &ListSearchesOutput{}
	out.Body.Searches = make([]SearchSummary, 0, len(searches))
	for _, s := range searches {
		out.Body.Searches = append(out.Body.Searches, summarize(s))
	}
	return out, nil
}

func summarize(s *models.Search) SearchSummary {
	sum := SearchSummary{
		ID:          s.ID,
		Query:       s.Query,
		ResultCount: len(s.Results),
		CreatedAt:   s.CreatedAt,
	}
	for _, l := range s.Results {
		if sum.LowestPrice == nil || l.Price < *sum.LowestPrice {
			p := l.Price
			sum.LowestPrice = &p
		}
	}
	return sum
}

// GetSearchInput identifies one search.
type GetSearchInput struct {
	ID string `path:"id" doc:"Search ID"`
}

// GetSearchOutput is a stored search.
type GetSearchOutput struct {
	Body *models.Search
}

// GetSearch returns one of the caller's searches.
func (h *SearchHandler) GetSearch(ctx context.Context, input *GetSearchInput) (*GetSearchOutput, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	s, err := h.searches.Get(ctx, userID, input.ID)
	if err != nil {
		return nil, toHTTPError(ctx, "get_search", err)
	}
	return &GetSearchOutput{Body: s}, nil
}
