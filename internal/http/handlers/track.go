package handlers

import (
	"context"

	"github.com/jmylchreest/pricewatch-api/internal/models"
	"github.com/jmylchreest/pricewatch-api/internal/service"
)

// Tracker manages a user's tracked products.
type Tracker interface {
	Track(ctx context.Context, userID string, in service.TrackInput) (*service.TrackResult, error)
	List(ctx context.Context, userID string) ([]*models.TrackedProduct, error)
	Get(ctx context.Context, userID, id string) (*models.TrackedProduct, error)
	History(ctx context.Context, userID, id string, limit int) ([]*models.PricePoint, error)
	Delete(ctx context.Context, userID, id string) error
}

// TrackHandler handles tracking endpoints.
type TrackHandler struct {
	tracker Tracker
}

// NewTrackHandler creates a new tracking handler.
func NewTrackHandler(tracker Tracker) *TrackHandler {
	return &TrackHandler{tracker: tracker}
}

// TrackInput is a request to start tracking a product.
type TrackInput struct {
	Body struct {
		Title       string   `json:"title" maxLength:"200" doc:"Display name for the product"`
		URLs        []string `json:"urls" minItems:"1" doc:"Product page URLs on any supported platform"`
		TargetPrice *float64 `json:"targetPrice,omitempty" doc:"Optional price to watch for"`
	}
}

// TrackOutput is a newly tracked product.
type TrackOutput struct {
	Body *service.TrackResult
}

// Track resolves the URLs and starts tracking the product.
func (h *TrackHandler) Track(ctx context.Context, input *TrackInput) (*TrackOutput, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	res, err := h.tracker.Track(ctx, userID, service.TrackInput{
		Title:       input.Body.Title,
		URLs:        input.Body.URLs,
		TargetPrice: input.Body.TargetPrice,
	})
	if err != nil {
		return nil, toHTTPError(ctx, "track", err)
	}
	return &TrackOutput{Body: res}, nil
}

// ListTrackedOutput lists tracked products.
type ListTrackedOutput struct {
	Body struct {
		Products []*models.TrackedProduct `json:"products"`
	}
}

// ListTracked returns the caller's tracked products.
func (h *TrackHandler) ListTracked(ctx context.Context, input *struct{}) (*ListTrackedOutput, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	products, err := h.tracker.List(ctx, userID)
	if err != nil {
		return nil, toHTTPError(ctx, "list_tracked", err)
	}
	out := &ListTrackedOutput{}
	out.Body.Products = products
	if out.Body.Products == nil {
		out.Body.Products = []*models.TrackedProduct{}
	}
	return out, nil
}

// TrackedIDInput identifies a tracked product.
type TrackedIDInput struct {
	ID string `path:"id" doc:"Tracked product ID"`
}

// GetTrackedOutput is one tracked product.
type GetTrackedOutput struct {
	Body *models.TrackedProduct
}

// GetTracked returns one tracked product.
func (h *TrackHandler) GetTracked(ctx context.Context, input *TrackedIDInput) (*GetTrackedOutput, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	p, err := h.tracker.Get(ctx, userID, input.ID)
	if err != nil {
		return nil, toHTTPError(ctx, "get_tracked", err)
	}
	return &GetTrackedOutput{Body: p}, nil
}

// PriceHistoryInput is a price history request.
type PriceHistoryInput struct {
	ID    string `path:"id" doc:"Tracked product ID"`
	Limit int    `query:"limit" default:"100" minimum:"1" maximum:"1000" doc:"Maximum number of price points"`
}

// PriceHistoryOutput is a product's recorded prices, oldest first.
type PriceHistoryOutput struct {
	Body struct {
		Points []*models.PricePoint `json:"points"`
	}
}

// PriceHistory returns the recorded prices of a tracked product.
func (h *TrackHandler) PriceHistory(ctx context.Context, input *PriceHistoryInput) (*PriceHistoryOutput, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	points, err := h.tracker.History(ctx, userID, input.ID, input.Limit)
	if err != nil {
		return nil, toHTTPError(ctx, "price_history", err)
	}
	out := &PriceHistoryOutput{}
	out.Body.Points = points
	if out.Body.Points == nil {
		out.Body.Points = []*models.PricePoint{}
	}
	return out, nil
}

// DeleteTracked stops tracking a product and drops its history.
func (h *TrackHandler) DeleteTracked(ctx context.Context, input *TrackedIDInput) (*struct{}, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	if err := h.tracker.Delete(ctx, userID, input.ID); err != nil {
		return nil, toHTTPError(ctx, "delete_tracked", err)
	}
	return nil, nil
}
