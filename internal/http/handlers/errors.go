package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/pricewatch-api/internal/service"
)

// LimitError is the 429 body for a per-user search denial.
type LimitError struct {
	Status   int       `json:"status"`
	Title    string    `json:"title"`
	Detail   string    `json:"detail"`
	Limit    int       `json:"limit"`
	ResetsAt time.Time `json:"resetsAt"`
	Stage    string    `json:"stage,omitempty"`
}

func (e *LimitError) Error() string  { return e.Detail }
func (e *LimitError) GetStatus() int { return e.Status }

// toHTTPError maps service errors onto API errors. Unknown errors are logged
// and reported as 500 with a generic message.
func toHTTPError(ctx context.Context, op string, err error) error {
	var stageErr *service.StageError
	stage := ""
	if errors.As(err, &stageErr) {
		stage = string(stageErr.Stage)
	}

	var limitErr *service.UserLimitError
	if errors.As(err, &limitErr) {
		return &LimitError{
			Status:   http.StatusTooManyRequests,
			Title:    http.StatusText(http.StatusTooManyRequests),
			Detail:   limitErr.Error(),
			Limit:    limitErr.Limit,
			ResetsAt: limitErr.ResetsAt.UTC(),
			Stage:    stage,
		}
	}

	switch {
	case errors.Is(err, service.ErrNoListings):
		return huma.NewError(http.StatusUnprocessableEntity, "no products found for this query",
			&huma.ErrorDetail{Location: "stage", Value: stage, Message: service.ErrNoListings.Error()})
	case errors.Is(err, service.ErrNothingResolved):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, service.ErrInvalidQuery), errors.Is(err, service.ErrInvalidInput):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrUserNotFound):
		return huma.Error404NotFound("not found")
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads this.
		return huma.NewError(499, "request cancelled")
	}

	slog.ErrorContext(ctx, "request failed", "operation", op, "stage", stage, "error", err)
	if stage != "" {
		return huma.NewError(http.StatusInternalServerError, "search failed",
			&huma.ErrorDetail{Location: "stage", Value: stage, Message: stageErr.Err.Error()})
	}
	return huma.Error500InternalServerError("internal error")
}
