package handlers

import (
	"context"

	"github.com/jmylchreest/pricewatch-api/internal/service"
)

// UsageReporter reports a user's search allowance.
type UsageReporter interface {
	Usage(ctx context.Context, userID string) (*service.Usage, error)
}

// UsageHandler handles usage endpoints.
type UsageHandler struct {
	users UsageReporter
}

// NewUsageHandler creates a new usage handler.
func NewUsageHandler(users UsageReporter) *UsageHandler {
	return &UsageHandler{users: users}
}

// GetUsageOutput represents usage response.
type GetUsageOutput struct {
	Body *service.Usage
}

// GetUsage returns the caller's search count, limit and the shared upstream budget.
func (h *UsageHandler) GetUsage(ctx context.Context, input *struct{}) (*GetUsageOutput, error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	usage, err := h.users.Usage(ctx, userID)
	if err != nil {
		return nil, toHTTPError(ctx, "usage", err)
	}
	return &GetUsageOutput{Body: usage}, nil
}
