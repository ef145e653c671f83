package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/pricewatch-api/internal/llm"
	"github.com/jmylchreest/pricewatch-api/internal/models"
	"github.com/jmylchreest/pricewatch-api/internal/repository"
)

// Usage is a user's search allowance and the shared upstream budget.
type Usage struct {
	SearchCount int                `json:"searchCount"`
	SearchLimit int                `json:"searchLimit"`
	ResetsAt    *time.Time         `json:"resetsAt,omitempty"`
	Upstream    llm.QuotaRemaining `json:"upstream"`
}

// UserService provisions users from token claims and reports usage.
type UserService struct {
	users  repository.UserRepository
	gate   *SearchQuotaGate
	quota  *llm.QuotaTracker
	logger *slog.Logger
}

// NewUserService creates a new user service.
func NewUserService(users repository.UserRepository, gate *SearchQuotaGate, quota *llm.QuotaTracker, logger *slog.Logger) *UserService {
	return &UserService{users: users, gate: gate, quota: quota, logger: logger}
}

// Ensure creates the user on first sight.
func (s *UserService) Ensure(ctx context.Context, userID, email string) (*models.User, error) {
	u, err := s.users.EnsureUser(ctx, userID, email)
	if err != nil {
		return nil, fmt.Errorf("failed to provision user: %w", err)
	}
	return u, nil
}

// Usage reports the user's current search window, resetting it if expired.
func (s *UserService) Usage(ctx context.Context, userID string) (*Usage, error) {
	d, err := s.gate.Check(ctx, userID)
	if err != nil {
		return nil, err
	}
	u := &Usage{
		SearchCount: d.Count,
		SearchLimit: d.Limit,
		ResetsAt:    d.ResetsAt,
		Upstream:    s.quota.Remaining(),
	}
	return u, nil
}
