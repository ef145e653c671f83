package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/pricewatch-api/internal/repository"
)

// QuotaDecision is the outcome of a per-user search check.
type QuotaDecision struct {
	Allowed  bool       `json:"allowed"`
	Count    int        `json:"searchCount"`
	Limit    int        `json:"searchLimit"`
	ResetsAt *time.Time `json:"resetsAt,omitempty"`
}

// SearchQuotaGate enforces the persisted per-user search ceiling over a
// rolling window that starts with the first counted search.
type SearchQuotaGate struct {
	users  repository.UserRepository
	limit  int
	window time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewSearchQuotaGate creates a gate allowing limit searches per window.
func NewSearchQuotaGate(users repository.UserRepository, limit int, window time.Duration, logger *slog.Logger) *SearchQuotaGate {
	return &SearchQuotaGate{
		users:  users,
		limit:  limit,
		window: window,
		now:    time.Now,
		logger: logger.With("component", "search_quota"),
	}
}

// Check reports whether the user may search. An expired window is reset in
// storage before the limit is compared.
func (g *SearchQuotaGate) Check(ctx context.Context, userID string) (*QuotaDecision, error) {
	u, err := g.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}

	now := g.now()
	if windowExpired(u.SearchLimitResetsAt, now) {
		reset, err := g.users.ResetSearchQuota(ctx, userID, now)
		if err != nil {
			return nil, err
		}
		if reset {
			g.logger.DebugContext(ctx, "search window expired, counter reset",
				"previous_count", u.SearchCount,
				"expired_at", u.SearchLimitResetsAt.Format(time.RFC3339),
			)
		}
		// Re-read: a concurrent request may have reset and counted already.
		if u, err = g.users.GetByID(ctx, userID); err != nil {
			return nil, err
		}
		if u == nil {
			return nil, ErrUserNotFound
		}
	}

	return &QuotaDecision{
		Allowed:  u.SearchCount < g.limit,
		Count:    u.SearchCount,
		Limit:    g.limit,
		ResetsAt: u.SearchLimitResetsAt,
	}, nil
}

// Reserve takes one slot of the user's window in a single conditional update,
// restarting an expired window first. Concurrent callers cannot take more
// slots than the limit. The first slot of a window sets the reset time to now
// plus the window.
func (g *SearchQuotaGate) Reserve(ctx context.Context, userID string) (*QuotaDecision, error) {
	ok, err := g.users.IncrementSearchCount(ctx, userID, g.limit, g.window, g.now())
	if err != nil {
		return nil, fmt.Errorf("failed to reserve search: %w", err)
	}
	u, err := g.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return &QuotaDecision{
		Allowed:  ok,
		Count:    u.SearchCount,
		Limit:    g.limit,
		ResetsAt: u.SearchLimitResetsAt,
	}, nil
}

// Release gives back a slot taken by Reserve for a search that did not
// complete.
func (g *SearchQuotaGate) Release(ctx context.Context, userID string) error {
	ok, err := g.users.ReleaseSearch(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to release search: %w", err)
	}
	if !ok {
		g.logger.WarnContext(ctx, "no search slot to release")
	}
	return nil
}

// Limit returns the configured ceiling.
func (g *SearchQuotaGate) Limit() int {
	return g.limit
}

// windowExpired reports whether a window ending at resetsAt is over. Stored
// times have second precision, so now is compared at the same precision.
func windowExpired(resetsAt *time.Time, now time.Time) bool {
	return resetsAt != nil && !now.Truncate(time.Second).Before(*resetsAt)
}
