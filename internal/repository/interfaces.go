// Package repository provides data access for users, searches and tracked products.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmylchreest/pricewatch-api/internal/models"
)

// UserRepository handles user rows and the persisted search counter.
type UserRepository interface {
	// EnsureUser creates the user on first sight and returns the current row.
	EnsureUser(ctx context.Context, id, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	// ResetSearchQuota zeroes the counter if its window ended before now.
	// Returns true when a reset was applied.
	ResetSearchQuota(ctx context.Context, id string, now time.Time) (bool, error)
	// IncrementSearchCount counts one search in a single conditional update.
	// The first counted search of a window sets the reset time to now+window.
	// Returns false when the user is missing or already at limit.
	IncrementSearchCount(ctx context.Context, id string, limit int, window time.Duration, now time.Time) (bool, error)
	// ReleaseSearch takes back one counted search. It never goes below zero.
	ReleaseSearch(ctx context.Context, id string) (bool, error)
}

// SearchRepository handles completed searches.
type SearchRepository interface {
	Create(ctx context.Context, s *models.Search) error
	GetByID(ctx context.Context, id string) (*models.Search, error)
	// FindRecent returns the newest search by the user for the normalized query
	// created at or after since, or nil.
	FindRecent(ctx context.Context, userID, normalizedQuery string, since time.Time) (*models.Search, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.Search, error)
	SetArchiveKey(ctx context.Context, id, key string) error
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// TrackedProductRepository handles tracked products.
type TrackedProductRepository interface {
	Create(ctx context.Context, p *models.TrackedProduct) error
	GetByID(ctx context.Context, id string) (*models.TrackedProduct, error)
	ListByUser(ctx context.Context, userID string) ([]*models.TrackedProduct, error)
	Update(ctx context.Context, p *models.TrackedProduct) error
	Delete(ctx context.Context, id string) error
	// ClaimNextDue leases the most overdue product by moving its next check to
	// leaseUntil. Returns nil when nothing is due.
	ClaimNextDue(ctx context.Context, now, leaseUntil time.Time) (*models.TrackedProduct, error)
}

// PriceHistoryRepository handles price observations.
type PriceHistoryRepository interface {
	Create(ctx context.Context, p *models.PricePoint) error
	ListByProduct(ctx context.Context, trackedProductID string, limit int) ([]*models.PricePoint, error)
}

// Repositories holds all repository instances.
type Repositories struct {
	User           UserRepository
	Search         SearchRepository
	TrackedProduct TrackedProductRepository
	PriceHistory   PriceHistoryRepository
}

// NewRepositories creates all repository instances.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		User:           NewSQLiteUserRepository(db),
		Search:         NewSQLiteSearchRepository(db),
		TrackedProduct: NewSQLiteTrackedProductRepository(db),
		PriceHistory:   NewSQLitePriceHistoryRepository(db),
	}
}

// Timestamps are stored as UTC RFC3339 so they compare correctly as text.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}
