package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/pricewatch-api/internal/models"
)

// SQLitePriceHistoryRepository implements PriceHistoryRepository for SQLite/libsql.
type SQLitePriceHistoryRepository struct {
	db *sql.DB
}

// NewSQLitePriceHistoryRepository creates a new SQLite price history repository.
func NewSQLitePriceHistoryRepository(db *sql.DB) *SQLitePriceHistoryRepository {
	return &SQLitePriceHistoryRepository{db: db}
}

// Create records a price observation.
func (r *SQLitePriceHistoryRepository) Create(ctx context.Context, p *models.PricePoint) error {
	if p.ID == "" {
		p.ID = ulid.Make().String()
	}
	if p.RecordedAt.IsZero() {
		p.RecordedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO price_history (id, tracked_product_id, platform, url, price, availability, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.TrackedProductID, string(p.Platform), p.URL, p.Price, string(p.Availability), formatTime(p.RecordedAt))
	if err != nil {
		return fmt.Errorf("failed to insert price point: %w", err)
	}
	return nil
}

// ListByProduct returns the most recent observations, oldest first.
func (r *SQLitePriceHistoryRepository) ListByProduct(ctx context.Context, trackedProductID string, limit int) ([]*models.PricePoint, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tracked_product_id, platform, url, price, availability, recorded_at
		FROM (
			SELECT * FROM price_history
			WHERE tracked_product_id = ?
			ORDER BY recorded_at DESC, id DESC
			LIMIT ?
		)
		ORDER BY recorded_at ASC, id ASC
	`, trackedProductID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list price history: %w", err)
	}
	defer rows.Close()

	var out []*models.PricePoint
	for rows.Next() {
		var p models.PricePoint
		var platform, availability, recordedAt string
		if err := rows.Scan(&p.ID, &p.TrackedProductID, &platform, &p.URL, &p.Price, &availability, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price point: %w", err)
		}
		p.Platform = models.Platform(platform)
		p.Availability = models.Availability(availability)
		p.RecordedAt = parseTime(recordedAt)
		out = append(out, &p)
	}
	return out, rows.Err()
}

