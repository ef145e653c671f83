package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/pricewatch-api/internal/models"
)

// SQLiteTrackedProductRepository implements TrackedProductRepository for SQLite/libsql.
type SQLiteTrackedProductRepository struct {
	db *sql.DB
}

// NewSQLiteTrackedProductRepository creates a new SQLite tracked product repository.
func NewSQLiteTrackedProductRepository(db *sql.DB) *SQLiteTrackedProductRepository {
	return &SQLiteTrackedProductRepository{db: db}
}

const trackedColumns = `id, user_id, title, urls, listings, target_price, last_checked_at, next_check_at, created_at, updated_at`

// Create stores a new tracked product.
func (r *SQLiteTrackedProductRepository) Create(ctx context.Context, p *models.TrackedProduct) error {
	now := time.Now()
	if p.ID == "" {
		p.ID = ulid.Make().String()
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.NextCheckAt.IsZero() {
		p.NextCheckAt = now
	}

	urls, listings, err := encodeTracked(p)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tracked_products (`+trackedColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID,
		p.UserID,
		p.Title,
		urls,
		listings,
		nullFloat(p.TargetPrice),
		nullTime(p.LastCheckedAt),
		formatTime(p.NextCheckAt),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert tracked product: %w", err)
	}
	return nil
}

// GetByID retrieves a tracked product by ID. Returns nil if not found.
func (r *SQLiteTrackedProductRepository) GetByID(ctx context.Context, id string) (*models.TrackedProduct, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+trackedColumns+` FROM tracked_products WHERE id = ?`, id)
	return scanTracked(row)
}

// ListByUser returns the user's tracked products, newest first.
func (r *SQLiteTrackedProductRepository) ListByUser(ctx context.Context, userID string) ([]*models.TrackedProduct, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+trackedColumns+`
		FROM tracked_products
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked products: %w", err)
	}
	defer rows.Close()

	var out []*models.TrackedProduct
	for rows.Next() {
		p, err := scanTracked(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Update persists listings, target price and schedule.
func (r *SQLiteTrackedProductRepository) Update(ctx context.Context, p *models.TrackedProduct) error {
	p.UpdatedAt = time.Now()

	urls, listings, err := encodeTracked(p)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE tracked_products SET
			title = ?,
			urls = ?,
			listings = ?,
			target_price = ?,
			last_checked_at = ?,
			next_check_at = ?,
			updated_at = ?
		WHERE id = ?
	`,
		p.Title,
		urls,
		listings,
		nullFloat(p.TargetPrice),
		nullTime(p.LastCheckedAt),
		formatTime(p.NextCheckAt),
		formatTime(p.UpdatedAt),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update tracked product: %w", err)
	}
	return nil
}

// Delete removes a tracked product and, by cascade, its price history.
func (r *SQLiteTrackedProductRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tracked_products WHERE id = ?`, id)
	return err
}

// ClaimNextDue leases the most overdue product in one statement.
func (r *SQLiteTrackedProductRepository) ClaimNextDue(ctx context.Context, now, leaseUntil time.Time) (*models.TrackedProduct, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE tracked_products
		SET next_check_at = ?
		WHERE id = (
			SELECT id FROM tracked_products
			WHERE next_check_at <= ?
			ORDER BY next_check_at ASC
			LIMIT 1
		)
		RETURNING `+trackedColumns,
		formatTime(leaseUntil), formatTime(now))

	p, err := scanTracked(row)
	if err != nil {
		return nil, fmt.Errorf("failed to claim tracked product: %w", err)
	}
	return p, nil
}

func encodeTracked(p *models.TrackedProduct) (string, string, error) {
	urls, err := json.Marshal(p.URLs)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode urls: %w", err)
	}
	if p.Listings == nil {
		p.Listings = []models.ProductListing{}
	}
	listings, err := json.Marshal(p.Listings)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode listings: %w", err)
	}
	return string(urls), string(listings), nil
}

func scanTracked(row rowScanner) (*models.TrackedProduct, error) {
	var p models.TrackedProduct
	var urls, listings, nextCheckAt, createdAt, updatedAt string
	var targetPrice sql.NullFloat64
	var lastCheckedAt sql.NullString

	err := row.Scan(&p.ID, &p.UserID, &p.Title, &urls, &listings, &targetPrice,
		&lastCheckedAt, &nextCheckAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan tracked product: %w", err)
	}

	if err := json.Unmarshal([]byte(urls), &p.URLs); err != nil {
		return nil, fmt.Errorf("failed to decode urls for %s: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(listings), &p.Listings); err != nil {
		return nil, fmt.Errorf("failed to decode listings for %s: %w", p.ID, err)
	}
	if targetPrice.Valid {
		v := targetPrice.Float64
		p.TargetPrice = &v
	}
	p.LastCheckedAt = parseNullTime(lastCheckedAt)
	p.NextCheckAt = parseTime(nextCheckAt)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
